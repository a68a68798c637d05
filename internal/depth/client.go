package depth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quantdesk/fno-md-ingest/internal/backoff"
	"github.com/quantdesk/fno-md-ingest/internal/ingest"
)

// readIdleTimeout matches the tick feed's 40s budget; the depth
// endpoint shares the same keepalive contract.
const readIdleTimeout = 40 * time.Second

// ClientConfig parameterizes one depth Client.
type ClientConfig struct {
	URL                   string
	AccessToken           string
	ClientID              string
	Subscriptions         []ingest.SubscribeMessage
	MaxReconnectAttempts  int
	ReconnectDelay        time.Duration
}

// cycleRecord captures how many frames one connect-to-disconnect cycle
// produced, used to detect the fast-reconnect-with-no-data pattern.
type cycleRecord struct {
	start  time.Time
	frames int
}

// Client owns the persistent WebSocket transport to the full-depth
// endpoint, decoding every binary frame and handing the Side (or
// disconnect) to onFrame.
type Client struct {
	cfg ClientConfig
	log *slog.Logger
	pol *backoff.Policy

	mu   sync.Mutex
	conn *websocket.Conn

	attempts int

	cycleStart      time.Time
	framesThisCycle int
	recentCycles    []cycleRecord
	authExpired     bool

	onSide       func(code ResponseCode, side Side, now time.Time)
	onDisconnect func()
}

// NewClient builds a depth Client.
func NewClient(cfg ClientConfig, log *slog.Logger, pol *backoff.Policy, onSide func(ResponseCode, Side, time.Time), onDisconnect func()) *Client {
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 5
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	return &Client{cfg: cfg, log: log, pol: pol, onSide: onSide, onDisconnect: onDisconnect}
}

// Run connects and reads until ctx is cancelled or the reconnect
// budget is exhausted.
func (c *Client) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := c.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.recordCycle()
		if c.authExpired {
			c.log.Error("depth feed: two zero-frame reconnect cycles, treating as auth expired",
				"window", 2*c.cfg.ReconnectDelay)
			return fmt.Errorf("%w: last error: %v", ErrAuthExpired, err)
		}

		c.attempts++
		c.log.Warn("depth feed disconnected", "error", err, "attempt", c.attempts)

		if c.attempts >= c.cfg.MaxReconnectAttempts {
			return fmt.Errorf("depth: max reconnect attempts exceeded: %w", err)
		}

		delay := c.pol.FixedDelay(c.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// Attempts returns the current reconnect attempt count.
func (c *Client) Attempts() int {
	return c.attempts
}

// AuthExpired reports whether Run detected two consecutive zero-frame
// reconnect cycles within 2*ReconnectDelay, the documented signal that
// the access token has expired rather than the connection being flaky.
func (c *Client) AuthExpired() bool {
	return c.authExpired
}

// recordCycle appends the just-finished connect cycle to the last-two
// window and flags authExpired once both recorded cycles produced zero
// frames within the fast-reconnect window.
func (c *Client) recordCycle() {
	rec := cycleRecord{start: c.cycleStart, frames: c.framesThisCycle}
	c.recentCycles = append(c.recentCycles, rec)
	if len(c.recentCycles) > 2 {
		c.recentCycles = c.recentCycles[len(c.recentCycles)-2:]
	}
	if len(c.recentCycles) == 2 {
		a, b := c.recentCycles[0], c.recentCycles[1]
		if a.frames == 0 && b.frames == 0 && b.start.Sub(a.start) <= 2*c.cfg.ReconnectDelay {
			c.authExpired = true
		}
	}
}

func (c *Client) connectURL() string {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return c.cfg.URL
	}
	q := u.Query()
	q.Set("version", "2")
	q.Set("token", c.cfg.AccessToken)
	q.Set("clientId", c.cfg.ClientID)
	q.Set("authType", "2")
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.connectURL(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		conn.Close()
		c.conn = nil
		c.mu.Unlock()
	}()

	for _, msg := range c.cfg.Subscriptions {
		body, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal subscription: %w", err)
		}
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
			return fmt.Errorf("send subscription: %w", err)
		}
	}

	c.log.Info("depth feed connected", "subscriptions", len(c.cfg.Subscriptions))
	c.attempts = 0
	c.cycleStart = time.Now()
	c.framesThisCycle = 0

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		now := time.Now()
		code, side, err := DecodeFrame(data)
		if err != nil {
			c.log.Warn("depth feed: decode error", "error", err, "bytes", len(data))
			continue
		}

		if code == CodeDisconnect {
			if c.onDisconnect != nil {
				c.onDisconnect()
			}
			return fmt.Errorf("server requested disconnect")
		}

		c.framesThisCycle++
		c.onSide(code, side, now)
	}
}

// Close sends a WebSocket close handshake and tears down the active
// connection, if any, forcing the read loop to return so Run can
// reconnect or exit. The close frame is best-effort: a write failure
// here just means the peer already went away, not a reason to skip
// tearing down the local connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(2*time.Second))
	return c.conn.Close()
}
