package ingest

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
	"github.com/quantdesk/fno-md-ingest/internal/feed"
)

// readIdleTimeout bounds how long the transport waits for a frame
// (including the server's own 10s pings) before it is considered dead
// and torn down for reconnect.
const readIdleTimeout = 40 * time.Second

// DefaultMaxReconnectAttempts and DefaultReconnectDelay are the spec's
// named defaults; Config.ReconnectAttempts/ReconnectDelay override them.
const (
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectDelay       = 5 * time.Second
)

// ClientConfig parameterizes one Client.
type ClientConfig struct {
	URL                string
	AccessToken         string
	ClientID            string
	Subscriptions       []SubscribeMessage
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
}

// Client owns the persistent WebSocket transport to the tick feed: it
// dials, sends the subscription messages, and hands every decoded
// binary frame to onFrame. Reconnects use a fixed delay (with jitter)
// up to a bounded attempt count, per the spec's reconnect policy —
// deliberately not the exponential curve used for persistence retries.
type Client struct {
	cfg ClientConfig
	log *slog.Logger
	pol *backoff.Policy

	mu   sync.Mutex
	conn *websocket.Conn

	attempts int

	onFrame func(record any, now time.Time)
}

// NewClient builds a Client. onFrame is invoked synchronously from the
// read loop's goroutine for every successfully decoded frame; it must
// not block.
func NewClient(cfg ClientConfig, log *slog.Logger, pol *backoff.Policy, onFrame func(record any, now time.Time)) *Client {
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	return &Client{cfg: cfg, log: log, pol: pol, onFrame: onFrame}
}

// Run connects and reads until ctx is cancelled or the reconnect
// budget is exhausted, at which point it returns
// ErrMaxReconnectsExceeded.
func (c *Client) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := c.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.attempts++
		c.log.Warn("tick feed disconnected", "error", err, "attempt", c.attempts)

		if c.attempts >= c.cfg.MaxReconnectAttempts {
			return fmt.Errorf("%w: last error: %v", ErrMaxReconnectsExceeded, err)
		}

		delay := c.pol.FixedDelay(c.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// Attempts returns the current reconnect attempt count, exposed for
// the health heartbeat.
func (c *Client) Attempts() int {
	return c.attempts
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

	c.log.Info("tick feed connected", "subscriptions", len(c.cfg.Subscriptions))
	c.attempts = 0

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
		record, err := feed.Decode(data)
		if err != nil {
			c.log.Warn("tick feed: decode error", "error", err, "bytes", len(data))
			continue
		}

		c.onFrame(record, now)

		if _, ok := record.(feed.Disconnect); ok {
			return fmt.Errorf("server requested disconnect")
		}
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
