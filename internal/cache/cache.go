// Package cache wraps Redis for the three roles the spec assigns it:
// health heartbeats (health:<component>), signal state
// (signal_state:<symbol>), and the depth top-of-book pub/sub channel
// (depth_snapshots:<symbol>). Every operation here is best-effort: a
// cache failure is logged and never treated as fatal.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	healthKeyPrefix      = "health:"
	signalStateKeyPrefix = "signal_state:"
	depthChannelPrefix   = "depth_snapshots:"

	healthTTL = 60 * time.Second
	signalTTL = 60 * time.Second
)

// Cache is a thin wrapper over a redis client, scoping every call to
// CacheOpTimeout so a slow or unreachable Redis never stalls the
// pipeline it is instrumenting.
type Cache struct {
	log     *slog.Logger
	client  *redis.Client
	opTimeout time.Duration
}

// New builds a Cache from a redis:// URL.
func New(url string, opTimeout time.Duration, log *slog.Logger) (*Cache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("cache: parse redis url: %w", err)
	}
	return &Cache{log: log, client: redis.NewClient(opts), opTimeout: opTimeout}, nil
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.opTimeout)
}

// SetHealth writes a JSON health blob under health:<component> with a
// 60s TTL. Failures are logged, not returned as fatal, per the cache
// operation policy.
func (c *Cache) SetHealth(ctx context.Context, component string, blob []byte) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	key := healthKeyPrefix + component
	if err := c.client.Set(ctx, key, blob, healthTTL).Err(); err != nil {
		c.log.Warn("cache: set health failed", "component", component, "error", err)
	}
}

// GetHealth reads the health blob for component, if present.
func (c *Cache) GetHealth(ctx context.Context, component string) ([]byte, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	data, err := c.client.Get(ctx, healthKeyPrefix+component).Bytes()
	if err != nil {
		return nil, fmt.Errorf("cache: get health: %w", err)
	}
	return data, nil
}

// SetSignalState writes the latest SignalRow JSON under
// signal_state:<symbol> with a 60s TTL.
func (c *Cache) SetSignalState(ctx context.Context, symbol string, blob []byte) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	key := signalStateKeyPrefix + symbol
	if err := c.client.Set(ctx, key, blob, signalTTL).Err(); err != nil {
		c.log.Warn("cache: set signal state failed", "symbol", symbol, "error", err)
	}
}

// PublishDepthSnapshot publishes the compact top-of-book JSON payload
// to depth_snapshots:<symbol>. Best-effort: it never blocks the
// depth-persistence path that calls it.
func (c *Cache) PublishDepthSnapshot(ctx context.Context, symbol string, blob []byte) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	channel := depthChannelPrefix + symbol
	if err := c.client.Publish(ctx, channel, blob).Err(); err != nil {
		c.log.Warn("cache: publish depth snapshot failed", "symbol", symbol, "error", err)
	}
}

// GetInstrumentSnapshot and SetInstrumentSnapshot implement
// instrument.CacheFallback, the auxiliary source C1 consults only when
// the SQL load fails at startup.
const instrumentSnapshotKey = "instrument_snapshot:v1"

func (c *Cache) GetInstrumentSnapshot(ctx context.Context) ([]byte, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	data, err := c.client.Get(ctx, instrumentSnapshotKey).Bytes()
	if err != nil {
		return nil, fmt.Errorf("cache: get instrument snapshot: %w", err)
	}
	return data, nil
}

func (c *Cache) SetInstrumentSnapshot(ctx context.Context, data []byte) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.client.Set(ctx, instrumentSnapshotKey, data, 0).Err(); err != nil {
		return fmt.Errorf("cache: set instrument snapshot: %w", err)
	}
	return nil
}
