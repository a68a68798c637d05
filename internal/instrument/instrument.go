// Package instrument implements the instrument master cache (C1):
// constant-time lookup from a feed vendor's security_id to the
// canonical instrument_token and metadata, hydrated from SQL at
// startup with a cache-backed fallback.
package instrument

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrLoadFailed indicates both the SQL source and the cache fallback
// failed to produce an instrument set; the caller must abort startup.
var ErrLoadFailed = errors.New("instrument: load failed from sql and cache")

// Type enumerates the instrument kinds the feed carries.
type Type string

const (
	TypeFuture Type = "FUT"
	TypeCall   Type = "CE"
	TypePut    Type = "PE"
	TypeEquity Type = "EQ"
)

// Instrument is one row of the instrument master.
type Instrument struct {
	InstrumentToken int32
	SecurityID      string
	TradingSymbol   string
	Exchange        string
	Segment         string
	InstrumentType  Type
	Expiry          *time.Time
	Strike          *float64
	TickSize        float64
	LotSize         int32
	Source          string
	IsActive        bool
}

// SQLLoader executes the single startup read of all active instruments.
// Implemented by internal/store against the instruments table.
type SQLLoader interface {
	LoadActiveInstruments(ctx context.Context) ([]Instrument, error)
}

// CacheFallback is consulted only when SQLLoader fails at startup.
type CacheFallback interface {
	GetInstrumentSnapshot(ctx context.Context) ([]byte, error)
	SetInstrumentSnapshot(ctx context.Context, data []byte) error
}

// Cache is the in-memory, read-mostly instrument index. It is safe to
// read concurrently from any number of goroutines once Load has
// returned successfully; reload replaces the maps atomically so a
// reader never observes a partial swap.
type Cache struct {
	log *slog.Logger

	mu         sync.RWMutex
	byToken    map[int32]Instrument
	bySecurity map[string]Instrument
}

// New builds an empty Cache. Call Load before using it.
func New(log *slog.Logger) *Cache {
	return &Cache{
		log:        log,
		byToken:    make(map[int32]Instrument),
		bySecurity: make(map[string]Instrument),
	}
}

// Load hydrates the cache from sql, falling back to cache only if the
// SQL read fails. Both failing aborts startup: there is no degraded
// mode, an empty cache would silently drop every tick.
func (c *Cache) Load(ctx context.Context, sql SQLLoader, fallback CacheFallback) error {
	rows, sqlErr := sql.LoadActiveInstruments(ctx)
	if sqlErr == nil {
		c.swap(rows)
		if fallback != nil {
			if data, err := json.Marshal(rows); err == nil {
				if err := fallback.SetInstrumentSnapshot(ctx, data); err != nil {
					c.log.Warn("instrument cache: failed to refresh fallback snapshot", "error", err)
				}
			}
		}
		c.log.Info("instrument cache loaded", "count", len(rows), "source", "sql")
		return nil
	}

	c.log.Error("instrument cache: sql load failed, trying fallback", "error", sqlErr)

	if fallback == nil {
		return fmt.Errorf("%w: sql: %v, no fallback configured", ErrLoadFailed, sqlErr)
	}

	data, fbErr := fallback.GetInstrumentSnapshot(ctx)
	if fbErr != nil {
		return fmt.Errorf("%w: sql: %v, fallback: %v", ErrLoadFailed, sqlErr, fbErr)
	}

	var rows2 []Instrument
	if err := json.Unmarshal(data, &rows2); err != nil {
		return fmt.Errorf("%w: fallback snapshot corrupt: %v", ErrLoadFailed, err)
	}

	c.swap(rows2)
	c.log.Warn("instrument cache loaded from fallback", "count", len(rows2))
	return nil
}

// Reload re-runs Load's SQL path and replaces the maps in place on
// success; on failure the prior maps are left untouched (idempotent,
// no partial swap).
func (c *Cache) Reload(ctx context.Context, sql SQLLoader) error {
	rows, err := sql.LoadActiveInstruments(ctx)
	if err != nil {
		c.log.Error("instrument cache: reload failed, keeping prior snapshot", "error", err)
		return fmt.Errorf("instrument reload: %w", err)
	}
	c.swap(rows)
	c.log.Info("instrument cache reloaded", "count", len(rows))
	return nil
}

func (c *Cache) swap(rows []Instrument) {
	byToken := make(map[int32]Instrument, len(rows))
	bySecurity := make(map[string]Instrument, len(rows))
	for _, r := range rows {
		byToken[r.InstrumentToken] = r
		if r.SecurityID != "" {
			bySecurity[r.SecurityID] = r
		}
	}

	c.mu.Lock()
	c.byToken = byToken
	c.bySecurity = bySecurity
	c.mu.Unlock()
}

// ResolveSecurityID is a total function: it returns ok=false on miss
// rather than an error, matching the spec's "resolve_security_id(sid)
// -> (token, meta)?" contract.
func (c *Cache) ResolveSecurityID(sid string) (Instrument, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	inst, ok := c.bySecurity[sid]
	return inst, ok
}

// ResolveToken looks up metadata by canonical instrument_token.
func (c *Cache) ResolveToken(token int32) (Instrument, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	inst, ok := c.byToken[token]
	return inst, ok
}

// Len returns the number of active instruments currently cached.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byToken)
}

// All returns every cached instrument, used by the ingestion process at
// startup to build its subscription list.
func (c *Cache) All() []Instrument {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Instrument, 0, len(c.byToken))
	for _, inst := range c.byToken {
		out = append(out, inst)
	}
	return out
}
