package depth

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/quantdesk/fno-md-ingest/internal/health"
)

// depthStore is the slice of *store.Store the pipeline needs.
type depthStore interface {
	InsertDepthSnapshot(ctx context.Context, snap Snapshot, timeout time.Duration) error
}

// depthCache is the slice of *cache.Cache the pipeline needs.
type depthCache interface {
	PublishDepthSnapshot(ctx context.Context, symbol string, blob []byte)
}

// snapshotBuffer is the slice of *rollingbuffer.Buffer the pipeline
// needs. Declared locally (rather than importing rollingbuffer, which
// itself imports this package for Snapshot) to avoid an import cycle.
type snapshotBuffer interface {
	Push(snap Snapshot)
}

// topLevel is the wire shape of one published top-of-book level.
type topLevel struct {
	Price  float32 `json:"price"`
	Qty    int32   `json:"qty"`
	Orders int32   `json:"orders"`
}

// snapshotPayload is the compact JSON published to
// depth_snapshots:<symbol>, per the cache pub/sub contract.
type snapshotPayload struct {
	Time         time.Time  `json:"time"`
	CurrentPrice float32    `json:"current_price"`
	BestBid      float32    `json:"best_bid"`
	BestAsk      float32    `json:"best_ask"`
	Spread       float32    `json:"spread"`
	TopBids      []topLevel `json:"top_bids"`
	TopAsks      []topLevel `json:"top_asks"`
}

const publishTopLevels = 20

// Pipeline wires the depth transport's decoded sides through the
// merger into persistence, cache publication, and the rolling buffer
// the signal analyzer reads from (C5.1-3).
type Pipeline struct {
	component string
	symbol    string
	sqlTimeout time.Duration

	merger *Merger
	store  depthStore
	cache  depthCache
	buf    snapshotBuffer
	log    *slog.Logger

	received  atomic.Int64
	persisted atomic.Int64
	failed    atomic.Int64
}

// NewPipeline builds a Pipeline for one symbol (one process instance
// per SECURITY_ID, per the spec's deployment model).
func NewPipeline(component, symbol string, sqlTimeout time.Duration, store depthStore, cache depthCache, buf snapshotBuffer, log *slog.Logger) *Pipeline {
	return &Pipeline{
		component:  component,
		symbol:     symbol,
		sqlTimeout: sqlTimeout,
		merger:     NewMerger(),
		store:      store,
		cache:      cache,
		buf:        buf,
		log:        log,
	}
}

// OnSide is passed as the Client's onSide callback.
func (p *Pipeline) OnSide(code ResponseCode, side Side, now time.Time) {
	p.received.Add(1)
	snap, ok := p.merger.Feed(code, side, now)
	if !ok {
		return
	}
	p.handleSnapshot(context.Background(), snap)
}

func (p *Pipeline) handleSnapshot(ctx context.Context, snap Snapshot) {
	if err := p.store.InsertDepthSnapshot(ctx, snap, p.sqlTimeout); err != nil {
		p.failed.Add(1)
		p.log.Error("depth: insert snapshot failed", "error", err)
		return
	}
	p.persisted.Add(1)

	p.buf.Push(snap)
	p.cache.PublishDepthSnapshot(ctx, p.symbol, p.buildPublishPayload(snap))
}

func (p *Pipeline) buildPublishPayload(snap Snapshot) []byte {
	bid, ask := snap.BestBidAsk()
	payload := snapshotPayload{
		Time:         snap.Time,
		CurrentPrice: (bid.Price + ask.Price) / 2,
		BestBid:      bid.Price,
		BestAsk:      ask.Price,
		Spread:       ask.Price - bid.Price,
		TopBids:      toTopLevels(TopN(snap.Bids, publishTopLevels)),
		TopAsks:      toTopLevels(TopN(snap.Asks, publishTopLevels)),
	}
	blob, err := json.Marshal(payload)
	if err != nil {
		p.log.Error("depth: marshal snapshot payload", "error", err)
		return nil
	}
	return blob
}

func toTopLevels(levels []Level) []topLevel {
	out := make([]topLevel, len(levels))
	for i, l := range levels {
		out[i] = topLevel{Price: l.Price, Qty: l.Quantity, Orders: l.Orders}
	}
	return out
}

// SweepStale drops incomplete half-snapshots older than the TTL; call
// periodically from the owning process's maintenance loop.
func (p *Pipeline) SweepStale(now time.Time) int {
	return p.merger.Sweep(now)
}

// Heartbeat builds the current health.Heartbeat snapshot.
func (p *Pipeline) Heartbeat(reconnectAttempts int, authExpired bool) health.Heartbeat {
	return health.Heartbeat{
		Component:         p.component,
		LastEventTime:     time.Now(),
		Received:          p.received.Load(),
		Parsed:            p.persisted.Load(),
		Failed:            p.failed.Load(),
		ReconnectAttempts: reconnectAttempts,
		AuthExpired:       authExpired,
	}
}
