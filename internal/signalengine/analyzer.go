package signalengine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/quantdesk/fno-md-ingest/internal/depth"
	"github.com/quantdesk/fno-md-ingest/internal/notify"
	"github.com/quantdesk/fno-md-ingest/internal/rollingbuffer"
)

// evaluationInterval is the signal core's fixed cadence: one
// evaluation of the tracked key levels, absorptions, and pressure
// windows every 10 seconds.
const evaluationInterval = 10 * time.Second

// signalStore is the slice of *store.Store the analyzer needs.
// Declared locally because internal/store already imports
// internal/signalengine for SignalRow; importing store back here would
// cycle.
type signalStore interface {
	InsertSignal(ctx context.Context, row SignalRow) error
}

// signalCache is the slice of *cache.Cache the analyzer needs.
type signalCache interface {
	SetSignalState(ctx context.Context, symbol string, blob []byte)
}

// Analyzer runs the 10-second evaluation cycle for one symbol: it is
// the single writer of that symbol's Tracker and Cooldown, matching
// the spec's "one analyzer per symbol" serialization guarantee.
type Analyzer struct {
	symbol     string
	securityID string
	tracker    *Tracker
	cooldown   *Cooldown
	buf        *rollingbuffer.Buffer
	store      signalStore
	cache      signalCache
	notifier   *notify.Sink
	log        *slog.Logger

	prevPrice float64
	prevState MarketState

	mu      sync.Mutex
	lastRow SignalRow
}

// NewAnalyzer builds an Analyzer for one symbol/security_id pair,
// tickSize sizing the tracker's price-bucket equality.
func NewAnalyzer(symbol, securityID string, tickSize float64, buf *rollingbuffer.Buffer, store signalStore, cache signalCache, notifier *notify.Sink, log *slog.Logger) *Analyzer {
	return &Analyzer{
		symbol:     symbol,
		securityID: securityID,
		tracker:    NewTracker(tickSize),
		cooldown:   NewCooldown(),
		buf:        buf,
		store:      store,
		cache:      cache,
		notifier:   notifier,
		prevState:  MarketNeutral,
		log:        log,
	}
}

// Run drives the drift-corrected 10-second evaluation loop until ctx
// is cancelled. It emits an unconditional startup alert before the
// first cycle and an unconditional "offline" alert on the way out,
// per the cancellation policy.
func (a *Analyzer) Run(ctx context.Context) error {
	a.notifier.Send(ctx, notify.Body{
		Text:   fmt.Sprintf("Signal core online for %s", a.symbol),
		Fields: map[string]any{"security_id": a.securityID, "event": "startup"},
	})
	defer a.notifier.Send(context.Background(), notify.Body{
		Text:   fmt.Sprintf("Signal core offline for %s", a.symbol),
		Fields: map[string]any{"security_id": a.securityID, "event": "shutdown"},
	})

	next := time.Now()
	for {
		next = next.Add(evaluationInterval)
		delay := time.Until(next)
		if delay < 0 {
			// fell behind (GC pause, slow evaluation); resync instead of
			// firing a burst of overdue cycles
			next = time.Now()
			delay = 0
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			a.RunOnce(ctx, time.Now())
		}
	}
}

// RunOnce executes a single evaluation cycle. Exported so tests and a
// manual trigger path can drive it deterministically.
func (a *Analyzer) RunOnce(ctx context.Context, now time.Time) {
	snap, ok := a.buf.Latest()
	if !ok {
		return
	}

	bid, ask := snap.BestBidAsk()
	currPrice := float64(bid.Price+ask.Price) / 2

	obs := observationsFromSnapshot(snap)
	keyLevels := a.tracker.Evaluate(now, a.prevPrice, currPrice, obs)
	absorptions := DetectAbsorptions(now, a.tracker, a.buf, a.prevPrice, currPrice)
	pressure := ComputePressure(now, a.buf)
	state := pressure.Classify()

	row := SignalRow{
		Time:         now,
		SecurityID:   a.securityID,
		CurrentPrice: currPrice,
		KeyLevels:    keyLevels,
		Absorptions:  absorptions,
		Pressure30s:  pressure.P30s,
		Pressure60s:  pressure.P60s,
		Pressure120s: pressure.P120s,
		MarketState:  state,
	}

	if err := a.store.InsertSignal(ctx, row); err != nil {
		a.log.Error("signalengine: insert signal failed", "symbol", a.symbol, "error", err)
	}

	if blob, err := json.Marshal(row); err != nil {
		a.log.Error("signalengine: marshal signal state failed", "error", err)
	} else {
		a.cache.SetSignalState(ctx, a.symbol, blob)
	}

	for _, e := range BuildAlerts(row, a.prevState, a.cooldown, now) {
		a.notifier.Send(ctx, notify.Body{Text: e.Text, Fields: e.Fields})
	}

	a.prevPrice = currPrice
	a.prevState = state

	a.mu.Lock()
	a.lastRow = row
	a.mu.Unlock()
}

// LastRow returns the most recently computed SignalRow, for the health
// endpoint and tests.
func (a *Analyzer) LastRow() SignalRow {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastRow
}

func observationsFromSnapshot(snap depth.Snapshot) []LevelObservation {
	obs := make([]LevelObservation, 0, len(snap.Bids)+len(snap.Asks))
	for _, l := range snap.Bids {
		obs = append(obs, LevelObservation{Price: float64(l.Price), Side: SideBid, Orders: int64(l.Orders)})
	}
	for _, l := range snap.Asks {
		obs = append(obs, LevelObservation{Price: float64(l.Price), Side: SideAsk, Orders: int64(l.Orders)})
	}
	return obs
}
