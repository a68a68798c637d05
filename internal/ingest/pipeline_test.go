package ingest

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/quantdesk/fno-md-ingest/internal/backoff"
	"github.com/quantdesk/fno-md-ingest/internal/feed"
	"github.com/quantdesk/fno-md-ingest/internal/instrument"
)

type fakeBus struct {
	mu   sync.Mutex
	seen [][]byte
}

func (f *fakeBus) Publish(ctx context.Context, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]byte(nil), body...)
	f.seen = append(f.seen, cp)
	return nil
}

func (f *fakeBus) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPipeline_fullFrame_resolvesAndPublishes(t *testing.T) {
	cache := instrument.New(testLogger())
	cache.Load(context.Background(), stubSQL{rows: []instrument.Instrument{
		{InstrumentToken: 1, SecurityID: "49229", TradingSymbol: "NIFTY24JULFUT", Exchange: "NSE", Segment: "NSE_FNO", InstrumentType: instrument.TypeFuture, TickSize: 0.05},
	}}, nil)

	merger := NewMerger(0)
	enricher := NewEnricher(cache)
	fb := &fakeBus{}
	publisher := NewPublisher(fb, testLogger())
	p := NewPipeline("test-ingest", merger, enricher, publisher, backoff.New(1), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Run(ctx)
	}()

	full := feed.FullTick{Header: feed.Header{SecurityID: 49229}, LastPrice: 24500.00}
	p.OnFrame(full, time.Now())

	deadline := time.Now().Add(time.Second)
	for p.parsed.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if p.parsed.Load() != 1 {
		t.Fatalf("parsed = %d, want 1", p.parsed.Load())
	}
	if fb.count() != 1 {
		t.Fatalf("published = %d, want 1", fb.count())
	}

	cancel()
	wg.Wait()
}

func TestPipeline_unresolvedSecurity_incrementsFailed(t *testing.T) {
	cache := instrument.New(testLogger())
	cache.Load(context.Background(), stubSQL{rows: nil}, nil)

	merger := NewMerger(0)
	enricher := NewEnricher(cache)
	fb := &fakeBus{}
	publisher := NewPublisher(fb, testLogger())
	p := NewPipeline("test-ingest", merger, enricher, publisher, backoff.New(1), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Run(ctx)
	}()

	full := feed.FullTick{Header: feed.Header{SecurityID: 99999}, LastPrice: 100}
	p.OnFrame(full, time.Now())

	deadline := time.Now().Add(time.Second)
	for p.failed.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if p.failed.Load() != 1 {
		t.Fatalf("failed = %d, want 1", p.failed.Load())
	}
	if fb.count() != 0 {
		t.Fatalf("published = %d, want 0", fb.count())
	}

	cancel()
	wg.Wait()
}

func TestPipeline_drain_flushesBufferedFrames(t *testing.T) {
	cache := instrument.New(testLogger())
	cache.Load(context.Background(), stubSQL{rows: []instrument.Instrument{
		{InstrumentToken: 1, SecurityID: "49229", TradingSymbol: "NIFTY24JULFUT", Exchange: "NSE", Segment: "NSE_FNO", InstrumentType: instrument.TypeFuture, TickSize: 0.05},
	}}, nil)

	merger := NewMerger(0)
	enricher := NewEnricher(cache)
	fb := &fakeBus{}
	publisher := NewPublisher(fb, testLogger())
	p := NewPipeline("test-ingest", merger, enricher, publisher, backoff.New(1), testLogger())

	full := feed.FullTick{Header: feed.Header{SecurityID: 49229}, LastPrice: 24500.00}
	p.frames <- frameEnvelope{record: full, at: time.Now()}
	p.frames <- frameEnvelope{record: full, at: time.Now()}

	// drain is what Run calls on ctx.Done(): it must flush everything
	// already buffered rather than dropping it on cancellation.
	p.drain()

	if p.parsed.Load() != 2 {
		t.Fatalf("parsed = %d, want 2", p.parsed.Load())
	}
	if fb.count() != 2 {
		t.Fatalf("published = %d, want 2", fb.count())
	}
}

func TestPipeline_drain_emptyBufferReturnsImmediately(t *testing.T) {
	cache := instrument.New(testLogger())
	cache.Load(context.Background(), stubSQL{rows: nil}, nil)

	merger := NewMerger(0)
	enricher := NewEnricher(cache)
	fb := &fakeBus{}
	publisher := NewPublisher(fb, testLogger())
	p := NewPipeline("test-ingest", merger, enricher, publisher, backoff.New(1), testLogger())

	start := time.Now()
	p.drain()
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("drain took %s on an empty buffer, want near-instant", elapsed)
	}
}

type stubSQL struct {
	rows []instrument.Instrument
}

func (s stubSQL) LoadActiveInstruments(ctx context.Context) ([]instrument.Instrument, error) {
	return s.rows, nil
}
