package depth

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"
)

// fakeBuffer stands in for *rollingbuffer.Buffer: pipeline_test.go
// cannot import rollingbuffer directly, since rollingbuffer imports
// this package for Snapshot.
type fakeBuffer struct {
	pushed []Snapshot
}

func (f *fakeBuffer) Push(snap Snapshot) {
	f.pushed = append(f.pushed, snap)
}

type fakeDepthStore struct {
	snapshots []Snapshot
}

func (f *fakeDepthStore) InsertDepthSnapshot(ctx context.Context, snap Snapshot, timeout time.Duration) error {
	f.snapshots = append(f.snapshots, snap)
	return nil
}

type fakeDepthCache struct {
	published [][]byte
}

func (f *fakeDepthCache) PublishDepthSnapshot(ctx context.Context, symbol string, blob []byte) {
	f.published = append(f.published, blob)
}

func TestPipeline_OnSide_completesAndPublishes(t *testing.T) {
	store := &fakeDepthStore{}
	cache := &fakeDepthCache{}
	buf := &fakeBuffer{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	p := NewPipeline("test-depth", "NIFTY24JULFUT", 5*time.Second, store, cache, buf, log)

	now := time.Now()
	p.OnSide(CodeBidSide, Side{SecurityID: 49229, Time: now, Levels: []Level{{Price: 24498, Quantity: 100000, Orders: 50}}}, now)
	if len(store.snapshots) != 0 {
		t.Fatal("expected no snapshot before both sides arrive")
	}

	p.OnSide(CodeAskSide, Side{SecurityID: 49229, Time: now, Levels: []Level{{Price: 24502, Quantity: 120000, Orders: 60}}}, now)

	if len(store.snapshots) != 1 {
		t.Fatalf("snapshots persisted = %d, want 1", len(store.snapshots))
	}
	if len(cache.published) != 1 {
		t.Fatalf("published = %d, want 1", len(cache.published))
	}
	if len(buf.pushed) != 1 {
		t.Fatalf("buffer len = %d, want 1", len(buf.pushed))
	}

	var payload snapshotPayload
	if err := json.Unmarshal(cache.published[0], &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.BestBid != 24498 || payload.BestAsk != 24502 {
		t.Errorf("payload best bid/ask = %v/%v, want 24498/24502", payload.BestBid, payload.BestAsk)
	}
	if len(payload.TopBids) != 1 || len(payload.TopAsks) != 1 {
		t.Errorf("payload top levels = %d/%d, want 1/1", len(payload.TopBids), len(payload.TopAsks))
	}
}
