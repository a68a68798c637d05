package rollingbuffer

import (
	"testing"
	"time"

	"github.com/quantdesk/fno-md-ingest/internal/depth"
)

func snapAt(t time.Time, price float32) depth.Snapshot {
	return depth.Snapshot{Time: t, Bids: []depth.Level{{Price: price}}}
}

func TestBuffer_evictsPastCapacity(t *testing.T) {
	b := New(3)
	base := time.Now()
	for i := 0; i < 5; i++ {
		b.Push(snapAt(base.Add(time.Duration(i)*time.Second), float32(i)))
	}
	if b.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", b.Len())
	}
	latest, ok := b.Latest()
	if !ok || latest.Bids[0].Price != 4 {
		t.Fatalf("Latest() = %+v, want price 4", latest)
	}
}

func TestBuffer_since(t *testing.T) {
	b := New(10)
	base := time.Now()
	for i := 0; i < 10; i++ {
		b.Push(snapAt(base.Add(time.Duration(i)*time.Second), float32(i)))
	}
	since := b.Since(base.Add(5 * time.Second))
	if len(since) != 5 {
		t.Fatalf("Since() returned %d snapshots, want 5", len(since))
	}
	if since[0].Bids[0].Price != 5 {
		t.Errorf("since[0] price = %v, want 5", since[0].Bids[0].Price)
	}
}

func TestBuffer_at_returnsClosestNotAfter(t *testing.T) {
	b := New(10)
	base := time.Now()
	b.Push(snapAt(base, 1))
	b.Push(snapAt(base.Add(30*time.Second), 2))
	b.Push(snapAt(base.Add(60*time.Second), 3))

	snap, ok := b.At(base.Add(45 * time.Second))
	if !ok {
		t.Fatal("expected a match")
	}
	if snap.Bids[0].Price != 2 {
		t.Errorf("At(45s) = price %v, want 2", snap.Bids[0].Price)
	}
}
