package signalengine

import (
	"math"
	"testing"
	"time"

	"github.com/quantdesk/fno-md-ingest/internal/depth"
	"github.com/quantdesk/fno-md-ingest/internal/rollingbuffer"
)

func TestDetectAbsorptions_S5_breakthrough(t *testing.T) {
	trk := NewTracker(0.05)
	now := time.Now()

	// Seed a tracked level at 23500 resistance, already active, peak 3200.
	trk.levels["ask:23500.00"] = &TrackedLevel{
		Price:         23500.00,
		Side:          SideAsk,
		FirstSeen:     now.Add(-2 * time.Minute),
		LastSeen:      now,
		PeakOrders:    3200,
		CurrentOrders: 704,
		Status:        StatusActive,
	}

	buf := rollingbuffer.New(100)
	buf.Push(depth.Snapshot{
		Time: now.Add(-45 * time.Second),
		Asks: []depth.Level{{Price: 23500.00, Quantity: 1, Orders: 3200}},
	})

	entries := DetectAbsorptions(now, trk, buf, 23498.00, 23512.00)
	if len(entries) != 1 {
		t.Fatalf("got %d absorption entries, want 1", len(entries))
	}
	e := entries[0]
	if math.Abs(e.ReductionPct-0.78) > 0.01 {
		t.Errorf("ReductionPct = %v, want ~0.78", e.ReductionPct)
	}
	if !e.Breakthrough {
		t.Error("expected Breakthrough = true for upward crossing")
	}
}

func TestDetectAbsorptions_cancellationWhenNoCrossing(t *testing.T) {
	trk := NewTracker(0.05)
	now := time.Now()

	trk.levels["bid:23000.00"] = &TrackedLevel{
		Price:         23000.00,
		Side:          SideBid,
		FirstSeen:     now.Add(-2 * time.Minute),
		LastSeen:      now,
		PeakOrders:    1000,
		CurrentOrders: 200,
		Status:        StatusBreaking,
	}

	buf := rollingbuffer.New(100)
	buf.Push(depth.Snapshot{
		Time: now.Add(-45 * time.Second),
		Bids: []depth.Level{{Price: 23000.00, Quantity: 1, Orders: 1000}},
	})

	// price stays above the support, never touches it.
	entries := DetectAbsorptions(now, trk, buf, 23100.00, 23105.00)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Breakthrough {
		t.Error("expected Breakthrough = false (cancellation, no crossing)")
	}
}

func TestDetectAbsorptions_belowReductionThresholdExcluded(t *testing.T) {
	trk := NewTracker(0.05)
	now := time.Now()

	trk.levels["ask:100.00"] = &TrackedLevel{
		Price: 100.00, Side: SideAsk, Status: StatusActive, CurrentOrders: 800,
	}
	buf := rollingbuffer.New(100)
	buf.Push(depth.Snapshot{
		Time: now.Add(-45 * time.Second),
		Asks: []depth.Level{{Price: 100.00, Quantity: 1, Orders: 1000}},
	})

	entries := DetectAbsorptions(now, trk, buf, 99, 99)
	if len(entries) != 0 {
		t.Fatalf("20%% reduction should not qualify, got %d entries", len(entries))
	}
}
