package signalengine

import (
	"time"

	"github.com/quantdesk/fno-md-ingest/internal/depth"
	"github.com/quantdesk/fno-md-ingest/internal/rollingbuffer"
)

const (
	absorptionLookbackMin = 30 * time.Second
	absorptionLookbackMax = 60 * time.Second
	absorptionReductionPct = 0.60
)

// DetectAbsorptions compares every active|breaking TrackedLevel's
// current order count against the count observed 30-60s ago in buf,
// classifying a qualifying reduction as a breakthrough (price crossed
// the level in the same window) or a cancellation (orders were pulled
// without a crossing).
func DetectAbsorptions(now time.Time, trk *Tracker, buf *rollingbuffer.Buffer, prevPrice, currPrice float64) []AbsorptionEntry {
	lookback := now.Add(-(absorptionLookbackMin + absorptionLookbackMax) / 2)
	past, ok := buf.At(lookback)
	if !ok {
		return nil
	}

	var out []AbsorptionEntry
	for _, lvl := range trk.Levels() {
		if lvl.Status != StatusActive && lvl.Status != StatusBreaking {
			continue
		}

		before := ordersAtPrice(past, lvl.Side, lvl.Price)
		if before <= 0 {
			continue
		}
		reduction := float64(before-lvl.CurrentOrders) / float64(before)
		if reduction < absorptionReductionPct {
			continue
		}

		out = append(out, AbsorptionEntry{
			Price:        lvl.Price,
			Side:         lvl.Side,
			OrdersBefore: before,
			OrdersNow:    lvl.CurrentOrders,
			ReductionPct: reduction,
			Breakthrough: Crosses(prevPrice, currPrice, lvl.Side, lvl.Price),
		})
	}
	return out
}

func ordersAtPrice(snap depth.Snapshot, side Side, price float64) int64 {
	levels := snap.Bids
	if side == SideAsk {
		levels = snap.Asks
	}
	for _, l := range levels {
		if float64(l.Price) == price {
			return int64(l.Orders)
		}
	}
	return 0
}
