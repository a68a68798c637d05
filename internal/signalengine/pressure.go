package signalengine

import (
	"time"

	"github.com/quantdesk/fno-md-ingest/internal/depth"
	"github.com/quantdesk/fno-md-ingest/internal/rollingbuffer"
)

const (
	pressureTopLevels       = 20
	pressureBullishThreshold = 0.3
	pressureBearishThreshold = -0.3
)

// Pressure holds the three window readings the spec names, clamped to
// [-1, 1].
type Pressure struct {
	P30s, P60s, P120s float64
}

// ComputePressure averages per-snapshot imbalance over each of the
// 30s/60s/120s windows ending at now.
func ComputePressure(now time.Time, buf *rollingbuffer.Buffer) Pressure {
	return Pressure{
		P30s:  windowMean(buf.Since(now.Add(-30 * time.Second))),
		P60s:  windowMean(buf.Since(now.Add(-60 * time.Second))),
		P120s: windowMean(buf.Since(now.Add(-120 * time.Second))),
	}
}

func windowMean(snaps []depth.Snapshot) float64 {
	if len(snaps) == 0 {
		return 0
	}
	var sum float64
	for _, s := range snaps {
		sum += snapshotImbalance(s)
	}
	return clamp(sum/float64(len(snaps)), -1, 1)
}

func snapshotImbalance(s depth.Snapshot) float64 {
	var bidOrders, askOrders int64
	for _, l := range depth.TopN(s.Bids, pressureTopLevels) {
		bidOrders += int64(l.Orders)
	}
	for _, l := range depth.TopN(s.Asks, pressureTopLevels) {
		askOrders += int64(l.Orders)
	}
	total := bidOrders + askOrders
	if total == 0 {
		return 0
	}
	return float64(bidOrders-askOrders) / float64(total)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Classify maps the primary (60s) pressure reading to a MarketState.
func (p Pressure) Classify() MarketState {
	switch {
	case p.P60s > pressureBullishThreshold:
		return MarketBullish
	case p.P60s < pressureBearishThreshold:
		return MarketBearish
	default:
		return MarketNeutral
	}
}
