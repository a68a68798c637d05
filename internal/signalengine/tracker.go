package signalengine

import (
	"fmt"
	"math"
	"time"
)

const (
	keyLevelRadius        = 100.0
	keyLevelRatioThreshold = 2.5
	activeAfter            = 5 * time.Second
	breakingDropPct        = 0.60
	testApproachDistance   = 5.0
	brokenGCAfter          = 60 * time.Second
)

// LevelObservation is one side/price/order-count reading from the
// current top-of-book snapshot, the tracker's only input besides the
// current and previous traded price.
type LevelObservation struct {
	Price  float64
	Side   Side
	Orders int64
}

// Tracker maintains the TrackedLevel set for one symbol. It is not
// safe for concurrent use; the spec's "one analyzer per symbol"
// ordering guarantee gives it single-writer semantics.
type Tracker struct {
	tickSize float64
	levels   map[string]*TrackedLevel
}

// NewTracker builds a Tracker for a symbol with the given tick size,
// used to bucket price equality.
func NewTracker(tickSize float64) *Tracker {
	if tickSize <= 0 {
		tickSize = 0.05
	}
	return &Tracker{tickSize: tickSize, levels: make(map[string]*TrackedLevel)}
}

func (t *Tracker) bucket(price float64, side Side) string {
	rounded := math.Round(price/t.tickSize) * t.tickSize
	return fmt.Sprintf("%s:%.2f", side, rounded)
}

// Evaluate runs one 10-second cycle: it updates existing TrackedLevels
// from the current observations, detects new candidates, applies the
// lifecycle transitions, and returns the forming|active|breaking set
// as persisted/alerted KeyLevelEntry records.
func (t *Tracker) Evaluate(now time.Time, prevPrice, currPrice float64, obs []LevelObservation) []KeyLevelEntry {
	mean := meanOrdersNear(currPrice, obs)
	threshold := mean * keyLevelRatioThreshold

	observed := make(map[string]int64, len(obs))
	for _, o := range obs {
		observed[t.bucket(o.Price, o.Side)] = o.Orders
	}

	for _, o := range obs {
		if float64(o.Orders) < threshold || threshold <= 0 {
			continue
		}
		key := t.bucket(o.Price, o.Side)
		lvl, ok := t.levels[key]
		if !ok {
			t.levels[key] = &TrackedLevel{
				Price:         o.Price,
				Side:          o.Side,
				FirstSeen:     now,
				LastSeen:      now,
				PeakOrders:    o.Orders,
				CurrentOrders: o.Orders,
				Status:        StatusForming,
			}
			continue
		}
		lvl.LastSeen = now
		lvl.CurrentOrders = o.Orders
		if o.Orders > lvl.PeakOrders {
			lvl.PeakOrders = o.Orders
		}
		if lvl.Status == StatusForming && now.Sub(lvl.FirstSeen) >= activeAfter {
			lvl.Status = StatusActive
		}
	}

	for key, lvl := range t.levels {
		if cur, ok := observed[key]; ok {
			lvl.CurrentOrders = cur
			lvl.LastSeen = now
		}

		crossed := Crosses(prevPrice, currPrice, lvl.Side, lvl.Price)

		switch lvl.Status {
		case StatusActive, StatusForming:
			if lvl.PeakOrders > 0 && float64(lvl.CurrentOrders) <= float64(lvl.PeakOrders)*(1-breakingDropPct) {
				lvl.Status = StatusBreaking
			}
		}

		if crossed && lvl.Status != StatusBroken {
			lvl.Status = StatusBroken
			lvl.brokenAt = now
		} else if math.Abs(currPrice-lvl.Price) <= testApproachDistance && !crossed {
			lvl.TestCount++
		}

		if lvl.Status == StatusBroken && !lvl.brokenAt.IsZero() && now.Sub(lvl.brokenAt) >= brokenGCAfter {
			delete(t.levels, key)
		}
	}

	var out []KeyLevelEntry
	for _, lvl := range t.levels {
		if lvl.Status == StatusBroken {
			continue
		}
		ratio := 0.0
		if mean > 0 {
			ratio = float64(lvl.CurrentOrders) / mean
		}
		out = append(out, KeyLevelEntry{
			Price:         lvl.Price,
			Side:          lvl.Side,
			Orders:        lvl.CurrentOrders,
			StrengthRatio: ratio,
			AgeSeconds:    now.Sub(lvl.FirstSeen).Seconds(),
			Status:        lvl.Status,
			Tests:         lvl.TestCount,
		})
	}
	return out
}

// Crosses reports whether price moved through price in the direction
// that confirms a break: upward through a resistance (ask side) level,
// downward through a support (bid side) level.
func Crosses(prev, curr float64, side Side, price float64) bool {
	if prev == 0 {
		return false
	}
	switch side {
	case SideAsk:
		return prev < price && curr >= price
	case SideBid:
		return prev > price && curr <= price
	default:
		return false
	}
}

func meanOrdersNear(mid float64, obs []LevelObservation) float64 {
	var sum int64
	var count int
	for _, o := range obs {
		if math.Abs(o.Price-mid) <= keyLevelRadius {
			sum += o.Orders
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return float64(sum) / float64(count)
}

// Levels exposes the current TrackedLevel set, for the absorption pass.
func (t *Tracker) Levels() map[string]*TrackedLevel {
	return t.levels
}
