package signalengine

import (
	"fmt"
	"time"
)

const (
	keyLevelAlertStrength = 3.0
	keyLevelAlertAge      = 10 * time.Second
	absorptionAlertReduction = 0.70
	pressureAlertMagnitude   = 0.4
)

// Event is one filtered, notification-worthy occurrence, ready to hand
// to internal/notify.
type Event struct {
	Kind   string
	Text   string
	Fields map[string]any
}

// BuildAlerts applies the filter rules from the alerting design to one
// evaluation's SignalRow, deduplicating through cooldown. prevState is
// the market_state from the previous evaluation, needed to detect a
// pressure transition.
func BuildAlerts(row SignalRow, prevState MarketState, cooldown *Cooldown, now time.Time) []Event {
	var events []Event

	for _, kl := range row.KeyLevels {
		if kl.StrengthRatio < keyLevelAlertStrength {
			continue
		}
		if time.Duration(kl.AgeSeconds*float64(time.Second)) < keyLevelAlertAge {
			continue
		}
		key := Key("key_level", kl.Price, kl.Side)
		if !cooldown.Allow(key, now) {
			continue
		}
		events = append(events, Event{
			Kind: "key_level",
			Text: fmt.Sprintf("Key %s level forming at %.2f (strength %.1fx, age %.0fs)", kl.Side, kl.Price, kl.StrengthRatio, kl.AgeSeconds),
			Fields: map[string]any{
				"security_id": row.SecurityID,
				"price":       kl.Price,
				"side":        kl.Side,
				"strength":    kl.StrengthRatio,
				"status":      kl.Status,
			},
		})
	}

	for _, ab := range row.Absorptions {
		if ab.ReductionPct < absorptionAlertReduction || !ab.Breakthrough {
			continue
		}
		key := Key("absorption", ab.Price, ab.Side)
		if !cooldown.Allow(key, now) {
			continue
		}
		events = append(events, Event{
			Kind: "absorption",
			Text: fmt.Sprintf("Absorption breakthrough at %.2f: %d -> %d orders (%.0f%% reduction)", ab.Price, ab.OrdersBefore, ab.OrdersNow, ab.ReductionPct*100),
			Fields: map[string]any{
				"security_id":  row.SecurityID,
				"price":        ab.Price,
				"side":         ab.Side,
				"reduction_pct": ab.ReductionPct,
			},
		})
	}

	transitioned := row.MarketState != prevState
	if transitioned && abs(row.Pressure60s) >= pressureAlertMagnitude {
		key := Key("pressure", 0, Side(row.MarketState))
		if cooldown.Allow(key, now) {
			events = append(events, Event{
				Kind: "pressure",
				Text: fmt.Sprintf("Market pressure turned %s (60s pressure %.3f)", row.MarketState, row.Pressure60s),
				Fields: map[string]any{
					"security_id":  row.SecurityID,
					"market_state": row.MarketState,
					"pressure_60s": row.Pressure60s,
				},
			})
		}
	}

	return events
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
