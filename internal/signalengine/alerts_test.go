package signalengine

import (
	"testing"
	"time"
)

func TestBuildAlerts_keyLevel_requiresStrengthAndAge(t *testing.T) {
	cd := NewCooldown()
	now := time.Now()

	row := SignalRow{
		KeyLevels: []KeyLevelEntry{
			{Price: 23450, Side: SideAsk, StrengthRatio: 2.6, AgeSeconds: 8, Status: StatusActive},
		},
	}
	events := BuildAlerts(row, MarketNeutral, cd, now)
	if len(events) != 0 {
		t.Fatalf("strength 2.6 < 3.0 should not alert, got %d events", len(events))
	}

	row.KeyLevels[0].StrengthRatio = 3.2
	row.KeyLevels[0].AgeSeconds = 12
	events = BuildAlerts(row, MarketNeutral, cd, now)
	if len(events) != 1 {
		t.Fatalf("expected 1 key-level alert, got %d", len(events))
	}
}

func TestBuildAlerts_absorption_S5(t *testing.T) {
	cd := NewCooldown()
	now := time.Now()

	row := SignalRow{
		Absorptions: []AbsorptionEntry{
			{Price: 23500, Side: SideAsk, OrdersBefore: 3200, OrdersNow: 704, ReductionPct: 0.78, Breakthrough: true},
		},
	}
	events := BuildAlerts(row, MarketNeutral, cd, now)
	if len(events) != 1 {
		t.Fatalf("expected 1 absorption alert, got %d", len(events))
	}
	if events[0].Kind != "absorption" {
		t.Errorf("Kind = %q, want absorption", events[0].Kind)
	}
}

func TestBuildAlerts_pressure_requiresTransition(t *testing.T) {
	cd := NewCooldown()
	now := time.Now()

	row := SignalRow{Pressure60s: 0.4286, MarketState: MarketBullish}
	// no transition: prevState already bullish
	if events := BuildAlerts(row, MarketBullish, cd, now); len(events) != 0 {
		t.Fatalf("expected no alert without a state transition, got %d", len(events))
	}
	// transition from neutral: should alert
	events := BuildAlerts(row, MarketNeutral, cd, now)
	if len(events) != 1 {
		t.Fatalf("expected 1 pressure alert on transition, got %d", len(events))
	}
}

func TestBuildAlerts_cooldownDedup_invariant7(t *testing.T) {
	cd := NewCooldown()
	now := time.Now()

	row := SignalRow{
		KeyLevels: []KeyLevelEntry{
			{Price: 23450, Side: SideAsk, StrengthRatio: 4.0, AgeSeconds: 20, Status: StatusActive},
		},
	}
	first := BuildAlerts(row, MarketNeutral, cd, now)
	if len(first) != 1 {
		t.Fatalf("expected first alert to fire, got %d", len(first))
	}

	soon := now.Add(2 * time.Minute)
	second := BuildAlerts(row, MarketNeutral, cd, soon)
	if len(second) != 0 {
		t.Fatalf("expected cooldown to suppress repeat alert within 5 minutes, got %d", len(second))
	}

	later := now.Add(6 * time.Minute)
	third := BuildAlerts(row, MarketNeutral, cd, later)
	if len(third) != 1 {
		t.Fatalf("expected alert to fire again after cooldown window, got %d", len(third))
	}
}
