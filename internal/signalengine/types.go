// Package signalengine implements the Signal Core's metric computation
// and alerting (C5.4-6): key-level tracking, absorption detection,
// pressure classification, and deduplicated webhook alerts.
package signalengine

import "time"

// Side identifies which side of the book a level or pressure figure
// belongs to.
type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

// Status is a TrackedLevel's position in its forming -> active ->
// breaking -> broken lifecycle.
type Status string

const (
	StatusForming  Status = "forming"
	StatusActive   Status = "active"
	StatusBreaking Status = "breaking"
	StatusBroken   Status = "broken"
)

// MarketState classifies the primary (60s) pressure reading.
type MarketState string

const (
	MarketBullish MarketState = "bullish"
	MarketBearish MarketState = "bearish"
	MarketNeutral MarketState = "neutral"
)

// TrackedLevel is one key price whose lifecycle the analyzer maintains
// in memory, single-writer per symbol (one analyzer goroutine).
type TrackedLevel struct {
	Price        float64
	Side         Side
	FirstSeen    time.Time
	LastSeen     time.Time
	PeakOrders   int64
	CurrentOrders int64
	Status       Status
	TestCount    int

	// brokenAt records when the level transitioned to broken, used for
	// the >=60s garbage-collection rule.
	brokenAt time.Time
}

// KeyLevelEntry is the persisted/alerted view of a TrackedLevel.
type KeyLevelEntry struct {
	Price         float64 `json:"price"`
	Side          Side    `json:"side"`
	Orders        int64   `json:"orders"`
	StrengthRatio float64 `json:"strength_ratio"`
	AgeSeconds    float64 `json:"age_seconds"`
	Status        Status  `json:"status"`
	Tests         int     `json:"tests"`
}

// AbsorptionEntry describes a sharp reduction in resting orders at a
// tracked level, with or without a price breakthrough.
type AbsorptionEntry struct {
	Price         float64 `json:"price"`
	Side          Side    `json:"side"`
	OrdersBefore  int64   `json:"orders_before"`
	OrdersNow     int64   `json:"orders_now"`
	ReductionPct  float64 `json:"reduction_pct"`
	Breakthrough  bool    `json:"breakthrough"`
}

// SignalRow is one 10-second evaluation's output, persisted to
// depth_signals and published to signal_state:<symbol>.
type SignalRow struct {
	Time         time.Time         `json:"time"`
	SecurityID   string            `json:"security_id"`
	CurrentPrice float64           `json:"current_price"`
	KeyLevels    []KeyLevelEntry   `json:"key_levels"`
	Absorptions  []AbsorptionEntry `json:"absorptions"`
	Pressure30s  float64           `json:"pressure_30s"`
	Pressure60s  float64           `json:"pressure_60s"`
	Pressure120s float64           `json:"pressure_120s"`
	MarketState  MarketState       `json:"market_state"`
}
