// Package tick defines the NormalizedTick record that flows from the
// feed decoder and merger (C2), through the enricher and bus (C3), to
// the persistence workers (C4).
package tick

import "time"

// Level is one price point of the 5-level depth carried on full
// frames.
type Level struct {
	Price      float64
	Quantity   int32
	OrderCount int16
}

// NormalizedTick is the merged, enriched view of a single instrument at
// one instant: combined from whichever partial frames (ticker/quote/OI/
// full) the merger has accumulated for its security_id, then annotated
// with instrument metadata and derived fields by the enricher.
type NormalizedTick struct {
	InstrumentToken int32
	Time            time.Time

	LastPrice     float64
	AvgTradePrice float64
	Open          float64
	High          float64
	Low            float64
	Close         float64
	PrevClose     float64

	LastTradedQty  int32
	VolumeTraded   int32
	TotalBuyQty    int32
	TotalSellQty   int32
	OI             int32
	OIDayHigh      int32
	OIDayLow       int32

	Bids [5]Level
	Asks [5]Level

	// Derived fields, filled by the enricher from the fields above and
	// from instrument metadata; never recomputed at read time.
	TradingSymbol  string
	Exchange       string
	Segment        string
	InstrumentType string

	Change        float64
	ChangePercent float64
	Spread        float64
	Mid           float64
	OrderImbalance int32
}

// Enrich fills the derived fields. It is a pure function of the tick's
// own price fields plus the instrument metadata supplied by the
// caller; it does not consult any external state.
func (t *NormalizedTick) Enrich(symbol, exchange, segment, instrumentType string) {
	t.TradingSymbol = symbol
	t.Exchange = exchange
	t.Segment = segment
	t.InstrumentType = instrumentType

	t.Change = t.LastPrice - t.PrevClose
	if t.PrevClose != 0 {
		t.ChangePercent = (t.Change / t.PrevClose) * 100
	}

	bestBid := t.Bids[0].Price
	bestAsk := t.Asks[0].Price
	t.Spread = bestAsk - bestBid
	t.Mid = (bestBid + bestAsk) / 2
	t.OrderImbalance = t.TotalBuyQty - t.TotalSellQty
}
