package tick

import (
	"testing"
	"time"
)

func TestEncodeDecode_roundTrip(t *testing.T) {
	now := time.Now().UTC().Round(time.Microsecond)
	orig := NormalizedTick{
		InstrumentToken: 49229,
		Time:            now,
		LastPrice:       24500.00,
		PrevClose:       24450.00,
		VolumeTraded:    500000,
		OI:              15000000,
		Bids:            [5]Level{{Price: 24498.00, Quantity: 100000, OrderCount: 50}},
		Asks:            [5]Level{{Price: 24502.00, Quantity: 120000, OrderCount: 60}},
		TradingSymbol:   "NIFTY24JULFUT",
		Exchange:        "NSE",
		Segment:         "NSE_FNO",
		InstrumentType:  "FUT",
	}
	orig.Enrich(orig.TradingSymbol, orig.Exchange, orig.Segment, orig.InstrumentType)

	data, err := Encode(orig)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if !got.Time.Equal(orig.Time) {
		t.Errorf("Time = %v, want %v", got.Time, orig.Time)
	}
	if got.InstrumentToken != orig.InstrumentToken {
		t.Errorf("InstrumentToken = %d, want %d", got.InstrumentToken, orig.InstrumentToken)
	}
	if got.LastPrice != orig.LastPrice {
		t.Errorf("LastPrice = %v, want %v", got.LastPrice, orig.LastPrice)
	}
	if got.TradingSymbol != orig.TradingSymbol {
		t.Errorf("TradingSymbol = %q, want %q", got.TradingSymbol, orig.TradingSymbol)
	}
	if got.Spread != 4.00 {
		t.Errorf("Spread = %v, want 4.00", got.Spread)
	}
	if got.Bids[0] != orig.Bids[0] {
		t.Errorf("Bids[0] = %+v, want %+v", got.Bids[0], orig.Bids[0])
	}
}

func TestDecode_rejectsUnknownVersion(t *testing.T) {
	_, err := Decode([]byte{99, 0, 0})
	if err == nil {
		t.Fatal("expected error for unknown wire version")
	}
}

func TestDecode_rejectsEmpty(t *testing.T) {
	_, err := Decode(nil)
	if err == nil {
		t.Fatal("expected error for empty message")
	}
}

func TestNormalizedTick_enrich_S2(t *testing.T) {
	tick := NormalizedTick{
		LastPrice: 24500.00,
		PrevClose: 24450.00,
		Bids:      [5]Level{{Price: 24498.00}},
		Asks:      [5]Level{{Price: 24502.00}},
	}
	tick.Enrich("NIFTY24JULFUT", "NSE", "NSE_FNO", "FUT")

	if tick.Change != 50.00 {
		t.Errorf("Change = %v, want 50.00", tick.Change)
	}
	if tick.ChangePercent < 0.204 || tick.ChangePercent > 0.205 {
		t.Errorf("ChangePercent = %v, want ~0.2045", tick.ChangePercent)
	}
}
