package ingest

import (
	"testing"
	"time"

	"github.com/quantdesk/fno-md-ingest/internal/feed"
)

func TestMerger_prevCloseThenFull_S1S2(t *testing.T) {
	m := NewMerger(0)
	now := time.Now()

	m.Feed(feed.PrevCloseTick{
		Header:    feed.Header{SecurityID: 49229},
		PrevClose: 24450.00,
	}, now)

	full := feed.FullTick{
		Header:    feed.Header{SecurityID: 49229},
		LastPrice: 24500.00,
		Volume:    500000,
		OI:        15000000,
	}
	full.Depth[0] = feed.DepthLevel{BidPrice: 24498.00, BidQty: 100000, BidOrders: 50, AskPrice: 24502.00, AskQty: 120000, AskOrders: 60}

	out, sid, ok := m.Feed(full, now)
	if !ok {
		t.Fatal("expected a completed tick on full frame")
	}
	if sid != 49229 {
		t.Fatalf("security id = %d, want 49229", sid)
	}
	if out.PrevClose != 24450.00 {
		t.Errorf("PrevClose not carried from earlier frame: got %v", out.PrevClose)
	}
	if out.LastPrice != 24500.00 {
		t.Errorf("LastPrice = %v, want 24500.00", out.LastPrice)
	}
	if out.Bids[0].Price != 24498.00 {
		t.Errorf("Bids[0].Price = %v, want 24498.00", out.Bids[0].Price)
	}

	out.Enrich("NIFTY24JULFUT", "NSE", "NSE_FNO", "FUT")
	if out.Change != 50.00 {
		t.Errorf("Change = %v, want 50.00", out.Change)
	}
}

func TestMerger_evictsLRU(t *testing.T) {
	m := NewMerger(2)
	now := time.Now()

	m.Feed(feed.TickerTick{Header: feed.Header{SecurityID: 1}}, now)
	m.Feed(feed.TickerTick{Header: feed.Header{SecurityID: 2}}, now)
	m.Feed(feed.TickerTick{Header: feed.Header{SecurityID: 3}}, now)

	if len(m.entries) != 2 {
		t.Fatalf("entries = %d, want capacity-bounded 2", len(m.entries))
	}
	if _, ok := m.entries[1]; ok {
		t.Error("expected security_id 1 to be evicted as least-recently-used")
	}
}
