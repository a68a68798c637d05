// Package ingest implements the ingestion pipeline (C3): a WebSocket
// transport to the tick feed, JSON subscription, a merger that
// combines partial per-security_id frames into a NormalizedTick, an
// enricher that resolves instrument metadata and derived fields, and a
// publisher that hands enriched ticks to the bus with backpressure.
package ingest

import (
	"container/list"
	"sync"
	"time"

	"github.com/quantdesk/fno-md-ingest/internal/feed"
	"github.com/quantdesk/fno-md-ingest/internal/tick"
)

// DefaultMergerCapacity bounds the per-security_id partial state map,
// evicted by LRU once exceeded, per the design note replacing the
// cyclic parser/merger/enricher relationship with a straight pipeline
// plus a bounded map.
const DefaultMergerCapacity = 10_000

// partial accumulates whatever frames have arrived for one security_id
// since the last emitted tick.
type partial struct {
	securityID int32
	tick       tick.NormalizedTick
	havePrevClose bool
}

// Merger holds an LRU-bounded map of partial, single-writer (the
// decoder loop is its only caller).
type Merger struct {
	mu       sync.Mutex
	capacity int
	entries  map[int32]*list.Element
	order    *list.List // front = most recently used
}

// NewMerger builds a Merger with the given capacity; 0 uses
// DefaultMergerCapacity.
func NewMerger(capacity int) *Merger {
	if capacity <= 0 {
		capacity = DefaultMergerCapacity
	}
	return &Merger{
		capacity: capacity,
		entries:  make(map[int32]*list.Element),
		order:    list.New(),
	}
}

func (m *Merger) get(securityID int32) *partial {
	if el, ok := m.entries[securityID]; ok {
		m.order.MoveToFront(el)
		return el.Value.(*partial)
	}

	p := &partial{securityID: securityID}
	el := m.order.PushFront(p)
	m.entries[securityID] = el

	if m.order.Len() > m.capacity {
		oldest := m.order.Back()
		if oldest != nil {
			evicted := oldest.Value.(*partial)
			delete(m.entries, evicted.securityID)
			m.order.Remove(oldest)
		}
	}
	return p
}

// Feed accepts one decoded frame record (as returned by feed.Decode)
// and returns a completed NormalizedTick plus the wire security_id it
// was built for when a quote or full frame arrives, folding in
// whatever partial fields were previously seen for that security_id.
func (m *Merger) Feed(record any, now time.Time) (tick.NormalizedTick, int32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch v := record.(type) {
	case feed.TickerTick:
		p := m.get(v.SecurityID)
		p.tick.LastPrice = float64(v.LastPrice)
		p.tick.Time = now
		return tick.NormalizedTick{}, 0, false

	case feed.PrevCloseTick:
		p := m.get(v.SecurityID)
		p.tick.PrevClose = float64(v.PrevClose)
		p.havePrevClose = true
		return tick.NormalizedTick{}, 0, false

	case feed.OITick:
		p := m.get(v.SecurityID)
		p.tick.OI = v.OI
		return tick.NormalizedTick{}, 0, false

	case feed.QuoteTick:
		p := m.get(v.SecurityID)
		applyQuote(p, v)
		p.tick.Time = now
		out := p.tick
		return out, v.SecurityID, true

	case feed.FullTick:
		p := m.get(v.SecurityID)
		applyFull(p, v)
		p.tick.Time = now
		out := p.tick
		return out, v.SecurityID, true

	default:
		return tick.NormalizedTick{}, 0, false
	}
}

func applyQuote(p *partial, v feed.QuoteTick) {
	t := &p.tick
	t.LastPrice = float64(v.LastPrice)
	t.LastTradedQty = v.LastTradedQty
	t.AvgTradePrice = float64(v.AvgTradePrice)
	t.VolumeTraded = v.Volume
	t.TotalSellQty = v.TotalSellQty
	t.TotalBuyQty = v.TotalBuyQty
	t.Open = float64(v.Open)
	t.High = float64(v.High)
	t.Low = float64(v.Low)
	t.Close = float64(v.Close)
}

func applyFull(p *partial, v feed.FullTick) {
	t := &p.tick
	t.LastPrice = float64(v.LastPrice)
	t.LastTradedQty = v.LastTradedQty
	t.AvgTradePrice = float64(v.AvgTradePrice)
	t.VolumeTraded = v.Volume
	t.TotalSellQty = v.TotalSellQty
	t.TotalBuyQty = v.TotalBuyQty
	t.OI = v.OI
	t.Open = float64(v.Open)
	t.High = float64(v.High)
	t.Low = float64(v.Low)
	t.Close = float64(v.Close)

	for i, lvl := range v.Depth {
		t.Bids[i] = tick.Level{Price: float64(lvl.BidPrice), Quantity: lvl.BidQty, OrderCount: lvl.BidOrders}
		t.Asks[i] = tick.Level{Price: float64(lvl.AskPrice), Quantity: lvl.AskQty, OrderCount: lvl.AskOrders}
	}
}
