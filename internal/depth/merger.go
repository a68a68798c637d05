package depth

import (
	"sync"
	"time"
)

// pending holds whichever side of a snapshot has arrived first for a
// given security_id, waiting for its counterpart.
type pending struct {
	bid     *Side
	ask     *Side
	arrived time.Time
}

// Merger assembles two-frame (bid, ask) snapshots into a Snapshot,
// discarding a half that has waited longer than incompleteTTL without
// its counterpart arriving. One Merger instance is single-writer: the
// depth WebSocket read loop is its only caller.
type Merger struct {
	mu      sync.Mutex
	pending map[int32]*pending
}

// NewMerger builds an empty Merger.
func NewMerger() *Merger {
	return &Merger{pending: make(map[int32]*pending)}
}

// Feed accepts one decoded Side and returns a completed Snapshot if
// this frame completed it. now is passed in rather than read from the
// clock so tests can drive the TTL deterministically.
func (m *Merger) Feed(code ResponseCode, side Side, now time.Time) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pending[side.SecurityID]
	if !ok {
		p = &pending{}
		m.pending[side.SecurityID] = p
	}

	if p.arrived.IsZero() || now.Sub(p.arrived) > incompleteTTL {
		// starting fresh, either no pending half or the old one expired
		*p = pending{}
	}

	switch code {
	case CodeBidSide:
		s := side
		p.bid = &s
	case CodeAskSide:
		s := side
		p.ask = &s
	default:
		return Snapshot{}, false
	}
	if p.arrived.IsZero() {
		p.arrived = now
	}

	if p.bid != nil && p.ask != nil {
		snap := Snapshot{
			SecurityID: side.SecurityID,
			Time:       p.ask.Time,
			Bids:       p.bid.Levels,
			Asks:       p.ask.Levels,
		}
		delete(m.pending, side.SecurityID)
		return snap, true
	}
	return Snapshot{}, false
}

// Sweep drops any half-snapshot older than incompleteTTL that never
// completed, so a lost counterpart frame does not leak memory.
func (m *Merger) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	dropped := 0
	for id, p := range m.pending {
		if now.Sub(p.arrived) > incompleteTTL {
			delete(m.pending, id)
			dropped++
		}
	}
	return dropped
}
