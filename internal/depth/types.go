// Package depth implements the 200-level order-book feed: frame
// decoding, two-sided snapshot assembly, and the WebSocket transport
// that receives it (C5.1).
package depth

import "time"

// ResponseCode identifies a depth-feed frame.
type ResponseCode uint8

const (
	CodeBidSide    ResponseCode = 41
	CodeAskSide    ResponseCode = 51
	CodeDisconnect ResponseCode = 50
)

const (
	headerSize     = 8
	levelSize      = 12
	MaxLevels      = 200
	incompleteTTL  = 2 * time.Second
)

// Level is one price point of the 200-level book.
type Level struct {
	Price    float32
	Quantity int32
	Orders   int32
}

// Side is one half of a Snapshot as received on the wire: the ordered
// levels for one frame, best-to-worst.
type Side struct {
	SecurityID int32
	Time       time.Time
	Levels     []Level
}

// Snapshot is a complete, merged bid+ask view at one instant, ready
// for persistence and publication.
type Snapshot struct {
	SecurityID int32
	Time       time.Time
	Bids       []Level
	Asks       []Level
}

// BestBidAsk returns the top of book, or zero values if a side is empty.
func (s Snapshot) BestBidAsk() (bid, ask Level) {
	if len(s.Bids) > 0 {
		bid = s.Bids[0]
	}
	if len(s.Asks) > 0 {
		ask = s.Asks[0]
	}
	return bid, ask
}

// TopN returns up to n levels of a side, for the compact top-of-book
// publication (the spec names 20).
func TopN(levels []Level, n int) []Level {
	if len(levels) <= n {
		return levels
	}
	return levels[:n]
}

// Disconnect is the decoded payload of a code-50 frame.
type Disconnect struct {
	SecurityID int32
}
