package feed

import "time"

// ResponseCode identifies the frame kind carried by the header's first byte.
type ResponseCode uint8

const (
	CodeIndex        ResponseCode = 1
	CodeTicker       ResponseCode = 2
	CodeQuote        ResponseCode = 4
	CodeOI           ResponseCode = 5
	CodePrevClose    ResponseCode = 6
	CodeMarketStatus ResponseCode = 7
	CodeFull         ResponseCode = 8
	CodeDisconnect   ResponseCode = 50
)

// Exchange segment enumeration. This mapping is load-bearing: it matches
// the vendor feed spec exactly and must not be reordered or renumbered.
// Note the deliberate gap at 6 — the vendor enum itself skips it.
type Segment uint8

const (
	SegmentIndex        Segment = 0 // IDX_I
	SegmentNSEEquity    Segment = 1 // NSE_EQ
	SegmentNSEFNO       Segment = 2 // NSE_FNO
	SegmentNSECurrency  Segment = 3 // NSE_CURRENCY
	SegmentBSEEquity    Segment = 4 // BSE_EQ
	SegmentMCXCommodity Segment = 5 // MCX_COMM
	SegmentBSECurrency  Segment = 7 // BSE_CURRENCY
	SegmentBSEFNO       Segment = 8 // BSE_FNO
)

// String renders the canonical exchange-segment name, matching the
// string enum the subscription JSON uses (e.g. "NSE_FNO").
func (s Segment) String() string {
	switch s {
	case SegmentIndex:
		return "IDX_I"
	case SegmentNSEEquity:
		return "NSE_EQ"
	case SegmentNSEFNO:
		return "NSE_FNO"
	case SegmentNSECurrency:
		return "NSE_CURRENCY"
	case SegmentBSEEquity:
		return "BSE_EQ"
	case SegmentMCXCommodity:
		return "MCX_COMM"
	case SegmentBSECurrency:
		return "BSE_CURRENCY"
	case SegmentBSEFNO:
		return "BSE_FNO"
	default:
		return "UNKNOWN"
	}
}

// Header is the common 8-byte prefix of every wire frame.
type Header struct {
	ResponseCode    ResponseCode
	MessageLength   int16
	ExchangeSegment Segment
	SecurityID      int32
}

const headerSize = 8

// DepthLevel is one 20-byte bid/ask pair carried by a code-8 full packet.
type DepthLevel struct {
	BidQty    int32
	AskQty    int32
	BidOrders int16
	AskOrders int16
	BidPrice  float32
	AskPrice  float32
}

// IndexTick is the decoded payload of a code-1 frame.
type IndexTick struct {
	Header
	IndexValue float32
	IndexTime  time.Time
}

// TickerTick is the decoded payload of a code-2 frame (LTP only).
type TickerTick struct {
	Header
	LastPrice     float32
	LastTradeTime time.Time
}

// QuoteTick is the decoded payload of a code-4 frame.
type QuoteTick struct {
	Header
	LastPrice     float32
	LastTradedQty int32
	AvgTradePrice float32
	Volume        int32
	TotalSellQty  int32
	TotalBuyQty   int32
	Open          float32
	High          float32
	Low           float32
	Close         float32
}

// OITick is the decoded payload of a code-5 frame.
type OITick struct {
	Header
	OI int32
}

// PrevCloseTick is the decoded payload of a code-6 frame.
type PrevCloseTick struct {
	Header
	PrevClose float32
	PrevOI    int32
}

// MarketStatus is the decoded (but otherwise ignored) payload of a
// code-7 frame; its variable body is acknowledged, not interpreted.
type MarketStatus struct {
	Header
}

// FullTick is the decoded payload of a code-8 frame: a trade block plus
// five ordered depth levels per side.
type FullTick struct {
	Header
	LastPrice     float32
	LastTradedQty int32
	LastTradeTime time.Time
	AvgTradePrice float32
	Volume        int32
	TotalSellQty  int32
	TotalBuyQty   int32
	OI            int32
	Open          float32
	High          float32
	Low           float32
	Close         float32
	Depth         [5]DepthLevel
}

// Disconnect is the decoded payload of a code-50 frame.
type Disconnect struct {
	Header
	ReasonCode int16
}

// istLocation is the exchange timezone (IST, UTC+5:30); wire timestamps
// are Unix seconds already, so this only affects how they are rendered,
// not the instant they denote, but decoded times are attached here to
// keep callers from treating them as UTC by accident.
var istLocation = time.FixedZone("IST", 5*3600+30*60)

func unixToIST(sec int32) time.Time {
	return time.Unix(int64(sec), 0).In(istLocation)
}
