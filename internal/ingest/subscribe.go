package ingest

import "fmt"

// Subscription request codes understood by the feed. 15/17/21 select
// the tick shape on the main transport; 23 is the separate full-depth
// (200-level) subscription used by the depth transport.
const (
	RequestCodeTicker    RequestCode = 15
	RequestCodeQuote     RequestCode = 17
	RequestCodeFull      RequestCode = 21
	RequestCodeFullDepth RequestCode = 23
)

// RequestCode identifies which tick shape a subscription asks for.
type RequestCode int

// maxInstrumentsPerMessage is the vendor's hard per-message ceiling;
// larger instrument sets are chunked across multiple subscribe
// messages on the same connection.
const maxInstrumentsPerMessage = 100

// InstrumentRef names one instrument on the wire: string exchange
// segment enum plus string security id, exactly as the subscription
// JSON requires (case-sensitive keys).
type InstrumentRef struct {
	ExchangeSegment string `json:"ExchangeSegment"`
	SecurityId      string `json:"SecurityId"`
}

// SubscribeMessage is one JSON frame sent to the feed after connect.
type SubscribeMessage struct {
	RequestCode     RequestCode      `json:"RequestCode"`
	InstrumentCount int              `json:"InstrumentCount"`
	InstrumentList  []InstrumentRef  `json:"InstrumentList"`
}

// BuildSubscriptions chunks refs into one or more SubscribeMessage
// values of at most maxInstrumentsPerMessage entries each, all carrying
// the same code.
func BuildSubscriptions(code RequestCode, refs []InstrumentRef) []SubscribeMessage {
	if len(refs) == 0 {
		return nil
	}

	var out []SubscribeMessage
	for start := 0; start < len(refs); start += maxInstrumentsPerMessage {
		end := start + maxInstrumentsPerMessage
		if end > len(refs) {
			end = len(refs)
		}
		chunk := refs[start:end]
		out = append(out, SubscribeMessage{
			RequestCode:     code,
			InstrumentCount: len(chunk),
			InstrumentList:  chunk,
		})
	}
	return out
}

func (c RequestCode) String() string {
	switch c {
	case RequestCodeTicker:
		return "ticker"
	case RequestCodeQuote:
		return "quote"
	case RequestCodeFull:
		return "full"
	case RequestCodeFullDepth:
		return "full-depth"
	default:
		return fmt.Sprintf("RequestCode(%d)", int(c))
	}
}
