package feed

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func putF32(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
}

func putI32(b []byte, v int32) {
	binary.LittleEndian.PutUint32(b, uint32(v))
}

func putI16(b []byte, v int16) {
	binary.LittleEndian.PutUint16(b, uint16(v))
}

func putHeader(frame []byte, code ResponseCode, length int16, segment Segment, securityID int32) {
	frame[0] = byte(code)
	binary.LittleEndian.PutUint16(frame[1:3], uint16(length))
	frame[3] = byte(segment)
	putI32(frame[4:8], securityID)
}

// buildFullFrame constructs a 163-byte code-8 frame matching S1 from
// the worked scenarios: last=24500.00, volume=500000, oi=15000000,
// bid[0]={24498.00,100000,50}, ask[0]={24502.00,120000,60}.
func buildFullFrame(t *testing.T) []byte {
	t.Helper()
	frame := make([]byte, sizeFull)
	putHeader(frame, CodeFull, sizeFull, SegmentNSEFNO, 49229)

	b := frame[headerSize : headerSize+tradeBlockSize]
	putF32(b[0:4], 24500.00)  // last price
	putI32(b[4:8], 10)        // last traded qty
	putI32(b[8:12], 1700000000)
	putF32(b[12:16], 24499.50) // atp
	putI32(b[16:20], 500000)   // volume
	putI32(b[20:24], 200000)   // total sell qty
	putI32(b[24:28], 210000)   // total buy qty
	putI32(b[28:32], 15000000) // oi
	putF32(b[32:36], 24400.00) // open
	putF32(b[36:40], 24550.00) // high
	putF32(b[40:44], 24390.00) // low
	putF32(b[44:48], 24450.00) // close

	depthStart := headerSize + tradeBlockSize
	levels := []DepthLevel{
		{BidQty: 100000, AskQty: 120000, BidOrders: 50, AskOrders: 60, BidPrice: 24498.00, AskPrice: 24502.00},
		{BidQty: 90000, AskQty: 95000, BidOrders: 40, AskOrders: 45, BidPrice: 24497.50, AskPrice: 24502.50},
		{BidQty: 80000, AskQty: 85000, BidOrders: 35, AskOrders: 38, BidPrice: 24497.00, AskPrice: 24503.00},
		{BidQty: 70000, AskQty: 75000, BidOrders: 30, AskOrders: 32, BidPrice: 24496.50, AskPrice: 24503.50},
		{BidQty: 60000, AskQty: 65000, BidOrders: 25, AskOrders: 28, BidPrice: 24496.00, AskPrice: 24504.00},
	}
	for i, lvl := range levels {
		off := depthStart + i*depthLevelSize
		lb := frame[off : off+depthLevelSize]
		putI32(lb[0:4], lvl.BidQty)
		putI32(lb[4:8], lvl.AskQty)
		putI16(lb[8:10], lvl.BidOrders)
		putI16(lb[10:12], lvl.AskOrders)
		putF32(lb[12:16], lvl.BidPrice)
		putF32(lb[16:20], lvl.AskPrice)
	}
	return frame
}

func TestDecode_fullPacket_S1(t *testing.T) {
	frame := buildFullFrame(t)

	rec, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	tick, ok := rec.(FullTick)
	if !ok {
		t.Fatalf("got %T, want FullTick", rec)
	}

	if tick.LastPrice != 24500.00 {
		t.Errorf("LastPrice = %v, want 24500.00", tick.LastPrice)
	}
	if tick.Volume != 500000 {
		t.Errorf("Volume = %v, want 500000", tick.Volume)
	}
	if tick.OI != 15000000 {
		t.Errorf("OI = %v, want 15000000", tick.OI)
	}
	if tick.ExchangeSegment != SegmentNSEFNO {
		t.Errorf("ExchangeSegment = %v, want NSE_FNO", tick.ExchangeSegment)
	}
	if tick.SecurityID != 49229 {
		t.Errorf("SecurityID = %v, want 49229", tick.SecurityID)
	}
	if len(tick.Depth) != 5 {
		t.Fatalf("expected exactly 5 depth levels, got %d", len(tick.Depth))
	}
	if tick.Depth[0].BidPrice != 24498.00 || tick.Depth[0].AskPrice != 24502.00 {
		t.Errorf("depth[0] = %+v, want bid=24498.00 ask=24502.00", tick.Depth[0])
	}
	if tick.Depth[0].BidOrders != 50 || tick.Depth[0].AskOrders != 60 {
		t.Errorf("depth[0] orders = %+v, want bid=50 ask=60", tick.Depth[0])
	}
}

func TestDecode_isPure(t *testing.T) {
	frame := buildFullFrame(t)
	a, errA := Decode(frame)
	b, errB := Decode(frame)
	if errA != nil || errB != nil {
		t.Fatalf("unexpected errors: %v, %v", errA, errB)
	}
	if a != b {
		t.Fatalf("decoding the same bytes twice produced different records: %+v vs %+v", a, b)
	}
}

func TestDecode_exchangeSegmentMapping(t *testing.T) {
	cases := []struct {
		code Segment
		want string
	}{
		{SegmentIndex, "IDX_I"},
		{SegmentNSEEquity, "NSE_EQ"},
		{SegmentNSEFNO, "NSE_FNO"},
		{SegmentNSECurrency, "NSE_CURRENCY"},
		{SegmentBSEEquity, "BSE_EQ"},
		{SegmentMCXCommodity, "MCX_COMM"},
		{SegmentBSECurrency, "BSE_CURRENCY"},
		{SegmentBSEFNO, "BSE_FNO"},
	}
	for _, c := range cases {
		if got := c.code.String(); got != c.want {
			t.Errorf("Segment(%d).String() = %q, want %q", c.code, got, c.want)
		}
	}
}

func TestDecode_tickerFrame(t *testing.T) {
	frame := make([]byte, sizeTicker)
	putHeader(frame, CodeTicker, sizeTicker, SegmentNSEEquity, 1333)
	putF32(frame[8:12], 2950.50)
	putI32(frame[12:16], 1700000000)

	rec, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	tick, ok := rec.(TickerTick)
	if !ok {
		t.Fatalf("got %T, want TickerTick", rec)
	}
	if tick.LastPrice != 2950.50 {
		t.Errorf("LastPrice = %v, want 2950.50", tick.LastPrice)
	}
}

func TestDecode_disconnectFrame(t *testing.T) {
	frame := make([]byte, sizeDisconnect)
	putHeader(frame, CodeDisconnect, sizeDisconnect, SegmentIndex, 0)
	putI16(frame[8:10], 805)

	rec, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	dc, ok := rec.(Disconnect)
	if !ok {
		t.Fatalf("got %T, want Disconnect", rec)
	}
	if dc.ReasonCode != 805 {
		t.Errorf("ReasonCode = %d, want 805", dc.ReasonCode)
	}
}

func TestDecode_tooShort(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	if !errors.Is(err, ErrDecodeMalformed) || !errors.Is(err, ErrFrameTooShort) {
		t.Fatalf("err = %v, want wrapped ErrDecodeMalformed+ErrFrameTooShort", err)
	}
}

func TestDecode_lengthMismatch(t *testing.T) {
	frame := make([]byte, sizeTicker)
	putHeader(frame, CodeTicker, 99, SegmentNSEEquity, 1)

	_, err := Decode(frame)
	if !errors.Is(err, ErrDecodeMalformed) || !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("err = %v, want wrapped ErrDecodeMalformed+ErrLengthMismatch", err)
	}
}

func TestDecode_unknownResponseCode(t *testing.T) {
	frame := make([]byte, headerSize)
	putHeader(frame, ResponseCode(200), 8, SegmentNSEEquity, 1)

	_, err := Decode(frame)
	if !errors.Is(err, ErrDecodeMalformed) || !errors.Is(err, ErrUnknownResponseCode) {
		t.Fatalf("err = %v, want wrapped ErrDecodeMalformed+ErrUnknownResponseCode", err)
	}
}

func TestDecode_marketStatusAcknowledgedNotInterpreted(t *testing.T) {
	frame := make([]byte, headerSize+4)
	frame[0] = byte(CodeMarketStatus)
	binary.LittleEndian.PutUint16(frame[1:3], uint16(len(frame)))
	frame[3] = byte(SegmentNSEFNO)

	rec, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, ok := rec.(MarketStatus); !ok {
		t.Fatalf("got %T, want MarketStatus", rec)
	}
}
