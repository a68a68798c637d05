package tick

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// WireVersion is the single version byte prefixing every encoded
// message on the ticks queue, so consumers can evolve the layout
// without breaking in-flight messages from an older publisher.
const WireVersion byte = 1

// Encode serializes t in the stable field order the bus contract
// requires, prefixed by WireVersion.
func Encode(t NormalizedTick) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(WireVersion)

	writeI32(&buf, t.InstrumentToken)
	writeI64(&buf, t.Time.UnixMicro())

	writeF64(&buf, t.LastPrice)
	writeF64(&buf, t.AvgTradePrice)
	writeF64(&buf, t.Open)
	writeF64(&buf, t.High)
	writeF64(&buf, t.Low)
	writeF64(&buf, t.Close)
	writeF64(&buf, t.PrevClose)

	writeI32(&buf, t.LastTradedQty)
	writeI32(&buf, t.VolumeTraded)
	writeI32(&buf, t.TotalBuyQty)
	writeI32(&buf, t.TotalSellQty)
	writeI32(&buf, t.OI)
	writeI32(&buf, t.OIDayHigh)
	writeI32(&buf, t.OIDayLow)

	for _, lvl := range t.Bids {
		writeLevel(&buf, lvl)
	}
	for _, lvl := range t.Asks {
		writeLevel(&buf, lvl)
	}

	writeString(&buf, t.TradingSymbol)
	writeString(&buf, t.Exchange)
	writeString(&buf, t.Segment)
	writeString(&buf, t.InstrumentType)

	writeF64(&buf, t.Change)
	writeF64(&buf, t.ChangePercent)
	writeF64(&buf, t.Spread)
	writeF64(&buf, t.Mid)
	writeI32(&buf, t.OrderImbalance)

	return buf.Bytes(), nil
}

// Decode parses a message produced by Encode. An unrecognized wire
// version is reported rather than guessed at.
func Decode(data []byte) (NormalizedTick, error) {
	var t NormalizedTick
	if len(data) < 1 {
		return t, fmt.Errorf("tick: empty message")
	}
	if data[0] != WireVersion {
		return t, fmt.Errorf("tick: unsupported wire version %d", data[0])
	}

	r := bytes.NewReader(data[1:])

	t.InstrumentToken = readI32(r)
	micros := readI64(r)
	t.Time = time.UnixMicro(micros).UTC()

	t.LastPrice = readF64(r)
	t.AvgTradePrice = readF64(r)
	t.Open = readF64(r)
	t.High = readF64(r)
	t.Low = readF64(r)
	t.Close = readF64(r)
	t.PrevClose = readF64(r)

	t.LastTradedQty = readI32(r)
	t.VolumeTraded = readI32(r)
	t.TotalBuyQty = readI32(r)
	t.TotalSellQty = readI32(r)
	t.OI = readI32(r)
	t.OIDayHigh = readI32(r)
	t.OIDayLow = readI32(r)

	for i := range t.Bids {
		t.Bids[i] = readLevel(r)
	}
	for i := range t.Asks {
		t.Asks[i] = readLevel(r)
	}

	t.TradingSymbol = readString(r)
	t.Exchange = readString(r)
	t.Segment = readString(r)
	t.InstrumentType = readString(r)

	t.Change = readF64(r)
	t.ChangePercent = readF64(r)
	t.Spread = readF64(r)
	t.Mid = readF64(r)
	t.OrderImbalance = readI32(r)

	if r.Len() != 0 {
		return t, fmt.Errorf("tick: %d trailing bytes after decode", r.Len())
	}
	return t, nil
}

func writeI32(buf *bytes.Buffer, v int32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	buf.Write(b[:])
}

func writeI64(buf *bytes.Buffer, v int64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	buf.Write(b[:])
}

func writeF64(buf *bytes.Buffer, v float64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	buf.Write(b[:])
}

func writeString(buf *bytes.Buffer, s string) {
	var lb [2]byte
	binary.LittleEndian.PutUint16(lb[:], uint16(len(s)))
	buf.Write(lb[:])
	buf.WriteString(s)
}

func writeLevel(buf *bytes.Buffer, l Level) {
	writeF64(buf, l.Price)
	writeI32(buf, l.Quantity)
	var ob [2]byte
	binary.LittleEndian.PutUint16(ob[:], uint16(l.OrderCount))
	buf.Write(ob[:])
}

func readI32(r *bytes.Reader) int32 {
	var b [4]byte
	r.Read(b[:])
	return int32(binary.LittleEndian.Uint32(b[:]))
}

func readI64(r *bytes.Reader) int64 {
	var b [8]byte
	r.Read(b[:])
	return int64(binary.LittleEndian.Uint64(b[:]))
}

func readF64(r *bytes.Reader) float64 {
	var b [8]byte
	r.Read(b[:])
	return math.Float64frombits(binary.LittleEndian.Uint64(b[:]))
}

func readString(r *bytes.Reader) string {
	var lb [2]byte
	r.Read(lb[:])
	n := binary.LittleEndian.Uint16(lb[:])
	sb := make([]byte, n)
	r.Read(sb)
	return string(sb)
}

func readLevel(r *bytes.Reader) Level {
	price := readF64(r)
	qty := readI32(r)
	var ob [2]byte
	r.Read(ob[:])
	return Level{
		Price:      price,
		Quantity:   qty,
		OrderCount: int16(binary.LittleEndian.Uint16(ob[:])),
	}
}
