// Package feed decodes little-endian binary frames from the Indian F&O
// tick feed into typed records. A single exported Decode function is a
// pure mapping from bytes to record: identical input always yields an
// identical output, and a malformed frame is reported as a typed error
// rather than a panic or a torn-down connection.
package feed

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	sizeIndex     = 16
	sizeTicker    = 16
	sizeQuote     = 51
	sizeOI        = 12
	sizePrevClose = 16
	sizeFull      = 163
	sizeDisconnect = 10

	tradeBlockSize = 55
	depthLevelSize = 20
	depthLevels    = 5
)

// Decode parses a single frame and returns the decoded record matching
// its response code. The concrete type of the returned value is one of
// IndexTick, TickerTick, QuoteTick, OITick, PrevCloseTick, MarketStatus,
// FullTick, or Disconnect. CodeMarketStatus frames are acknowledged but
// not interpreted beyond the header, per the frame taxonomy.
func Decode(frame []byte) (any, error) {
	h, err := decodeHeader(frame)
	if err != nil {
		return nil, err
	}

	switch h.ResponseCode {
	case CodeIndex:
		return decodeIndex(h, frame)
	case CodeTicker:
		return decodeTicker(h, frame)
	case CodeQuote:
		return decodeQuote(h, frame)
	case CodeOI:
		return decodeOI(h, frame)
	case CodePrevClose:
		return decodePrevClose(h, frame)
	case CodeMarketStatus:
		return MarketStatus{Header: h}, nil
	case CodeFull:
		return decodeFull(h, frame)
	case CodeDisconnect:
		return decodeDisconnect(h, frame)
	default:
		return nil, fmt.Errorf("%w: %w: code %d", ErrDecodeMalformed, ErrUnknownResponseCode, h.ResponseCode)
	}
}

func decodeHeader(frame []byte) (Header, error) {
	if len(frame) < headerSize {
		return Header{}, fmt.Errorf("%w: %w: got %d bytes", ErrDecodeMalformed, ErrFrameTooShort, len(frame))
	}
	return Header{
		ResponseCode:    ResponseCode(frame[0]),
		MessageLength:   int16(binary.LittleEndian.Uint16(frame[1:3])),
		ExchangeSegment: Segment(frame[3]),
		SecurityID:      int32(binary.LittleEndian.Uint32(frame[4:8])),
	}, nil
}

func checkSize(h Header, frame []byte, want int) error {
	if len(frame) < want {
		return fmt.Errorf("%w: %w: code %d needs %d bytes, got %d",
			ErrDecodeMalformed, ErrFrameTooShort, h.ResponseCode, want, len(frame))
	}
	if int(h.MessageLength) != want {
		return fmt.Errorf("%w: %w: code %d declared length %d, want %d",
			ErrDecodeMalformed, ErrLengthMismatch, h.ResponseCode, h.MessageLength, want)
	}
	return nil
}

func readF32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func readI32(b []byte) int32 {
	return int32(binary.LittleEndian.Uint32(b))
}

func readI16(b []byte) int16 {
	return int16(binary.LittleEndian.Uint16(b))
}

func decodeIndex(h Header, frame []byte) (IndexTick, error) {
	if err := checkSize(h, frame, sizeIndex); err != nil {
		return IndexTick{}, err
	}
	body := frame[headerSize:sizeIndex]
	return IndexTick{
		Header:     h,
		IndexValue: readF32(body[0:4]),
		IndexTime:  unixToIST(readI32(body[4:8])),
	}, nil
}

func decodeTicker(h Header, frame []byte) (TickerTick, error) {
	if err := checkSize(h, frame, sizeTicker); err != nil {
		return TickerTick{}, err
	}
	body := frame[headerSize:sizeTicker]
	return TickerTick{
		Header:        h,
		LastPrice:     readF32(body[0:4]),
		LastTradeTime: unixToIST(readI32(body[4:8])),
	}, nil
}

func decodeQuote(h Header, frame []byte) (QuoteTick, error) {
	if err := checkSize(h, frame, sizeQuote); err != nil {
		return QuoteTick{}, err
	}
	b := frame[headerSize:sizeQuote]
	return QuoteTick{
		Header:        h,
		LastPrice:     readF32(b[0:4]),
		LastTradedQty: readI32(b[4:8]),
		AvgTradePrice: readF32(b[8:12]),
		Volume:        readI32(b[12:16]),
		TotalSellQty:  readI32(b[16:20]),
		TotalBuyQty:   readI32(b[20:24]),
		Open:          readF32(b[24:28]),
		High:          readF32(b[28:32]),
		Low:           readF32(b[32:36]),
		Close:         readF32(b[36:40]),
		// bytes 40:43 are reserved padding, not interpreted.
	}, nil
}

func decodeOI(h Header, frame []byte) (OITick, error) {
	if err := checkSize(h, frame, sizeOI); err != nil {
		return OITick{}, err
	}
	body := frame[headerSize:sizeOI]
	return OITick{Header: h, OI: readI32(body[0:4])}, nil
}

func decodePrevClose(h Header, frame []byte) (PrevCloseTick, error) {
	if err := checkSize(h, frame, sizePrevClose); err != nil {
		return PrevCloseTick{}, err
	}
	body := frame[headerSize:sizePrevClose]
	return PrevCloseTick{
		Header:    h,
		PrevClose: readF32(body[0:4]),
		PrevOI:    readI32(body[4:8]),
	}, nil
}

// decodeFull parses the code-8 packet: the fixed-size trade block
// followed by five 20-byte depth levels. The vendor doc shorthands the
// trade block as 54 bytes; the declared frame size of 163 only holds
// together with one extra reserved byte (8 + 55 + 100 = 163), so the
// trade block here reserves 7 trailing bytes rather than 6.
func decodeFull(h Header, frame []byte) (FullTick, error) {
	if err := checkSize(h, frame, sizeFull); err != nil {
		return FullTick{}, err
	}

	b := frame[headerSize : headerSize+tradeBlockSize]
	t := FullTick{
		Header:        h,
		LastPrice:     readF32(b[0:4]),
		LastTradedQty: readI32(b[4:8]),
		LastTradeTime: unixToIST(readI32(b[8:12])),
		AvgTradePrice: readF32(b[12:16]),
		Volume:        readI32(b[16:20]),
		TotalSellQty:  readI32(b[20:24]),
		TotalBuyQty:   readI32(b[24:28]),
		OI:            readI32(b[28:32]),
		Open:          readF32(b[32:36]),
		High:          readF32(b[36:40]),
		Low:           readF32(b[40:44]),
		Close:         readF32(b[44:48]),
		// bytes 48:55 are reserved padding, not interpreted.
	}

	depthStart := headerSize + tradeBlockSize
	for i := 0; i < depthLevels; i++ {
		off := depthStart + i*depthLevelSize
		lvl := frame[off : off+depthLevelSize]
		t.Depth[i] = DepthLevel{
			BidQty:    readI32(lvl[0:4]),
			AskQty:    readI32(lvl[4:8]),
			BidOrders: readI16(lvl[8:10]),
			AskOrders: readI16(lvl[10:12]),
			BidPrice:  readF32(lvl[12:16]),
			AskPrice:  readF32(lvl[16:20]),
		}
	}
	return t, nil
}

func decodeDisconnect(h Header, frame []byte) (Disconnect, error) {
	if err := checkSize(h, frame, sizeDisconnect); err != nil {
		return Disconnect{}, err
	}
	body := frame[headerSize:sizeDisconnect]
	return Disconnect{Header: h, ReasonCode: readI16(body[0:2])}, nil
}
