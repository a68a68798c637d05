package depth

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// DecodeFrame parses a single depth-feed frame and reports its
// response code and, for bid/ask sides, the decoded Side. Up to 200
// levels of 12-byte {price f32, quantity i32, orders i32} triples
// follow the 8-byte header; the frame may legitimately carry fewer
// than 200 if the book is thin.
func DecodeFrame(frame []byte) (ResponseCode, Side, error) {
	if len(frame) < headerSize {
		return 0, Side{}, fmt.Errorf("%w: frame shorter than header: got %d bytes", ErrDecodeMalformed, len(frame))
	}

	code := ResponseCode(frame[0])
	securityID := int32(binary.LittleEndian.Uint32(frame[4:8]))

	switch code {
	case CodeDisconnect:
		return code, Side{}, nil
	case CodeBidSide, CodeAskSide:
		body := frame[headerSize:]
		if len(body)%levelSize != 0 {
			return 0, Side{}, fmt.Errorf("%w: body length %d not a multiple of %d", ErrDecodeMalformed, len(body), levelSize)
		}
		n := len(body) / levelSize
		if n > MaxLevels {
			n = MaxLevels
		}
		levels := make([]Level, n)
		for i := 0; i < n; i++ {
			off := i * levelSize
			lvl := body[off : off+levelSize]
			levels[i] = Level{
				Price:    math.Float32frombits(binary.LittleEndian.Uint32(lvl[0:4])),
				Quantity: int32(binary.LittleEndian.Uint32(lvl[4:8])),
				Orders:   int32(binary.LittleEndian.Uint32(lvl[8:12])),
			}
		}
		return code, Side{SecurityID: securityID, Time: time.Now().UTC(), Levels: levels}, nil
	default:
		return 0, Side{}, fmt.Errorf("%w: %w: code %d", ErrDecodeMalformed, ErrUnknownResponseCode, code)
	}
}
