package depth

import (
	"encoding/binary"
	"math"
	"testing"
)

func buildDepthFrame(t *testing.T, code ResponseCode, securityID int32, levels []Level) []byte {
	t.Helper()
	frame := make([]byte, headerSize+len(levels)*levelSize)
	frame[0] = byte(code)
	binary.LittleEndian.PutUint32(frame[4:8], uint32(securityID))

	for i, lvl := range levels {
		off := headerSize + i*levelSize
		b := frame[off : off+levelSize]
		binary.LittleEndian.PutUint32(b[0:4], math.Float32bits(lvl.Price))
		binary.LittleEndian.PutUint32(b[4:8], uint32(lvl.Quantity))
		binary.LittleEndian.PutUint32(b[8:12], uint32(lvl.Orders))
	}
	return frame
}
