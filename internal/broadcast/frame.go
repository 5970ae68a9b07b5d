package broadcast

import (
	"encoding/binary"
)

// opcodeText is the RFC 6455 opcode for a UTF-8 text frame.
const opcodeText = 0x1

// encodeTextFrame wraps payload as a single unmasked, final text frame
// using the standard 7/16/64-bit length encoding. RFC 6455 requires
// masking only for client-to-server frames; servers never mask.
func encodeTextFrame(payload []byte) []byte {
	var header []byte
	finOpcode := byte(0x80 | opcodeText) // FIN=1, opcode=0x1

	n := len(payload)
	switch {
	case n <= 125:
		header = []byte{finOpcode, byte(n)}
	case n <= 0xFFFF:
		header = make([]byte, 4)
		header[0] = finOpcode
		header[1] = 126
		binary.BigEndian.PutUint16(header[2:4], uint16(n))
	default:
		header = make([]byte, 10)
		header[0] = finOpcode
		header[1] = 127
		binary.BigEndian.PutUint64(header[2:10], uint64(n))
	}

	out := make([]byte, 0, len(header)+len(payload))
	out = append(out, header...)
	out = append(out, payload...)
	return out
}
