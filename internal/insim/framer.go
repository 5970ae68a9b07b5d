package insim

import "github.com/rs/zerolog"

// DefaultBufferLimit is the hard cap on buffered-but-unframed bytes.
const DefaultBufferLimit = 65536

// mciHeaderLen is the number of bytes of an MCI packet that must be
// buffered before its true length (4 + 28*count) can be computed.
const mciHeaderLen = 4

const mciEntryLen = 28

// Framer turns an arbitrary byte stream from the InSim TCP socket into a
// sequence of complete, header-valid packets. It owns a bounded buffer and
// resynchronises after corrupted prefixes instead of ever failing the
// connection — framing errors are never fatal.
type Framer struct {
	Logger zerolog.Logger

	limit int
	buf   []byte
}

// NewFramer constructs a Framer with the given buffer cap. A limit of 0
// uses DefaultBufferLimit.
func NewFramer(limit int, logger zerolog.Logger) *Framer {
	if limit <= 0 {
		limit = DefaultBufferLimit
	}
	return &Framer{Logger: logger, limit: limit}
}

// Append feeds newly-received bytes into the framer and returns every
// complete packet that could be extracted as a result, in arrival order.
func (f *Framer) Append(data []byte) []Packet {
	f.buf = append(f.buf, data...)

	if len(f.buf) > f.limit {
		drop := len(f.buf) - f.limit
		f.Logger.Warn().Msgf("insim: buffer exceeded cap of %d bytes, discarding %d oldest bytes", f.limit, drop)
		f.buf = f.buf[drop:]
	}

	var packets []Packet
	for {
		pkt, ok := f.extractOne()
		if !ok {
			break
		}
		packets = append(packets, pkt)
	}
	return packets
}

// Len reports the number of bytes currently buffered and awaiting framing.
func (f *Framer) Len() int {
	return len(f.buf)
}

// extractOne scans for a plausible header, discards anything before it,
// validates it, and either extracts a complete packet, waits for more
// bytes, or discards the rejected header and tries again.
func (f *Framer) extractOne() (Packet, bool) {
	for {
		candidate, inconclusive := f.scanForCandidate()
		if inconclusive {
			return Packet{}, false // last byte might start a header; wait for its type byte
		}
		if candidate < 0 {
			if len(f.buf) > 0 {
				f.Logger.Warn().Msgf("insim: no resync candidate in %d buffered bytes, clearing", len(f.buf))
			}
			f.buf = f.buf[:0]
			return Packet{}, false
		}

		if candidate > 0 {
			f.Logger.Warn().Msgf("insim: discarding %d bytes before resync candidate", candidate)
			f.buf = f.buf[candidate:]
		}

		size, typ := f.buf[0], f.buf[1]
		if err := ValidateHeader(size, typ); err != nil {
			discard := 2
			if len(f.buf) < 2 {
				discard = 1
			}
			f.Logger.Warn().Msgf("insim: rejected candidate header (size=%d type=%d): %v, discarding %d bytes", size, typ, err, discard)
			f.buf = f.buf[discard:]
			continue
		}

		length, ok := packetLength(size, typ, f.buf)
		if !ok {
			return Packet{}, false // need more bytes to know the true length (MCI count byte)
		}
		if len(f.buf) < length {
			return Packet{}, false // header valid, payload not fully buffered yet
		}

		raw := make([]byte, length)
		copy(raw, f.buf[:length])
		f.buf = f.buf[length:]
		return Packet{Size: size, Type: typ, Raw: raw}, true
	}
}

// scanForCandidate returns the offset of the first byte that could begin a
// valid packet: its own value (the size byte) is non-zero and at least 4,
// and the following byte is a known packet type. It returns -1 if the
// entire buffer is scanned and no such offset is found. A zero size byte
// is always skipped, which is what prevents a zero-length read from
// looping forever without ever advancing the buffer.
func (f *Framer) scanForCandidate() (offset int, inconclusive bool) {
	for i := 0; i < len(f.buf); i++ {
		size := f.buf[i]
		if size == 0 || size < 4 {
			continue
		}
		if i+1 >= len(f.buf) {
			// Not enough bytes yet to know the type; this offset can't be
			// confirmed or rejected, so treat the scan as inconclusive
			// rather than a conclusive "no candidate".
			return -1, true
		}
		typ := f.buf[i+1]
		if !isKnownType(typ) {
			continue
		}
		return i, false
	}
	return -1, false
}

// packetLength returns the true byte length of the packet starting at the
// front of buf, given its declared size and type. For MCI it accounts for
// the size-byte wraparound: the true length is 4+28*count and may exceed
// what a single byte can declare.
func packetLength(size, typ byte, buf []byte) (int, bool) {
	if typ == TypeMultiCarInfo {
		if len(buf) < mciHeaderLen {
			return 0, false
		}
		count := buf[3]
		return mciHeaderLen + mciEntryLen*int(count), true
	}
	return int(size), true
}
