package insim

import (
	"encoding/binary"
	"testing"

	"github.com/rs/zerolog"
)

func buildLapPacket(totalSize int, plid uint8, lapTimeMs, estimateMs int32, name string) []byte {
	raw := make([]byte, totalSize)
	raw[0] = byte(totalSize)
	raw[1] = TypeLap
	raw[3] = plid
	binary.LittleEndian.PutUint32(raw[4:8], uint32(lapTimeMs))
	binary.LittleEndian.PutUint32(raw[8:12], uint32(estimateMs))
	nameStart := totalSize - nameTrailerLen
	copy(raw[nameStart:], name)
	return raw
}

func buildBTCPacket() []byte {
	raw := make([]byte, 8)
	raw[0] = 8
	raw[1] = TypeButtonClick
	raw[4] = 3
	binary.LittleEndian.PutUint16(raw[6:8], 1)
	return raw
}

func TestFramerResyncAfterCorruptedPrefix(t *testing.T) {
	f := NewFramer(0, zerolog.Nop())
	lap := buildLapPacket(64, 5, 73000, 74000, "Driver")

	data := append([]byte{200, TypeLap}, lap...)
	packets := f.Append(data)

	if len(packets) != 1 {
		t.Fatalf("expected exactly one packet after resync, got %d", len(packets))
	}
	if packets[0].Type != TypeLap {
		t.Fail()
	}
	if f.Len() != 0 {
		t.Fatalf("expected empty buffer after extracting the only packet, got %d bytes left", f.Len())
	}

	d := NewDecoder()
	events, err := d.Decode(packets[0])
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected exactly one LapEvent, got %d events", len(events))
	}
	lapEv, ok := events[0].(LapEvent)
	if !ok {
		t.Fatalf("expected LapEvent, got %T", events[0])
	}
	if lapEv.LapTimeMs != 73000 {
		t.Fail()
	}
}

func TestFramerBufferOverflowPreservation(t *testing.T) {
	f := NewFramer(12, zerolog.Nop())

	chunk := []byte{}
	chunk = append(chunk, 4, 1, 0, 0)    // too-small declared ISI, invalid header
	chunk = append(chunk, 4, 200, 0, 0)  // unknown type, not a resync candidate
	chunk = append(chunk, buildBTCPacket()...)

	packets := f.Append(chunk)

	if len(packets) != 1 {
		t.Fatalf("expected exactly one delivered packet, got %d", len(packets))
	}
	if packets[0].Type != TypeButtonClick {
		t.Fatalf("expected the BTC packet to survive, got type %d", packets[0].Type)
	}
	if f.Len() != 0 {
		t.Fatalf("expected an empty buffer after draining, got %d bytes left", f.Len())
	}
}

func TestFramerNeverExceedsLimit(t *testing.T) {
	f := NewFramer(16, zerolog.Nop())
	garbage := make([]byte, 1000)
	for i := range garbage {
		garbage[i] = byte(i % 251) // the 16 bytes kept after the cap (231..246) hold no known type byte
	}
	f.Append(garbage)
	if f.Len() > 16 {
		t.Fatalf("buffer exceeded its cap: %d > 16", f.Len())
	}
}

func TestFramerWaitsOnIncompletePacket(t *testing.T) {
	f := NewFramer(0, zerolog.Nop())
	lap := buildLapPacket(64, 5, 73000, 74000, "Driver")
	packets := f.Append(lap[:10])
	if len(packets) != 0 {
		t.Fatalf("expected no packets from a partial buffer, got %d", len(packets))
	}
	packets = f.Append(lap[10:])
	if len(packets) != 1 {
		t.Fatalf("expected the packet to complete once the rest arrives, got %d", len(packets))
	}
}

func TestFramerMCIWraparoundLength(t *testing.T) {
	count := 10 // 4+28*10=284, which wraps a single size byte
	total := mciHeaderLen + mciEntryLen*count
	raw := make([]byte, total)
	raw[0] = byte(total % 256) // the declared size byte, wrapped
	raw[1] = TypeMultiCarInfo
	raw[3] = byte(count)

	f := NewFramer(0, zerolog.Nop())
	packets := f.Append(raw)
	if len(packets) != 1 {
		t.Fatalf("expected the wrapped MCI packet to be extracted whole, got %d packets", len(packets))
	}
	if packets[0].Length() != total {
		t.Fatalf("expected true length %d, got %d", total, packets[0].Length())
	}
}
