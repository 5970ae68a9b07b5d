package insim

import "fmt"

// field describes a named span inside a packet's payload, used only to
// assert the span lies wholly inside the declared packet size. The decoder
// re-reads these same offsets; the table here exists purely for schema
// validation ahead of decoding.
type field struct {
	name   string
	offset int
	length int
}

// schema bounds a packet type's valid wire size and enumerates the fields
// that must fit inside it.
type schema struct {
	minSize   int
	exactSize int // 0 means "not fixed"
	maxSize   int // 0 means "unbounded"
	fields    []field
}

// schemas enumerates each known packet type's valid wire size bounds and
// fixed-offset fields. MCI has no max because its true length (4+28*count)
// can exceed what a single wire size byte can declare; see Packet.Length.
var schemas = map[PacketType]schema{
	TypeVersion: {exactSize: 20},
	TypeState: {
		exactSize: 28,
		fields: []field{
			{"view_plid", 10, 1},
			{"flags2", 16, 2},
			{"track_code", 20, 6},
		},
	},
	TypeNewPlayer: {
		minSize: 44, maxSize: 120,
		fields: []field{
			{"plid", 3, 1},
			{"car", 40, 4},
		},
	},
	TypeLap: {
		minSize: 42, maxSize: 96,
		fields: []field{
			{"plid", 3, 1},
			{"field_a", 4, 4},
			{"field_b", 8, 4},
			{"flags", 12, 2},
		},
	},
	TypeSplit: {
		minSize: 42, maxSize: 96,
		fields: []field{
			{"plid", 3, 1},
			{"field_a", 4, 4},
			{"field_b", 8, 4},
			{"flags", 12, 2},
		},
	},
	TypeButtonClick: {
		minSize: 8, maxSize: 12,
		fields: []field{
			{"click_id", 4, 1},
			{"flags", 6, 2},
		},
	},
	TypeMultiCarInfo: {
		minSize: 4,
		fields: []field{
			{"count", 3, 1},
		},
	},
}

// ValidateHeader checks only the size byte and type byte, before the full
// payload is necessarily buffered. Unknown types are accepted here — the
// framer still needs to decide whether to treat them as resync candidates.
func ValidateHeader(size, typ byte) error {
	if size < 4 {
		return fmt.Errorf("insim: packet size %d below minimum header size 4", size)
	}
	s, known := schemas[typ]
	if !known {
		return nil
	}
	if s.exactSize != 0 && int(size) != s.exactSize {
		return fmt.Errorf("insim: type %d requires exact size %d, got %d", typ, s.exactSize, size)
	}
	if s.minSize != 0 && int(size) < s.minSize {
		return fmt.Errorf("insim: type %d below minimum size %d, got %d", typ, s.minSize, size)
	}
	if s.maxSize != 0 && int(size) > s.maxSize {
		return fmt.Errorf("insim: type %d above maximum size %d, got %d", typ, s.maxSize, size)
	}
	return nil
}

// Validate re-checks the header against the full payload and additionally
// ensures every declared field of the schema lies wholly inside the
// packet's actual byte length. typ==TypeMultiCarInfo is not schema-capped
// on the high end, so raw length may legitimately exceed the wire size
// byte once wrapped (see Packet.Length).
func Validate(raw []byte) error {
	if len(raw) < 4 {
		return fmt.Errorf("insim: packet too short: %d bytes", len(raw))
	}
	typ := raw[1]
	s, known := schemas[typ]
	if !known {
		return nil
	}
	if len(raw) < s.minSize {
		return fmt.Errorf("insim: type %d payload shorter than minimum %d: got %d", typ, s.minSize, len(raw))
	}
	if s.maxSize != 0 && len(raw) > s.maxSize {
		return fmt.Errorf("insim: type %d payload longer than maximum %d: got %d", typ, s.maxSize, len(raw))
	}
	if s.exactSize != 0 && len(raw) != s.exactSize {
		return fmt.Errorf("insim: type %d requires exact payload %d: got %d", typ, s.exactSize, len(raw))
	}
	for _, f := range s.fields {
		if f.offset < 0 || f.offset+f.length > len(raw) {
			return fmt.Errorf("insim: type %d field %q at offset %d/%d falls outside payload of length %d",
				typ, f.name, f.offset, f.length, len(raw))
		}
	}
	return nil
}
