package insim

import (
	"encoding/binary"
	"fmt"
)

// Event is the tagged-union marker implemented by every event type the
// decoder can emit. Dispatch on concrete type with a type switch.
type Event interface {
	isEvent()
}

func (StateEvent) isEvent()       {}
func (NewPlayerEvent) isEvent()   {}
func (LapEvent) isEvent()         {}
func (SplitEvent) isEvent()       {}
func (ButtonClickEvent) isEvent() {}
func (MultiCarInfoEvent) isEvent() {}

// nameTrailerLen is the fixed width of the player-name trailer carried by
// LAP and SPX packets.
const nameTrailerLen = 24

// lapFixedFieldsLen is the number of bytes consumed by the fields the
// decoder reads explicitly from a LAP/SPX packet, before any
// implementation-defined middle region and the name trailer.
const lapFixedFieldsLen = 18

// Decoder turns validated Packets into typed Events, correlating PLIDs to
// cars and tracks across packets the way the simulator's own session state
// does. It is not safe for concurrent use; InSim events arrive in order on
// a single TCP stream and should be decoded on one goroutine.
type Decoder struct {
	currentTrack string
	currentCar   string
	viewPLID     uint8
	lastFlags2   uint16
	plidToCar    map[uint8]string
}

// NewDecoder returns a ready-to-use Decoder.
func NewDecoder() *Decoder {
	return &Decoder{plidToCar: make(map[uint8]string)}
}

// Decode dispatches on the packet's type and returns the resulting
// events in emission order (almost always zero or one; NPL emits both a
// NewPlayerEvent and a synthesised StateEvent). A non-nil error indicates
// the packet's declared schema was already violated in a way Validate
// should have caught — decode never returns an error for packets that
// passed Validate.
func (d *Decoder) Decode(pkt Packet) ([]Event, error) {
	switch pkt.Type {
	case TypeVersion:
		return nil, nil

	case TypeState:
		ev, err := d.decodeState(pkt.Raw)
		return wrap(ev), err

	case TypeNewPlayer:
		return d.decodeNewPlayer(pkt.Raw)

	case TypeLap:
		ev, err := d.decodeLap(pkt.Raw)
		return wrap(ev), err

	case TypeSplit:
		ev, err := d.decodeSplit(pkt.Raw)
		return wrap(ev), err

	case TypeButtonClick:
		ev, err := d.decodeButtonClick(pkt.Raw)
		return wrap(ev), err

	case TypeMultiCarInfo:
		ev, err := d.decodeMultiCarInfo(pkt.Raw)
		return wrap(ev), err

	default:
		return nil, nil
	}
}

// wrap lifts a possibly-nil single event into the []Event slice Decode
// returns, so every packet type shares one return shape.
func wrap(ev Event) []Event {
	if ev == nil {
		return nil
	}
	return []Event{ev}
}

func (d *Decoder) decodeState(raw []byte) (Event, error) {
	if len(raw) < 26 {
		return nil, fmt.Errorf("insim: STA payload too short: %d", len(raw))
	}
	flags2 := binary.LittleEndian.Uint16(raw[16:18])
	viewPLID := raw[10]
	track := trimASCII(raw[20:26])

	d.lastFlags2 = flags2
	d.viewPLID = viewPLID
	if track != "" {
		d.currentTrack = track
	}
	if car, ok := d.plidToCar[viewPLID]; ok {
		d.currentCar = car
	}

	return StateEvent{
		ViewPLID: viewPLID,
		Flags2:   flags2,
		Track:    d.currentTrack,
		Car:      d.currentCar,
	}, nil
}

// decodeNewPlayer records the plid→car mapping and also synthesises a
// StateEvent carrying the most recently observed Flags2, so that a car
// change for the tracked driver re-runs mode/context handling without
// requiring a fresh STA packet.
func (d *Decoder) decodeNewPlayer(raw []byte) ([]Event, error) {
	if len(raw) < 44 {
		return nil, fmt.Errorf("insim: NPL payload too short: %d", len(raw))
	}
	plid := raw[3]
	car := trimASCII(raw[40:44])
	d.plidToCar[plid] = car
	if plid == d.viewPLID {
		d.currentCar = car
	}
	return []Event{
		NewPlayerEvent{PLID: plid, Car: car},
		StateEvent{
			ViewPLID: d.viewPLID,
			Flags2:   d.lastFlags2,
			Track:    d.currentTrack,
			Car:      d.currentCar,
		},
	}, nil
}

// lapSplitFixed decodes the shared LAP/SPX layout: plid, two i32 LE
// fields, a u16 LE flags field, four trailing 1-byte fields, and the
// player-name trailer. Every byte between the fixed fields and the final
// 24-byte name is treated as an unmodelled middle region (covering both a
// single spare byte and any larger reserved/split region a bigger packet
// may carry); the packet is rejected outright only when fewer than 24
// bytes remain for the name.
func lapSplitFixed(raw []byte) (plid uint8, fieldA, fieldB int32, flags uint16, f1, f2, f3, f4 uint8, name string, ok bool) {
	if len(raw) < lapFixedFieldsLen {
		return
	}
	nameStart := len(raw) - nameTrailerLen
	if nameStart < lapFixedFieldsLen {
		return
	}
	plid = raw[3]
	fieldA = int32(binary.LittleEndian.Uint32(raw[4:8]))
	fieldB = int32(binary.LittleEndian.Uint32(raw[8:12]))
	flags = binary.LittleEndian.Uint16(raw[12:14])
	f1, f2, f3, f4 = raw[14], raw[15], raw[16], raw[17]
	name = trimASCII(raw[nameStart:])
	ok = true
	return
}

func (d *Decoder) decodeLap(raw []byte) (Event, error) {
	plid, lapTime, estimate, flags, sp0, penalty, pitStops, fuel, name, ok := lapSplitFixed(raw)
	if !ok {
		return nil, nil
	}
	return LapEvent{
		PLID:           plid,
		LapTimeMs:      lapTime,
		EstimateTimeMs: estimate,
		Flags:          flags,
		SP0:            sp0,
		Penalty:        penalty,
		NumPitStops:    pitStops,
		Fuel200:        fuel,
		PlayerName:     name,
		Track:          d.currentTrack,
		Car:            d.carForPLID(plid),
	}, nil
}

func (d *Decoder) decodeSplit(raw []byte) (Event, error) {
	plid, splitTime, estimate, flags, splitIndex, _, _, _, name, ok := lapSplitFixed(raw)
	if !ok {
		return nil, nil
	}
	return SplitEvent{
		PLID:           plid,
		SplitIndex:     splitIndex,
		SplitTimeMs:    splitTime,
		EstimateTimeMs: estimate,
		Flags:          flags,
		PlayerName:     name,
		Track:          d.currentTrack,
		Car:            d.carForPLID(plid),
	}, nil
}

// carForPLID resolves the car for plid, falling back to currentCar when
// plid is the tracked view player.
func (d *Decoder) carForPLID(plid uint8) string {
	if car, ok := d.plidToCar[plid]; ok {
		return car
	}
	if plid == d.viewPLID {
		return d.currentCar
	}
	return ""
}

func (d *Decoder) decodeButtonClick(raw []byte) (Event, error) {
	if len(raw) < 8 {
		return nil, fmt.Errorf("insim: BTC payload too short: %d", len(raw))
	}
	return ButtonClickEvent{
		ClickID: raw[4],
		Flags:   binary.LittleEndian.Uint16(raw[6:8]),
	}, nil
}

func (d *Decoder) decodeMultiCarInfo(raw []byte) (Event, error) {
	if len(raw) < 4 {
		return nil, fmt.Errorf("insim: MCI payload too short: %d", len(raw))
	}
	count := int(raw[3])
	need := mciHeaderLen + mciEntryLen*count
	if len(raw) < need {
		return nil, fmt.Errorf("insim: MCI payload too short for %d cars: need %d, got %d", count, need, len(raw))
	}
	cars := make([]CarInfo, count)
	for i := 0; i < count; i++ {
		off := mciHeaderLen + i*mciEntryLen
		e := raw[off : off+mciEntryLen]
		cars[i] = CarInfo{
			Node:            binary.LittleEndian.Uint16(e[0:2]),
			Lap:             binary.LittleEndian.Uint16(e[2:4]),
			PLID:            e[4],
			Position:        e[5],
			Info:            e[6],
			Spare:           e[7],
			X:               int32(binary.LittleEndian.Uint32(e[8:12])),
			Y:               int32(binary.LittleEndian.Uint32(e[12:16])),
			Z:               int32(binary.LittleEndian.Uint32(e[16:20])),
			Speed:           binary.LittleEndian.Uint16(e[20:22]),
			Direction:       binary.LittleEndian.Uint16(e[22:24]),
			Heading:         binary.LittleEndian.Uint16(e[24:26]),
			AngularVelocity: int16(binary.LittleEndian.Uint16(e[26:28])),
		}
	}
	return MultiCarInfoEvent{Cars: cars}, nil
}

// trimASCII trims trailing NUL bytes and decodes the remainder as Latin-1,
// matching the simulator's wire encoding for fixed-width text fields.
func trimASCII(b []byte) string {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	runes := make([]rune, end)
	for i, c := range b[:end] {
		runes[i] = rune(c)
	}
	return string(runes)
}
