package insim

import (
	"encoding/binary"
	"testing"
)

func buildStatePacket(viewPLID uint8, flags2 uint16, track string) []byte {
	raw := make([]byte, 28)
	raw[0] = 28
	raw[1] = TypeState
	raw[10] = viewPLID
	binary.LittleEndian.PutUint16(raw[16:18], flags2)
	copy(raw[20:26], track)
	return raw
}

func buildNewPlayerPacket(plid uint8, car string) []byte {
	raw := make([]byte, 44)
	raw[0] = 44
	raw[1] = TypeNewPlayer
	raw[3] = plid
	copy(raw[40:44], car)
	return raw
}

func TestDecodeStateTracksContext(t *testing.T) {
	d := NewDecoder()
	ev, err := d.Decode(Packet{Type: TypeState, Raw: buildStatePacket(5, ISSMulti, "BL1")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ev) != 1 {
		t.Fatalf("expected one StateEvent, got %d", len(ev))
	}
	state := ev[0].(StateEvent)
	if state.Track != "BL1" || state.ViewPLID != 5 || !state.Multiplayer() {
		t.Fatalf("unexpected state: %+v", state)
	}
}

func TestDecodeNewPlayerAlsoEmitsState(t *testing.T) {
	d := NewDecoder()
	d.Decode(Packet{Type: TypeState, Raw: buildStatePacket(5, ISSMulti, "BL1")})

	events, err := d.Decode(Packet{Type: TypeNewPlayer, Raw: buildNewPlayerPacket(5, "XFG")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected NewPlayerEvent + StateEvent, got %d events", len(events))
	}
	npl, ok := events[0].(NewPlayerEvent)
	if !ok || npl.Car != "XFG" {
		t.Fatalf("expected NewPlayerEvent with car XFG, got %+v", events[0])
	}
	state, ok := events[1].(StateEvent)
	if !ok || state.Flags2 != ISSMulti {
		t.Fatalf("expected synthesised StateEvent to inherit flags2, got %+v", events[1])
	}
}

func TestDecodeLapRejectsShortNameSegment(t *testing.T) {
	raw := make([]byte, 41) // one byte short of the 42-byte minimum
	raw[0] = 41
	raw[1] = TypeLap
	d := NewDecoder()
	ev, err := d.decodeLap(raw)
	if err != nil {
		t.Fatalf("decodeLap should not error on a short-but-plausible payload: %v", err)
	}
	if ev != nil {
		t.Fatalf("expected rejection (nil event), got %+v", ev)
	}
}

func TestDecodeLapAcceptsSingleSpareByte(t *testing.T) {
	raw := buildLapPacket(43, 5, 73000, 74000, "Driver") // 43 = 18 fixed + 1 spare + 24 name
	d := NewDecoder()
	ev, err := d.decodeLap(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lap, ok := ev.(LapEvent)
	if !ok {
		t.Fatalf("expected LapEvent, got %T", ev)
	}
	if lap.LapTimeMs != 73000 || lap.PlayerName != "Driver" {
		t.Fatalf("unexpected lap event: %+v", lap)
	}
}

func TestDecodeLapFallsBackToCurrentCarForViewPLID(t *testing.T) {
	d := NewDecoder()
	d.Decode(Packet{Type: TypeState, Raw: buildStatePacket(5, 0, "BL1")})
	d.Decode(Packet{Type: TypeNewPlayer, Raw: buildNewPlayerPacket(5, "XFG")})

	raw := buildLapPacket(64, 5, 73000, 74000, "Driver")
	ev, err := d.decodeLap(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lap := ev.(LapEvent)
	if lap.Car != "XFG" || lap.Track != "BL1" {
		t.Fatalf("expected lap to inherit track/car context, got %+v", lap)
	}
}

func TestDecodeButtonClickFlag(t *testing.T) {
	raw := make([]byte, 8)
	raw[0], raw[1] = 8, TypeButtonClick
	raw[4] = 200
	binary.LittleEndian.PutUint16(raw[6:8], 1)

	d := NewDecoder()
	ev, err := d.decodeButtonClick(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	click := ev.(ButtonClickEvent)
	if click.ClickID != 200 || !click.Clicked() {
		t.Fatalf("unexpected click event: %+v", click)
	}
}

func TestDecodeMultiCarInfoEntries(t *testing.T) {
	count := 2
	raw := make([]byte, mciHeaderLen+mciEntryLen*count)
	raw[0], raw[1], raw[3] = byte(len(raw)), TypeMultiCarInfo, byte(count)
	binary.LittleEndian.PutUint16(raw[4:6], 7)     // node of first car
	raw[8] = 1                                     // plid of first car
	binary.LittleEndian.PutUint32(raw[12:16], 65536) // x of first car

	d := NewDecoder()
	ev, err := d.decodeMultiCarInfo(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mci := ev.(MultiCarInfoEvent)
	if len(mci.Cars) != count {
		t.Fatalf("expected %d cars, got %d", count, len(mci.Cars))
	}
	if mci.Cars[0].Node != 7 || mci.Cars[0].PLID != 1 || mci.Cars[0].X != 65536 {
		t.Fatalf("unexpected first car: %+v", mci.Cars[0])
	}
}
