package session

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/paddocklink/telemetry-bridge/internal/insim"
	"github.com/paddocklink/telemetry-bridge/internal/outsim"
	"github.com/paddocklink/telemetry-bridge/internal/pbstore"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()
	store, err := pbstore.NewStore(filepath.Join(dir, "telemetry.db"), "", zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	return NewEngine(store, zerolog.Nop(), 200, 201)
}

func TestTrackChangeMidSessionDoesNotLeakPLID(t *testing.T) {
	e := newTestEngine(t)

	e.OnState(insim.StateEvent{Track: "SO1", Car: "UF1", Flags2: 0})
	e.OnLap(insim.LapEvent{PLID: 5, LapTimeMs: 0, Track: "SO1", Car: "UF1"})

	e.OnState(insim.StateEvent{Track: "BL2", Car: "UF1", Flags2: 0})
	if e.Model.TrackedPLID != nil {
		t.Fatalf("expected tracked PLID to be cleared on track change, got %v", *e.Model.TrackedPLID)
	}

	e.OnLap(insim.LapEvent{PLID: 6, LapTimeMs: 64000, Track: "BL2", Car: "UF1"})

	if e.Model.TrackedPLID == nil || *e.Model.TrackedPLID != 6 {
		t.Fatalf("expected PLID 6 to be adopted for the new context, got %v", e.Model.TrackedPLID)
	}

	rec, err := e.PBStore.Load("BL2", "UF1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec == nil || rec.LaptimeMs != 64000 {
		t.Fatalf("expected exactly one record_lap(BL2,UF1,64000), got %+v", rec)
	}

	old, err := e.PBStore.Load("SO1", "UF1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if old != nil {
		t.Fatalf("PLID 5's zero-length lap must not have recorded a PB, got %+v", old)
	}
}

func TestOnLapIgnoresMismatchedPLID(t *testing.T) {
	e := newTestEngine(t)
	e.OnState(insim.StateEvent{Track: "BL1", Car: "XFG", Flags2: 0})
	e.OnLap(insim.LapEvent{PLID: 5, LapTimeMs: 73000, Track: "BL1", Car: "XFG"})

	// a different PLID's lap must not overwrite the tracked driver's state
	e.OnLap(insim.LapEvent{PLID: 9, LapTimeMs: 1000, Track: "BL1", Car: "XFG"})

	rec, err := e.PBStore.Load("BL1", "XFG")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec == nil || rec.LaptimeMs != 73000 {
		t.Fatalf("expected the tracked driver's 73000ms lap to be the recorded PB, got %+v", rec)
	}
}

func TestTrackChangeRestartsLapClockOnNextFrame(t *testing.T) {
	e := newTestEngine(t)

	e.OnState(insim.StateEvent{Track: "SO1", Car: "UF1"})
	e.OnFrame(outsim.Frame{TimeMs: 1000})
	if e.Model.CurrentLapStartMs == nil {
		t.Fatalf("expected lap clock to start on the first frame")
	}

	e.OnState(insim.StateEvent{Track: "BL2", Car: "UF1"})
	if !e.Model.PendingLapStart {
		t.Fatalf("expected a track context change to arm a pending lap start")
	}
	if e.Model.CurrentLapStartMs != nil {
		t.Fatalf("expected lap start to be cleared on track change, got %v", *e.Model.CurrentLapStartMs)
	}

	e.OnFrame(outsim.Frame{TimeMs: 5000})
	if e.Model.CurrentLapStartMs == nil || *e.Model.CurrentLapStartMs != 5000 {
		t.Fatalf("expected the lap clock to restart at the next frame after a track change, got %v", e.Model.CurrentLapStartMs)
	}
}

func TestBestLapMsOnlyDecreases(t *testing.T) {
	e := newTestEngine(t)
	e.OnState(insim.StateEvent{Track: "BL1", Car: "XFG"})
	e.OnLap(insim.LapEvent{PLID: 1, LapTimeMs: 80000, Track: "BL1", Car: "XFG"})
	if *e.Model.BestLapMs != 80000 {
		t.Fail()
	}
	e.OnLap(insim.LapEvent{PLID: 1, LapTimeMs: 90000, Track: "BL1", Car: "XFG"})
	if *e.Model.BestLapMs != 80000 {
		t.Fatalf("session best must only decrease, got %d", *e.Model.BestLapMs)
	}
	e.OnLap(insim.LapEvent{PLID: 1, LapTimeMs: 70000, Track: "BL1", Car: "XFG"})
	if *e.Model.BestLapMs != 70000 {
		t.Fatalf("expected a faster lap to lower session best, got %d", *e.Model.BestLapMs)
	}
}
