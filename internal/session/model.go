// Package session correlates InSim events and OutSim frames into a single
// running session model: current lap, session/personal best, split
// fractions, and the live delta against a reference lap.
package session

import "github.com/paddocklink/telemetry-bridge/internal/pbstore"

// Model is the single mutable aggregate the engine maintains. All mutation
// happens on the orchestrator's single frame-loop goroutine.
type Model struct {
	TrackedPLID   *uint8
	TrackedDriver *string

	CurrentTrack *string
	CurrentCar   *string

	CurrentLapStartMs *uint32
	BestLapMs         *uint32

	CurrentSplitTimes map[uint8]uint32

	LastLapSplitFractions []float64
	PBSplitFractions      []float64

	LatestEstimatedTotalMs *uint32
	PersistentBest         *pbstore.Record

	PendingLapStart bool
	LastFrameTimeMs *uint32
}

// NewModel returns an empty, ready-to-use session model.
func NewModel() *Model {
	return &Model{CurrentSplitTimes: make(map[uint8]uint32)}
}

// ClearSessionTiming resets the timing subset of the model on a confirmed
// track or car change, without touching the broader identity fields the
// caller is in the middle of updating.
func (m *Model) ClearSessionTiming() {
	m.CurrentLapStartMs = nil
	m.BestLapMs = nil
	m.CurrentSplitTimes = make(map[uint8]uint32)
	m.LastLapSplitFractions = nil
	m.PBSplitFractions = nil
	m.LatestEstimatedTotalMs = nil
	m.PendingLapStart = false
}

func u32ptr(v uint32) *uint32 { return &v }
func u8ptr(v uint8) *uint8    { return &v }
func strptr(v string) *string { return &v }
