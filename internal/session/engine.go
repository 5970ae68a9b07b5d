package session

import (
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/paddocklink/telemetry-bridge/internal/insim"
	"github.com/paddocklink/telemetry-bridge/internal/outsim"
	"github.com/paddocklink/telemetry-bridge/internal/pbstore"
)

// ModeConfig holds the radar/beeps toggle state for one mode (sp or mp).
type ModeConfig struct {
	RadarEnabled bool
	BeepsEnabled bool
}

// Status is the derived tuple published to the broadcaster and the
// console status line after every frame.
type Status struct {
	Track              string
	Car                string
	CurrentLapMs       uint32
	SessionBestMs      *uint32
	PersonalBestMs     *int
	DeltaMs            *int
	LapProgress        *float64
}

// Engine is the single-threaded session state machine. It is driven
// exclusively from the orchestrator's frame loop.
type Engine struct {
	Logger zerolog.Logger

	Model   *Model
	PBStore *pbstore.Store

	// OnModeChanged is invoked on every StateEvent with its multiplayer bit,
	// so the orchestrator can apply the right ModeConfig and redraw the HUD.
	OnModeChanged func(multiplayer bool)

	// OnStatus is invoked with the latest derived status after on_frame.
	OnStatus func(Status)

	// OnFocusChanged is invoked when a StateEvent's non-zero view PLID
	// replaces the tracked PLID, so the broadcaster can update its focus
	// car. Adopting a driver from a LAP/SPX event does not invoke it.
	OnFocusChanged func(plid uint8)

	radarButtonID uint8
	beepsButtonID uint8
}

// NewEngine wires an Engine around an empty Model and a PB store.
func NewEngine(store *pbstore.Store, logger zerolog.Logger, radarButtonID, beepsButtonID uint8) *Engine {
	return &Engine{
		Logger:        logger,
		Model:         NewModel(),
		PBStore:       store,
		radarButtonID: radarButtonID,
		beepsButtonID: beepsButtonID,
	}
}

// OnState handles a decoded StateEvent: track context, tracked PLID, and
// the sp/mp mode derived from the multiplayer bit.
func (e *Engine) OnState(ev insim.StateEvent) {
	e.updateTrackContext(ev.Track, ev.Car)
	if ev.ViewPLID != 0 {
		plid := ev.ViewPLID
		if e.Model.TrackedPLID == nil || *e.Model.TrackedPLID != plid {
			e.Model.TrackedPLID = &plid
			if e.OnFocusChanged != nil {
				e.OnFocusChanged(plid)
			}
		}
	}
	if e.OnModeChanged != nil {
		e.OnModeChanged(ev.Multiplayer())
	}
}

// OnLap handles a decoded LapEvent, implementing the lap-boundary update
// described for the session engine: adopt a driver if none is tracked,
// ignore mismatched PLIDs, update best-lap/PB state, reseed split
// fractions, and reset the running split accumulator.
func (e *Engine) OnLap(ev insim.LapEvent) {
	e.updateTrackContext(ev.Track, ev.Car)
	e.adoptDriverIfNeeded(ev.PLID)
	if e.Model.TrackedPLID == nil || *e.Model.TrackedPLID != ev.PLID {
		return
	}

	lapTime := ev.LapTimeMs
	est := ev.EstimateTimeMs

	if lapTime > 0 {
		e.updateSessionBest(uint32(lapTime))

		fractions := e.deriveLastLapFractions(uint32(lapTime))
		e.Model.LastLapSplitFractions = fractions

		if e.PBStore != nil && e.Model.CurrentTrack != nil && e.Model.CurrentCar != nil {
			rec, improved, err := e.PBStore.RecordLap(*e.Model.CurrentTrack, *e.Model.CurrentCar, int(lapTime), time.Time{})
			if err != nil {
				e.Logger.Error().Msgf("session: record_lap failed: %v", err)
			} else {
				recCopy := rec
				e.Model.PersistentBest = &recCopy
				if improved {
					e.Model.PBSplitFractions = append([]float64(nil), fractions...)
				} else if rec.LaptimeMs == int(lapTime) && len(e.Model.PBSplitFractions) == 0 {
					e.Model.PBSplitFractions = append([]float64(nil), fractions...)
				}
			}
		}
	}

	if e.Model.LastFrameTimeMs != nil {
		e.Model.CurrentLapStartMs = e.Model.LastFrameTimeMs
		e.Model.PendingLapStart = false
	} else {
		e.Model.PendingLapStart = true
	}

	e.Model.CurrentSplitTimes = make(map[uint8]uint32)
	e.Model.LatestEstimatedTotalMs = nil
	if lapTime == 0 && est > 0 {
		v := uint32(est)
		e.Model.LatestEstimatedTotalMs = &v
	}
}

// OnSplit handles a decoded SplitEvent.
func (e *Engine) OnSplit(ev insim.SplitEvent) {
	e.updateTrackContext(ev.Track, ev.Car)
	e.adoptDriverIfNeeded(ev.PLID)
	if e.Model.TrackedPLID == nil || *e.Model.TrackedPLID != ev.PLID {
		return
	}
	e.Model.CurrentSplitTimes[ev.SplitIndex] = uint32(ev.SplitTimeMs)
	if ev.EstimateTimeMs > 0 {
		v := uint32(ev.EstimateTimeMs)
		e.Model.LatestEstimatedTotalMs = &v
	}
}

// OnFrame handles a decoded OutSim frame: advances the running lap clock,
// computes the reference lap and delta, and publishes a Status.
func (e *Engine) OnFrame(frame outsim.Frame) {
	t := frame.TimeMs
	e.Model.LastFrameTimeMs = &t

	if e.Model.PendingLapStart {
		e.Model.CurrentLapStartMs = &t
		e.Model.PendingLapStart = false
	}

	var currentLapMs uint32
	if e.Model.CurrentLapStartMs != nil {
		if t >= *e.Model.CurrentLapStartMs {
			currentLapMs = t - *e.Model.CurrentLapStartMs
		}
	}

	status := Status{CurrentLapMs: currentLapMs}
	if e.Model.CurrentTrack != nil {
		status.Track = *e.Model.CurrentTrack
	}
	if e.Model.CurrentCar != nil {
		status.Car = *e.Model.CurrentCar
	}
	status.SessionBestMs = e.Model.BestLapMs

	if e.Model.PersistentBest != nil {
		pbMs := e.Model.PersistentBest.LaptimeMs
		status.PersonalBestMs = &pbMs

		fractions := e.bestAvailableFractions()
		if refMs, ok := referenceLapMs(currentLapMs, pbMs, fractions, e.Model.CurrentSplitTimes, e.Model.LatestEstimatedTotalMs); ok {
			delta := int(currentLapMs) - int(refMs)
			status.DeltaMs = &delta
			progress := float64(refMs) / float64(pbMs)
			status.LapProgress = &progress
		}
	} else if e.Model.LatestEstimatedTotalMs != nil && *e.Model.LatestEstimatedTotalMs > 0 {
		progress := clamp(float64(currentLapMs)/float64(*e.Model.LatestEstimatedTotalMs), 0, 1)
		status.LapProgress = &progress
	}

	if e.Model.CurrentLapStartMs == nil {
		// a lap timer only advances while a start time is known; without
		// one CurrentLapMs is reported as 0, since Status has no separate
		// "absent" value for it.
		status.CurrentLapMs = 0
	}

	if e.OnStatus != nil {
		e.OnStatus(status)
	}
}

// OnButtonClick handles a decoded ButtonClickEvent, toggling radar or
// beeps for the currently active mode.
func (e *Engine) OnButtonClick(ev insim.ButtonClickEvent, mode *ModeConfig) {
	if !ev.Clicked() || mode == nil {
		return
	}
	switch ev.ClickID {
	case e.radarButtonID:
		mode.RadarEnabled = !mode.RadarEnabled
	case e.beepsButtonID:
		mode.BeepsEnabled = !mode.BeepsEnabled
	}
}

// bestAvailableFractions picks, per the reference-time algorithm, the best
// fraction set available: persisted PB fractions, else this session's last
// lap, else live splits-over-estimate.
func (e *Engine) bestAvailableFractions() []float64 {
	if len(e.Model.PBSplitFractions) > 0 {
		return e.Model.PBSplitFractions
	}
	if len(e.Model.LastLapSplitFractions) > 0 {
		return e.Model.LastLapSplitFractions
	}
	return liveFractions(e.Model.CurrentSplitTimes, e.Model.LatestEstimatedTotalMs)
}

// deriveLastLapFractions converts the just-completed lap's cumulative
// splits into strictly monotone fractions of lapTime.
func (e *Engine) deriveLastLapFractions(lapTimeMs uint32) []float64 {
	if lapTimeMs == 0 {
		return nil
	}
	keys := sortedSplitKeys(e.Model.CurrentSplitTimes)
	var raw []float64
	for _, k := range keys {
		v := e.Model.CurrentSplitTimes[k]
		raw = append(raw, float64(v)/float64(lapTimeMs))
	}
	return normaliseFractions(raw)
}

// adoptDriverIfNeeded seeds tracked PLID on the first LAP/SPX event seen
// for the current context, and ignores anyone else.
func (e *Engine) adoptDriverIfNeeded(plid uint8) {
	if e.Model.TrackedPLID == nil {
		p := plid
		e.Model.TrackedPLID = &p
	}
}

// updateTrackContext applies the context-change policy: a trimmed,
// non-empty track or car different from the current one clears tracked
// driver and timing state, arms a pending lap start so the next frame
// restarts the lap clock, and reloads the PB for the new pair. Returns
// whether a change actually occurred.
func (e *Engine) updateTrackContext(track, car string) bool {
	track = strings.TrimSpace(track)
	car = strings.TrimSpace(car)

	trackChanged := track != "" && (e.Model.CurrentTrack == nil || *e.Model.CurrentTrack != track)
	carChanged := car != "" && (e.Model.CurrentCar == nil || *e.Model.CurrentCar != car)
	if !trackChanged && !carChanged {
		return false
	}

	if track != "" {
		e.Model.CurrentTrack = &track
	}
	if car != "" {
		e.Model.CurrentCar = &car
	}
	e.Model.TrackedPLID = nil
	e.Model.ClearSessionTiming()
	e.Model.PendingLapStart = true

	if e.PBStore != nil && e.Model.CurrentTrack != nil && e.Model.CurrentCar != nil {
		rec, err := e.PBStore.Load(*e.Model.CurrentTrack, *e.Model.CurrentCar)
		if err != nil {
			e.Logger.Error().Msgf("session: failed to load PB for (%s,%s): %v", *e.Model.CurrentTrack, *e.Model.CurrentCar, err)
		} else if rec != nil {
			e.Model.PersistentBest = rec
			e.Logger.Info().Msgf("session: loaded PB for (%s,%s): %dms", *e.Model.CurrentTrack, *e.Model.CurrentCar, rec.LaptimeMs)
		} else {
			e.Model.PersistentBest = nil
			e.Logger.Info().Msgf("session: no PB found for (%s,%s)", *e.Model.CurrentTrack, *e.Model.CurrentCar)
		}
	}
	return true
}

// updateSessionBest keeps the running session-best lap, which can only
// decrease.
func (e *Engine) updateSessionBest(lapMs uint32) {
	if e.Model.BestLapMs == nil || lapMs < *e.Model.BestLapMs {
		v := lapMs
		e.Model.BestLapMs = &v
	}
}
