// Package collaborators declares the narrow interfaces the orchestrator
// drives but does not implement: ASCII radar rendering and beep audio
// synthesis are genuinely external concerns (a terminal UI, an audio
// device) with no Go equivalent worth building against in this module.
// Only a silent fallback is provided, selected whenever no real backend
// is registered.
package collaborators

import (
	"github.com/rs/zerolog"

	"github.com/paddocklink/telemetry-bridge/internal/outsim"
)

// RadarRenderer draws one frame of the ASCII radar overlay. Implementations
// are pure output: no state is read back by the orchestrator.
type RadarRenderer interface {
	Draw(frame outsim.Frame)
}

// BeepDriver plays the delta-to-PB audio cue.
type BeepDriver interface {
	SetVolume(v float64)
	SetEnabled(enabled bool)
	PlayBeep(freqHz float64, durationMs int)
}

// SilentRadarRenderer discards every frame. It is the fallback when no
// terminal UI backend is available.
type SilentRadarRenderer struct{}

func (SilentRadarRenderer) Draw(outsim.Frame) {}

// SilentBeepDriver logs instead of making sound. It is the fallback when
// no audio backend is available.
type SilentBeepDriver struct {
	Logger zerolog.Logger
}

func (d SilentBeepDriver) SetVolume(v float64) {
	d.Logger.Debug().Msgf("beep: set_volume(%.2f) [silent driver]", v)
}

func (d SilentBeepDriver) SetEnabled(enabled bool) {
	d.Logger.Debug().Msgf("beep: set_enabled(%v) [silent driver]", enabled)
}

func (d SilentBeepDriver) PlayBeep(freqHz float64, durationMs int) {
	d.Logger.Debug().Msgf("beep: play_beep(%.0fHz, %dms) [silent driver]", freqHz, durationMs)
}

// SelectBeepDriver returns the first non-nil candidate, falling back to a
// SilentBeepDriver. Candidates are not probed: the selected one is wrapped
// so that a panic from any later call on it is logged and swallowed rather
// than crashing the caller.
func SelectBeepDriver(logger zerolog.Logger, candidates ...BeepDriver) BeepDriver {
	for _, c := range candidates {
		if c != nil {
			return safeBeepDriver{inner: c, logger: logger}
		}
	}
	return SilentBeepDriver{Logger: logger}
}

// safeBeepDriver swallows and logs any panic from the wrapped driver, per
// the rule that driver I/O errors never propagate to the session engine.
type safeBeepDriver struct {
	inner  BeepDriver
	logger zerolog.Logger
}

func (d safeBeepDriver) SetVolume(v float64) {
	defer d.recover("set_volume")
	d.inner.SetVolume(v)
}

func (d safeBeepDriver) SetEnabled(enabled bool) {
	defer d.recover("set_enabled")
	d.inner.SetEnabled(enabled)
}

func (d safeBeepDriver) PlayBeep(freqHz float64, durationMs int) {
	defer d.recover("play_beep")
	d.inner.PlayBeep(freqHz, durationMs)
}

func (d safeBeepDriver) recover(call string) {
	if r := recover(); r != nil {
		d.logger.Warn().Msgf("beep: %s panicked, dropping: %v", call, r)
	}
}

// SelectRadarRenderer mirrors SelectBeepDriver's first-available
// selection strategy.
func SelectRadarRenderer(logger zerolog.Logger, candidates ...RadarRenderer) RadarRenderer {
	for _, c := range candidates {
		if c != nil {
			return safeRadarRenderer{inner: c, logger: logger}
		}
	}
	return SilentRadarRenderer{}
}

type safeRadarRenderer struct {
	inner  RadarRenderer
	logger zerolog.Logger
}

func (r safeRadarRenderer) Draw(frame outsim.Frame) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn().Msgf("radar: draw panicked, dropping frame: %v", rec)
		}
	}()
	r.inner.Draw(frame)
}

