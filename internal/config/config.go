// Package config loads and hot-reloads the bridge's JSON configuration
// file. Parsing itself is plain encoding/json: the file format is a
// fixed object of a few small sections and pulling in a schema library for it would be
// solving a problem that doesn't exist here.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// ConfigError reports a value that parsed as valid JSON but violates one
// of the config's invariants (range, enum membership, non-empty list).
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Msg)
}

// InSimConfig configures the TCP connection to the simulator's InSim
// interface.
type InSimConfig struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	AdminPassword string `json:"admin_password"`
	IntervalMs    uint16 `json:"interval_ms"`
}

// OutSimConfig configures the UDP telemetry listener.
type OutSimConfig struct {
	Port                int      `json:"port"`
	AllowedSources      []string `json:"allowed_sources,omitempty"`
	MaxPacketsPerSecond float64  `json:"max_packets_per_second,omitempty"`
	UpdateHz            float64  `json:"update_hz,omitempty"`
}

// BeepMode is one of the three recognized audio-cue profiles.
type BeepMode string

const (
	BeepModeStandard   BeepMode = "standard"
	BeepModeCalm       BeepMode = "calm"
	BeepModeAggressive BeepMode = "aggressive"
)

// BeepConfig configures the delta-to-PB audio cue driver.
type BeepConfig struct {
	Mode            BeepMode `json:"mode"`
	Volume          float64  `json:"volume"`
	BaseFrequencyHz float64  `json:"base_frequency_hz"`
	IntervalsMs     []int    `json:"intervals_ms"`
}

// TelemetryWSConfig configures the WebSocket broadcaster.
type TelemetryWSConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	UpdateHz float64 `json:"update_hz"`
}

// ModeToggle is the persisted radar/beeps toggle state for one driving
// mode (single-player or multiplayer).
type ModeToggle struct {
	RadarEnabled bool `json:"radar_enabled"`
	BeepsEnabled bool `json:"beeps_enabled"`
}

// Config is the full, immutable set of recognized options. A reload
// produces a brand-new Config; nothing mutates one in place.
type Config struct {
	InSim       InSimConfig       `json:"insim"`
	OutSim      OutSimConfig      `json:"outsim"`
	Beep        BeepConfig        `json:"beep"`
	TelemetryWS TelemetryWSConfig `json:"telemetry_ws"`
	SP          ModeToggle        `json:"sp"`
	MP          ModeToggle        `json:"mp"`
}

// Load reads and validates the config file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Beep.Mode {
	case BeepModeStandard, BeepModeCalm, BeepModeAggressive:
	default:
		return &ConfigError{Field: "beep.mode", Msg: fmt.Sprintf("unrecognized mode %q", c.Beep.Mode)}
	}
	if c.Beep.Volume < 0 || c.Beep.Volume > 1 {
		return &ConfigError{Field: "beep.volume", Msg: "must be within [0,1]"}
	}
	if c.Beep.BaseFrequencyHz <= 0 {
		return &ConfigError{Field: "beep.base_frequency_hz", Msg: "must be positive"}
	}
	if len(c.Beep.IntervalsMs) == 0 {
		return &ConfigError{Field: "beep.intervals_ms", Msg: "must have at least one entry"}
	}
	for _, ms := range c.Beep.IntervalsMs {
		if ms <= 0 {
			return &ConfigError{Field: "beep.intervals_ms", Msg: "all entries must be positive"}
		}
	}
	if c.TelemetryWS.Enabled && c.TelemetryWS.UpdateHz <= 0 {
		return &ConfigError{Field: "telemetry_ws.update_hz", Msg: "must be positive when telemetry_ws is enabled"}
	}
	if c.OutSim.MaxPacketsPerSecond < 0 {
		return &ConfigError{Field: "outsim.max_packets_per_second", Msg: "must not be negative"}
	}
	if c.OutSim.UpdateHz < 0 {
		return &ConfigError{Field: "outsim.update_hz", Msg: "must not be negative"}
	}
	return nil
}
