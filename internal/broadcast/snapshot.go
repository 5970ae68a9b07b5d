package broadcast

import (
	"encoding/json"
	"fmt"

	"github.com/paddocklink/telemetry-bridge/internal/outsim"
	"github.com/paddocklink/telemetry-bridge/internal/session"
)

// marshalSnapshot encodes a Snapshot as compact JSON for a single
// WebSocket text frame.
func marshalSnapshot(s Snapshot) ([]byte, error) {
	return json.Marshal(s)
}

// coordinateScale converts the simulator's fixed-point car coordinates to
// metres; speedScale converts its fixed-point speed to metres/second.
const (
	coordinateScale = 1.0 / 65536.0
	speedScale      = 1.0 / 100.0
)

// OutSimSnapshot mirrors the raw OutSim frame, scaled into plain floats.
type OutSimSnapshot struct {
	TimeMs       uint32     `json:"time_ms"`
	AngularVel   [3]float64 `json:"ang_vel"`
	Heading      [3]float64 `json:"heading"`
	Acceleration [3]float64 `json:"acceleration"`
	Velocity     [3]float64 `json:"velocity"`
	Position     [3]float64 `json:"position"`
	Speed        float64    `json:"speed"`
}

// CarSnapshot is one MCI entry with integer coordinates scaled to metres.
type CarSnapshot struct {
	PLID            uint8   `json:"plid"`
	Node            uint16  `json:"node"`
	Lap             uint16  `json:"lap"`
	Position        uint8   `json:"position"`
	Info            uint8   `json:"info"`
	Spare           uint8   `json:"spare"`
	X               float64 `json:"x"`
	Y               float64 `json:"y"`
	Z               float64 `json:"z"`
	Speed           float64 `json:"speed"`
	Direction       uint16  `json:"direction"`
	Heading         uint16  `json:"heading"`
	AngularVelocity int16   `json:"angular_velocity"`
}

// Orientation holds the player's derived attitude. Roll is always 0: only
// a heading vector is available from OutSim.
type Orientation struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
}

// LapStatus is the player's current-lap timing context, nested both
// inline on PlayerSnapshot (legacy top-level fields) and under its own
// "lap" key, matching the wire format's redundant shape.
type LapStatus struct {
	Number       *int     `json:"number,omitempty"`
	RacePosition *int     `json:"race_position,omitempty"`
	Progress     *float64 `json:"progress,omitempty"`
	CurrentMs    *uint32  `json:"current_ms,omitempty"`
	ReferenceMs  *uint32  `json:"reference_ms,omitempty"`
	DeltaMs      *int     `json:"delta_ms,omitempty"`
}

// RadarTargetSnapshot is one contact relative to the player.
type RadarTargetSnapshot struct {
	Distance float64            `json:"distance"`
	Bearing  float64            `json:"bearing"`
	Offset   RadarOffsetSnapshot `json:"offset"`
}

type RadarOffsetSnapshot struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PlayerSnapshot aggregates the focused car's kinematics with its session
// timing context.
type PlayerSnapshot struct {
	X             float64             `json:"x"`
	Y             float64             `json:"y"`
	Z             float64             `json:"z"`
	Position      [3]float64          `json:"position"`
	HeadingVector [3]float64          `json:"heading_vector"`
	Velocity      [3]float64          `json:"velocity"`
	Speed         float64             `json:"speed"`
	Heading       float64             `json:"heading"`
	Orientation   Orientation         `json:"orientation"`
	TimeMs        uint32              `json:"time_ms"`
	PLID          *uint8              `json:"plid,omitempty"`
	Lap           *LapStatus          `json:"lap,omitempty"`
	LapProgress   *float64            `json:"lap_progress,omitempty"`
	LapTimeMs     *uint32             `json:"lap_time_ms,omitempty"`
	DeltaMs       *int                `json:"delta_ms,omitempty"`
	Delta         *string             `json:"delta,omitempty"`
	RadarTargets  []RadarTargetSnapshot `json:"radar_targets,omitempty"`
}

// Snapshot is the full JSON payload broadcast to every connected client.
type Snapshot struct {
	Timestamp   int64           `json:"timestamp"`
	OutSim      *OutSimSnapshot `json:"outsim"`
	Cars        []CarSnapshot   `json:"cars"`
	FocusedCar  *CarSnapshot    `json:"focused_car"`
	Track       string          `json:"track"`
	Car         string          `json:"car"`
	Player      *PlayerSnapshot `json:"player,omitempty"`
	RadarTargets []RadarTargetSnapshot `json:"radar_targets,omitempty"`
}

// buildOutSimSnapshot scales a raw OutSim frame into the wire shape.
func buildOutSimSnapshot(f outsim.Frame) OutSimSnapshot {
	return OutSimSnapshot{
		TimeMs:       f.TimeMs,
		AngularVel:   vecToFloat(f.AngularVel),
		Heading:      vecToFloat(f.Heading),
		Acceleration: vecToFloat(f.Acceleration),
		Velocity:     vecToFloat(f.Velocity),
		Position:     vecToFloat(f.Position),
		Speed:        f.Speed(),
	}
}

func vecToFloat(v [3]float32) [3]float64 {
	return [3]float64{float64(v[0]), float64(v[1]), float64(v[2])}
}

// ScaleCoordinate converts a raw fixed-point coordinate to metres, the same
// way every car and player position on this snapshot is scaled. Callers
// outside this package that need to compare a raw OutSim position against
// an already-scaled CarSnapshot (e.g. radar target computation) should use
// this instead of duplicating the scale factor.
func ScaleCoordinate(raw float64) float64 {
	return raw * coordinateScale
}

// NewCarSnapshot scales a decoded MCI car entry (raw fixed-point
// coordinates and speed) into metres and metres/second.
func NewCarSnapshot(plid uint8, node, lap uint16, position, info, spare uint8, x, y, z int32, speed, direction, heading uint16, angularVel int16) CarSnapshot {
	return CarSnapshot{
		PLID:            plid,
		Node:            node,
		Lap:             lap,
		Position:        position,
		Info:            info,
		Spare:           spare,
		X:               float64(x) * coordinateScale,
		Y:               float64(y) * coordinateScale,
		Z:               float64(z) * coordinateScale,
		Speed:           float64(speed) * speedScale,
		Direction:       direction,
		Heading:         heading,
		AngularVelocity: angularVel,
	}
}

// buildPlayerSnapshot composes a PlayerSnapshot from the latest OutSim
// frame and the session engine's status, plus optional radar targets.
func buildPlayerSnapshot(f outsim.Frame, plid *uint8, status *session.Status, radar []session.RadarTarget) PlayerSnapshot {
	yaw, pitch, roll := f.Orientation()
	p := PlayerSnapshot{
		X:             float64(f.Position[0]) * coordinateScale,
		Y:             float64(f.Position[1]) * coordinateScale,
		Z:             float64(f.Position[2]) * coordinateScale,
		Position:      vecToFloat(f.Position),
		HeadingVector: vecToFloat(f.Heading),
		Velocity:      vecToFloat(f.Velocity),
		Speed:         f.Speed(),
		Heading:       yaw,
		Orientation:   Orientation{Yaw: yaw, Pitch: pitch, Roll: roll},
		TimeMs:        f.TimeMs,
		PLID:          plid,
	}

	if status != nil {
		lap := LapStatus{
			Progress:    status.LapProgress,
			CurrentMs:   &status.CurrentLapMs,
			DeltaMs:     status.DeltaMs,
		}
		p.Lap = &lap
		p.LapProgress = status.LapProgress
		p.DeltaMs = status.DeltaMs
		if status.DeltaMs != nil {
			deltaStr := formatDelta(*status.DeltaMs)
			p.Delta = &deltaStr
		}
	}

	if len(radar) > 0 {
		p.RadarTargets = radarTargetsToSnapshot(radar)
	}
	return p
}

// formatDelta renders a signed millisecond delta as e.g. "+1.234".
func formatDelta(deltaMs int) string {
	sign := "+"
	if deltaMs < 0 {
		sign = "-"
		deltaMs = -deltaMs
	}
	return fmt.Sprintf("%s%d.%03d", sign, deltaMs/1000, deltaMs%1000)
}

func radarTargetsToSnapshot(targets []session.RadarTarget) []RadarTargetSnapshot {
	out := make([]RadarTargetSnapshot, len(targets))
	for i, t := range targets {
		out[i] = RadarTargetSnapshot{
			Distance: t.Distance,
			Bearing:  t.Bearing,
			Offset:   RadarOffsetSnapshot{X: t.OffsetX, Y: t.OffsetY},
		}
	}
	return out
}

