package session

import (
	"fmt"
	"math"
	"sort"
)

// DefaultRadarRangeMeters is the default max_range used when the caller
// does not override it.
const DefaultRadarRangeMeters = 140.0

// minRadarRangeMeters excludes contacts too close to render meaningfully
// (e.g. a car overlapping the player's own position sample).
const minRadarRangeMeters = 0.5

// RadarTarget is one other car's position relative to the player, ready to
// draw on an ASCII radar overlay.
type RadarTarget struct {
	Distance float64
	Bearing  float64 // radians, in [-pi, pi], relative to player heading
	OffsetX  float64
	OffsetY  float64
}

// ComputeRadarTargets returns otherXY projected relative to the player,
// sorted by ascending distance, excluding contacts within
// minRadarRangeMeters or beyond maxRange. The player position/heading must
// be well-formed (no NaNs) or this returns an error; a malformed entry in
// others is silently dropped instead, since one bad contact should not
// blank the whole radar.
func ComputeRadarTargets(playerX, playerY, headingRad float64, others [][2]float64, maxRange float64) ([]RadarTarget, error) {
	if math.IsNaN(playerX) || math.IsNaN(playerY) || math.IsNaN(headingRad) {
		return nil, fmt.Errorf("session: radar player position/heading must not be NaN")
	}
	if maxRange <= 0 {
		return nil, fmt.Errorf("session: radar max_range must be positive, got %v", maxRange)
	}

	var targets []RadarTarget
	for _, o := range others {
		ox, oy := o[0], o[1]
		if math.IsNaN(ox) || math.IsNaN(oy) {
			continue
		}
		dx, dy := ox-playerX, oy-playerY
		distance := math.Hypot(dx, dy)
		if distance <= minRadarRangeMeters || distance > maxRange {
			continue
		}
		bearing := normaliseAngle(math.Atan2(dx, dy) - headingRad)
		targets = append(targets, RadarTarget{
			Distance: distance,
			Bearing:  bearing,
			OffsetX:  dx,
			OffsetY:  dy,
		})
	}

	sort.Slice(targets, func(i, j int) bool { return targets[i].Distance < targets[j].Distance })
	return targets, nil
}

// normaliseAngle wraps radians into [-pi, pi].
func normaliseAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a < -math.Pi {
		a += 2 * math.Pi
	}
	return a
}
