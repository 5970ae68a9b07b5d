package broadcast

import (
	"math"
	"testing"

	"github.com/paddocklink/telemetry-bridge/internal/outsim"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// TestBuildCarSnapshotScalesFixedPointCoordinates reproduces the
// documented wire scaling: raw integer x/y/z/speed divided down to
// metres and metres/second.
func TestBuildCarSnapshotScalesFixedPointCoordinates(t *testing.T) {
	car := NewCarSnapshot(1, 10, 2, 1, 0, 0, 65536, -131072, 32768, 450, 0, 0, 0)

	if !almostEqual(car.X, 1.0) {
		t.Errorf("X = %v, want 1.0", car.X)
	}
	if !almostEqual(car.Y, -2.0) {
		t.Errorf("Y = %v, want -2.0", car.Y)
	}
	if !almostEqual(car.Z, 0.5) {
		t.Errorf("Z = %v, want 0.5", car.Z)
	}
	if !almostEqual(car.Speed, 4.5) {
		t.Errorf("Speed = %v, want 4.5", car.Speed)
	}
}

func TestBuildOutSimSnapshotCarriesSpeedAndVectors(t *testing.T) {
	f := outsim.Frame{
		TimeMs:   1234,
		Velocity: [3]float32{3, 4, 0},
	}
	out := buildOutSimSnapshot(f)
	if !almostEqual(out.Speed, 5.0) {
		t.Errorf("Speed = %v, want 5.0", out.Speed)
	}
	if out.TimeMs != 1234 {
		t.Errorf("TimeMs = %d, want 1234", out.TimeMs)
	}
}

func TestFormatDeltaRendersSignedMilliseconds(t *testing.T) {
	cases := map[int]string{
		1234:  "+1.234",
		-500:  "-0.500",
		0:     "+0.000",
	}
	for ms, want := range cases {
		if got := formatDelta(ms); got != want {
			t.Errorf("formatDelta(%d) = %q, want %q", ms, got, want)
		}
	}
}
