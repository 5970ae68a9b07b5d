package session

import "sort"

// referenceLapMs computes the hypothetical time a PB-equivalent driver
// would be at currentMs into the running lap, warping the PB lap onto the
// current lap's progress via split fractions. Returns (0, false) when no
// PB is available to compare against.
func referenceLapMs(currentMs uint32, pbLapMs int, fractions []float64, splits map[uint8]uint32, estimatedTotalMs *uint32) (uint32, bool) {
	if pbLapMs <= 0 {
		return 0, false
	}

	frac := normaliseFractions(fractions)
	if len(frac) == 0 {
		frac = liveFractions(splits, estimatedTotalMs)
	}

	if len(frac) == 0 && !anySplitAtOrBefore(splits, currentMs) {
		if estimatedTotalMs != nil && *estimatedTotalMs > 0 {
			progress := clamp(float64(currentMs)/float64(*estimatedTotalMs), 0, 1)
			return clampToLap(round(float64(pbLapMs)*progress), pbLapMs), true
		}
		return 0, false
	}

	boundaries := append(append([]float64(nil), frac...), 1.0)

	segmentIndex, segmentStartTime := splitSegment(splits, currentMs)
	var startFraction float64
	if segmentIndex > 0 && segmentIndex-1 < len(boundaries) {
		startFraction = boundaries[segmentIndex-1]
	}
	endFraction := 1.0
	if segmentIndex < len(boundaries) {
		endFraction = boundaries[segmentIndex]
	}

	pbStart := round(float64(pbLapMs) * startFraction)
	pbEnd := round(float64(pbLapMs) * endFraction)
	pbSegment := pbEnd - pbStart
	if pbSegment < 1 {
		pbSegment = 1
	}

	segmentElapsed := int(currentMs) - int(segmentStartTime)
	if segmentElapsed < 0 {
		segmentElapsed = 0
	}
	progress := float64(segmentElapsed) / float64(pbSegment)
	if progress > 1 {
		progress = 1
	}

	result := pbStart + round(progress*float64(pbSegment))
	return clampToLap(result, pbLapMs), true
}

// normaliseFractions filters to strictly monotone values strictly between
// 0 and 1, sorted ascending.
func normaliseFractions(in []float64) []float64 {
	sorted := append([]float64(nil), in...)
	sort.Float64s(sorted)
	var out []float64
	for _, f := range sorted {
		if f <= 0 || f >= 1 {
			continue
		}
		if len(out) > 0 && f <= out[len(out)-1] {
			continue
		}
		out = append(out, f)
	}
	return out
}

// liveFractions derives fractions from cumulative splits divided by the
// latest estimated total, keeping only splits strictly less than the
// estimate.
func liveFractions(splits map[uint8]uint32, estimatedTotalMs *uint32) []float64 {
	if estimatedTotalMs == nil || *estimatedTotalMs == 0 {
		return nil
	}
	est := float64(*estimatedTotalMs)
	keys := sortedSplitKeys(splits)
	var out []float64
	for _, k := range keys {
		v := splits[k]
		if float64(v) >= est {
			continue
		}
		out = append(out, float64(v)/est)
	}
	return normaliseFractions(out)
}

func sortedSplitKeys(splits map[uint8]uint32) []uint8 {
	keys := make([]uint8, 0, len(splits))
	for k := range splits {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func anySplitAtOrBefore(splits map[uint8]uint32, currentMs uint32) bool {
	for _, v := range splits {
		if v <= currentMs {
			return true
		}
	}
	return false
}

// splitSegment finds, among cumulative splits at or before currentMs, the
// one with the greatest value, and returns its 1-based segment index
// (0 if no split qualifies) plus that split's time (0 if none).
func splitSegment(splits map[uint8]uint32, currentMs uint32) (index int, startTime uint32) {
	keys := sortedSplitKeys(splits)
	count := 0
	for _, k := range keys {
		v := splits[k]
		if v <= currentMs {
			count++
			startTime = v
		}
	}
	return count, startTime
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round(v float64) int {
	if v < 0 {
		return int(v - 0.5)
	}
	return int(v + 0.5)
}

func clampToLap(v, pbLapMs int) uint32 {
	if v < 0 {
		v = 0
	}
	if v > pbLapMs {
		v = pbLapMs
	}
	return uint32(v)
}
