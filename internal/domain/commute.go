package domain

import (
	"fmt"
	"math"
)

// CommuteMode is a transport mode understood by the commute model.
type CommuteMode string

const (
	ModeDrive CommuteMode = "drive"
	ModeTrain CommuteMode = "train"
	ModeBus   CommuteMode = "bus"
	ModeCycle CommuteMode = "cycle"
	ModeWalk  CommuteMode = "walk"
)

// trainAccessMinutes covers getting to and from stations.
const trainAccessMinutes = 10.0

var modeSpeedsKmh = map[CommuteMode]float64{
	ModeDrive: 30,
	ModeTrain: 50,
	ModeBus:   15,
	ModeCycle: 15,
	ModeWalk:  5,
}

// Valid reports whether m is a known mode.
func (m CommuteMode) Valid() bool {
	_, ok := modeSpeedsKmh[m]
	return ok
}

// EstimateCommuteTime returns the straight-line commute time in minutes from
// one point to another. Unknown modes fall back to driving speed.
func EstimateCommuteTime(from, to GeoPoint, mode CommuteMode) float64 {
	speed, ok := modeSpeedsKmh[mode]
	if !ok {
		speed = modeSpeedsKmh[ModeDrive]
	}
	minutes := HaversineDistance(from, to) / speed * 60
	if mode == ModeTrain {
		minutes += trainAccessMinutes
	}
	return minutes
}

// BestCommuteTime returns the fastest estimate across modes, driving when
// modes is empty.
func BestCommuteTime(from, to GeoPoint, modes []CommuteMode) float64 {
	if len(modes) == 0 {
		return EstimateCommuteTime(from, to, ModeDrive)
	}
	best := math.Inf(1)
	for _, m := range modes {
		best = math.Min(best, EstimateCommuteTime(from, to, m))
	}
	return best
}

// CommuteBreakdown returns one estimate per requested mode.
func CommuteBreakdown(from, to GeoPoint, modes []CommuteMode) map[CommuteMode]float64 {
	if len(modes) == 0 {
		modes = []CommuteMode{ModeDrive}
	}
	out := make(map[CommuteMode]float64, len(modes))
	for _, m := range modes {
		out[m] = EstimateCommuteTime(from, to, m)
	}
	return out
}

// FormatMinutes renders a duration for people: "45 mins", "1h", "1h 5m".
func FormatMinutes(minutes float64) string {
	total := int(math.Round(minutes))
	if total < 60 {
		return fmt.Sprintf("%d mins", total)
	}
	h, m := total/60, total%60
	if m == 0 {
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}
