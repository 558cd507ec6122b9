// Package domain implements the neighbourhood finder core: candidate
// generation on a hex grid, land validation, amenity normalization,
// preference weighting, hard filtering, and ranking.
//
// # Coordinates
//
// All points are WGS84 decimal degrees. Distances are great-circle
// distances on a sphere of radius 6371 km (see [HaversineDistance]).
// Grid spacing is converted to degrees with a flat approximation:
//
//	1° latitude  ≈ 111 km
//	1° longitude ≈ 111·cos(latitude) km
//
// The approximation is accurate enough for the tens-of-kilometres radii the
// finder searches. It is not suitable near the poles, which are rejected by
// [GenerateCandidateAreas] as invalid geometry.
//
// # Candidate IDs
//
// Candidate coordinates are rounded to 4 decimal places (~11 m) and the ID is
// derived from the rounded values: "area_<lat>_<lng>", using the shortest
// decimal form of each number (53.48 not 53.4800). IDs are therefore stable
// across runs and double as deduplication keys when supplementary grids are
// merged into a primary one.
//
// # Commute Model
//
// Commute times are straight-line distance divided by a fixed speed per mode:
//
//	drive 30 km/h | train 50 km/h + 10 min access | bus 15 km/h | cycle 15 km/h | walk 5 km/h
//
// This is a deliberately coarse estimate. Real routing is out of scope.
//
// # Scoring
//
// Profiles are normalized per amenity category against the maximum count in
// the candidate set (floor 1), so every normalized value lies in [0,1]. Each
// scoring dimension multiplies a weight derived from a 1–5 Likert answer
// ((v-1)/4) by a raw score in [0,1]; the final score is the weighted mean
// scaled to 0–100 and rounded to one decimal.
//
// Hard filters run before scoring and never depend on the weights. A profile
// that fails any filter is reported with every reason that applied.
package domain
