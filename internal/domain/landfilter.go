package domain

import (
	"context"
	"fmt"
	"log/slog"
	"math"
)

// DefaultLandBatchSize is the number of points sent to a PointResolver per call.
const DefaultLandBatchSize = 100

// LandFilterResult is the outcome of a land validity pass.
type LandFilterResult struct {
	Valid         []CandidateArea
	Discarded     int
	Unverified    int
	FailedBatches int
}

// FilterValidCandidates keeps the candidates the resolver reports as
// inhabited. Candidates are sent in batches of batchSize. A batch whose lookup
// fails, or whose answer does not have one entry per point, is kept in full
// with every candidate marked Unverified. The only error returned is a
// context cancellation.
func FilterValidCandidates(ctx context.Context, candidates []CandidateArea, resolver PointResolver, batchSize int, logger *slog.Logger) (LandFilterResult, error) {
	if batchSize <= 0 {
		batchSize = DefaultLandBatchSize
	}
	res := LandFilterResult{Valid: make([]CandidateArea, 0, len(candidates))}

	for start := 0; start < len(candidates); start += batchSize {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		batch := candidates[start:min(start+batchSize, len(candidates))]

		points := make([]GeoPoint, len(batch))
		for i, c := range batch {
			points[i] = c.Coordinates
		}

		valid, err := resolver.ResolveBatch(ctx, points)
		if err == nil && len(valid) != len(batch) {
			err = fmt.Errorf("resolver returned %d results for %d points", len(valid), len(batch))
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			logger.Warn("land check failed, keeping batch unverified",
				"error", err,
				"batch_start", start,
				"batch_size", len(batch),
			)
			res.FailedBatches++
			res.Unverified += len(batch)
			for _, c := range batch {
				c.Unverified = true
				res.Valid = append(res.Valid, c)
			}
			continue
		}

		for i, c := range batch {
			if valid[i] {
				res.Valid = append(res.Valid, c)
			} else {
				res.Discarded++
			}
		}
	}
	return res, nil
}

// DensityPolicy controls grid spacing and the densification retry.
type DensityPolicy struct {
	StandardSpacingKm float64 `json:"standardSpacingKm"`
	MinimumAcceptable int     `json:"minimumAcceptable"`
	MinSpacingKm      float64 `json:"minSpacingKm"`
	MaxSpacingKm      float64 `json:"maxSpacingKm"`
	BatchSize         int     `json:"batchSize"`
}

// DefaultDensityPolicy returns a 3 km grid that densifies to between 1.8 and
// 2.5 km when fewer than 100 candidates survive the land check.
func DefaultDensityPolicy() DensityPolicy {
	return DensityPolicy{
		StandardSpacingKm: 3,
		MinimumAcceptable: 100,
		MinSpacingKm:      1.8,
		MaxSpacingKm:      2.5,
		BatchSize:         DefaultLandBatchSize,
	}
}

// DensifiedSpacing scales the standard spacing by the square root of the
// fraction of points that were on land, clamped to [MinSpacingKm, MaxSpacingKm].
func (p DensityPolicy) DensifiedSpacing(landRatio float64) float64 {
	landRatio = clamp01(landRatio)
	return math.Min(p.MaxSpacingKm, math.Max(p.MinSpacingKm, p.StandardSpacingKm*math.Sqrt(landRatio)))
}

// CandidateSet is the land-checked grid used for one search.
type CandidateSet struct {
	Candidates []CandidateArea `json:"candidates"`
	SpacingKm  float64         `json:"spacingKm"`
	RawCount   int             `json:"rawCount"`
	Discarded  int             `json:"discarded"`
	Unverified int             `json:"unverified"`
	Densified  bool            `json:"densified"`
}

// GenerateValidCandidates builds the standard grid around centre, drops points
// that are not on inhabited land, and regenerates at a denser spacing when too
// few remain.
func GenerateValidCandidates(ctx context.Context, centre GeoPoint, radiusKm float64, resolver PointResolver, policy DensityPolicy, logger *slog.Logger) (CandidateSet, error) {
	return generateValid(ctx, centre, radiusKm, nil, resolver, policy, logger)
}

// GenerateValidRing is GenerateValidCandidates restricted to points further
// than innerKm from centre, out to outerKm.
func GenerateValidRing(ctx context.Context, centre GeoPoint, innerKm, outerKm float64, resolver PointResolver, policy DensityPolicy, logger *slog.Logger) (CandidateSet, error) {
	if !isFinite(innerKm) || innerKm < 0 || innerKm >= outerKm {
		return CandidateSet{}, fmt.Errorf("%w: inner radius %v must be in [0, %v)", ErrInvalidGeometry, innerKm, outerKm)
	}
	ring := func(areas []CandidateArea) []CandidateArea {
		return RingFilter(centre, innerKm, areas)
	}
	return generateValid(ctx, centre, outerKm, ring, resolver, policy, logger)
}

func generateValid(ctx context.Context, centre GeoPoint, radiusKm float64, keep func([]CandidateArea) []CandidateArea, resolver PointResolver, policy DensityPolicy, logger *slog.Logger) (CandidateSet, error) {
	set, err := landCheckedGrid(ctx, centre, radiusKm, policy.StandardSpacingKm, keep, resolver, policy.BatchSize, logger)
	if err != nil {
		return CandidateSet{}, err
	}
	if len(set.Candidates) >= policy.MinimumAcceptable {
		return set, nil
	}

	landRatio := 1.0
	if set.RawCount > 0 {
		landRatio = float64(len(set.Candidates)) / float64(set.RawCount)
	}
	spacing := policy.DensifiedSpacing(landRatio)
	logger.Info("too few candidates on land, densifying grid",
		"valid", len(set.Candidates),
		"raw", set.RawCount,
		"land_ratio", landRatio,
		"spacing_km", spacing,
	)

	dense, err := landCheckedGrid(ctx, centre, radiusKm, spacing, keep, resolver, policy.BatchSize, logger)
	if err != nil {
		return CandidateSet{}, err
	}
	dense.Densified = true
	return dense, nil
}

func landCheckedGrid(ctx context.Context, centre GeoPoint, radiusKm, spacingKm float64, keep func([]CandidateArea) []CandidateArea, resolver PointResolver, batchSize int, logger *slog.Logger) (CandidateSet, error) {
	raw, err := GenerateCandidateAreas(centre, radiusKm, spacingKm)
	if err != nil {
		return CandidateSet{}, err
	}
	if keep != nil {
		raw = keep(raw)
	}
	res, err := FilterValidCandidates(ctx, raw, resolver, batchSize, logger)
	if err != nil {
		return CandidateSet{}, fmt.Errorf("land check: %w", err)
	}
	return CandidateSet{
		Candidates: res.Valid,
		SpacingKm:  spacingKm,
		RawCount:   len(raw),
		Discarded:  res.Discarded,
		Unverified: res.Unverified,
	}, nil
}
