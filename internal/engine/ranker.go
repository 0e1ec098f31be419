package engine

import "sort"

// RelevanceBucket is the integer ranking tier assigned to a candidate deal.
// Lower buckets rank first. The tiers are a deliberately coarse
// "sustainable-and-close wins" policy; boundary behavior (score exactly 8.0,
// distance exactly 2.0 km) is part of the observable contract, so the rules
// must not be smoothed into a continuous formula.
type RelevanceBucket int

const (
	BucketTopBoth     RelevanceBucket = 1 // sustainable and very close
	BucketTopNear     RelevanceBucket = 2 // sustainable and close
	BucketGoodClose   RelevanceBucket = 3 // decent score, very close
	BucketTopScore    RelevanceBucket = 4 // sustainable, any distance
	BucketGoodNear    RelevanceBucket = 5 // decent score, close
	BucketCloseOnly   RelevanceBucket = 6 // very close, any score
	BucketRemainder   RelevanceBucket = 7
)

// Ranker orders candidate sets by sustainability tier and distance tier.
type Ranker struct {
	cfg *EngineConfig
}

// NewRanker creates a ranker from the engine configuration.
func NewRanker(cfg *EngineConfig) *Ranker {
	return &Ranker{cfg: cfg}
}

// BucketFor assigns the relevance bucket using first-matching-rule priority.
func (r *Ranker) BucketFor(score, distanceKm float64) RelevanceBucket {
	high := score >= r.cfg.HighSustainability
	mid := score >= r.cfg.MidSustainability
	near := distanceKm <= r.cfg.NearDistanceKm
	within := distanceKm <= r.cfg.MidDistanceKm

	switch {
	case high && near:
		return BucketTopBoth
	case high && within:
		return BucketTopNear
	case mid && near:
		return BucketGoodClose
	case high:
		return BucketTopScore
	case mid && within:
		return BucketGoodNear
	case near:
		return BucketCloseOnly
	default:
		return BucketRemainder
	}
}

// Rank sorts candidates in place: ascending bucket, then ascending distance
// within a bucket, then deal ID for determinism. The sort is stable and
// total; re-running on the same input yields the same output.
func (r *Ranker) Rank(candidates []DealWithDistance) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]

		ba := r.BucketFor(a.SustainabilityScore, a.DistanceKm)
		bb := r.BucketFor(b.SustainabilityScore, b.DistanceKm)
		if ba != bb {
			return ba < bb
		}

		if a.DistanceKm != b.DistanceKm {
			return a.DistanceKm < b.DistanceKm
		}

		return a.ID < b.ID
	})
}
