package engine

import (
	"fmt"
	"time"
)

// Location represents a shop's geographic coordinates.
type Location struct {
	Latitude  float64
	Longitude float64
}

// Deal is the read model the engine operates on. It is owned and mutated by
// the external write path; the engine only reads it, bumps interaction
// counters, and persists recomputed sustainability scores.
type Deal struct {
	ID                  int64
	ShopID              int64
	Title               string
	CategoryIDs         []int64
	OriginalPrice       int64 // Minor currency units
	DiscountedPrice     int64 // Minor currency units
	DiscountPercentage  int
	StartDate           time.Time
	EndDate             time.Time
	IsFeatured          bool
	IsVerified          bool
	SustainabilityScore float64 // 0.0-10.0, one decimal place
	EcoCertifications   []string
	LocalProduction     bool
	CarbonFootprint     *float64 // nil when unknown
	ViewsCount          int64
	ClicksCount         int64
	CreatedAt           time.Time
}

// Shop is the read-only shop context used for sustainability scoring.
type Shop struct {
	ID                        int64
	Name                      string
	Location                  *Location // nil when the shop has no coordinates
	CarbonNeutral             bool
	SustainabilityInitiatives []string
}

// Category is the read-only category context used for scoring and filtering.
type Category struct {
	ID            int64
	Name          string
	IsEcoFriendly bool
	ParentID      *int64
}

// DealWithDistance combines a deal with its distance from a query point.
// Produced only by the geo radius query; never persisted.
type DealWithDistance struct {
	Deal
	DistanceKm float64
}

// InteractionKind identifies which engagement counter to bump.
type InteractionKind string

const (
	InteractionView  InteractionKind = "view"
	InteractionClick InteractionKind = "click"
)

// Valid reports whether the interaction kind is one the engine records.
func (k InteractionKind) Valid() bool {
	return k == InteractionView || k == InteractionClick
}

// NearbyQuery contains the parameters for a geo radius search.
type NearbyQuery struct {
	Latitude          float64
	Longitude         float64
	RadiusKm          float64
	Limit             int
	MinSustainability float64 // 0 = no minimum
	CategoryIDs       []int64 // empty = all categories
}

// Validate returns an explicit error for out-of-range coordinates.
// Public search endpoints treat this failure as fail-soft (empty result);
// administrative callers surface it as an invalid-parameter signal.
func (q *NearbyQuery) Validate() error {
	if q.Latitude < -90 || q.Latitude > 90 {
		return ErrInvalidParameter{Field: "latitude", Reason: "must be between -90 and 90"}
	}
	if q.Longitude < -180 || q.Longitude > 180 {
		return ErrInvalidParameter{Field: "longitude", Reason: "must be between -180 and 180"}
	}
	return nil
}

// clamp bounds radius and limit to the configured windows. Coordinates are
// validated separately because out-of-range coordinates mean the query is
// meaningless rather than merely too broad.
func (q *NearbyQuery) clamp(cfg *EngineConfig) {
	if q.RadiusKm < cfg.MinRadiusKm {
		q.RadiusKm = cfg.MinRadiusKm
	}
	if q.RadiusKm > cfg.MaxRadiusKm {
		q.RadiusKm = cfg.MaxRadiusKm
	}
	if q.Limit < 1 {
		q.Limit = 1
	}
	if q.Limit > cfg.MaxLimit {
		q.Limit = cfg.MaxLimit
	}
}

// ScoreWeights holds the sustainability scoring contributions. The values are
// configuration defaults, not hard requirements; DefaultEngineConfig matches
// the observed production weighting.
type ScoreWeights struct {
	Baseline            float64 // Starting score for every deal
	PerCertification    float64 // Per eco certification
	CertificationCap    float64
	LocalProduction     float64
	CarbonNeutralShop   float64
	PerInitiative       float64 // Per shop sustainability initiative
	InitiativeCap       float64
	PerEcoCategory      float64
	EcoCategoryCap      float64
	LowCarbonBonus      float64 // carbon footprint below LowCarbonThreshold
	MidCarbonBonus      float64 // carbon footprint below MidCarbonThreshold
	LowCarbonThreshold  float64
	MidCarbonThreshold  float64
	MaxScore            float64
}

// EngineConfig contains configuration settings for the discovery engine.
type EngineConfig struct {
	// Geo query bounds
	MinRadiusKm float64
	MaxRadiusKm float64
	MaxLimit    int

	// Ranker bucket boundaries
	HighSustainability float64 // "sustainable" tier threshold
	MidSustainability  float64
	NearDistanceKm     float64 // "close" tier threshold
	MidDistanceKm      float64

	// Scoring
	Weights ScoreWeights

	// Eco keyword matching for categories without the explicit flag
	EcoKeywords []string

	// Cache TTLs per operation
	NearbyTTL      time.Duration
	FeaturedTTL    time.Duration
	SustainableTTL time.Duration
	RelatedTTL     time.Duration
	CategoryTTL    time.Duration
}

// DefaultEngineConfig returns the default configuration for the engine.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		MinRadiusKm:        0.1,
		MaxRadiusKm:        50.0,
		MaxLimit:           100,
		HighSustainability: 8.0,
		MidSustainability:  5.0,
		NearDistanceKm:     2.0,
		MidDistanceKm:      5.0,
		Weights: ScoreWeights{
			Baseline:           4.0,
			PerCertification:   1.0,
			CertificationCap:   3.0,
			LocalProduction:    1.5,
			CarbonNeutralShop:  1.0,
			PerInitiative:      0.3,
			InitiativeCap:      1.0,
			PerEcoCategory:     0.5,
			EcoCategoryCap:     1.5,
			LowCarbonBonus:     1.0,
			MidCarbonBonus:     0.5,
			LowCarbonThreshold: 5.0,
			MidCarbonThreshold: 10.0,
			MaxScore:           10.0,
		},
		EcoKeywords:    []string{"sustain", "eco", "green"},
		NearbyTTL:      5 * time.Minute,
		FeaturedTTL:    5 * time.Minute,
		SustainableTTL: 1 * time.Hour,
		RelatedTTL:     30 * time.Minute,
		CategoryTTL:    10 * time.Minute,
	}
}

// IsActive reports whether the deal is currently redeemable: verified and
// inside its [start, end] window. This predicate prefixes every read
// operation and is never cached on its own.
func (d *Deal) IsActive(now time.Time) bool {
	return d.IsVerified && !now.Before(d.StartDate) && !now.After(d.EndDate)
}

// String implements fmt.Stringer for log output.
func (q *NearbyQuery) String() string {
	return fmt.Sprintf("nearby(lat=%.4f lon=%.4f r=%.1fkm limit=%d)", q.Latitude, q.Longitude, q.RadiusKm, q.Limit)
}
