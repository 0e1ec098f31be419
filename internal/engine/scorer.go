package engine

import (
	"math"
	"strings"
)

// Scorer computes sustainability scores for deals. It is pure: persistence of
// the result is the caller's responsibility.
type Scorer struct {
	weights     ScoreWeights
	ecoKeywords []string
}

// NewScorer creates a scorer from the engine configuration.
func NewScorer(cfg *EngineConfig) *Scorer {
	return &Scorer{
		weights:     cfg.Weights,
		ecoKeywords: cfg.EcoKeywords,
	}
}

// Score computes a deterministic 0.0-10.0 sustainability score from the
// deal's own attributes plus its shop and category context. A nil shop
// (deleted after the deal was created) contributes zero, not an error.
func (s *Scorer) Score(deal *Deal, shop *Shop, categories []Category) float64 {
	w := s.weights
	score := w.Baseline

	score += capped(float64(len(deal.EcoCertifications))*w.PerCertification, w.CertificationCap)

	if deal.LocalProduction {
		score += w.LocalProduction
	}

	if shop != nil {
		if shop.CarbonNeutral {
			score += w.CarbonNeutralShop
		}
		score += capped(float64(len(shop.SustainabilityInitiatives))*w.PerInitiative, w.InitiativeCap)
	}

	ecoCount := 0
	for _, c := range categories {
		if s.isEcoCategory(c) {
			ecoCount++
		}
	}
	score += capped(float64(ecoCount)*w.PerEcoCategory, w.EcoCategoryCap)

	if deal.CarbonFootprint != nil {
		switch {
		case *deal.CarbonFootprint < w.LowCarbonThreshold:
			score += w.LowCarbonBonus
		case *deal.CarbonFootprint < w.MidCarbonThreshold:
			score += w.MidCarbonBonus
		}
	}

	if score > w.MaxScore {
		score = w.MaxScore
	}
	if score < 0 {
		score = 0
	}

	// One decimal place, matching the stored column precision.
	return math.Round(score*10) / 10
}

// isEcoCategory matches by explicit flag or by case-insensitive keyword in
// the category name.
func (s *Scorer) isEcoCategory(c Category) bool {
	if c.IsEcoFriendly {
		return true
	}
	name := strings.ToLower(c.Name)
	for _, kw := range s.ecoKeywords {
		if strings.Contains(name, kw) {
			return true
		}
	}
	return false
}

func capped(v, cap float64) float64 {
	if v > cap {
		return cap
	}
	return v
}
