package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dealopia/deals-service/internal/engine"
)

// ScoreRecomputePayload is the payload of score_recompute tasks.
type ScoreRecomputePayload struct {
	DealID int64 `json:"deal_id"`
}

// CacheWarmupPayload describes one query to pre-fill. Exactly one of the
// query shapes is used, selected by Kind.
type CacheWarmupPayload struct {
	Kind string `json:"kind"` // nearby, featured, sustainable

	// nearby
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	RadiusKm  float64 `json:"radius_km,omitempty"`

	// featured / sustainable
	CategoryID int64   `json:"category_id,omitempty"`
	MinScore   float64 `json:"min_score,omitempty"`

	Limit int `json:"limit,omitempty"`
}

// NewScoreRecomputeHandler returns a task handler that recomputes one deal's
// sustainability score. A deal deleted between scheduling and execution is
// success, not an error worth retrying.
func NewScoreRecomputeHandler(eng *engine.Engine) func(context.Context, []byte) error {
	return func(ctx context.Context, payload []byte) error {
		var req ScoreRecomputePayload
		if err := json.Unmarshal(payload, &req); err != nil {
			return fmt.Errorf("failed to unmarshal score recompute payload: %w", err)
		}
		if req.DealID == 0 {
			return fmt.Errorf("score recompute payload missing deal_id")
		}

		score, err := eng.RecomputeSustainabilityScore(ctx, req.DealID)
		if errors.Is(err, engine.ErrNotFound) {
			log.Warn().
				Str("component", "worker").
				Int64("deal_id", req.DealID).
				Msg("Deal gone before score recompute, skipping")
			return nil
		}
		if err != nil {
			return err
		}

		log.Debug().
			Str("component", "worker").
			Int64("deal_id", req.DealID).
			Float64("score", score).
			Msg("Recomputed sustainability score")
		return nil
	}
}

// NewCacheWarmupHandler returns a task handler that runs a discovery query
// so its result is cached before real traffic asks for it.
func NewCacheWarmupHandler(eng *engine.Engine) func(context.Context, []byte) error {
	return func(ctx context.Context, payload []byte) error {
		var req CacheWarmupPayload
		if err := json.Unmarshal(payload, &req); err != nil {
			return fmt.Errorf("failed to unmarshal cache warmup payload: %w", err)
		}

		limit := req.Limit
		if limit == 0 {
			limit = 20
		}

		var err error
		switch req.Kind {
		case "nearby":
			_, err = eng.FindNear(ctx, engine.NearbyQuery{
				Latitude:  req.Latitude,
				Longitude: req.Longitude,
				RadiusKm:  req.RadiusKm,
				Limit:     limit,
			})
		case "featured":
			_, err = eng.FindFeatured(ctx, limit, req.CategoryID)
		case "sustainable":
			_, err = eng.FindSustainable(ctx, req.MinScore, limit)
		default:
			return fmt.Errorf("unknown cache warmup kind %q", req.Kind)
		}
		return err
	}
}
