package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dealopia/deals-service/internal/cache"
)

// Engine is the deal discovery and ranking facade. It composes the store,
// the cache layer, and the pure scoring/ranking helpers into the read
// operations the handlers and jobs call.
type Engine struct {
	source  DealSource
	cache   *cache.Layer
	cfg     *EngineConfig
	ranker  *Ranker
	scorer  *Scorer
	clock   Clock
	metrics *MetricsRecorder
	logger  zerolog.Logger
}

// New creates an engine. cacheLayer may be nil, which disables caching
// without changing any observable result.
func New(source DealSource, cacheLayer *cache.Layer, cfg *EngineConfig) *Engine {
	if cfg == nil {
		cfg = DefaultEngineConfig()
	}
	return &Engine{
		source:  source,
		cache:   cacheLayer,
		cfg:     cfg,
		ranker:  NewRanker(cfg),
		scorer:  NewScorer(cfg),
		clock:   SystemClock{},
		metrics: NewMetricsRecorder(),
		logger:  log.With().Str("component", "engine").Logger(),
	}
}

// WithClock replaces the engine's clock. Tests pin time with it.
func (e *Engine) WithClock(c Clock) *Engine {
	e.clock = c
	return e
}

// FindNear returns active deals within the query radius, ranked by the
// sustainability/distance buckets. Out-of-range coordinates fail soft: the
// caller gets an empty slice and a nil error, and the rejection is counted.
func (e *Engine) FindNear(ctx context.Context, q NearbyQuery) ([]DealWithDistance, error) {
	start := time.Now()

	if err := q.Validate(); err != nil {
		e.metrics.RecordInvalidQuery("nearby")
		e.logger.Warn().Err(err).Stringer("query", &q).Msg("rejected nearby query")
		return []DealWithDistance{}, nil
	}
	q.clamp(e.cfg)

	key := nearbyKey(q)
	result, err := cache.Cached(ctx, e.cache, key, e.cfg.NearbyTTL, []string{cache.GroupNearby},
		func(ctx context.Context) ([]DealWithDistance, error) {
			return e.queryNearby(ctx, q)
		})
	e.metrics.RecordQuery("nearby", time.Since(start), err)
	return result, err
}

func (e *Engine) queryNearby(ctx context.Context, q NearbyQuery) ([]DealWithDistance, error) {
	now := e.clock.Now()

	deals, err := e.source.ActiveDealsNear(ctx, q.Latitude, q.Longitude, q.RadiusKm, now)
	if err != nil {
		return nil, storeErr("nearby", err)
	}

	deals = FilterActiveWithDistance(deals, now)
	deals = applyNearbyFilters(deals, q)
	e.metrics.RecordCandidateCount("nearby", len(deals))

	e.ranker.Rank(deals)
	if len(deals) > q.Limit {
		deals = deals[:q.Limit]
	}
	if len(deals) > 0 {
		e.metrics.RecordNearestDistance(deals[0].DistanceKm)
	}
	return deals, nil
}

// applyNearbyFilters drops candidates below the sustainability floor or
// outside the requested categories.
func applyNearbyFilters(deals []DealWithDistance, q NearbyQuery) []DealWithDistance {
	if q.MinSustainability <= 0 && len(q.CategoryIDs) == 0 {
		return deals
	}
	wanted := make(map[int64]struct{}, len(q.CategoryIDs))
	for _, id := range q.CategoryIDs {
		wanted[id] = struct{}{}
	}

	out := deals[:0]
	for _, d := range deals {
		if q.MinSustainability > 0 && d.SustainabilityScore < q.MinSustainability {
			continue
		}
		if len(wanted) > 0 && !inCategories(d.CategoryIDs, wanted) {
			continue
		}
		out = append(out, d)
	}
	return out
}

func inCategories(ids []int64, wanted map[int64]struct{}) bool {
	for _, id := range ids {
		if _, ok := wanted[id]; ok {
			return true
		}
	}
	return false
}

// FindFeatured returns active featured deals, newest first, optionally
// restricted to one category. categoryID of 0 means no filter.
func (e *Engine) FindFeatured(ctx context.Context, limit int, categoryID int64) ([]Deal, error) {
	start := time.Now()
	limit = e.clampLimit(limit)

	key := fmt.Sprintf("featured_deals:%d:%d", limit, categoryID)
	groups := []string{cache.GroupFeatured}
	if categoryID != 0 {
		groups = append(groups, cache.CategoryGroup(categoryID))
	}

	result, err := cache.Cached(ctx, e.cache, key, e.cfg.FeaturedTTL, groups,
		func(ctx context.Context) ([]Deal, error) {
			now := e.clock.Now()
			deals, err := e.source.ActiveFeatured(ctx, limit, categoryID, now)
			if err != nil {
				return nil, storeErr("featured", err)
			}
			return FilterActive(deals, now), nil
		})
	e.metrics.RecordQuery("featured", time.Since(start), err)
	return result, err
}

// FindSustainable returns active deals with sustainability score at or above
// minScore, best score first.
func (e *Engine) FindSustainable(ctx context.Context, minScore float64, limit int) ([]Deal, error) {
	start := time.Now()
	limit = e.clampLimit(limit)

	key := fmt.Sprintf("sustainable_deals:%s:%d", formatScore(minScore), limit)
	result, err := cache.Cached(ctx, e.cache, key, e.cfg.SustainableTTL, []string{cache.GroupSustainable},
		func(ctx context.Context) ([]Deal, error) {
			now := e.clock.Now()
			deals, err := e.source.ActiveSustainable(ctx, minScore, limit, now)
			if err != nil {
				return nil, storeErr("sustainable", err)
			}
			return FilterActive(deals, now), nil
		})
	e.metrics.RecordQuery("sustainable", time.Since(start), err)
	return result, err
}

// FindRelated returns up to limit deals related to the given deal: active
// deals sharing at least one category, same shop preferred. A deal with no
// categories has no related deals. Returns ErrNotFound when the deal does
// not exist.
func (e *Engine) FindRelated(ctx context.Context, dealID int64, limit int) ([]Deal, error) {
	start := time.Now()
	limit = e.clampLimit(limit)

	deal, err := e.source.DealByID(ctx, dealID)
	if err != nil {
		e.metrics.RecordQuery("related", time.Since(start), err)
		return nil, storeErr("related", err)
	}
	if len(deal.CategoryIDs) == 0 {
		e.metrics.RecordQuery("related", time.Since(start), nil)
		return []Deal{}, nil
	}

	key := fmt.Sprintf("related_deals:%d:%d", dealID, limit)
	groups := []string{cache.GroupRelated, cache.ShopGroup(deal.ShopID)}
	for _, id := range deal.CategoryIDs {
		groups = append(groups, cache.CategoryGroup(id))
	}

	result, err := cache.Cached(ctx, e.cache, key, e.cfg.RelatedTTL, groups,
		func(ctx context.Context) ([]Deal, error) {
			now := e.clock.Now()
			candidates, err := e.source.ActiveSharingCategories(ctx, deal.ID, deal.CategoryIDs, now)
			if err != nil {
				return nil, storeErr("related", err)
			}
			candidates = FilterActive(candidates, now)
			e.metrics.RecordCandidateCount("related", len(candidates))
			return SelectRelated(deal, candidates, limit), nil
		})
	e.metrics.RecordQuery("related", time.Since(start), err)
	return result, err
}

// FindDealsByCategory returns active deals in the given category, newest
// first.
func (e *Engine) FindDealsByCategory(ctx context.Context, categoryID int64, limit int) ([]Deal, error) {
	start := time.Now()
	limit = e.clampLimit(limit)

	key := fmt.Sprintf("category_deals:%d:%d", categoryID, limit)
	result, err := cache.Cached(ctx, e.cache, key, e.cfg.CategoryTTL, []string{cache.CategoryGroup(categoryID)},
		func(ctx context.Context) ([]Deal, error) {
			now := e.clock.Now()
			deals, err := e.source.ActiveByCategory(ctx, categoryID, limit, now)
			if err != nil {
				return nil, storeErr("category", err)
			}
			return FilterActive(deals, now), nil
		})
	e.metrics.RecordQuery("category", time.Since(start), err)
	return result, err
}

// RecordInteraction bumps the view or click counter for a deal. The write
// goes straight to the store; engagement counters are deliberately not
// cached.
func (e *Engine) RecordInteraction(ctx context.Context, dealID int64, kind InteractionKind) error {
	if !kind.Valid() {
		return ErrInvalidParameter{Field: "kind", Reason: "must be view or click"}
	}
	if err := e.source.IncrementInteraction(ctx, dealID, kind); err != nil {
		return storeErr("interaction", err)
	}
	e.metrics.RecordInteraction(kind)
	return nil
}

// RecomputeSustainabilityScore recalculates and persists a deal's
// sustainability score from its current attributes and shop/category
// context, returning the new score. A missing shop contributes nothing; a
// missing deal is ErrNotFound.
func (e *Engine) RecomputeSustainabilityScore(ctx context.Context, dealID int64) (float64, error) {
	deal, err := e.source.DealByID(ctx, dealID)
	if err != nil {
		return 0, storeErr("recompute", err)
	}

	shop, err := e.source.ShopByID(ctx, deal.ShopID)
	if err != nil && !isNotFound(err) {
		return 0, storeErr("recompute", err)
	}

	var categories []Category
	if len(deal.CategoryIDs) > 0 {
		categories, err = e.source.CategoriesByIDs(ctx, deal.CategoryIDs)
		if err != nil {
			return 0, storeErr("recompute", err)
		}
	}

	score := e.scorer.Score(deal, shop, categories)
	if err := e.source.SaveSustainabilityScore(ctx, dealID, score); err != nil {
		return 0, storeErr("recompute", err)
	}

	e.metrics.RecordScoreRecompute(score)
	e.logger.Debug().Int64("deal_id", dealID).Float64("score", score).Msg("recomputed sustainability score")
	return score, nil
}

func (e *Engine) clampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > e.cfg.MaxLimit {
		return e.cfg.MaxLimit
	}
	return limit
}

// nearbyKey builds the cache key for a clamped nearby query. Coordinates are
// rounded to four decimals (~11 m) so close-by lookups share an entry.
func nearbyKey(q NearbyQuery) string {
	cats := make([]int64, len(q.CategoryIDs))
	copy(cats, q.CategoryIDs)
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })

	parts := make([]string, len(cats))
	for i, id := range cats {
		parts[i] = strconv.FormatInt(id, 10)
	}

	return fmt.Sprintf("nearby_deals:%.4f:%.4f:%s:%d:%s:%s",
		q.Latitude, q.Longitude,
		formatScore(q.RadiusKm), q.Limit,
		formatScore(q.MinSustainability),
		strings.Join(parts, ","))
}

// formatScore renders a float without trailing-zero noise so keys stay
// stable across call sites (5 and 5.0 collide).
func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
