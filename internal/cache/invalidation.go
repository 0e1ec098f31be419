package cache

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Mutation windows: a changed deal only disturbs the expiring/new listings
// when it actually falls inside them.
const (
	expiringWindow = 3 * 24 * time.Hour
	newWindow      = 7 * 24 * time.Hour
)

// DealChange carries the fields of a mutated deal that decide which cached
// groups are stale. Callers fill it from the row they just wrote.
type DealChange struct {
	DealID      int64
	ShopID      int64
	CategoryIDs []int64
	EndDate     time.Time
	CreatedAt   time.Time
}

// Dispatcher maps entity mutations to group invalidations. Invalidation is
// best effort: a failed group is logged and counted, the rest still run.
type Dispatcher struct {
	layer  *Layer
	now    func() time.Time
	logger zerolog.Logger
}

func NewDispatcher(layer *Layer) *Dispatcher {
	return &Dispatcher{
		layer:  layer,
		now:    time.Now,
		logger: log.With().Str("component", "cache_dispatcher").Logger(),
	}
}

// DealChanged invalidates every cached view a deal mutation can affect.
func (d *Dispatcher) DealChanged(ctx context.Context, ch DealChange) {
	now := d.now()

	groups := []string{GroupFeatured, GroupNearby}
	for _, id := range ch.CategoryIDs {
		groups = append(groups, CategoryGroup(id))
	}
	if !ch.EndDate.IsZero() && ch.EndDate.After(now) && ch.EndDate.Sub(now) <= expiringWindow {
		groups = append(groups, GroupExpiring)
	}
	if !ch.CreatedAt.IsZero() && now.Sub(ch.CreatedAt) <= newWindow {
		groups = append(groups, GroupNew)
	}
	groups = append(groups, GroupRelated, GroupPopular, GroupSustainable, ShopGroup(ch.ShopID))

	d.invalidate(ctx, "deal_changed", ch.DealID, groups)
}

// ShopChanged invalidates the shop's own group plus the cross-shop listings
// that embed shop data (featured, nearby, sustainable).
func (d *Dispatcher) ShopChanged(ctx context.Context, shopID int64) {
	d.invalidate(ctx, "shop_changed", shopID, []string{
		ShopGroup(shopID), GroupFeatured, GroupNearby, GroupSustainable,
	})
}

// CategoryChanged invalidates the category's cached views.
func (d *Dispatcher) CategoryChanged(ctx context.Context, categoryID int64) {
	d.invalidate(ctx, "category_changed", categoryID, []string{
		CategoryGroup(categoryID),
	})
}

func (d *Dispatcher) invalidate(ctx context.Context, reason string, entityID int64, groups []string) {
	if d == nil || d.layer == nil {
		return
	}
	failed := 0
	for _, g := range groups {
		if err := d.layer.InvalidateGroup(ctx, g); err != nil {
			failed++
			recordInvalidationError(opLabel(g))
			d.logger.Warn().Err(err).
				Str("reason", reason).
				Str("group", g).
				Int64("entity_id", entityID).
				Msg("group invalidation failed")
		}
	}
	d.logger.Debug().
		Str("reason", reason).
		Int64("entity_id", entityID).
		Int("groups", len(groups)).
		Int("failed", failed).
		Msg("dispatched invalidation")
}
