package engine

import (
	"context"
	"time"
)

// DealSource defines the interface for accessing deal data. It decouples the
// engine from the backing store; every query applies the active-deal
// predicate (verified, start <= now <= end) before returning.
type DealSource interface {
	// ActiveDealsNear returns active deals whose shop lies within radiusKm of
	// the given point, annotated with great-circle distance in kilometers.
	ActiveDealsNear(ctx context.Context, lat, lon, radiusKm float64, now time.Time) ([]DealWithDistance, error)

	// ActiveFeatured returns active featured deals, newest first.
	// categoryID of 0 means no category filter.
	ActiveFeatured(ctx context.Context, limit int, categoryID int64, now time.Time) ([]Deal, error)

	// ActiveSustainable returns active deals with sustainability score at or
	// above minScore, best score first.
	ActiveSustainable(ctx context.Context, minScore float64, limit int, now time.Time) ([]Deal, error)

	// ActiveByCategory returns active deals in the given category, newest first.
	ActiveByCategory(ctx context.Context, categoryID int64, limit int, now time.Time) ([]Deal, error)

	// ActiveSharingCategories returns active deals, excluding dealID, that
	// share at least one of the given categories. Used for related-deal
	// candidate selection.
	ActiveSharingCategories(ctx context.Context, dealID int64, categoryIDs []int64, now time.Time) ([]Deal, error)

	// DealByID returns the deal or a NotFound error.
	DealByID(ctx context.Context, id int64) (*Deal, error)

	// ShopByID returns the shop or a NotFound error.
	ShopByID(ctx context.Context, id int64) (*Shop, error)

	// CategoriesByIDs returns the categories for the given ids. Missing ids
	// are skipped, not errors; scoring tolerates deleted categories.
	CategoriesByIDs(ctx context.Context, ids []int64) ([]Category, error)

	// IncrementInteraction atomically bumps the view or click counter.
	IncrementInteraction(ctx context.Context, dealID int64, kind InteractionKind) error

	// SaveSustainabilityScore persists a recomputed score on the deal.
	SaveSustainabilityScore(ctx context.Context, dealID int64, score float64) error
}

// Clock provides the engine's "now" for active-deal checks and freshness
// windows. Injected so tests can pin time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall-clock Clock used in production.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }
