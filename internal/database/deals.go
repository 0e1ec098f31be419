package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dealopia/deals-service/internal/engine"
)

// DealStore implements engine.DealSource on top of Postgres. All read
// queries apply the active-deal predicate in SQL; the engine re-checks it
// in memory as a secondary guard.
type DealStore struct {
	pool *pgxpool.Pool
}

// NewDealStore creates a deal store using the given connection pool.
func NewDealStore(pool *pgxpool.Pool) *DealStore {
	return &DealStore{pool: pool}
}

// dealColumns is the shared select list for deal rows. category_ids comes
// from a correlated aggregate over the join table so every query returns
// fully hydrated deals in one round trip.
const dealColumns = `
	d.id, d.shop_id, d.title,
	(SELECT COALESCE(array_agg(dc.category_id ORDER BY dc.category_id), '{}')
	   FROM deal_categories dc WHERE dc.deal_id = d.id),
	d.original_price, d.discounted_price, d.discount_percentage,
	d.start_date, d.end_date, d.is_featured, d.is_verified,
	d.sustainability_score, d.eco_certifications, d.local_production,
	d.carbon_footprint, d.views_count, d.clicks_count, d.created_at`

// activePredicate keeps "redeemable right now" in one place. The %[2]s verb
// is the positional placeholder of the query's "now" parameter; the
// reference time is always passed explicitly so callers control it.
const activePredicate = `d.is_verified AND d.start_date <= %[2]s AND d.end_date >= %[2]s`

func scanDeal(row pgx.Row) (engine.Deal, error) {
	var d engine.Deal
	err := row.Scan(
		&d.ID, &d.ShopID, &d.Title, &d.CategoryIDs,
		&d.OriginalPrice, &d.DiscountedPrice, &d.DiscountPercentage,
		&d.StartDate, &d.EndDate, &d.IsFeatured, &d.IsVerified,
		&d.SustainabilityScore, &d.EcoCertifications, &d.LocalProduction,
		&d.CarbonFootprint, &d.ViewsCount, &d.ClicksCount, &d.CreatedAt,
	)
	return d, err
}

func collectDeals(rows pgx.Rows) ([]engine.Deal, error) {
	defer rows.Close()

	var deals []engine.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning deal row: %w", err)
		}
		deals = append(deals, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading deal rows: %w", err)
	}
	return deals, nil
}

// ActiveDealsNear returns active deals whose shop lies within radiusKm of
// the query point. Distance is computed in SQL with the spherical law of
// cosines (same sphere radius as the ranking-side haversine); the inner
// select exists so the computed column can appear in the outer WHERE.
func (s *DealStore) ActiveDealsNear(ctx context.Context, lat, lon, radiusKm float64, now time.Time) ([]engine.DealWithDistance, error) {
	query := fmt.Sprintf(`
		SELECT * FROM (
			SELECT %s,
			       6371.0 * acos(least(1.0,
			           cos(radians($1)) * cos(radians(sh.latitude)) *
			           cos(radians(sh.longitude) - radians($2)) +
			           sin(radians($1)) * sin(radians(sh.latitude))
			       )) AS distance_km
			FROM deals d
			JOIN shops sh ON sh.id = d.shop_id
			WHERE sh.latitude IS NOT NULL AND sh.longitude IS NOT NULL
			  AND `+activePredicate+`
		) nearby
		WHERE distance_km <= $4
		ORDER BY distance_km, id
	`, dealColumns, "$3")

	rows, err := s.pool.Query(ctx, query, lat, lon, now, radiusKm)
	if err != nil {
		return nil, fmt.Errorf("error querying nearby deals: %w", err)
	}
	defer rows.Close()

	var deals []engine.DealWithDistance
	for rows.Next() {
		var d engine.DealWithDistance
		err := rows.Scan(
			&d.ID, &d.ShopID, &d.Title, &d.CategoryIDs,
			&d.OriginalPrice, &d.DiscountedPrice, &d.DiscountPercentage,
			&d.StartDate, &d.EndDate, &d.IsFeatured, &d.IsVerified,
			&d.SustainabilityScore, &d.EcoCertifications, &d.LocalProduction,
			&d.CarbonFootprint, &d.ViewsCount, &d.ClicksCount, &d.CreatedAt,
			&d.DistanceKm,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning nearby deal row: %w", err)
		}
		deals = append(deals, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading nearby deal rows: %w", err)
	}
	return deals, nil
}

// ActiveFeatured returns active featured deals, newest first. categoryID of
// 0 means no category filter.
func (s *DealStore) ActiveFeatured(ctx context.Context, limit int, categoryID int64, now time.Time) ([]engine.Deal, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM deals d
		WHERE d.is_featured AND `+activePredicate+`
		  AND ($2::bigint = 0 OR EXISTS (
		      SELECT 1 FROM deal_categories dc
		      WHERE dc.deal_id = d.id AND dc.category_id = $2))
		ORDER BY d.created_at DESC, d.id
		LIMIT $3
	`, dealColumns, "$1")

	rows, err := s.pool.Query(ctx, query, now, categoryID, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying featured deals: %w", err)
	}
	return collectDeals(rows)
}

// ActiveSustainable returns active deals at or above minScore, best score
// first.
func (s *DealStore) ActiveSustainable(ctx context.Context, minScore float64, limit int, now time.Time) ([]engine.Deal, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM deals d
		WHERE d.sustainability_score >= $2 AND `+activePredicate+`
		ORDER BY d.sustainability_score DESC, d.created_at DESC, d.id
		LIMIT $3
	`, dealColumns, "$1")

	rows, err := s.pool.Query(ctx, query, now, minScore, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying sustainable deals: %w", err)
	}
	return collectDeals(rows)
}

// ActiveByCategory returns active deals in the category, newest first.
func (s *DealStore) ActiveByCategory(ctx context.Context, categoryID int64, limit int, now time.Time) ([]engine.Deal, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM deals d
		WHERE `+activePredicate+`
		  AND EXISTS (
		      SELECT 1 FROM deal_categories dc
		      WHERE dc.deal_id = d.id AND dc.category_id = $2)
		ORDER BY d.created_at DESC, d.id
		LIMIT $3
	`, dealColumns, "$1")

	rows, err := s.pool.Query(ctx, query, now, categoryID, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying category deals: %w", err)
	}
	return collectDeals(rows)
}

// ActiveSharingCategories returns active deals other than dealID that share
// at least one of the given categories.
func (s *DealStore) ActiveSharingCategories(ctx context.Context, dealID int64, categoryIDs []int64, now time.Time) ([]engine.Deal, error) {
	if len(categoryIDs) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM deals d
		WHERE d.id <> $2 AND `+activePredicate+`
		  AND EXISTS (
		      SELECT 1 FROM deal_categories dc
		      WHERE dc.deal_id = d.id AND dc.category_id = ANY($3))
		ORDER BY d.created_at DESC, d.id
	`, dealColumns, "$1")

	rows, err := s.pool.Query(ctx, query, now, dealID, categoryIDs)
	if err != nil {
		return nil, fmt.Errorf("error querying related candidates: %w", err)
	}
	return collectDeals(rows)
}

// DealByID returns the deal or engine.ErrNotFound.
func (s *DealStore) DealByID(ctx context.Context, id int64) (*engine.Deal, error) {
	query := fmt.Sprintf(`SELECT %s FROM deals d WHERE d.id = $1`, dealColumns)

	d, err := scanDeal(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying deal %d: %w", id, err)
	}
	return &d, nil
}

// ShopByID returns the shop or engine.ErrNotFound. A shop without
// coordinates comes back with a nil Location.
func (s *DealStore) ShopByID(ctx context.Context, id int64) (*engine.Shop, error) {
	var (
		shop     engine.Shop
		lat, lon *float64
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, latitude, longitude, carbon_neutral, sustainability_initiatives
		FROM shops
		WHERE id = $1
	`, id).Scan(&shop.ID, &shop.Name, &lat, &lon, &shop.CarbonNeutral, &shop.SustainabilityInitiatives)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying shop %d: %w", id, err)
	}

	if lat != nil && lon != nil {
		shop.Location = &engine.Location{Latitude: *lat, Longitude: *lon}
	}
	return &shop, nil
}

// CategoriesByIDs returns the categories that exist for the given ids.
// Missing ids are silently skipped.
func (s *DealStore) CategoriesByIDs(ctx context.Context, ids []int64) ([]engine.Category, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, name, is_eco_friendly, parent_id
		FROM categories
		WHERE id = ANY($1)
		ORDER BY id
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("error querying categories: %w", err)
	}
	defer rows.Close()

	var categories []engine.Category
	for rows.Next() {
		var c engine.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.IsEcoFriendly, &c.ParentID); err != nil {
			return nil, fmt.Errorf("error scanning category row: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading category rows: %w", err)
	}
	return categories, nil
}

// IncrementInteraction atomically bumps a deal's view or click counter.
func (s *DealStore) IncrementInteraction(ctx context.Context, dealID int64, kind engine.InteractionKind) error {
	var query string
	switch kind {
	case engine.InteractionView:
		query = `UPDATE deals SET views_count = views_count + 1 WHERE id = $1`
	case engine.InteractionClick:
		query = `UPDATE deals SET clicks_count = clicks_count + 1 WHERE id = $1`
	default:
		return fmt.Errorf("unknown interaction kind %q", kind)
	}

	tag, err := s.pool.Exec(ctx, query, dealID)
	if err != nil {
		return fmt.Errorf("error incrementing %s count for deal %d: %w", kind, dealID, err)
	}
	if tag.RowsAffected() == 0 {
		return engine.ErrNotFound
	}
	return nil
}

// SaveSustainabilityScore persists a recomputed score.
func (s *DealStore) SaveSustainabilityScore(ctx context.Context, dealID int64, score float64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE deals
		SET sustainability_score = $2, updated_at = now()
		WHERE id = $1
	`, dealID, score)
	if err != nil {
		return fmt.Errorf("error saving sustainability score for deal %d: %w", dealID, err)
	}
	if tag.RowsAffected() == 0 {
		return engine.ErrNotFound
	}
	return nil
}
