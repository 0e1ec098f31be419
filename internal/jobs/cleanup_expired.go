package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RetentionConfig configures retention policies for cleanup jobs
type RetentionConfig struct {
	ExpiredDealRetentionDays int
	TaskRetentionDays        int
}

// DefaultRetentionConfig returns sensible retention defaults
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		ExpiredDealRetentionDays: 90, // Keep expired deals for analytics
		TaskRetentionDays:        7,
	}
}

// CleanupExpiredDeals removes deals whose window closed longer ago than the
// retention period. Recently expired deals stay queryable for analytics and
// for the write path's own views.
// Returns the number of deals deleted.
func CleanupExpiredDeals(ctx context.Context, db *pgxpool.Pool, cfg RetentionConfig) (int, error) {
	cutoffDate := time.Now().AddDate(0, 0, -cfg.ExpiredDealRetentionDays)

	result, err := db.Exec(ctx, `
		DELETE FROM deals
		WHERE end_date < $1
	`, cutoffDate)

	if err != nil {
		return 0, fmt.Errorf("cleanup expired deals: %w", err)
	}

	rowsAffected := result.RowsAffected()
	slog.Info("cleaned up expired deals", "rows_deleted", rowsAffected, "cutoff", cutoffDate)

	return int(rowsAffected), nil
}

// StaleScoreDealIDs returns ids of the active deals whose score was written
// longest ago. Saving a score bumps updated_at, which sends the deal to the
// back of this queue, so successive batches rotate through the whole active
// population instead of re-selecting the batch that was just recomputed.
func StaleScoreDealIDs(ctx context.Context, db *pgxpool.Pool, limit int) ([]int64, error) {
	rows, err := db.Query(ctx, `
		SELECT id FROM deals
		WHERE is_verified
		  AND end_date >= NOW()
		ORDER BY updated_at ASC, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query stale score deals: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan deal id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
