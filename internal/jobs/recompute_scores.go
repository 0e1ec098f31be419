package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/semaphore"
)

// ScoreRecomputer is the slice of the engine the bulk recompute job needs.
type ScoreRecomputer interface {
	RecomputeSustainabilityScore(ctx context.Context, dealID int64) (float64, error)
}

// RecomputeConfig bounds a bulk sustainability score recompute run.
type RecomputeConfig struct {
	BatchSize   int   // Max deals per run
	Concurrency int64 // Parallel recomputes against the database
}

// DefaultRecomputeConfig returns the default bulk recompute bounds.
func DefaultRecomputeConfig() RecomputeConfig {
	return RecomputeConfig{
		BatchSize:   500,
		Concurrency: 8,
	}
}

// RecomputeAllScores recalculates sustainability scores for active deals,
// bounded by the semaphore so a nightly run cannot starve request traffic.
// Individual failures are logged and skipped; the run keeps going.
// Returns the number of deals successfully recomputed.
func RecomputeAllScores(ctx context.Context, db *pgxpool.Pool, recomputer ScoreRecomputer, cfg RecomputeConfig) (int, error) {
	start := time.Now()

	ids, err := StaleScoreDealIDs(ctx, db, cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		slog.Debug("no deals need score recompute")
		return 0, nil
	}

	sem := semaphore.NewWeighted(cfg.Concurrency)
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		failed    int
	)

	for _, id := range ids {
		if err := sem.Acquire(ctx, 1); err != nil {
			break // context cancelled
		}

		wg.Add(1)
		go func(dealID int64) {
			defer wg.Done()
			defer sem.Release(1)

			if _, err := recomputer.RecomputeSustainabilityScore(ctx, dealID); err != nil {
				slog.Warn("score recompute failed", "deal_id", dealID, "error", err)
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}
			mu.Lock()
			succeeded++
			mu.Unlock()
		}(id)
	}

	wg.Wait()

	slog.Info("bulk score recompute finished",
		"candidates", len(ids),
		"succeeded", succeeded,
		"failed", failed,
		"duration", time.Since(start))

	return succeeded, ctx.Err()
}
