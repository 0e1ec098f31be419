package jobs

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// ManagerConfig holds configuration for background maintenance jobs
type ManagerConfig struct {
	CleanupInterval   time.Duration // How often to run expired-deal cleanup
	RecomputeInterval time.Duration // How often to run bulk score recompute
	Retention         RetentionConfig
	Recompute         RecomputeConfig
	Enabled           bool
}

// DefaultManagerConfig returns the default maintenance configuration
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		CleanupInterval:   24 * time.Hour,
		RecomputeInterval: 6 * time.Hour,
		Retention:         DefaultRetentionConfig(),
		Recompute:         DefaultRecomputeConfig(),
		Enabled:           true,
	}
}

// Manager runs periodic maintenance: expired-deal cleanup and bulk
// sustainability score recomputes.
type Manager struct {
	config     ManagerConfig
	db         *pgxpool.Pool
	recomputer ScoreRecomputer
	logger     *zerolog.Logger
	ctx        context.Context
	cancel     context.CancelFunc

	// onDealsDeleted, when set, runs after a cleanup pass that removed
	// rows. The server wires it to cache invalidation.
	onDealsDeleted func(context.Context)

	cleanupDone   chan struct{}
	recomputeDone chan struct{}
}

// NewManager creates a maintenance job manager
func NewManager(config ManagerConfig, db *pgxpool.Pool, recomputer ScoreRecomputer, logger *zerolog.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:        config,
		db:            db,
		recomputer:    recomputer,
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
		cleanupDone:   make(chan struct{}),
		recomputeDone: make(chan struct{}),
	}
}

// OnDealsDeleted registers a callback invoked after cleanup removes deals.
func (m *Manager) OnDealsDeleted(fn func(context.Context)) {
	m.onDealsDeleted = fn
}

// Start begins all background maintenance jobs
func (m *Manager) Start() {
	if !m.config.Enabled {
		m.logger.Info().Msg("Maintenance jobs are disabled, not starting")
		close(m.cleanupDone)
		close(m.recomputeDone)
		return
	}

	m.logger.Info().
		Dur("cleanup_interval", m.config.CleanupInterval).
		Dur("recompute_interval", m.config.RecomputeInterval).
		Msg("Starting maintenance job manager")

	go m.runCleanup()
	go m.runRecompute()
}

// Stop gracefully stops all maintenance jobs
func (m *Manager) Stop() {
	m.logger.Info().Msg("Stopping maintenance job manager...")
	m.cancel()

	select {
	case <-m.cleanupDone:
		m.logger.Debug().Msg("Cleanup job stopped")
	case <-time.After(5 * time.Second):
		m.logger.Warn().Msg("Cleanup job did not stop gracefully")
	}

	select {
	case <-m.recomputeDone:
		m.logger.Debug().Msg("Recompute job stopped")
	case <-time.After(5 * time.Second):
		m.logger.Warn().Msg("Recompute job did not stop gracefully")
	}

	m.logger.Info().Msg("Maintenance job manager stopped")
}

func (m *Manager) runCleanup() {
	defer close(m.cleanupDone)

	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	// Run once immediately on startup
	m.cleanup()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.cleanup()
		}
	}
}

func (m *Manager) cleanup() {
	start := time.Now()
	m.logger.Debug().Msg("Running expired deal cleanup job")

	deleted, err := CleanupExpiredDeals(m.ctx, m.db, m.config.Retention)
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to cleanup expired deals")
		return
	}

	if deleted > 0 {
		m.logger.Info().
			Int("deleted", deleted).
			Dur("duration", time.Since(start)).
			Msg("Cleaned up expired deals")
		if m.onDealsDeleted != nil {
			m.onDealsDeleted(m.ctx)
		}
	}
}

func (m *Manager) runRecompute() {
	defer close(m.recomputeDone)

	ticker := time.NewTicker(m.config.RecomputeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			count, err := RecomputeAllScores(m.ctx, m.db, m.recomputer, m.config.Recompute)
			if err != nil {
				m.logger.Error().Err(err).Msg("Bulk score recompute aborted")
				continue
			}
			m.logger.Info().
				Int("recomputed", count).
				Dur("duration", time.Since(start)).
				Msg("Bulk score recompute finished")
		}
	}
}
