package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dealopia/deals-service/internal/database"
	"github.com/dealopia/deals-service/internal/engine"
	"github.com/dealopia/deals-service/internal/jobs"
)

var (
	scoreAll       bool
	scoreBatchSize int
)

// scoreCmd represents the recompute-scores command
var scoreCmd = &cobra.Command{
	Use:   "recompute-scores [dealID]",
	Short: "Recompute sustainability scores",
	Long: `Recompute and persist the sustainability score for one deal, or for a
batch of active deals with --all. Scores are derived from the deal's eco
certifications, production locality, carbon footprint, and its shop and
category context.`,
	Example: `  deals-service recompute-scores 1234
  deals-service recompute-scores --all --batch-size 1000`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRecomputeScores,
}

func init() {
	rootCmd.AddCommand(scoreCmd)

	scoreCmd.Flags().BoolVar(&scoreAll, "all", false, "Recompute scores for a batch of active deals")
	scoreCmd.Flags().IntVar(&scoreBatchSize, "batch-size", 500, "Max deals per run with --all")
}

func runRecomputeScores(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	store := database.NewDealStore(database.Pool())
	eng := engine.New(store, nil, engine.DefaultEngineConfig())

	if scoreAll {
		recomputeCfg := jobs.DefaultRecomputeConfig()
		recomputeCfg.BatchSize = scoreBatchSize

		count, err := jobs.RecomputeAllScores(ctx, database.Pool(), eng, recomputeCfg)
		if err != nil {
			return err
		}
		logger.Info().Int("recomputed", count).Msg("Bulk recompute finished")
		return nil
	}

	if len(args) == 0 {
		return fmt.Errorf("either specify a dealID or use --all")
	}
	dealID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid deal ID %q", args[0])
	}

	score, err := eng.RecomputeSustainabilityScore(ctx, dealID)
	if err != nil {
		return err
	}
	logger.Info().Int64("deal_id", dealID).Float64("score", score).Msg("Score recomputed")
	return nil
}
