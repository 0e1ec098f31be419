package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dealopia/deals-service/internal/cache"
	"github.com/dealopia/deals-service/internal/database"
	"github.com/dealopia/deals-service/internal/engine"
)

var (
	warmLat      float64
	warmLng      float64
	warmRadius   float64
	warmLimit    int
	warmMinScore float64
)

// warmCmd represents the warmup command
var warmCmd = &cobra.Command{
	Use:   "warmup",
	Short: "Pre-fill the shared cache for common queries",
	Long: `Run the featured, sustainable, and nearby discovery queries against
the shared Redis cache so the first real users after a deploy hit warm
entries. The nearby query is only run when --lat and --lng are given.`,
	Example: `  deals-service warmup
  deals-service warmup --lat 45.815 --lng 15.982 --radius 10`,
	RunE: runWarmup,
}

func init() {
	rootCmd.AddCommand(warmCmd)

	warmCmd.Flags().Float64Var(&warmLat, "lat", 0, "Latitude for the nearby warmup query")
	warmCmd.Flags().Float64Var(&warmLng, "lng", 0, "Longitude for the nearby warmup query")
	warmCmd.Flags().Float64Var(&warmRadius, "radius", 10, "Radius in km for the nearby warmup query")
	warmCmd.Flags().IntVar(&warmLimit, "limit", 20, "Result limit per query")
	warmCmd.Flags().Float64Var(&warmMinScore, "min-score", 7.0, "Sustainability threshold for the sustainable query")
}

func runWarmup(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	client, err := newRedisClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	layer := cache.NewLayer(cache.NewRedisBackend(client), cfg.Cache.GroupTTL)
	store := database.NewDealStore(database.Pool())
	eng := engine.New(store, layer, engine.DefaultEngineConfig())

	if _, err := eng.FindFeatured(ctx, warmLimit, 0); err != nil {
		return fmt.Errorf("featured warmup: %w", err)
	}
	logger.Info().Msg("Warmed featured deals")

	if _, err := eng.FindSustainable(ctx, warmMinScore, warmLimit); err != nil {
		return fmt.Errorf("sustainable warmup: %w", err)
	}
	logger.Info().Msg("Warmed sustainable deals")

	if warmLat != 0 || warmLng != 0 {
		deals, err := eng.FindNear(ctx, engine.NearbyQuery{
			Latitude:  warmLat,
			Longitude: warmLng,
			RadiusKm:  warmRadius,
			Limit:     warmLimit,
		})
		if err != nil {
			return fmt.Errorf("nearby warmup: %w", err)
		}
		logger.Info().Int("deals", len(deals)).Msg("Warmed nearby deals")
	}

	return nil
}
