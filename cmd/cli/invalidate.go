package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dealopia/deals-service/internal/cache"
)

// invalidateCmd represents the invalidate command
var invalidateCmd = &cobra.Command{
	Use:   "invalidate <group>...",
	Short: "Invalidate cache groups",
	Long: `Drop every cached entry registered under the named invalidation
groups. Accepts the listing groups (featured_deals, nearby_deals,
sustainable_deals, related_deals, new_deals, expiring_deals, popular_deals)
and the parameterized forms category:<id> and shop:<id>.`,
	Example: `  deals-service invalidate featured_deals
  deals-service invalidate category:42 shop:7`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInvalidate,
}

func init() {
	rootCmd.AddCommand(invalidateCmd)
}

func runInvalidate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	client, err := newRedisClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	layer := cache.NewLayer(cache.NewRedisBackend(client), cfg.Cache.GroupTTL)

	var failed []string
	for _, group := range args {
		size, _ := layer.GroupSize(ctx, group)
		if err := layer.InvalidateGroup(ctx, group); err != nil {
			logger.Error().Err(err).Str("group", group).Msg("Invalidation failed")
			failed = append(failed, group)
			continue
		}
		logger.Info().Str("group", group).Int("keys", size).Msg("Group invalidated")
	}

	if len(failed) > 0 {
		return fmt.Errorf("failed to invalidate: %s", strings.Join(failed, ", "))
	}
	return nil
}
