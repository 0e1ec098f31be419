package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dealopia/deals-service/internal/events"
)

var (
	publishShopID     int64
	publishCategories []int64
	publishAction     string
	publishEndDate    string
)

// publishCmd represents the publish-event command
var publishCmd = &cobra.Command{
	Use:   "publish-event <entity> <id>",
	Short: "Publish a mutation event to the queue",
	Long: `Publish a deal, shop, or category mutation event onto the Redis
queue the service consumes. Intended for testing invalidation wiring and for
replaying missed mutations.`,
	Example: `  deals-service publish-event deal 1234 --shop 7 --categories 3,9
  deals-service publish-event shop 7`,
	Args: cobra.ExactArgs(2),
	RunE: runPublishEvent,
}

func init() {
	rootCmd.AddCommand(publishCmd)

	publishCmd.Flags().Int64Var(&publishShopID, "shop", 0, "Shop id (deal events)")
	publishCmd.Flags().Int64SliceVar(&publishCategories, "categories", nil, "Category ids (deal events)")
	publishCmd.Flags().StringVar(&publishAction, "action", "updated", "Mutation action: created, updated, deleted")
	publishCmd.Flags().StringVar(&publishEndDate, "end-date", "", "Deal end date (RFC 3339, deal events)")
}

func runPublishEvent(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	entity := events.Entity(args[0])
	switch entity {
	case events.EntityDeal, events.EntityShop, events.EntityCategory:
	default:
		return fmt.Errorf("unknown entity %q, want deal, shop, or category", args[0])
	}

	var id int64
	if _, err := fmt.Sscanf(args[1], "%d", &id); err != nil {
		return fmt.Errorf("invalid id %q", args[1])
	}

	ev := events.MutationEvent{
		Entity:      entity,
		Action:      publishAction,
		ID:          id,
		ShopID:      publishShopID,
		CategoryIDs: publishCategories,
	}
	if publishEndDate != "" {
		endDate, err := time.Parse(time.RFC3339, publishEndDate)
		if err != nil {
			return fmt.Errorf("invalid end date %q: %w", publishEndDate, err)
		}
		ev.EndDate = endDate
	}

	client, err := newRedisClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	queue := events.NewQueue(client, cfg.Events.QueueKey)
	if err := queue.Publish(ctx, ev); err != nil {
		return err
	}

	logger.Info().
		Str("entity", string(entity)).
		Int64("id", id).
		Str("action", publishAction).
		Msg("Event published")
	return nil
}
