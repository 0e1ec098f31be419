package events

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dealopia/deals-service/internal/cache"
)

// Consumer drains the mutation queue and turns each event into cache group
// invalidations. One consumer per process is enough; invalidation is
// idempotent, so running more is safe if redundant.
type Consumer struct {
	queue      *Queue
	dispatcher *cache.Dispatcher
	logger     zerolog.Logger

	// OnDeal, when set, runs after invalidation for every deal event.
	// The server uses it to schedule sustainability score recomputes.
	OnDeal func(context.Context, MutationEvent)
}

// NewConsumer creates a consumer wiring the queue to the dispatcher.
func NewConsumer(queue *Queue, dispatcher *cache.Dispatcher) *Consumer {
	return &Consumer{
		queue:      queue,
		dispatcher: dispatcher,
		logger:     log.With().Str("component", "events_consumer").Logger(),
	}
}

// Run processes events until ctx is cancelled. Transient queue errors are
// logged and retried with a short backoff; a malformed event is dropped, not
// retried, so one bad payload cannot wedge the queue.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info().Msg("mutation event consumer started")

	for {
		ev, err := c.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				c.logger.Info().Msg("mutation event consumer stopped")
				return ctx.Err()
			}
			c.logger.Error().Err(err).Msg("failed to pop mutation event")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		c.handle(ctx, ev)
	}
}

func (c *Consumer) handle(ctx context.Context, ev MutationEvent) {
	switch ev.Entity {
	case EntityDeal:
		c.dispatcher.DealChanged(ctx, cache.DealChange{
			DealID:      ev.ID,
			ShopID:      ev.ShopID,
			CategoryIDs: ev.CategoryIDs,
			EndDate:     ev.EndDate,
			CreatedAt:   ev.CreatedAt,
		})
		if c.OnDeal != nil && ev.Action != "deleted" {
			c.OnDeal(ctx, ev)
		}
	case EntityShop:
		c.dispatcher.ShopChanged(ctx, ev.ID)
	case EntityCategory:
		c.dispatcher.CategoryChanged(ctx, ev.ID)
	default:
		c.logger.Warn().
			Str("entity", string(ev.Entity)).
			Int64("id", ev.ID).
			Msg("dropping mutation event for unknown entity")
	}
}
