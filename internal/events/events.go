// Package events carries entity mutation notifications from the write path
// (the CMS and admin tooling own all deal/shop/category writes) to the cache
// invalidation dispatcher. The transport is a Redis list used as a queue.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Entity names the mutated table.
type Entity string

const (
	EntityDeal     Entity = "deal"
	EntityShop     Entity = "shop"
	EntityCategory Entity = "category"
)

// MutationEvent is the wire format of one entity mutation. Deal events carry
// the context the dispatcher needs to decide which freshness-window groups
// (expiring, new) are affected; shop and category events only need the id.
// CategoryIDs must be the union of the deal's categories before and after
// the mutation, otherwise listings for a removed category go stale.
type MutationEvent struct {
	Entity      Entity    `json:"entity"`
	Action      string    `json:"action"` // created, updated, deleted
	ID          int64     `json:"id"`
	ShopID      int64     `json:"shop_id,omitempty"`
	CategoryIDs []int64   `json:"category_ids,omitempty"`
	EndDate     time.Time `json:"end_date,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// Queue is a Redis-list backed mutation event queue.
type Queue struct {
	client *redis.Client
	key    string
}

// NewQueue creates a queue on the given list key.
func NewQueue(client *redis.Client, key string) *Queue {
	return &Queue{client: client, key: key}
}

// Publish appends an event to the queue.
func (q *Queue) Publish(ctx context.Context, ev MutationEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push event: %w", err)
	}
	return nil
}

// Pop blocks until an event is available or ctx is done. The short BRPop
// timeout keeps the loop responsive to cancellation.
func (q *Queue) Pop(ctx context.Context) (MutationEvent, error) {
	for {
		if err := ctx.Err(); err != nil {
			return MutationEvent{}, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return MutationEvent{}, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return MutationEvent{}, err
		}
		if len(res) != 2 {
			return MutationEvent{}, errors.New("event queue: unexpected response")
		}

		var ev MutationEvent
		if err := json.Unmarshal([]byte(res[1]), &ev); err != nil {
			return MutationEvent{}, fmt.Errorf("decode event: %w", err)
		}
		return ev, nil
	}
}
