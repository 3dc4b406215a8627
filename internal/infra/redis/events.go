package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tcynic/resonant-sub007/internal/core/domain"
)

const (
	eventStream    = "analysis:events"
	eventStreamMax = 10000

	depthKey    = "analysis:queue_depth"
	depthExpiry = 5 * time.Minute
)

// Publish appends an event to the notification stream. The stream is capped
// so an absent consumer cannot grow it unbounded.
func (c *Client) Publish(ctx context.Context, event *domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	err = c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: eventStream,
		MaxLen: eventStreamMax,
		Approx: true,
		Values: map[string]any{
			"type":    string(event.Type),
			"payload": payload,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd failed: %w", err)
	}
	return nil
}

// SetQueueDepth publishes the per-status job counts as a snapshot hash, so
// dashboards can read queue depth without touching the database.
func (c *Client) SetQueueDepth(ctx context.Context, counts map[domain.JobStatus]int) error {
	fields := make(map[string]any, len(counts)+1)
	for status, n := range counts {
		fields[string(status)] = n
	}
	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339)

	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, depthKey)
	pipe.HSet(ctx, depthKey, fields)
	pipe.Expire(ctx, depthKey, depthExpiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write queue depth snapshot: %w", err)
	}
	return nil
}

// GetQueueDepth reads the snapshot hash back, for the status CLI.
func (c *Client) GetQueueDepth(ctx context.Context) (map[string]string, error) {
	out, err := c.rdb.HGetAll(ctx, depthKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read queue depth snapshot: %w", err)
	}
	return out, nil
}
