package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDedupStore implements DedupStore using a Redis set per link and
// day. SADD reports whether the member is new, which is exactly the
// first-click-of-the-day check; keys expire shortly after the day ends.
type RedisDedupStore struct {
	client *redis.Client
}

func NewRedisDedupStore(client *redis.Client) *RedisDedupStore {
	return &RedisDedupStore{client: client}
}

func (d *RedisDedupStore) MarkVisitor(ctx context.Context, linkID, day, visitorID string) (bool, error) {
	key := fmt.Sprintf("uniq:%s:%s", linkID, day)

	pipe := d.client.Pipeline()
	added := pipe.SAdd(ctx, key, visitorID)
	pipe.Expire(ctx, key, 48*time.Hour)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to mark visitor: %w", err)
	}
	return added.Val() > 0, nil
}
