// Package redis provides a shared tier cache backed by Redis, for
// deployments running more than one engine instance.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/veloxio/creditmeter/cache"
	"github.com/veloxio/creditmeter/tier"
)

const keyPrefix = "cm:tier:"

var _ cache.TierCache = (*TierCache)(nil)

// TierCache stores resolved tiers as plain strings under cm:tier:<user>.
type TierCache struct {
	client redis.UniversalClient
}

// New creates a tier cache over an existing Redis client.
func New(client redis.UniversalClient) *TierCache {
	return &TierCache{client: client}
}

// Connect dials Redis with the given options and verifies connectivity.
func Connect(ctx context.Context, opts *redis.Options) (*TierCache, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("creditmeter/redis: ping: %w", err)
	}
	return New(client), nil
}

func (c *TierCache) GetTier(ctx context.Context, userID string) (tier.Tier, error) {
	raw, err := c.client.Get(ctx, keyPrefix+userID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return tier.Free, cache.ErrMiss
		}
		return tier.Free, fmt.Errorf("creditmeter/redis: get tier: %w", err)
	}
	return tier.Normalize(raw), nil
}

func (c *TierCache) SetTier(ctx context.Context, userID string, t tier.Tier, ttl time.Duration) error {
	if err := c.client.Set(ctx, keyPrefix+userID, t.String(), ttl).Err(); err != nil {
		return fmt.Errorf("creditmeter/redis: set tier: %w", err)
	}
	return nil
}

func (c *TierCache) DeleteTier(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, keyPrefix+userID).Err(); err != nil {
		return fmt.Errorf("creditmeter/redis: delete tier: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (c *TierCache) Close() error {
	return c.client.Close()
}
