package cache

import (
	"context"
	"errors"
	"time"

	"github.com/veloxio/creditmeter/tier"
)

// ErrMiss is returned by tier caches when no unexpired entry exists.
var ErrMiss = errors.New("creditmeter: cache miss")

// TierCache stores resolved membership tiers keyed by user id. The
// engine ships an in-process implementation; a shared one (Redis)
// lets several instances agree on recently resolved tiers.
type TierCache interface {
	GetTier(ctx context.Context, userID string) (tier.Tier, error)
	SetTier(ctx context.Context, userID string, t tier.Tier, ttl time.Duration) error
	DeleteTier(ctx context.Context, userID string) error
}

// MemoryTierCache is a process-local TierCache over a TTL map.
type MemoryTierCache struct {
	ttl *TTL[string, tier.Tier]
}

// NewMemoryTierCache creates an in-process tier cache.
func NewMemoryTierCache(defaultTTL time.Duration) *MemoryTierCache {
	return &MemoryTierCache{ttl: NewTTL[string, tier.Tier](defaultTTL)}
}

func (c *MemoryTierCache) GetTier(_ context.Context, userID string) (tier.Tier, error) {
	t, ok := c.ttl.Get(userID)
	if !ok {
		return tier.Free, ErrMiss
	}
	return t, nil
}

func (c *MemoryTierCache) SetTier(_ context.Context, userID string, t tier.Tier, ttl time.Duration) error {
	c.ttl.SetTTL(userID, t, ttl)
	return nil
}

func (c *MemoryTierCache) DeleteTier(_ context.Context, userID string) error {
	c.ttl.Delete(userID)
	return nil
}

// Sweep drops expired tier entries.
func (c *MemoryTierCache) Sweep() int { return c.ttl.Sweep() }
