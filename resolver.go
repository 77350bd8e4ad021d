package creditmeter

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/veloxio/creditmeter/billing"
	"github.com/veloxio/creditmeter/cache"
	"github.com/veloxio/creditmeter/ledger"
	"github.com/veloxio/creditmeter/tier"
)

// ResolveTier resolves a user's current membership tier.
//
// Cache-first: a cached tier younger than its TTL wins. Otherwise the
// account's subscription reference is looked up upstream, the winning
// subscription's product mapped to a tier, and the result cached with
// a last-writer-wins overwrite. Tiers resolved from an active
// subscription are cached for twice the base TTL. An upstream failure
// falls back to the tier last written locally and is never cached.
func (e *Engine) ResolveTier(ctx context.Context, userID string) (tier.Tier, error) {
	if t, err := e.tiers.GetTier(ctx, userID); err == nil {
		return t, nil
	} else if !errors.Is(err, cache.ErrMiss) {
		e.logger.Warn("tier cache read failed", "user", userID, "error", err)
	}

	acct, err := e.loadAccount(ctx, userID)
	if err != nil {
		return tier.Free, err
	}

	if acct.SubscriptionRef == "" {
		e.cacheTier(ctx, userID, tier.Free, e.tierTTL)
		return tier.Free, nil
	}

	sub, found, err := e.lookupSubscription(ctx, acct.SubscriptionRef)
	if err != nil {
		// Fall back to the locally stored tier; never cache a failure.
		stored := e.storedTier(acct.Attributes, userID)
		e.logger.Warn("tier resolution fell back to stored tier",
			"user", userID,
			"tier", stored,
			"error", err,
		)
		return stored, nil
	}
	if !found {
		e.cacheTier(ctx, userID, tier.Free, e.tierTTL)
		return tier.Free, nil
	}

	resolved := e.mapProduct(ctx, sub, userID)

	ttl := e.tierTTL
	if sub.Status == billing.StatusActive {
		ttl *= 2
	}
	e.cacheTier(ctx, userID, resolved, ttl)
	return resolved, nil
}

// lookupSubscription queries the upstream service for the customer's
// winning subscription, retrying once with backoff on transient errors.
func (e *Engine) lookupSubscription(ctx context.Context, customerRef string) (billing.Subscription, bool, error) {
	subs, err := backoff.Retry(ctx, func() ([]billing.Subscription, error) {
		subs, err := e.billing.ListSubscriptions(ctx, customerRef, nil)
		if err != nil && IsNotFound(err) {
			// Not-found is stable; retrying cannot help.
			return nil, backoff.Permanent(err)
		}
		return subs, err
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(2),
	)
	if err != nil {
		return billing.Subscription{}, false, err
	}
	sub, ok := billing.Pick(subs)
	return sub, ok, nil
}

// mapProduct maps a subscription's product to a tier: reference table
// first, then the display-name table for billing contexts where product
// identifiers are not stable.
func (e *Engine) mapProduct(ctx context.Context, sub billing.Subscription, userID string) tier.Tier {
	if t, ok := e.products.ByRef(sub.ProductRef); ok {
		return t
	}

	product, err := e.billing.GetProduct(ctx, sub.ProductRef)
	if err != nil {
		e.logger.Warn("product lookup failed, resolving to free",
			"user", userID,
			"product", sub.ProductRef,
			"error", err,
		)
		return tier.Free
	}
	if t, ok := e.products.ByName(product.Name); ok {
		return t
	}

	e.logger.Warn("unmapped product, resolving to free",
		"user", userID,
		"product", sub.ProductRef,
		"name", product.Name,
	)
	return tier.Free
}

// storedTier reads the membership level last written to the ledger.
func (e *Engine) storedTier(attrs, userID string) tier.Tier {
	led, err := ledger.DecodeLedger(attrs)
	if err != nil {
		e.logger.Warn("unparseable ledger, degrading to zero", "user", userID, "error", err)
	}
	return led.MembershipLevel
}

func (e *Engine) cacheTier(ctx context.Context, userID string, t tier.Tier, ttl time.Duration) {
	if err := e.tiers.SetTier(ctx, userID, t, ttl); err != nil {
		e.logger.Warn("tier cache write failed", "user", userID, "error", err)
	}
}

// subscriptionActive is the cheap active-equivalent check used before a
// monthly reset. An absent subscription reference counts as inactive.
func (e *Engine) subscriptionActive(ctx context.Context, customerRef string) (bool, error) {
	if customerRef == "" {
		return false, nil
	}
	sub, found, err := e.lookupSubscription(ctx, customerRef)
	if err != nil {
		return false, err
	}
	return found && sub.Status.ActiveEquivalent(), nil
}
