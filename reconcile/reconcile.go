// Package reconcile consumes asynchronous subscription lifecycle events
// from the billing authority and folds them into the locally stored
// tier and ledger. Handling is idempotent: state is derived from the
// upstream status carried on the event, never accumulated from deltas,
// so replaying an event has no additional effect.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/veloxio/creditmeter/billing"
	"github.com/veloxio/creditmeter/cache"
	"github.com/veloxio/creditmeter/ledger"
	"github.com/veloxio/creditmeter/plugin"
	"github.com/veloxio/creditmeter/store"
	"github.com/veloxio/creditmeter/tier"
)

// EventType identifies a subscription lifecycle event.
type EventType string

const (
	EventPaymentSucceeded      EventType = "payment_succeeded"
	EventPaymentFailed         EventType = "payment_failed"
	EventSubscriptionUpdated   EventType = "subscription_updated"
	EventSubscriptionCancelled EventType = "subscription_cancelled"
	EventSubscriptionDeleted   EventType = "subscription_deleted"
)

// Event is one lifecycle notification from the billing authority. The
// event carries the subscription's current upstream state, not a delta.
type Event struct {
	Type            EventType
	SubscriptionRef string
	CustomerRef     string
	Status          billing.Status
	ProductName     string
}

// Cancelling reports whether the event ends the subscription.
func (e Event) Cancelling() bool {
	return e.Type == EventSubscriptionCancelled || e.Type == EventSubscriptionDeleted
}

// Transition is the pure tier state machine: given the currently stored
// tier and an event, it returns the tier the account should hold.
//
// Cancellation always lands on Free. An update whose status is
// active-equivalent adopts the paid tier named by the event's product;
// a product name that does not normalize to a paid tier (display names,
// unknown plans) keeps the current tier, since an active subscription is
// never downgraded on a name the event handler cannot map. The resolver
// re-derives the tier from the product tables on the next access. Any
// other event leaves the tier alone; degraded statuses (past_due,
// unpaid) are only warned about here since the rank resolver fails
// closed toward a lower tier on its next upstream resolution.
func Transition(current tier.Tier, e Event) tier.Tier {
	switch {
	case e.Cancelling():
		return tier.Free
	case e.Type == EventSubscriptionUpdated && e.Status.ActiveEquivalent() && e.ProductName != "":
		if t := tier.Normalize(e.ProductName); t.IsPaid() {
			return t
		}
		return current
	default:
		return current
	}
}

const putRetries = 3

// Handler applies events against the record store.
type Handler struct {
	store   store.Store
	tiers   cache.TierCache
	plugins *plugin.Registry
	logger  *slog.Logger
}

// NewHandler creates a reconciliation handler. The tier cache and plugin
// registry are optional.
func NewHandler(st store.Store, tiers cache.TierCache, plugins *plugin.Registry, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: st, tiers: tiers, plugins: plugins, logger: logger}
}

// Handle processes one lifecycle event. Events for subscriptions with no
// local record are logged and dropped; the billing authority fans events
// out to every listener, not just ones holding the account.
func (h *Handler) Handle(ctx context.Context, e Event) error {
	start := time.Now()

	if e.SubscriptionRef == "" {
		h.logger.Warn("reconcile: event without subscription reference", "type", e.Type)
		return nil
	}

	acct, err := h.store.FindBySubscription(ctx, e.SubscriptionRef)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			h.logger.Warn("reconcile: no account for subscription",
				"type", e.Type,
				"subscription", e.SubscriptionRef,
			)
			return nil
		}
		return fmt.Errorf("reconcile: find account: %w", err)
	}

	switch e.Type {
	case EventPaymentSucceeded:
		// Informational only; the next lazy reset tops the ledger off.
		h.logger.Info("reconcile: payment succeeded",
			"user", acct.UserID,
			"subscription", e.SubscriptionRef,
		)
	case EventPaymentFailed:
		// No immediate downgrade. Upstream retry schedules run their
		// course and emit a cancellation if they exhaust.
		h.logger.Warn("reconcile: payment failed",
			"user", acct.UserID,
			"subscription", e.SubscriptionRef,
		)
	case EventSubscriptionUpdated:
		if e.Status == billing.StatusPastDue || e.Status == billing.StatusUnpaid {
			h.logger.Warn("reconcile: subscription degraded",
				"user", acct.UserID,
				"subscription", e.SubscriptionRef,
				"status", e.Status,
			)
		}
		if err := h.applyTier(ctx, acct.UserID, e); err != nil {
			return err
		}
	case EventSubscriptionCancelled, EventSubscriptionDeleted:
		if err := h.applyTier(ctx, acct.UserID, e); err != nil {
			return err
		}
	default:
		h.logger.Warn("reconcile: unknown event type", "type", e.Type)
		return nil
	}

	if h.plugins != nil {
		h.plugins.EmitEventReconciled(ctx, plugin.Reconciled{
			EventType:       string(e.Type),
			SubscriptionRef: e.SubscriptionRef,
			UserID:          acct.UserID,
			Elapsed:         time.Since(start),
		})
	}
	return nil
}

// applyTier folds the event's tier outcome into the stored ledger and
// drops the cached tier so the next resolution sees fresh state. The
// write is a read-modify-write retried on revision conflicts.
func (h *Handler) applyTier(ctx context.Context, userID string, e Event) error {
	var from, to tier.Tier
	changed := false

	for attempt := 0; attempt < putRetries; attempt++ {
		acct, err := h.store.GetAccount(ctx, userID)
		if err != nil {
			return fmt.Errorf("reconcile: load account: %w", err)
		}

		led, err := ledger.DecodeLedger(acct.Attributes)
		if err != nil {
			h.logger.Warn("reconcile: unparseable ledger, degrading to zero",
				"user", userID,
				"error", err,
			)
		}

		from = led.MembershipLevel
		to = Transition(from, e)
		changed = to != from
		clearRef := e.Cancelling() && acct.SubscriptionRef != ""
		if !changed && !clearRef {
			break
		}

		led.MembershipLevel = to
		acct.Attributes = ledger.EncodeLedger(acct.Attributes, led)
		if clearRef {
			acct.SubscriptionRef = ""
		}

		err = h.store.PutAccount(ctx, acct)
		if err == nil {
			break
		}
		if errors.Is(err, store.ErrRevisionConflict) && attempt < putRetries-1 {
			continue
		}
		return fmt.Errorf("reconcile: persist tier: %w", err)
	}

	if h.tiers != nil {
		if err := h.tiers.DeleteTier(ctx, userID); err != nil {
			h.logger.Warn("reconcile: tier cache invalidation failed",
				"user", userID,
				"error", err,
			)
		}
	}

	if changed {
		h.logger.Info("reconcile: tier transition",
			"user", userID,
			"from", from,
			"to", to,
			"event", e.Type,
		)
		if h.plugins != nil {
			h.plugins.EmitTierChanged(ctx, plugin.TierChange{UserID: userID, From: from, To: to})
		}
	}
	return nil
}
