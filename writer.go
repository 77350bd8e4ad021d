package creditmeter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/veloxio/creditmeter/account"
	"github.com/veloxio/creditmeter/billing"
	"github.com/veloxio/creditmeter/ledger"
	"github.com/veloxio/creditmeter/plugin"
	"github.com/veloxio/creditmeter/store"
	"github.com/veloxio/creditmeter/tier"
	"github.com/veloxio/creditmeter/types"
)

// DebitResult reports a committed usage debit.
type DebitResult struct {
	CostApplied      types.Amount `json:"cost_applied"`
	RemainingCredits types.Amount `json:"remaining_credits"`
}

// ApplyDebit records the actual cost of a completed call against the
// user's ledger. The cost is subtracted clamped at zero (the call
// already happened; an overdraft is absorbed, not rejected) and the
// usage log gains a merged (provider, day) entry.
func (e *Engine) ApplyDebit(ctx context.Context, userID, provider, model string, actualInputUnits, actualOutputUnits int64) (*DebitResult, error) {
	cost, err := e.priceOf(provider, model, actualInputUnits, actualOutputUnits, userID)
	if err != nil {
		return nil, err
	}

	var remaining types.Amount
	_, err = e.mutateAccount(ctx, userID, func(a *account.Account) error {
		led, err := ledger.DecodeLedger(a.Attributes)
		if err != nil {
			e.logger.Warn("unparseable ledger, degrading to zero", "user", userID, "error", err)
		}
		usage, err := ledger.DecodeUsage(a.Attributes)
		if err != nil {
			e.logger.Warn("unparseable usage log, starting fresh", "user", userID, "error", err)
			usage = nil
		}

		led.AvailableCredits = led.AvailableCredits.Sub(cost).ClampFloor(types.Zero)
		remaining = led.AvailableCredits

		usage = ledger.MergeUsage(usage, ledger.UsageEntry{
			Provider: provider,
			Day:      ledger.Day(time.Now()),
			Units:    actualInputUnits + actualOutputUnits,
			Cost:     cost,
		})

		a.Attributes = ledger.EncodeLedger(a.Attributes, led)
		a.Attributes = ledger.EncodeUsage(a.Attributes, usage)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.plugins.EmitDebitApplied(ctx, plugin.Debit{
		UserID:    userID,
		Provider:  provider,
		Model:     model,
		Units:     actualInputUnits + actualOutputUnits,
		Cost:      cost,
		Remaining: remaining,
	})
	e.logger.Debug("debit applied",
		"user", userID,
		"provider", provider,
		"cost", cost,
		"remaining", remaining,
	)

	return &DebitResult{CostApplied: cost, RemainingCredits: remaining}, nil
}

// applyMonthlyReset computes the post-reset ledger. Pure.
//
// An inactive subscription leaves the ledger untouched, including
// LastReset, so the reset is retried on every access until the
// subscription becomes active again. An active one tops the balance
// off to max(current, allowance), never adds, clears the custom limit
// for non-Top tiers, and moves LastReset forward only.
func applyMonthlyReset(l ledger.Ledger, t tier.Tier, active bool, now time.Time, midAllowance, topDefaultLimit types.Amount) ledger.Ledger {
	if !active {
		return l
	}

	switch t {
	case tier.Mid:
		l.AvailableCredits = l.AvailableCredits.Max(midAllowance)
		l.CustomLimit = nil
	case tier.Top:
		limit := topDefaultLimit
		if l.CustomLimit != nil {
			limit = *l.CustomLimit
		}
		l.AvailableCredits = l.AvailableCredits.Max(limit)
	default:
		l.AvailableCredits = types.Zero
		l.CustomLimit = nil
	}

	if l.LastReset == nil || now.After(*l.LastReset) {
		ts := now.UTC()
		l.LastReset = &ts
	}
	l.MembershipLevel = t
	return l
}

// runMonthlyReset performs the lazy reset for a user whose ledger is
// due, persisting the result. Inactive subscriptions change nothing and
// leave LastReset behind so the next access retries.
func (e *Engine) runMonthlyReset(ctx context.Context, userID string, t tier.Tier, customerRef string) (ledger.Ledger, error) {
	active, err := e.subscriptionActive(ctx, customerRef)
	if err != nil {
		return ledger.Zero(), fmt.Errorf("creditmeter: reset activity check: %w", err)
	}

	var before, after ledger.Ledger
	wrote := false
	_, err = e.mutateAccount(ctx, userID, func(a *account.Account) error {
		led, err := ledger.DecodeLedger(a.Attributes)
		if err != nil {
			e.logger.Warn("unparseable ledger, degrading to zero", "user", userID, "error", err)
		}
		before = led

		now := time.Now()
		if !led.NeedsReset(now) {
			// A concurrent access already reset; keep its result.
			after = led
			return errNoMutation
		}

		after = applyMonthlyReset(led, t, active, now, e.midAllowance, e.topDefaultLimit)
		if after.Equal(led) {
			return errNoMutation
		}

		wrote = true
		a.Attributes = ledger.EncodeLedger(a.Attributes, after)
		return nil
	})
	if err != nil {
		return ledger.Zero(), err
	}

	if wrote {
		e.plugins.EmitLedgerReset(ctx, plugin.Reset{
			UserID: userID,
			Tier:   t,
			Before: before.AvailableCredits,
			After:  after.AvailableCredits,
		})
		e.logger.Info("monthly reset applied",
			"user", userID,
			"tier", t,
			"before", before.AvailableCredits,
			"after", after.AvailableCredits,
		)
	}
	return after, nil
}

// LimitChangeResult reports a committed custom limit change.
type LimitChangeResult struct {
	NewLimit     types.Amount `json:"new_limit"`
	CreditsDelta types.Amount `json:"credits_delta"`
	ChargeID     string       `json:"charge_id,omitempty"`
}

// ChangeCustomLimit changes a Top-tier user's monthly allowance.
//
// An increase is billing-affecting: the difference is charged upstream
// first with an idempotency key, and only a successful charge commits
// the new limit and adds the delta to the balance immediately; the
// recurring subscription amount is then scheduled to match. A decrease
// commits the limit and the recurring amount only, taking effect at
// the next natural billing cycle with no clawback of current credits.
func (e *Engine) ChangeCustomLimit(ctx context.Context, userID string, newLimit types.Amount) (*LimitChangeResult, error) {
	if newLimit < e.minCustomLimit {
		return nil, fmt.Errorf("%w: minimum is %s", ErrLimitBelowMinimum, e.minCustomLimit)
	}

	t, err := e.ResolveTier(ctx, userID)
	if err != nil {
		return nil, err
	}
	if t != tier.Top {
		return nil, ErrLimitWrongTier
	}

	acct, err := e.store.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if acct.SubscriptionRef == "" {
		return nil, ErrNoSubscription
	}

	led, err := ledger.DecodeLedger(acct.Attributes)
	if err != nil {
		e.logger.Warn("unparseable ledger, degrading to zero", "user", userID, "error", err)
	}
	current := e.topDefaultLimit
	if led.CustomLimit != nil {
		current = *led.CustomLimit
	}
	delta := newLimit.Sub(current)

	var chargeID string
	if delta.IsPositive() {
		// Charge before commit. A declined or failed charge leaves the
		// ledger untouched.
		key := billing.IdempotencyKey(userID, newLimit, "limit_increase")
		charge, err := e.billing.CreateCharge(ctx, acct.SubscriptionRef, delta, key)
		if err != nil {
			return nil, fmt.Errorf("creditmeter: limit increase charge: %w", err)
		}
		chargeID = charge.ID
	}

	creditsDelta := types.Zero
	_, err = e.mutateAccount(ctx, userID, func(a *account.Account) error {
		l, err := ledger.DecodeLedger(a.Attributes)
		if err != nil {
			e.logger.Warn("unparseable ledger, degrading to zero", "user", userID, "error", err)
		}
		limit := newLimit
		l.CustomLimit = &limit
		if delta.IsPositive() {
			l.AvailableCredits = l.AvailableCredits.Add(delta)
			creditsDelta = delta
		}
		a.Attributes = ledger.EncodeLedger(a.Attributes, l)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if sub, found, lerr := e.lookupSubscription(ctx, acct.SubscriptionRef); lerr == nil && found {
		if uerr := e.billing.UpdateRecurringAmount(ctx, sub.ID, newLimit); uerr != nil {
			// The limit is already committed; the recurring amount catches
			// up on the next reconcile or retry.
			e.logger.Error("recurring amount update failed",
				"user", userID,
				"subscription", sub.ID,
				"amount", newLimit,
				"error", uerr,
			)
		}
	} else if lerr != nil {
		e.logger.Error("subscription lookup for recurring update failed",
			"user", userID,
			"error", lerr,
		)
	}

	e.plugins.EmitLimitChanged(ctx, plugin.LimitChange{
		UserID:   userID,
		From:     current,
		To:       newLimit,
		ChargeID: chargeID,
	})
	e.logger.Info("custom limit changed",
		"user", userID,
		"from", current,
		"to", newLimit,
		"credits_delta", creditsDelta,
	)

	return &LimitChangeResult{NewLimit: newLimit, CreditsDelta: creditsDelta, ChargeID: chargeID}, nil
}

// errNoMutation signals mutateAccount that the callback decided not to
// write; the current record is returned with no put.
var errNoMutation = errors.New("creditmeter: no mutation")

// mutateAccount runs a read-modify-write cycle against the store,
// retrying on revision conflicts with a fresh read each attempt. The
// record snapshot cache is invalidated after a successful write.
func (e *Engine) mutateAccount(ctx context.Context, userID string, fn func(*account.Account) error) (*account.Account, error) {
	var lastErr error
	for attempt := 0; attempt < e.revisionRetries; attempt++ {
		acct, err := e.store.GetAccount(ctx, userID)
		if err != nil {
			return nil, err
		}

		if err := fn(acct); err != nil {
			if errors.Is(err, errNoMutation) {
				return acct, nil
			}
			return nil, err
		}

		err = e.store.PutAccount(ctx, acct)
		if err == nil {
			e.records.Delete(userID)
			return acct, nil
		}
		if !errors.Is(err, store.ErrRevisionConflict) {
			return nil, err
		}
		lastErr = err
		e.logger.Debug("revision conflict, retrying", "user", userID, "attempt", attempt+1)
	}
	return nil, fmt.Errorf("creditmeter: write contention exhausted retries: %w", lastErr)
}
