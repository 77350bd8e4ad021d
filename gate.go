package creditmeter

import (
	"context"
	"fmt"
	"time"

	"github.com/veloxio/creditmeter/ledger"
	"github.com/veloxio/creditmeter/plugin"
	"github.com/veloxio/creditmeter/tier"
	"github.com/veloxio/creditmeter/types"
)

// Machine-readable denial reasons.
const (
	ReasonNoAllowance  = "tier_no_allowance"
	ReasonInsufficient = "insufficient_credits"
)

// SpendDecision is the quota gate's answer. Denials always carry the
// current balance and the estimated cost so the caller can explain the
// denial without a second round trip.
type SpendDecision struct {
	Allowed        bool         `json:"allowed"`
	Reason         string       `json:"reason,omitempty"`
	Message        string       `json:"message,omitempty"`
	CurrentCredits types.Amount `json:"current_credits"`
	EstimatedCost  types.Amount `json:"estimated_cost"`
	Tier           tier.Tier    `json:"tier"`
}

// CanSpend decides whether a paid call may proceed. It resolves the
// user's tier, performs a lazy monthly reset when one is due, estimates
// the call's cost from the caller's conservative unit estimates, and
// allows iff the ledger covers the estimate.
//
// The check is advisory, not a reservation: it neither locks nor
// pre-deducts credits, so a concurrent burst can pass the gate and
// later overdraw. Debits clamp at zero, bounding the damage.
func (e *Engine) CanSpend(ctx context.Context, userID, provider, model string, estimatedInputUnits, estimatedOutputUnits int64) (*SpendDecision, error) {
	t, err := e.ResolveTier(ctx, userID)
	if err != nil {
		return nil, err
	}

	estimatedCost, err := e.priceOf(provider, model, estimatedInputUnits, estimatedOutputUnits, userID)
	if err != nil {
		return nil, err
	}

	acct, err := e.loadAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	led, err := ledger.DecodeLedger(acct.Attributes)
	if err != nil {
		e.logger.Warn("unparseable ledger, degrading to zero", "user", userID, "error", err)
	}

	if t == tier.Free {
		return e.decide(ctx, &SpendDecision{
			Allowed:        false,
			Reason:         ReasonNoAllowance,
			Message:        "your plan has no paid-call allowance",
			CurrentCredits: led.AvailableCredits,
			EstimatedCost:  estimatedCost,
			Tier:           t,
		}, userID, provider, model), nil
	}

	if led.NeedsReset(time.Now()) {
		led, err = e.runMonthlyReset(ctx, userID, t, acct.SubscriptionRef)
		if err != nil {
			return nil, err
		}
	}

	if led.AvailableCredits >= estimatedCost {
		return e.decide(ctx, &SpendDecision{
			Allowed:        true,
			CurrentCredits: led.AvailableCredits,
			EstimatedCost:  estimatedCost,
			Tier:           t,
		}, userID, provider, model), nil
	}

	return e.decide(ctx, &SpendDecision{
		Allowed:        false,
		Reason:         ReasonInsufficient,
		Message:        denialMessage(t),
		CurrentCredits: led.AvailableCredits,
		EstimatedCost:  estimatedCost,
		Tier:           t,
	}, userID, provider, model), nil
}

// denialMessage is the tier-specific human-readable explanation for an
// insufficient balance.
func denialMessage(t tier.Tier) string {
	if t == tier.Top {
		return "insufficient credits; raise your limit to continue"
	}
	return "usage frozen until next period"
}

// decide emits the plugin hooks for a finished decision and returns it.
func (e *Engine) decide(ctx context.Context, d *SpendDecision, userID, provider, model string) *SpendDecision {
	check := plugin.SpendCheck{
		UserID:        userID,
		Provider:      provider,
		Model:         model,
		EstimatedCost: d.EstimatedCost,
		Tier:          d.Tier,
		Allowed:       d.Allowed,
		Reason:        d.Reason,
	}
	e.plugins.EmitSpendChecked(ctx, check)
	if !d.Allowed {
		e.plugins.EmitSpendDenied(ctx, check)
		e.logger.Debug("spend denied",
			"user", userID,
			"provider", provider,
			"reason", d.Reason,
			"credits", d.CurrentCredits,
			"estimated_cost", d.EstimatedCost,
		)
	}
	return d
}

// priceOf prices a call and logs the degradation when an unknown model
// fell back to the provider's default model price.
func (e *Engine) priceOf(provider, model string, inputUnits, outputUnits int64, userID string) (types.Amount, error) {
	price, exact, err := e.prices.Resolve(provider, model)
	if err != nil {
		return types.Zero, fmt.Errorf("creditmeter: %w", err)
	}
	if !exact {
		e.logger.Warn("unknown model, using provider default price",
			"user", userID,
			"provider", provider,
			"model", model,
		)
	}
	return price.Cost(inputUnits, outputUnits), nil
}
