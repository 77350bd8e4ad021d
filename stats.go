package creditmeter

import (
	"context"

	"github.com/veloxio/creditmeter/ledger"
	"github.com/veloxio/creditmeter/tier"
	"github.com/veloxio/creditmeter/types"
)

// UsageStats is the caller-facing summary of a user's ledger and usage.
type UsageStats struct {
	Tier             tier.Tier           `json:"tier"`
	AvailableCredits types.Amount        `json:"available_credits"`
	Limit            types.Amount        `json:"limit"`
	TotalUsage       types.Amount        `json:"total_usage"`
	Breakdown        []ledger.UsageEntry `json:"breakdown"`
}

// GetUsageStats returns the user's total usage, remaining credits,
// effective monthly limit, and the per-provider per-day breakdown.
func (e *Engine) GetUsageStats(ctx context.Context, userID string) (*UsageStats, error) {
	t, err := e.ResolveTier(ctx, userID)
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
	usage, err := ledger.DecodeUsage(acct.Attributes)
	if err != nil {
		e.logger.Warn("unparseable usage log, reporting empty", "user", userID, "error", err)
		usage = nil
	}

	return &UsageStats{
		Tier:             t,
		AvailableCredits: led.AvailableCredits,
		Limit:            e.effectiveLimit(t, led),
		TotalUsage:       ledger.TotalUsageCost(usage),
		Breakdown:        usage,
	}, nil
}

// effectiveLimit is the monthly allowance the tier entitles the user to.
func (e *Engine) effectiveLimit(t tier.Tier, led ledger.Ledger) types.Amount {
	switch t {
	case tier.Mid:
		return e.midAllowance
	case tier.Top:
		if led.CustomLimit != nil {
			return *led.CustomLimit
		}
		return e.topDefaultLimit
	default:
		return types.Zero
	}
}
