// Package plugin provides an extensible hook system for the credit
// metering engine. Plugins observe spend decisions, debits, ledger
// resets, and plan reconciliation without sitting on the hot path.
package plugin

import (
	"context"
	"time"

	"github.com/veloxio/creditmeter/tier"
	"github.com/veloxio/creditmeter/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// SpendCheck describes the outcome of a quota gate decision.
type SpendCheck struct {
	UserID        string
	Provider      string
	Model         string
	EstimatedCost types.Amount
	Tier          tier.Tier
	Allowed       bool
	Reason        string
}

// Debit describes a usage debit that was committed to an account.
type Debit struct {
	UserID    string
	Provider  string
	Model     string
	Units     int64
	Cost      types.Amount
	Remaining types.Amount
}

// Reset describes a monthly allowance reset applied to a ledger.
type Reset struct {
	UserID string
	Tier   tier.Tier
	Before types.Amount
	After  types.Amount
}

// TierChange describes a membership tier transition for a user.
type TierChange struct {
	UserID string
	From   tier.Tier
	To     tier.Tier
}

// LimitChange describes a committed custom limit change.
type LimitChange struct {
	UserID   string
	From     types.Amount
	To       types.Amount
	ChargeID string
}

// Reconciled describes a processed upstream billing event.
type Reconciled struct {
	EventType       string
	SubscriptionRef string
	UserID          string
	Tier            tier.Tier
	Elapsed         time.Duration
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Quota gate hooks
// ──────────────────────────────────────────────────

// OnSpendChecked is called after every spend decision, allowed or not.
type OnSpendChecked interface {
	Plugin
	OnSpendChecked(ctx context.Context, check SpendCheck) error
}

// OnSpendDenied is called only when a spend is denied.
type OnSpendDenied interface {
	Plugin
	OnSpendDenied(ctx context.Context, check SpendCheck) error
}

// ──────────────────────────────────────────────────
// Ledger hooks
// ──────────────────────────────────────────────────

// OnDebitApplied is called after a usage debit is committed.
type OnDebitApplied interface {
	Plugin
	OnDebitApplied(ctx context.Context, d Debit) error
}

// OnLedgerReset is called after a monthly allowance reset is committed.
type OnLedgerReset interface {
	Plugin
	OnLedgerReset(ctx context.Context, r Reset) error
}

// ──────────────────────────────────────────────────
// Plan hooks
// ──────────────────────────────────────────────────

// OnTierChanged is called when a user's membership tier transitions.
type OnTierChanged interface {
	Plugin
	OnTierChanged(ctx context.Context, tc TierChange) error
}

// OnLimitChanged is called after a custom limit change is committed.
type OnLimitChanged interface {
	Plugin
	OnLimitChanged(ctx context.Context, lc LimitChange) error
}

// OnEventReconciled is called after an upstream billing event is
// reconciled into the local state.
type OnEventReconciled interface {
	Plugin
	OnEventReconciled(ctx context.Context, r Reconciled) error
}
