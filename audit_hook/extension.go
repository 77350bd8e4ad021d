// Package audithook bridges engine lifecycle events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not depend
// on any particular audit store. Callers inject a RecorderFunc adapter
// at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/veloxio/creditmeter/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin            = (*Extension)(nil)
	_ plugin.OnSpendDenied     = (*Extension)(nil)
	_ plugin.OnDebitApplied    = (*Extension)(nil)
	_ plugin.OnLedgerReset     = (*Extension)(nil)
	_ plugin.OnTierChanged     = (*Extension)(nil)
	_ plugin.OnLimitChanged    = (*Extension)(nil)
	_ plugin.OnEventReconciled = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement. It is
// defined locally so this package carries no backend dependency; the
// concrete recorder is injected at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges engine lifecycle events to an audit trail backend.
// Only billing-affecting and access-denying actions are recorded;
// allowed spend checks would swamp the trail.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided
// Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// OnSpendDenied implements plugin.OnSpendDenied.
func (e *Extension) OnSpendDenied(ctx context.Context, check plugin.SpendCheck) error {
	return e.record(ctx, ActionSpendDenied, SeverityWarning, OutcomeFailure,
		ResourceLedger, check.UserID, CategoryAccess, nil,
		"user_id", check.UserID,
		"provider", check.Provider,
		"model", check.Model,
		"tier", check.Tier.String(),
		"estimated_cost", check.EstimatedCost.String(),
		"deny_reason", check.Reason,
	)
}

// OnDebitApplied implements plugin.OnDebitApplied.
func (e *Extension) OnDebitApplied(ctx context.Context, d plugin.Debit) error {
	return e.record(ctx, ActionDebitApplied, SeverityInfo, OutcomeSuccess,
		ResourceLedger, d.UserID, CategoryUsage, nil,
		"user_id", d.UserID,
		"provider", d.Provider,
		"model", d.Model,
		"units", d.Units,
		"cost", d.Cost.String(),
		"remaining", d.Remaining.String(),
	)
}

// OnLedgerReset implements plugin.OnLedgerReset.
func (e *Extension) OnLedgerReset(ctx context.Context, r plugin.Reset) error {
	return e.record(ctx, ActionLedgerReset, SeverityInfo, OutcomeSuccess,
		ResourceLedger, r.UserID, CategoryBilling, nil,
		"user_id", r.UserID,
		"tier", r.Tier.String(),
		"before", r.Before.String(),
		"after", r.After.String(),
	)
}

// OnTierChanged implements plugin.OnTierChanged.
func (e *Extension) OnTierChanged(ctx context.Context, tc plugin.TierChange) error {
	return e.record(ctx, ActionTierChanged, SeverityInfo, OutcomeSuccess,
		ResourceTier, tc.UserID, CategoryBilling, nil,
		"user_id", tc.UserID,
		"from", tc.From.String(),
		"to", tc.To.String(),
	)
}

// OnLimitChanged implements plugin.OnLimitChanged.
func (e *Extension) OnLimitChanged(ctx context.Context, lc plugin.LimitChange) error {
	return e.record(ctx, ActionLimitChanged, SeverityInfo, OutcomeSuccess,
		ResourceLimit, lc.UserID, CategoryPayment, nil,
		"user_id", lc.UserID,
		"from", lc.From.String(),
		"to", lc.To.String(),
		"charge_id", lc.ChargeID,
	)
}

// OnEventReconciled implements plugin.OnEventReconciled.
func (e *Extension) OnEventReconciled(ctx context.Context, r plugin.Reconciled) error {
	return e.record(ctx, ActionEventReconciled, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, r.SubscriptionRef, CategoryBilling, nil,
		"event_type", r.EventType,
		"subscription_ref", r.SubscriptionRef,
		"user_id", r.UserID,
	)
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
