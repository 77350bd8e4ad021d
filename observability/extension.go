// Package observability provides a Prometheus metrics extension that
// records engine lifecycle event counts. Register it as an engine
// plugin to track gating, debits, resets, and reconciliation.
package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/veloxio/creditmeter/plugin"
)

// Ensure MetricsExtension implements the hook interfaces it claims.
var (
	_ plugin.Plugin            = (*MetricsExtension)(nil)
	_ plugin.OnSpendChecked    = (*MetricsExtension)(nil)
	_ plugin.OnSpendDenied     = (*MetricsExtension)(nil)
	_ plugin.OnDebitApplied    = (*MetricsExtension)(nil)
	_ plugin.OnLedgerReset     = (*MetricsExtension)(nil)
	_ plugin.OnTierChanged     = (*MetricsExtension)(nil)
	_ plugin.OnLimitChanged    = (*MetricsExtension)(nil)
	_ plugin.OnEventReconciled = (*MetricsExtension)(nil)
)

// MetricsExtension records engine-wide lifecycle metrics.
type MetricsExtension struct {
	spendChecks     *prometheus.CounterVec
	spendDenials    *prometheus.CounterVec
	debits          *prometheus.CounterVec
	debitedCredits  *prometheus.CounterVec
	resets          *prometheus.CounterVec
	tierChanges     *prometheus.CounterVec
	limitChanges    prometheus.Counter
	reconciled      *prometheus.CounterVec
	reconcileDelays prometheus.Histogram
}

// NewMetricsExtension creates a MetricsExtension registering its
// collectors with reg. Pass prometheus.DefaultRegisterer for the
// process-wide registry.
func NewMetricsExtension(reg prometheus.Registerer) *MetricsExtension {
	factory := promauto.With(reg)

	return &MetricsExtension{
		spendChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "creditmeter_spend_checks_total",
			Help: "Quota gate decisions by tier and outcome.",
		}, []string{"tier", "allowed"}),
		spendDenials: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "creditmeter_spend_denials_total",
			Help: "Denied spend checks by tier and reason.",
		}, []string{"tier", "reason"}),
		debits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "creditmeter_debits_total",
			Help: "Committed usage debits by provider.",
		}, []string{"provider"}),
		debitedCredits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "creditmeter_debited_credits_total",
			Help: "Credits debited by provider.",
		}, []string{"provider"}),
		resets: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "creditmeter_ledger_resets_total",
			Help: "Monthly ledger resets by tier.",
		}, []string{"tier"}),
		tierChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "creditmeter_tier_changes_total",
			Help: "Tier transitions by target tier.",
		}, []string{"to"}),
		limitChanges: factory.NewCounter(prometheus.CounterOpts{
			Name: "creditmeter_limit_changes_total",
			Help: "Committed custom limit changes.",
		}),
		reconciled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "creditmeter_events_reconciled_total",
			Help: "Reconciled subscription lifecycle events by type.",
		}, []string{"type"}),
		reconcileDelays: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "creditmeter_reconcile_duration_seconds",
			Help:    "Time spent handling one lifecycle event.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnSpendChecked implements plugin.OnSpendChecked.
func (m *MetricsExtension) OnSpendChecked(_ context.Context, check plugin.SpendCheck) error {
	allowed := "false"
	if check.Allowed {
		allowed = "true"
	}
	m.spendChecks.WithLabelValues(check.Tier.String(), allowed).Inc()
	return nil
}

// OnSpendDenied implements plugin.OnSpendDenied.
func (m *MetricsExtension) OnSpendDenied(_ context.Context, check plugin.SpendCheck) error {
	m.spendDenials.WithLabelValues(check.Tier.String(), check.Reason).Inc()
	return nil
}

// OnDebitApplied implements plugin.OnDebitApplied.
func (m *MetricsExtension) OnDebitApplied(_ context.Context, d plugin.Debit) error {
	m.debits.WithLabelValues(d.Provider).Inc()
	m.debitedCredits.WithLabelValues(d.Provider).Add(d.Cost.Float64())
	return nil
}

// OnLedgerReset implements plugin.OnLedgerReset.
func (m *MetricsExtension) OnLedgerReset(_ context.Context, r plugin.Reset) error {
	m.resets.WithLabelValues(r.Tier.String()).Inc()
	return nil
}

// OnTierChanged implements plugin.OnTierChanged.
func (m *MetricsExtension) OnTierChanged(_ context.Context, tc plugin.TierChange) error {
	m.tierChanges.WithLabelValues(tc.To.String()).Inc()
	return nil
}

// OnLimitChanged implements plugin.OnLimitChanged.
func (m *MetricsExtension) OnLimitChanged(_ context.Context, _ plugin.LimitChange) error {
	m.limitChanges.Inc()
	return nil
}

// OnEventReconciled implements plugin.OnEventReconciled.
func (m *MetricsExtension) OnEventReconciled(_ context.Context, r plugin.Reconciled) error {
	m.reconciled.WithLabelValues(r.EventType).Inc()
	m.reconcileDelays.Observe(r.Elapsed.Seconds())
	return nil
}
