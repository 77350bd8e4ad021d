package audithook

// Action constants for audit events.
const (
	// Gate actions
	ActionSpendDenied = "spend.denied"

	// Ledger actions
	ActionDebitApplied = "debit.applied"
	ActionLedgerReset  = "ledger.reset"

	// Plan actions
	ActionTierChanged     = "tier.changed"
	ActionLimitChanged    = "limit.changed"
	ActionEventReconciled = "event.reconciled"
)

// Resource constants for audit events.
const (
	ResourceLedger       = "ledger"
	ResourceTier         = "tier"
	ResourceLimit        = "limit"
	ResourceSubscription = "subscription"
)

// Category constants for audit events.
const (
	CategoryUsage   = "usage"
	CategoryAccess  = "access"
	CategoryPayment = "payment"
	CategoryBilling = "billing"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
