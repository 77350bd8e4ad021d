// Package creditmeter provides a usage-credit metering and plan
// reconciliation engine for Go applications.
//
// creditmeter is designed as a library, not a service. Import it
// directly into your application and put it in front of every paid
// upstream call. It provides:
//
//   - Quota gating against a per-user credit ledger with lazy monthly
//     resets
//   - Cost calculation from a static price table (token-metered and
//     per-call providers)
//   - Tier resolution against an external subscription service with a
//     short-lived cache and local fallback
//   - Post-call debits with a merged per-provider per-day usage log
//   - Webhook reconciliation of subscription lifecycle events
//   - Pluggable hooks for audit and metrics
//
// # Quick Start
//
// Create an engine over a store, your billing client, and a price
// table:
//
//	import (
//	    "github.com/veloxio/creditmeter"
//	    "github.com/veloxio/creditmeter/pricing"
//	    "github.com/veloxio/creditmeter/store/postgres"
//	)
//
//	st, err := postgres.Connect(ctx, databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	engine := creditmeter.New(st, billingClient, pricing.DefaultTable())
//	if err := engine.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Stop()
//
// Gate a paid call, make it, then debit the actual cost:
//
//	decision, err := engine.CanSpend(ctx, userID, "openai", "gpt-4o", 1200, 400)
//	if err != nil {
//	    return err
//	}
//	if !decision.Allowed {
//	    return fmt.Errorf("%s (balance %s, needs %s)",
//	        decision.Message, decision.CurrentCredits, decision.EstimatedCost)
//	}
//
//	// ... perform the upstream call ...
//
//	_, err = engine.ApplyDebit(ctx, userID, "openai", "gpt-4o", usedIn, usedOut)
//
// The gate is advisory: it does not reserve credits, so a concurrent
// burst for one user can overdraw; debits clamp the balance at zero.
//
// # Amounts
//
// All monetary calculations use integer arithmetic to avoid
// floating-point precision issues. The Amount type represents credits
// in fixed four-decimal basis units.
//
// # TypeID
//
// Entities use TypeID for globally unique, type-safe identifiers:
//
//	acct_01h2xcejqtf2nbrexx3vqjhp41  // Account ID
//	chg_01h455vb4pex5vsknk084sn02q   // Charge ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package creditmeter
