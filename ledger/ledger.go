// Package ledger defines the per-user credit ledger and the codec that
// reads and writes it inside an account's encoded attribute blob.
package ledger

import (
	"time"

	"github.com/veloxio/creditmeter/tier"
	"github.com/veloxio/creditmeter/types"
)

// Ledger is the per-user record of remaining spendable allowance for the
// current billing period.
type Ledger struct {
	// AvailableCredits is the remaining allowance. Never negative: debits
	// that would drive it below zero are clamped, not rejected.
	AvailableCredits types.Amount `json:"available_credits"`

	// CustomLimit overrides the default monthly allowance. Only meaningful
	// for the top tier; other tiers ignore it.
	CustomLimit *types.Amount `json:"custom_limit,omitempty"`

	// LastReset is when the ledger was last reset or topped off.
	// Only ever moves forward. Nil until the first reset.
	LastReset *time.Time `json:"last_reset,omitempty"`

	// MembershipLevel is the tier as of the last reset. It decides reset
	// behavior; it is not the source of truth for gating.
	MembershipLevel tier.Tier `json:"membership_level"`
}

// Zero returns the zero-value ledger used when the stored segment is absent
// or unparseable.
func Zero() Ledger {
	return Ledger{MembershipLevel: tier.Free}
}

// NeedsReset reports whether a monthly reset is due: no prior reset, or at
// least one calendar month has elapsed since LastReset.
func (l Ledger) NeedsReset(now time.Time) bool {
	if l.LastReset == nil {
		return true
	}
	return !l.LastReset.AddDate(0, 1, 0).After(now)
}

// Equal compares two ledgers field by field.
func (l Ledger) Equal(other Ledger) bool {
	if l.AvailableCredits != other.AvailableCredits || l.MembershipLevel != other.MembershipLevel {
		return false
	}
	if (l.CustomLimit == nil) != (other.CustomLimit == nil) {
		return false
	}
	if l.CustomLimit != nil && *l.CustomLimit != *other.CustomLimit {
		return false
	}
	if (l.LastReset == nil) != (other.LastReset == nil) {
		return false
	}
	if l.LastReset != nil && !l.LastReset.Equal(*other.LastReset) {
		return false
	}
	return true
}
