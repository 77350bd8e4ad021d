// Package account defines the per-user record owned by the record store.
package account

import (
	"github.com/veloxio/creditmeter/id"
	"github.com/veloxio/creditmeter/types"
)

// Account is one record per user, created at registration and deleted only
// on account deletion. Besides a handful of scalar fields it carries a
// single opaque attribute blob in which the credit ledger and usage log
// live alongside unrelated account attributes.
type Account struct {
	types.Entity

	ID id.AccountID `json:"id"`

	// UserID is the opaque stable identifier the rest of the application
	// keys on.
	UserID string `json:"user_id"`

	// SubscriptionRef references the user's customer record in the external
	// subscription service. Empty until first payment setup.
	SubscriptionRef string `json:"subscription_ref,omitempty"`

	// Attributes is the encoded multi-field blob. Components reading one
	// sub-segment must leave all others byte-identical.
	Attributes string `json:"attributes"`

	// Revision is the optimistic-concurrency marker. Every successful put
	// increments it; a put with a stale revision is rejected.
	Revision int64 `json:"revision"`
}

// Clone returns a deep copy safe to mutate without aliasing store memory.
func (a *Account) Clone() *Account {
	dup := *a
	return &dup
}
