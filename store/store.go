// Package store defines the record-store interface holding one account
// record per user.
package store

import (
	"context"
	"errors"

	"github.com/veloxio/creditmeter/account"
)

// Contract errors shared by every backend.
var (
	// ErrAccountNotFound reports that no record exists for the key.
	ErrAccountNotFound = errors.New("creditmeter: account not found")
	// ErrAlreadyExists reports a CreateAccount for a user that has a record.
	ErrAlreadyExists = errors.New("creditmeter: already exists")
	// ErrRevisionConflict reports a PutAccount with a stale revision.
	ErrRevisionConflict = errors.New("creditmeter: record revision conflict")
)

// Store is the account record store. Writes are full-record overwrites
// guarded by an optimistic revision check: PutAccount succeeds only when
// the record's stored revision matches the one the caller read, closing
// the lost-update window between concurrent read-modify-write cycles.
type Store interface {
	// CreateAccount inserts a new record at revision 1.
	CreateAccount(ctx context.Context, a *account.Account) error

	// GetAccount returns the record for a user.
	GetAccount(ctx context.Context, userID string) (*account.Account, error)

	// PutAccount overwrites the record in full. The write is conditional on
	// a.Revision matching the stored revision; on success the stored and
	// in-memory revisions advance by one. A stale revision returns
	// creditmeter.ErrRevisionConflict.
	PutAccount(ctx context.Context, a *account.Account) error

	// FindBySubscription locates the record carrying a subscription
	// reference. Used by reconciliation when an event arrives keyed by the
	// billing side's identifier.
	FindBySubscription(ctx context.Context, subscriptionRef string) (*account.Account, error)

	// Scan returns all records matching the predicate.
	Scan(ctx context.Context, pred func(*account.Account) bool) ([]*account.Account, error)

	// DeleteAccount removes the record. Only used on account deletion.
	DeleteAccount(ctx context.Context, userID string) error

	// Migrate prepares backing storage.
	Migrate(ctx context.Context) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
