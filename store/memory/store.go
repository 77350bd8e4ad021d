// Package memory provides an in-memory store.Store for tests and demos.
package memory

import (
	"context"
	"sync"

	"github.com/veloxio/creditmeter/account"
	"github.com/veloxio/creditmeter/store"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store keeps account records in a map guarded by a RWMutex. Records are
// copied on the way in and out so callers never alias store memory.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]*account.Account // userID -> record
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		accounts: make(map[string]*account.Account),
	}
}

func (s *Store) CreateAccount(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[a.UserID]; exists {
		return store.ErrAlreadyExists
	}

	stored := a.Clone()
	stored.Revision = 1
	s.accounts[a.UserID] = stored
	a.Revision = 1
	return nil
}

func (s *Store) GetAccount(_ context.Context, userID string) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.accounts[userID]; ok {
		return a.Clone(), nil
	}
	return nil, store.ErrAccountNotFound
}

func (s *Store) PutAccount(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.accounts[a.UserID]
	if !ok {
		return store.ErrAccountNotFound
	}
	if current.Revision != a.Revision {
		return store.ErrRevisionConflict
	}

	stored := a.Clone()
	stored.Revision = current.Revision + 1
	stored.Touch()
	s.accounts[a.UserID] = stored
	a.Revision = stored.Revision
	return nil
}

func (s *Store) FindBySubscription(_ context.Context, subscriptionRef string) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.accounts {
		if a.SubscriptionRef != "" && a.SubscriptionRef == subscriptionRef {
			return a.Clone(), nil
		}
	}
	return nil, store.ErrAccountNotFound
}

func (s *Store) Scan(_ context.Context, pred func(*account.Account) bool) ([]*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*account.Account, 0)
	for _, a := range s.accounts {
		if pred == nil || pred(a) {
			result = append(result, a.Clone())
		}
	}
	return result, nil
}

func (s *Store) DeleteAccount(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.accounts, userID)
	return nil
}

// Store management
func (s *Store) Migrate(_ context.Context) error { return nil }
func (s *Store) Ping(_ context.Context) error    { return nil }
func (s *Store) Close() error                    { return nil }
