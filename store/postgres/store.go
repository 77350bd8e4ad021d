// Package postgres provides a store.Store backed by PostgreSQL via pgx.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/veloxio/creditmeter/account"
	"github.com/veloxio/creditmeter/id"
	"github.com/veloxio/creditmeter/store"
)

//go:embed migrations/*.sql
var migrations embed.FS

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a PostgreSQL store over an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect dials the database and returns a ready store.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creditmeter/postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creditmeter/postgres: ping: %w", err)
	}
	return New(pool), nil
}

// Pool returns the underlying pool for direct access.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Migrate applies the embedded goose migrations.
func (s *Store) Migrate(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(s.pool)
	defer func() { _ = db.Close() }()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("creditmeter/postgres: set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("creditmeter/postgres: migrate: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) CreateAccount(ctx context.Context, a *account.Account) error {
	if a.ID.IsNil() {
		a.ID = id.NewAccountID()
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
		a.UpdatedAt = now
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO cm_accounts (id, user_id, subscription_ref, attributes, revision, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 1, $5, $6)
		ON CONFLICT (user_id) DO NOTHING`,
		a.ID.String(), a.UserID, a.SubscriptionRef, a.Attributes, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creditmeter/postgres: create account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrAlreadyExists
	}
	a.Revision = 1
	return nil
}

func (s *Store) GetAccount(ctx context.Context, userID string) (*account.Account, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, subscription_ref, attributes, revision, created_at, updated_at
		FROM cm_accounts WHERE user_id = $1`, userID)
	return scanAccount(row)
}

func (s *Store) PutAccount(ctx context.Context, a *account.Account) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE cm_accounts
		SET subscription_ref = $2, attributes = $3, revision = revision + 1, updated_at = NOW()
		WHERE user_id = $1 AND revision = $4`,
		a.UserID, a.SubscriptionRef, a.Attributes, a.Revision,
	)
	if err != nil {
		return fmt.Errorf("creditmeter/postgres: put account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing record from a stale revision.
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM cm_accounts WHERE user_id = $1)`, a.UserID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("creditmeter/postgres: put account: %w", err)
		}
		if !exists {
			return store.ErrAccountNotFound
		}
		return store.ErrRevisionConflict
	}
	a.Revision++
	return nil
}

func (s *Store) FindBySubscription(ctx context.Context, subscriptionRef string) (*account.Account, error) {
	if subscriptionRef == "" {
		return nil, store.ErrAccountNotFound
	}
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, subscription_ref, attributes, revision, created_at, updated_at
		FROM cm_accounts WHERE subscription_ref = $1`, subscriptionRef)
	return scanAccount(row)
}

func (s *Store) Scan(ctx context.Context, pred func(*account.Account) bool) ([]*account.Account, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, subscription_ref, attributes, revision, created_at, updated_at
		FROM cm_accounts`)
	if err != nil {
		return nil, fmt.Errorf("creditmeter/postgres: scan: %w", err)
	}
	defer rows.Close()

	result := make([]*account.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		if pred == nil || pred(a) {
			result = append(result, a)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("creditmeter/postgres: scan: %w", err)
	}
	return result, nil
}

func (s *Store) DeleteAccount(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM cm_accounts WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("creditmeter/postgres: delete account: %w", err)
	}
	return nil
}

// rowScanner covers both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*account.Account, error) {
	var a account.Account
	var rawID string
	err := row.Scan(&rawID, &a.UserID, &a.SubscriptionRef, &a.Attributes, &a.Revision, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrAccountNotFound
		}
		return nil, fmt.Errorf("creditmeter/postgres: scan account: %w", err)
	}
	if rawID != "" {
		parsed, err := id.ParseAccountID(rawID)
		if err != nil {
			return nil, fmt.Errorf("creditmeter/postgres: account id: %w", err)
		}
		a.ID = parsed
	}
	return &a, nil
}
