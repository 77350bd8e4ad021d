package creditmeter

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/veloxio/creditmeter/account"
	"github.com/veloxio/creditmeter/billing"
	"github.com/veloxio/creditmeter/cache"
	"github.com/veloxio/creditmeter/id"
	"github.com/veloxio/creditmeter/plugin"
	"github.com/veloxio/creditmeter/pricing"
	"github.com/veloxio/creditmeter/reconcile"
	"github.com/veloxio/creditmeter/store"
	"github.com/veloxio/creditmeter/tier"
	"github.com/veloxio/creditmeter/types"
)

// Engine is the credit metering engine. It gates paid calls against
// per-user credit ledgers, applies debits after successful calls, and
// reconciles local state with the external subscription service.
type Engine struct {
	store    store.Store
	billing  billing.Client
	prices   *pricing.Table
	products *tier.ProductTable
	plugins  *plugin.Registry
	logger   *slog.Logger

	tiers   cache.TierCache
	records *cache.TTL[string, *account.Account]

	reconciler *reconcile.Handler

	stopChan chan struct{}
	wg       sync.WaitGroup

	// Configuration
	tierTTL         time.Duration
	recordTTL       time.Duration
	sweepInterval   time.Duration
	revisionRetries int
	midAllowance    types.Amount
	topDefaultLimit types.Amount
	minCustomLimit  types.Amount
}

// New creates an Engine over a record store, the external subscription
// service, and a static price table.
func New(s store.Store, b billing.Client, prices *pricing.Table, opts ...Option) *Engine {
	e := &Engine{
		store:           s,
		billing:         b,
		prices:          prices,
		products:        tier.NewProductTable(nil, nil),
		plugins:         plugin.NewRegistry(),
		logger:          slog.Default(),
		stopChan:        make(chan struct{}),
		tierTTL:         5 * time.Minute,
		recordTTL:       30 * time.Second,
		sweepInterval:   time.Minute,
		revisionRetries: 3,
		midAllowance:    types.FromFloat(5),
		topDefaultLimit: types.FromFloat(10),
		minCustomLimit:  types.FromFloat(5),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.tiers == nil {
		e.tiers = cache.NewMemoryTierCache(e.tierTTL)
	}
	e.records = cache.NewTTL[string, *account.Account](e.recordTTL)
	e.reconciler = reconcile.NewHandler(e.store, e.tiers, e.plugins, e.logger)

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithTierCache replaces the default in-process tier cache, e.g. with
// the Redis-backed one for multi-instance deployments.
func WithTierCache(c cache.TierCache) Option {
	return func(e *Engine) {
		e.tiers = c
	}
}

// WithProductTable sets the product-to-tier mapping used by tier
// resolution.
func WithProductTable(t *tier.ProductTable) Option {
	return func(e *Engine) {
		e.products = t
	}
}

// WithTierTTL sets the base TTL for cached tiers. Tiers resolved from
// an active subscription are cached for twice this.
func WithTierTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		e.tierTTL = ttl
	}
}

// WithRecordTTL sets the TTL for cached account record snapshots.
func WithRecordTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		e.recordTTL = ttl
	}
}

// WithAllowances sets the Mid monthly allowance and the Top tier's
// default limit.
func WithAllowances(midAllowance, topDefaultLimit types.Amount) Option {
	return func(e *Engine) {
		e.midAllowance = midAllowance
		e.topDefaultLimit = topDefaultLimit
	}
}

// WithMinCustomLimit sets the floor for custom limit changes.
func WithMinCustomLimit(limit types.Amount) Option {
	return func(e *Engine) {
		e.minCustomLimit = limit
	}
}

// WithRevisionRetries bounds how many times a read-modify-write cycle
// is retried after a revision conflict.
func WithRevisionRetries(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.revisionRetries = n
		}
	}
}

// Start migrates the store, initializes plugins, and begins the cache
// sweep worker. The sweeper only expires cache entries; it never
// triggers ledger resets, which stay lazy on access.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	e.plugins.EmitInit(ctx, e)

	e.wg.Add(1)
	go e.sweepWorker()

	e.logger.Info("creditmeter started",
		"tier_ttl", e.tierTTL,
		"record_ttl", e.recordTTL,
		"mid_allowance", e.midAllowance,
		"top_default_limit", e.topDefaultLimit,
	)

	return nil
}

// Stop shuts the engine down.
func (e *Engine) Stop() error {
	close(e.stopChan)
	e.wg.Wait()

	e.plugins.EmitShutdown(context.Background())

	return e.store.Close()
}

// Reconciler returns the handler for subscription lifecycle events.
func (e *Engine) Reconciler() *reconcile.Handler {
	return e.reconciler
}

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry {
	return e.plugins
}

type sweeper interface {
	Sweep() int
}

func (e *Engine) sweepWorker() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			dropped := e.records.Sweep()
			if s, ok := e.tiers.(sweeper); ok {
				dropped += s.Sweep()
			}
			if dropped > 0 {
				e.logger.Debug("cache sweep", "dropped", dropped)
			}
		}
	}
}

// ──────────────────────────────────────────────────
// Account lifecycle
// ──────────────────────────────────────────────────

// CreateAccount registers a record for a new user.
func (e *Engine) CreateAccount(ctx context.Context, userID string) (*account.Account, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}

	a := &account.Account{
		ID:     id.NewAccountID(),
		Entity: types.NewEntity(),
		UserID: userID,
	}
	if err := e.store.CreateAccount(ctx, a); err != nil {
		return nil, err
	}

	e.logger.Info("account created", "user", userID, "id", a.ID)
	return a, nil
}

// GetAccount returns the user's record, bypassing the snapshot cache.
func (e *Engine) GetAccount(ctx context.Context, userID string) (*account.Account, error) {
	return e.store.GetAccount(ctx, userID)
}

// DeleteAccount removes the record and all cached state for a user.
func (e *Engine) DeleteAccount(ctx context.Context, userID string) error {
	if err := e.store.DeleteAccount(ctx, userID); err != nil {
		return err
	}
	e.records.Delete(userID)
	if err := e.tiers.DeleteTier(ctx, userID); err != nil {
		e.logger.Warn("tier cache invalidation failed", "user", userID, "error", err)
	}
	e.logger.Info("account deleted", "user", userID)
	return nil
}

// loadAccount returns the user's record, serving a snapshot from the
// record cache when fresh. Read paths only; mutations re-read through
// mutateAccount.
func (e *Engine) loadAccount(ctx context.Context, userID string) (*account.Account, error) {
	if a, ok := e.records.Get(userID); ok {
		return a.Clone(), nil
	}
	a, err := e.store.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	e.records.Set(userID, a.Clone())
	return a, nil
}
