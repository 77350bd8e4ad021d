package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// callTimeout bounds how long a single hook may run. Plugins must
// never stall a spend decision or a debit.
const callTimeout = 5 * time.Second

// Registry manages registered plugins and provides efficient dispatch.
// Hook implementers are cached per interface at registration time so
// emission never type-asserts on the hot path.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	onInit            []OnInit
	onShutdown        []OnShutdown
	onSpendChecked    []OnSpendChecked
	onSpendDenied     []OnSpendDenied
	onDebitApplied    []OnDebitApplied
	onLedgerReset     []OnLedgerReset
	onTierChanged     []OnTierChanged
	onLimitChanged    []OnLimitChanged
	onEventReconciled []OnEventReconciled
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{logger: slog.Default()}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its hook interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	var hooks []string
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
		hooks = append(hooks, "OnInit")
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
		hooks = append(hooks, "OnShutdown")
	}
	if v, ok := p.(OnSpendChecked); ok {
		r.onSpendChecked = append(r.onSpendChecked, v)
		hooks = append(hooks, "OnSpendChecked")
	}
	if v, ok := p.(OnSpendDenied); ok {
		r.onSpendDenied = append(r.onSpendDenied, v)
		hooks = append(hooks, "OnSpendDenied")
	}
	if v, ok := p.(OnDebitApplied); ok {
		r.onDebitApplied = append(r.onDebitApplied, v)
		hooks = append(hooks, "OnDebitApplied")
	}
	if v, ok := p.(OnLedgerReset); ok {
		r.onLedgerReset = append(r.onLedgerReset, v)
		hooks = append(hooks, "OnLedgerReset")
	}
	if v, ok := p.(OnTierChanged); ok {
		r.onTierChanged = append(r.onTierChanged, v)
		hooks = append(hooks, "OnTierChanged")
	}
	if v, ok := p.(OnLimitChanged); ok {
		r.onLimitChanged = append(r.onLimitChanged, v)
		hooks = append(hooks, "OnLimitChanged")
	}
	if v, ok := p.(OnEventReconciled); ok {
		r.onEventReconciled = append(r.onEventReconciled, v)
		hooks = append(hooks, "OnEventReconciled")
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"hooks", hooks,
	)

	return nil
}

// Get returns a plugin by name, or nil.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnInit", func() error {
			return p.OnInit(ctx, engine)
		})
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnShutdown", func() error {
			return p.OnShutdown(ctx)
		})
	}
}

// EmitSpendChecked emits a spend decision event.
func (r *Registry) EmitSpendChecked(ctx context.Context, check SpendCheck) {
	r.mu.RLock()
	plugins := r.onSpendChecked
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnSpendChecked", func() error {
			return p.OnSpendChecked(ctx, check)
		})
	}
}

// EmitSpendDenied emits a denied spend event.
func (r *Registry) EmitSpendDenied(ctx context.Context, check SpendCheck) {
	r.mu.RLock()
	plugins := r.onSpendDenied
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnSpendDenied", func() error {
			return p.OnSpendDenied(ctx, check)
		})
	}
}

// EmitDebitApplied emits a committed debit event.
func (r *Registry) EmitDebitApplied(ctx context.Context, d Debit) {
	r.mu.RLock()
	plugins := r.onDebitApplied
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnDebitApplied", func() error {
			return p.OnDebitApplied(ctx, d)
		})
	}
}

// EmitLedgerReset emits a monthly reset event.
func (r *Registry) EmitLedgerReset(ctx context.Context, reset Reset) {
	r.mu.RLock()
	plugins := r.onLedgerReset
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnLedgerReset", func() error {
			return p.OnLedgerReset(ctx, reset)
		})
	}
}

// EmitTierChanged emits a tier transition event.
func (r *Registry) EmitTierChanged(ctx context.Context, tc TierChange) {
	r.mu.RLock()
	plugins := r.onTierChanged
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnTierChanged", func() error {
			return p.OnTierChanged(ctx, tc)
		})
	}
}

// EmitLimitChanged emits a custom limit change event.
func (r *Registry) EmitLimitChanged(ctx context.Context, lc LimitChange) {
	r.mu.RLock()
	plugins := r.onLimitChanged
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnLimitChanged", func() error {
			return p.OnLimitChanged(ctx, lc)
		})
	}
}

// EmitEventReconciled emits a reconciled billing event.
func (r *Registry) EmitEventReconciled(ctx context.Context, rec Reconciled) {
	r.mu.RLock()
	plugins := r.onEventReconciled
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnEventReconciled", func() error {
			return p.OnEventReconciled(ctx, rec)
		})
	}
}

// call invokes a hook with a timeout and logs failures. Hook errors
// never propagate to the caller.
func (r *Registry) call(ctx context.Context, pluginName, hook string, fn func() error) {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	var err error
	select {
	case err = <-done:
	case <-time.After(callTimeout):
		err = fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		r.logger.Warn("plugin hook failed",
			"plugin", pluginName,
			"hook", hook,
			"error", err,
		)
	}
}
