// Package pricing holds the static cost table mapping (provider, model) to
// per-unit prices. The table is loaded at process start and immutable
// thereafter; it only ever computes the cost of a call, never quota policy.
package pricing

import (
	"fmt"

	"github.com/veloxio/creditmeter/types"
)

// ModelPrice is the unit price for one model. Token-metered models carry
// per-1000-unit input/output prices in credits; per-call models carry a
// flat price per call.
type ModelPrice struct {
	InputPerKilo  float64 `json:"input_per_kilo,omitempty"`
	OutputPerKilo float64 `json:"output_per_kilo,omitempty"`
	PerCall       float64 `json:"per_call,omitempty"`
}

// Cost computes the price of a call, rounded once to four decimal places
// so rounding error does not compound across many small calls.
func (p ModelPrice) Cost(inputUnits, outputUnits int64) types.Amount {
	if p.PerCall > 0 {
		calls := inputUnits + outputUnits
		if calls < 1 {
			calls = 1
		}
		return types.FromFloat(p.PerCall * float64(calls))
	}
	cost := float64(inputUnits)/1000*p.InputPerKilo + float64(outputUnits)/1000*p.OutputPerKilo
	return types.FromFloat(cost)
}

// Provider is the price list for one upstream provider.
type Provider struct {
	// DefaultModel prices calls for models missing from the table. Unknown
	// models degrade to it rather than failing a call already made.
	DefaultModel string                `json:"default_model"`
	Models       map[string]ModelPrice `json:"models"`
}

// Table maps provider names to their price lists.
type Table struct {
	providers map[string]Provider
}

// NewTable builds an immutable price table. It panics if a provider's
// default model is missing from its own model list (programmer error, the
// table is static configuration).
func NewTable(providers map[string]Provider) *Table {
	for name, p := range providers {
		if _, ok := p.Models[p.DefaultModel]; !ok {
			panic(fmt.Sprintf("pricing: provider %q: default model %q not in table", name, p.DefaultModel))
		}
	}
	cp := make(map[string]Provider, len(providers))
	for name, p := range providers {
		models := make(map[string]ModelPrice, len(p.Models))
		for m, mp := range p.Models {
			models[m] = mp
		}
		cp[name] = Provider{DefaultModel: p.DefaultModel, Models: models}
	}
	return &Table{providers: cp}
}

// Resolve looks up the price for (provider, model). exact is false when the
// model was unknown and the provider's default model price was substituted;
// callers should log that degradation. An unknown provider is an error: the
// set of providers is fixed at build time, so reaching here with a name not
// in the table is a programming mistake, not bad user data.
func (t *Table) Resolve(provider, model string) (price ModelPrice, exact bool, err error) {
	p, ok := t.providers[provider]
	if !ok {
		return ModelPrice{}, false, fmt.Errorf("pricing: unknown provider %q", provider)
	}
	if mp, ok := p.Models[model]; ok {
		return mp, true, nil
	}
	return p.Models[p.DefaultModel], false, nil
}

// PriceOf computes the cost of a call. Unknown models silently degrade to
// the provider's default model price; use Resolve when the degradation
// should be observed.
func (t *Table) PriceOf(provider, model string, inputUnits, outputUnits int64) (types.Amount, error) {
	mp, _, err := t.Resolve(provider, model)
	if err != nil {
		return types.Zero, err
	}
	return mp.Cost(inputUnits, outputUnits), nil
}

// Providers returns the provider names in the table.
func (t *Table) Providers() []string {
	names := make([]string, 0, len(t.providers))
	for name := range t.providers {
		names = append(names, name)
	}
	return names
}
