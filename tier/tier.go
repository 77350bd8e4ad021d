// Package tier defines the membership tiers that drive quota policy.
package tier

import "strings"

// Tier is a named subscription plan determining quota policy.
type Tier string

const (
	// Free has no paid-call allowance at all.
	Free Tier = "free"
	// Mid has a fixed small monthly allowance.
	Mid Tier = "mid"
	// Top has a customizable monthly allowance.
	Top Tier = "top"
)

// legacyNames maps tier names that may still appear in stored data to the
// current three names. Normalization happens before any comparison.
var legacyNames = map[string]Tier{
	"basic":    Mid,
	"standard": Mid,
	"starter":  Mid,
	"premium":  Top,
	"pro":      Top,
	"none":     Free,
}

// Normalize maps a stored tier name (current or legacy) to a Tier.
// Unknown names resolve to Free.
func Normalize(name string) Tier {
	switch s := strings.ToLower(strings.TrimSpace(name)); Tier(s) {
	case Free, Mid, Top:
		return Tier(s)
	default:
		if t, ok := legacyNames[s]; ok {
			return t
		}
		return Free
	}
}

// IsPaid reports whether the tier carries any paid-call allowance.
func (t Tier) IsPaid() bool { return t == Mid || t == Top }

// String returns the canonical tier name.
func (t Tier) String() string { return string(t) }
