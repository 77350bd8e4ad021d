package creditmeter

import (
	"errors"
	"fmt"

	"github.com/veloxio/creditmeter/cache"
	"github.com/veloxio/creditmeter/store"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("creditmeter: not found")
	ErrAlreadyExists = store.ErrAlreadyExists
	ErrInvalidInput  = errors.New("creditmeter: invalid input")

	// Account errors
	ErrAccountNotFound = store.ErrAccountNotFound
	ErrNoSubscription  = errors.New("creditmeter: account has no subscription reference")

	// Store errors
	ErrRevisionConflict = store.ErrRevisionConflict
	ErrStoreUnavailable = errors.New("creditmeter: record store unavailable")
	ErrStoreClosed      = errors.New("creditmeter: store is closed")

	// Policy errors: expected, frequent outcomes surfaced as structured
	// deny/reject results by the engine; these sentinels exist for callers
	// that prefer errors.Is checks over inspecting result structs.
	ErrInsufficientCredits = errors.New("creditmeter: insufficient credits")
	ErrTierHasNoAllowance  = errors.New("creditmeter: tier has no paid-call allowance")
	ErrLimitBelowMinimum   = errors.New("creditmeter: custom limit below minimum")
	ErrLimitWrongTier      = errors.New("creditmeter: custom limits apply to the top tier only")

	// Billing-side errors
	ErrBillingUnavailable = errors.New("creditmeter: subscription service unavailable")
	ErrChargeDeclined     = errors.New("creditmeter: charge declined")
	ErrCustomerNotFound   = errors.New("creditmeter: billing customer not found")
	ErrProductNotFound    = errors.New("creditmeter: billing product not found")

	// Pricing errors
	ErrUnknownProvider = errors.New("creditmeter: unknown provider in price table")

	// Cache errors
	ErrCacheMiss = cache.ErrMiss
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("creditmeter: validation failed for %s: %s", e.Field, e.Message)
}

// IsNotFound returns true if the error is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrCustomerNotFound) ||
		errors.Is(err, ErrProductNotFound)
}

// IsPolicy returns true if the error is a policy outcome (insufficient
// credits, tier restrictions, limit rules) rather than a failure.
func IsPolicy(err error) bool {
	return errors.Is(err, ErrInsufficientCredits) ||
		errors.Is(err, ErrTierHasNoAllowance) ||
		errors.Is(err, ErrLimitBelowMinimum) ||
		errors.Is(err, ErrLimitWrongTier)
}

// IsRetryable returns true if the error is transient and the operation can
// be retried. Infrastructure failures are never silently treated as
// "allowed" for a paid call; callers retry or surface them.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRevisionConflict) ||
		errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrBillingUnavailable)
}
