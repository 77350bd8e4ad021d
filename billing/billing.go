// Package billing defines the client interface for the external
// subscription service that owns the ground truth for customer plans.
package billing

import (
	"context"
	"fmt"

	"github.com/veloxio/creditmeter/types"
)

// Status is a subscription lifecycle status as reported upstream.
type Status string

const (
	StatusActive     Status = "active"
	StatusTrialing   Status = "trialing"
	StatusPastDue    Status = "past_due"
	StatusIncomplete Status = "incomplete"
	StatusUnpaid     Status = "unpaid"
	StatusCanceled   Status = "canceled"
)

// statusPriority orders eligible statuses for picking the winning
// subscription when a customer has several. Lower is better. Canceled
// subscriptions are not eligible at all and never win.
var statusPriority = map[Status]int{
	StatusActive:     0,
	StatusTrialing:   1,
	StatusPastDue:    2,
	StatusIncomplete: 3,
	StatusUnpaid:     4,
}

// Priority returns the preference rank of a status; unknown statuses rank
// last.
func (s Status) Priority() int {
	if p, ok := statusPriority[s]; ok {
		return p
	}
	return len(statusPriority)
}

// ActiveEquivalent reports whether the status entitles the customer to a
// monthly top-off.
func (s Status) ActiveEquivalent() bool {
	return s == StatusActive || s == StatusTrialing
}

// Subscription is the upstream view of one customer subscription.
type Subscription struct {
	ID          string `json:"id"`
	CustomerRef string `json:"customer_ref"`
	ProductRef  string `json:"product_ref"`
	Status      Status `json:"status"`
}

// Product is the upstream product a subscription is for.
type Product struct {
	Ref  string `json:"ref"`
	Name string `json:"name"`
}

// Charge is a one-off payment created against a customer.
type Charge struct {
	ID     string       `json:"id"`
	Amount types.Amount `json:"amount"`
}

// Client is the external subscription service. All calls suspend on network
// I/O and must be treated as fallible and slow relative to cache hits.
type Client interface {
	// ListSubscriptions returns the customer's subscriptions, optionally
	// filtered by status. An empty filter returns all.
	ListSubscriptions(ctx context.Context, customerRef string, statuses []Status) ([]Subscription, error)

	// GetProduct resolves a product reference.
	GetProduct(ctx context.Context, productRef string) (Product, error)

	// CreateCharge charges the customer a one-off amount. Retried calls
	// with the same idempotency key have no additional effect.
	CreateCharge(ctx context.Context, customerRef string, amount types.Amount, idempotencyKey string) (Charge, error)

	// UpdateRecurringAmount changes the recurring subscription amount,
	// taking effect at the next natural billing cycle.
	UpdateRecurringAmount(ctx context.Context, subscriptionRef string, amount types.Amount) error
}

// Pick returns the winning subscription by status priority, or false when
// no eligible subscription exists. Canceled subscriptions are skipped: a
// customer holding only canceled subscriptions has no plan.
func Pick(subs []Subscription) (Subscription, bool) {
	var best Subscription
	found := false
	for _, s := range subs {
		if s.Status == StatusCanceled {
			continue
		}
		if !found || s.Status.Priority() < best.Status.Priority() {
			best = s
			found = true
		}
	}
	return best, found
}

// IdempotencyKey derives the key for a mutating billing call from the user,
// the target amount, and the logical operation, so a retry after a timeout
// cannot double-charge.
func IdempotencyKey(userID string, amount types.Amount, operation string) string {
	return fmt.Sprintf("%s:%s:%s", userID, operation, amount)
}
