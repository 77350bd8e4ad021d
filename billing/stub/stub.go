// Package stub provides an in-memory billing.Client for tests and local
// development. It honors idempotency keys and can be primed with
// subscriptions, products, and failure modes.
package stub

import (
	"context"
	"sync"

	"github.com/google/uuid"

	creditmeter "github.com/veloxio/creditmeter"
	"github.com/veloxio/creditmeter/billing"
	"github.com/veloxio/creditmeter/types"
)

// Client is an in-memory billing.Client.
type Client struct {
	mu sync.Mutex

	subscriptions map[string][]billing.Subscription // customerRef -> subs
	products      map[string]billing.Product        // productRef -> product
	charges       map[string]billing.Charge         // idempotencyKey -> charge
	recurring     map[string]types.Amount           // subscriptionRef -> amount

	// Fail switches every call into the corresponding failure mode.
	FailListSubscriptions error
	FailCreateCharge      error

	chargeCount int
}

// compile-time interface check
var _ billing.Client = (*Client)(nil)

// New creates an empty stub client.
func New() *Client {
	return &Client{
		subscriptions: make(map[string][]billing.Subscription),
		products:      make(map[string]billing.Product),
		charges:       make(map[string]billing.Charge),
		recurring:     make(map[string]types.Amount),
	}
}

// AddProduct registers a product.
func (c *Client) AddProduct(ref, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[ref] = billing.Product{Ref: ref, Name: name}
}

// SetSubscriptions replaces a customer's subscriptions.
func (c *Client) SetSubscriptions(customerRef string, subs ...billing.Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions[customerRef] = append([]billing.Subscription(nil), subs...)
}

// SetStatus flips the status of every subscription a customer has.
func (c *Client) SetStatus(customerRef string, status billing.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	subs := c.subscriptions[customerRef]
	for i := range subs {
		subs[i].Status = status
	}
}

// ChargeCount returns how many distinct charges were actually applied.
func (c *Client) ChargeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chargeCount
}

// RecurringAmount returns the last recurring amount set for a subscription.
func (c *Client) RecurringAmount(subscriptionRef string) (types.Amount, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	amt, ok := c.recurring[subscriptionRef]
	return amt, ok
}

func (c *Client) ListSubscriptions(_ context.Context, customerRef string, statuses []billing.Status) ([]billing.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.FailListSubscriptions != nil {
		return nil, c.FailListSubscriptions
	}

	subs, ok := c.subscriptions[customerRef]
	if !ok {
		return nil, creditmeter.ErrCustomerNotFound
	}
	if len(statuses) == 0 {
		return append([]billing.Subscription(nil), subs...), nil
	}

	var filtered []billing.Subscription
	for _, s := range subs {
		for _, want := range statuses {
			if s.Status == want {
				filtered = append(filtered, s)
				break
			}
		}
	}
	return filtered, nil
}

func (c *Client) GetProduct(_ context.Context, productRef string) (billing.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.products[productRef]
	if !ok {
		return billing.Product{}, creditmeter.ErrProductNotFound
	}
	return p, nil
}

func (c *Client) CreateCharge(_ context.Context, customerRef string, amount types.Amount, idempotencyKey string) (billing.Charge, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.FailCreateCharge != nil {
		return billing.Charge{}, c.FailCreateCharge
	}
	if _, ok := c.subscriptions[customerRef]; !ok {
		return billing.Charge{}, creditmeter.ErrCustomerNotFound
	}

	// Replays of the same idempotency key return the original charge.
	if existing, ok := c.charges[idempotencyKey]; ok {
		return existing, nil
	}

	ch := billing.Charge{ID: "ch_" + uuid.NewString(), Amount: amount}
	c.charges[idempotencyKey] = ch
	c.chargeCount++
	return ch, nil
}

func (c *Client) UpdateRecurringAmount(_ context.Context, subscriptionRef string, amount types.Amount) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recurring[subscriptionRef] = amount
	return nil
}
