package creditmeter_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	creditmeter "github.com/veloxio/creditmeter"
	"github.com/veloxio/creditmeter/account"
	"github.com/veloxio/creditmeter/billing"
	"github.com/veloxio/creditmeter/billing/stub"
	"github.com/veloxio/creditmeter/ledger"
	"github.com/veloxio/creditmeter/pricing"
	"github.com/veloxio/creditmeter/reconcile"
	"github.com/veloxio/creditmeter/store/memory"
	"github.com/veloxio/creditmeter/tier"
	"github.com/veloxio/creditmeter/types"
)

func testPrices() *pricing.Table {
	return pricing.NewTable(map[string]pricing.Provider{
		"chat": {
			DefaultModel: "large",
			Models: map[string]pricing.ModelPrice{
				"large": {InputPerKilo: 0.003, OutputPerKilo: 0.012},
			},
		},
		"ocr": {
			DefaultModel: "page",
			Models: map[string]pricing.ModelPrice{
				"page": {PerCall: 0.05},
			},
		},
	})
}

func testProducts() *tier.ProductTable {
	return tier.NewProductTable(
		map[string]tier.Tier{"prod_mid": tier.Mid, "prod_top": tier.Top},
		map[string]tier.Tier{"Mid Plan": tier.Mid, "Top Plan": tier.Top},
	)
}

func newTestEngine(t *testing.T, opts ...creditmeter.Option) (*creditmeter.Engine, *memory.Store, *stub.Client) {
	t.Helper()
	st := memory.New()
	bc := stub.New()
	bc.AddProduct("prod_mid", "Mid Plan")
	bc.AddProduct("prod_top", "Top Plan")

	opts = append([]creditmeter.Option{creditmeter.WithProductTable(testProducts())}, opts...)
	return creditmeter.New(st, bc, testPrices(), opts...), st, bc
}

func seed(t *testing.T, st *memory.Store, userID, subRef string, l ledger.Ledger) {
	t.Helper()
	a := &account.Account{
		UserID:          userID,
		SubscriptionRef: subRef,
		Attributes:      ledger.EncodeLedger("profile:name=x", l),
	}
	require.NoError(t, st.CreateAccount(context.Background(), a))
}

func activeSub(customerRef, subID, productRef string) billing.Subscription {
	return billing.Subscription{
		ID:          subID,
		CustomerRef: customerRef,
		ProductRef:  productRef,
		Status:      billing.StatusActive,
	}
}

func reconcileCancel(subRef string) reconcile.Event {
	return reconcile.Event{
		Type:            reconcile.EventSubscriptionCancelled,
		SubscriptionRef: subRef,
	}
}

func TestCanSpendFrozenMidTier(t *testing.T) {
	// Mid user with 0.02 credits asking for a 0.05 call is denied with
	// the balance and estimate attached.
	ctx := context.Background()
	e, st, bc := newTestEngine(t)

	now := time.Now().UTC()
	bc.SetSubscriptions("cus_1", activeSub("cus_1", "sub_1", "prod_mid"))
	seed(t, st, "u1", "cus_1", ledger.Ledger{
		AvailableCredits: types.FromFloat(0.02),
		LastReset:        &now,
		MembershipLevel:  tier.Mid,
	})

	d, err := e.CanSpend(ctx, "u1", "ocr", "page", 1, 0)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, creditmeter.ReasonInsufficient, d.Reason)
	assert.Contains(t, d.Message, "frozen")
	assert.Equal(t, types.FromFloat(0.02), d.CurrentCredits)
	assert.Equal(t, types.FromFloat(0.05), d.EstimatedCost)
	assert.Equal(t, tier.Mid, d.Tier)
}

func TestCanSpendTopTierDenialMessage(t *testing.T) {
	ctx := context.Background()
	e, st, bc := newTestEngine(t)

	now := time.Now().UTC()
	bc.SetSubscriptions("cus_1", activeSub("cus_1", "sub_1", "prod_top"))
	seed(t, st, "u1", "cus_1", ledger.Ledger{
		AvailableCredits: types.FromFloat(0.01),
		LastReset:        &now,
		MembershipLevel:  tier.Top,
	})

	d, err := e.CanSpend(ctx, "u1", "ocr", "page", 1, 0)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Message, "raise your limit")
}

func TestCanSpendFreeTierAlwaysDenied(t *testing.T) {
	// Even a ledger with a balance does not open the gate for Free.
	ctx := context.Background()
	e, st, _ := newTestEngine(t)

	now := time.Now().UTC()
	seed(t, st, "u1", "", ledger.Ledger{
		AvailableCredits: types.FromFloat(3),
		LastReset:        &now,
		MembershipLevel:  tier.Free,
	})

	d, err := e.CanSpend(ctx, "u1", "chat", "large", 100, 100)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, creditmeter.ReasonNoAllowance, d.Reason)
}

func TestCanSpendFirstAccessTriggersReset(t *testing.T) {
	// No stored lastReset: the first gate access tops the Mid ledger
	// off to the fixed allowance before evaluating the request.
	ctx := context.Background()
	e, st, bc := newTestEngine(t)

	bc.SetSubscriptions("cus_1", activeSub("cus_1", "sub_1", "prod_mid"))
	seed(t, st, "u1", "cus_1", ledger.Ledger{MembershipLevel: tier.Mid})

	d, err := e.CanSpend(ctx, "u1", "chat", "large", 1000, 500)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, types.FromFloat(5), d.CurrentCredits)
	assert.Equal(t, types.FromBasis(90), d.EstimatedCost) // 0.0090

	got, err := st.GetAccount(ctx, "u1")
	require.NoError(t, err)
	l, err := ledger.DecodeLedger(got.Attributes)
	require.NoError(t, err)
	assert.Equal(t, types.FromFloat(5), l.AvailableCredits)
	require.NotNil(t, l.LastReset)
}

func TestCanSpendResetSkippedWhenInactive(t *testing.T) {
	// A due reset with a non-active subscription changes nothing and
	// leaves lastReset unset so the next access retries.
	ctx := context.Background()
	e, st, bc := newTestEngine(t)

	sub := activeSub("cus_1", "sub_1", "prod_mid")
	sub.Status = billing.StatusPastDue
	bc.SetSubscriptions("cus_1", sub)
	seed(t, st, "u1", "cus_1", ledger.Ledger{MembershipLevel: tier.Mid})

	d, err := e.CanSpend(ctx, "u1", "chat", "large", 1000, 500)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, types.Zero, d.CurrentCredits)

	got, err := st.GetAccount(ctx, "u1")
	require.NoError(t, err)
	l, err := ledger.DecodeLedger(got.Attributes)
	require.NoError(t, err)
	assert.Nil(t, l.LastReset)
}

func TestApplyDebitClampsAtZero(t *testing.T) {
	ctx := context.Background()
	e, st, bc := newTestEngine(t)

	now := time.Now().UTC()
	bc.SetSubscriptions("cus_1", activeSub("cus_1", "sub_1", "prod_mid"))
	seed(t, st, "u1", "cus_1", ledger.Ledger{
		AvailableCredits: types.FromFloat(0.03),
		LastReset:        &now,
		MembershipLevel:  tier.Mid,
	})

	// 0.05 against a 0.03 balance: the call already happened, so the
	// overdraft is absorbed.
	res, err := e.ApplyDebit(ctx, "u1", "ocr", "page", 1, 0)
	require.NoError(t, err)
	assert.Equal(t, types.FromFloat(0.05), res.CostApplied)
	assert.Equal(t, types.Zero, res.RemainingCredits)

	// Further debits stay at zero.
	res, err = e.ApplyDebit(ctx, "u1", "ocr", "page", 1, 0)
	require.NoError(t, err)
	assert.Equal(t, types.Zero, res.RemainingCredits)
}

func TestApplyDebitMergesUsage(t *testing.T) {
	ctx := context.Background()
	e, st, bc := newTestEngine(t)

	now := time.Now().UTC()
	bc.SetSubscriptions("cus_1", activeSub("cus_1", "sub_1", "prod_mid"))
	seed(t, st, "u1", "cus_1", ledger.Ledger{
		AvailableCredits: types.FromFloat(5),
		LastReset:        &now,
		MembershipLevel:  tier.Mid,
	})

	_, err := e.ApplyDebit(ctx, "u1", "chat", "large", 1000, 500)
	require.NoError(t, err)
	_, err = e.ApplyDebit(ctx, "u1", "chat", "large", 1000, 500)
	require.NoError(t, err)

	stats, err := e.GetUsageStats(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, stats.Breakdown, 1)
	assert.Equal(t, "chat", stats.Breakdown[0].Provider)
	assert.Equal(t, int64(3000), stats.Breakdown[0].Units)
	assert.Equal(t, types.FromBasis(180), stats.Breakdown[0].Cost)
	assert.Equal(t, types.FromBasis(180), stats.TotalUsage)
	assert.Equal(t, types.FromFloat(5).Sub(types.FromBasis(180)), stats.AvailableCredits)
	assert.Equal(t, types.FromFloat(5), stats.Limit)
}

func TestChangeCustomLimitIncrease(t *testing.T) {
	// Raising a 10.00 limit to 15.00 charges the 5.00 difference,
	// credits it immediately, and schedules the recurring amount.
	ctx := context.Background()
	e, st, bc := newTestEngine(t)

	now := time.Now().UTC()
	limit := types.FromFloat(10)
	bc.SetSubscriptions("cus_1", activeSub("cus_1", "sub_1", "prod_top"))
	seed(t, st, "u1", "cus_1", ledger.Ledger{
		AvailableCredits: types.FromFloat(2),
		CustomLimit:      &limit,
		LastReset:        &now,
		MembershipLevel:  tier.Top,
	})

	res, err := e.ChangeCustomLimit(ctx, "u1", types.FromFloat(15))
	require.NoError(t, err)
	assert.Equal(t, types.FromFloat(15), res.NewLimit)
	assert.Equal(t, types.FromFloat(5), res.CreditsDelta)
	assert.NotEmpty(t, res.ChargeID)
	assert.Equal(t, 1, bc.ChargeCount())

	recurring, ok := bc.RecurringAmount("sub_1")
	require.True(t, ok)
	assert.Equal(t, types.FromFloat(15), recurring)

	got, err := st.GetAccount(ctx, "u1")
	require.NoError(t, err)
	l, err := ledger.DecodeLedger(got.Attributes)
	require.NoError(t, err)
	assert.Equal(t, types.FromFloat(7), l.AvailableCredits)
	require.NotNil(t, l.CustomLimit)
	assert.Equal(t, types.FromFloat(15), *l.CustomLimit)
}

func TestChangeCustomLimitDecreaseNoClawback(t *testing.T) {
	ctx := context.Background()
	e, st, bc := newTestEngine(t)

	now := time.Now().UTC()
	limit := types.FromFloat(15)
	bc.SetSubscriptions("cus_1", activeSub("cus_1", "sub_1", "prod_top"))
	seed(t, st, "u1", "cus_1", ledger.Ledger{
		AvailableCredits: types.FromFloat(12),
		CustomLimit:      &limit,
		LastReset:        &now,
		MembershipLevel:  tier.Top,
	})

	res, err := e.ChangeCustomLimit(ctx, "u1", types.FromFloat(10))
	require.NoError(t, err)
	assert.Equal(t, types.Zero, res.CreditsDelta)
	assert.Empty(t, res.ChargeID)
	assert.Equal(t, 0, bc.ChargeCount())

	recurring, ok := bc.RecurringAmount("sub_1")
	require.True(t, ok)
	assert.Equal(t, types.FromFloat(10), recurring)

	got, err := st.GetAccount(ctx, "u1")
	require.NoError(t, err)
	l, err := ledger.DecodeLedger(got.Attributes)
	require.NoError(t, err)
	assert.Equal(t, types.FromFloat(12), l.AvailableCredits)
}

func TestChangeCustomLimitRejections(t *testing.T) {
	ctx := context.Background()
	e, st, bc := newTestEngine(t)

	now := time.Now().UTC()
	bc.SetSubscriptions("cus_mid", activeSub("cus_mid", "sub_2", "prod_mid"))
	seed(t, st, "mid_user", "cus_mid", ledger.Ledger{
		AvailableCredits: types.FromFloat(1),
		LastReset:        &now,
		MembershipLevel:  tier.Mid,
	})

	_, err := e.ChangeCustomLimit(ctx, "mid_user", types.FromFloat(2))
	assert.ErrorIs(t, err, creditmeter.ErrLimitBelowMinimum)

	_, err = e.ChangeCustomLimit(ctx, "mid_user", types.FromFloat(20))
	assert.ErrorIs(t, err, creditmeter.ErrLimitWrongTier)
}

func TestChangeCustomLimitChargeFailureLeavesLedger(t *testing.T) {
	ctx := context.Background()
	e, st, bc := newTestEngine(t)

	now := time.Now().UTC()
	limit := types.FromFloat(10)
	bc.SetSubscriptions("cus_1", activeSub("cus_1", "sub_1", "prod_top"))
	bc.FailCreateCharge = creditmeter.ErrChargeDeclined
	seed(t, st, "u1", "cus_1", ledger.Ledger{
		AvailableCredits: types.FromFloat(2),
		CustomLimit:      &limit,
		LastReset:        &now,
		MembershipLevel:  tier.Top,
	})

	_, err := e.ChangeCustomLimit(ctx, "u1", types.FromFloat(15))
	require.ErrorIs(t, err, creditmeter.ErrChargeDeclined)

	got, err := st.GetAccount(ctx, "u1")
	require.NoError(t, err)
	l, err := ledger.DecodeLedger(got.Attributes)
	require.NoError(t, err)
	assert.Equal(t, types.FromFloat(2), l.AvailableCredits)
	require.NotNil(t, l.CustomLimit)
	assert.Equal(t, types.FromFloat(10), *l.CustomLimit)
}

func TestResolveTierFallsBackToStored(t *testing.T) {
	ctx := context.Background()
	e, st, bc := newTestEngine(t)

	now := time.Now().UTC()
	bc.SetSubscriptions("cus_1", activeSub("cus_1", "sub_1", "prod_top"))
	bc.FailListSubscriptions = creditmeter.ErrBillingUnavailable
	seed(t, st, "u1", "cus_1", ledger.Ledger{
		AvailableCredits: types.FromFloat(3),
		LastReset:        &now,
		MembershipLevel:  tier.Top,
	})

	got, err := e.ResolveTier(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, tier.Top, got)

	// Failures are not cached: once upstream recovers, resolution goes
	// back through it.
	bc.FailListSubscriptions = nil
	got, err = e.ResolveTier(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, tier.Top, got)
}

func TestResolveTierNoSubscriptionIsFree(t *testing.T) {
	ctx := context.Background()
	e, st, _ := newTestEngine(t)
	seed(t, st, "u1", "", ledger.Ledger{MembershipLevel: tier.Free})

	got, err := e.ResolveTier(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, tier.Free, got)
}

func TestResolveTierByProductName(t *testing.T) {
	// Product references regenerate in sandboxed billing contexts; the
	// display-name table takes over.
	ctx := context.Background()
	e, st, bc := newTestEngine(t)

	bc.AddProduct("prod_unstable", "Top Plan")
	bc.SetSubscriptions("cus_1", activeSub("cus_1", "sub_1", "prod_unstable"))
	now := time.Now().UTC()
	seed(t, st, "u1", "cus_1", ledger.Ledger{
		LastReset:       &now,
		MembershipLevel: tier.Mid,
	})

	got, err := e.ResolveTier(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, tier.Top, got)
}

func TestResolveTierCanceledSubscriptionIsFree(t *testing.T) {
	// A missed cancellation webhook leaves the subscription ref behind.
	// A customer whose only subscription is canceled holds no plan and
	// must not keep the stored paid tier.
	ctx := context.Background()
	e, st, bc := newTestEngine(t)

	sub := activeSub("cus_1", "sub_1", "prod_top")
	sub.Status = billing.StatusCanceled
	bc.SetSubscriptions("cus_1", sub)
	now := time.Now().UTC()
	seed(t, st, "u1", "cus_1", ledger.Ledger{
		AvailableCredits: types.FromFloat(8),
		LastReset:        &now,
		MembershipLevel:  tier.Top,
	})

	got, err := e.ResolveTier(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, tier.Free, got)

	d, err := e.CanSpend(ctx, "u1", "ocr", "page", 1, 0)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, creditmeter.ReasonNoAllowance, d.Reason)
}

func TestCanSpendResetNeverReducesBalance(t *testing.T) {
	// A Mid balance above the allowance survives a due reset untouched;
	// the reset is a top-off to max(current, allowance), never additive
	// and never a cut.
	ctx := context.Background()
	e, st, bc := newTestEngine(t)

	past := time.Now().UTC().AddDate(0, -2, 0)
	bc.SetSubscriptions("cus_1", activeSub("cus_1", "sub_1", "prod_mid"))
	seed(t, st, "u1", "cus_1", ledger.Ledger{
		AvailableCredits: types.FromFloat(7),
		LastReset:        &past,
		MembershipLevel:  tier.Mid,
	})

	d, err := e.CanSpend(ctx, "u1", "chat", "large", 1000, 500)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, types.FromFloat(7), d.CurrentCredits)

	got, err := st.GetAccount(ctx, "u1")
	require.NoError(t, err)
	l, err := ledger.DecodeLedger(got.Attributes)
	require.NoError(t, err)
	assert.Equal(t, types.FromFloat(7), l.AvailableCredits)
	require.NotNil(t, l.LastReset)
	assert.True(t, l.LastReset.After(past), "lastReset did not advance")
}

func TestResetAdvancesLastResetMonotonically(t *testing.T) {
	ctx := context.Background()
	e, st, bc := newTestEngine(t)

	first := time.Now().UTC().AddDate(0, -3, 0)
	bc.SetSubscriptions("cus_1", activeSub("cus_1", "sub_1", "prod_mid"))
	seed(t, st, "u1", "cus_1", ledger.Ledger{
		AvailableCredits: types.FromFloat(1),
		LastReset:        &first,
		MembershipLevel:  tier.Mid,
	})

	_, err := e.CanSpend(ctx, "u1", "chat", "large", 100, 100)
	require.NoError(t, err)

	got, err := st.GetAccount(ctx, "u1")
	require.NoError(t, err)
	l, err := ledger.DecodeLedger(got.Attributes)
	require.NoError(t, err)
	require.NotNil(t, l.LastReset)
	assert.True(t, l.LastReset.After(first))
	afterFirst := *l.LastReset

	// A second access inside the same period leaves lastReset alone.
	_, err = e.CanSpend(ctx, "u1", "chat", "large", 100, 100)
	require.NoError(t, err)

	got, err = st.GetAccount(ctx, "u1")
	require.NoError(t, err)
	l, err = ledger.DecodeLedger(got.Attributes)
	require.NoError(t, err)
	require.NotNil(t, l.LastReset)
	assert.False(t, l.LastReset.Before(afterFirst), "lastReset moved backward")
}

func TestCancellationThenAccessZeroesLedger(t *testing.T) {
	// Reconcile marks the account Free; resolution then sees no
	// subscription and the gate denies without touching the balance.
	ctx := context.Background()
	e, st, bc := newTestEngine(t)

	bc.SetSubscriptions("cus_1", activeSub("cus_1", "sub_1", "prod_mid"))
	seed(t, st, "u1", "cus_1", ledger.Ledger{
		AvailableCredits: types.FromFloat(4),
		MembershipLevel:  tier.Mid,
	})

	err := e.Reconciler().Handle(ctx, reconcileCancel("cus_1"))
	require.NoError(t, err)

	d, err := e.CanSpend(ctx, "u1", "chat", "large", 1000, 500)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, creditmeter.ReasonNoAllowance, d.Reason)
	assert.Equal(t, tier.Free, d.Tier)
}
