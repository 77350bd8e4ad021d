package plugin

import (
	"context"
	"errors"
	"testing"

	"github.com/veloxio/creditmeter/tier"
	"github.com/veloxio/creditmeter/types"
)

type recordingPlugin struct {
	name    string
	checks  []SpendCheck
	debits  []Debit
	failAll bool
}

func (p *recordingPlugin) Name() string { return p.name }

func (p *recordingPlugin) OnSpendChecked(_ context.Context, check SpendCheck) error {
	if p.failAll {
		return errors.New("boom")
	}
	p.checks = append(p.checks, check)
	return nil
}

func (p *recordingPlugin) OnDebitApplied(_ context.Context, d Debit) error {
	if p.failAll {
		return errors.New("boom")
	}
	p.debits = append(p.debits, d)
	return nil
}

type namedOnly struct{ name string }

func (p namedOnly) Name() string { return p.name }

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(namedOnly{name: "audit"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(namedOnly{name: "audit"}); err == nil {
		t.Fatal("expected duplicate registration error")
	}
	if got := r.Count(); got != 1 {
		t.Fatalf("Count() = %d, want 1", got)
	}
}

func TestEmitDispatchesToImplementers(t *testing.T) {
	r := NewRegistry()
	rec := &recordingPlugin{name: "rec"}
	if err := r.Register(rec); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(namedOnly{name: "bystander"}); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	r.EmitSpendChecked(ctx, SpendCheck{
		UserID:        "user_1",
		Provider:      "openai",
		EstimatedCost: types.FromBasis(90),
		Tier:          tier.Mid,
		Allowed:       true,
	})
	r.EmitDebitApplied(ctx, Debit{UserID: "user_1", Cost: types.FromBasis(90)})

	if len(rec.checks) != 1 || rec.checks[0].UserID != "user_1" {
		t.Fatalf("spend checks = %+v, want one for user_1", rec.checks)
	}
	if len(rec.debits) != 1 {
		t.Fatalf("debits = %+v, want one", rec.debits)
	}
}

func TestEmitSwallowsHookErrors(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&recordingPlugin{name: "failing", failAll: true}); err != nil {
		t.Fatal(err)
	}

	// Must not panic or propagate.
	r.EmitSpendChecked(context.Background(), SpendCheck{UserID: "u"})
}

func TestGetAndList(t *testing.T) {
	r := NewRegistry()
	p := namedOnly{name: "one"}
	if err := r.Register(p); err != nil {
		t.Fatal(err)
	}

	if got := r.Get("one"); got == nil {
		t.Fatal("Get(one) = nil")
	}
	if got := r.Get("absent"); got != nil {
		t.Fatalf("Get(absent) = %v, want nil", got)
	}
	if got := r.List(); len(got) != 1 {
		t.Fatalf("List() len = %d, want 1", len(got))
	}
}
