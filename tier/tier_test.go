package tier

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want Tier
	}{
		{"free", Free},
		{"mid", Mid},
		{"top", Top},
		{"TOP", Top},
		{" mid ", Mid},
		{"basic", Mid},
		{"standard", Mid},
		{"starter", Mid},
		{"premium", Top},
		{"pro", Top},
		{"none", Free},
		{"", Free},
		{"garbage", Free},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestIsPaid(t *testing.T) {
	if Free.IsPaid() {
		t.Error("free tier should not be paid")
	}
	if !Mid.IsPaid() || !Top.IsPaid() {
		t.Error("mid and top tiers should be paid")
	}
}

func TestProductTable(t *testing.T) {
	table := NewProductTable(
		map[string]Tier{"prod_123": Mid, "prod_456": Top},
		map[string]Tier{"Mid Plan": Mid, "Top Plan": Top},
	)

	if tr, ok := table.ByRef("prod_123"); !ok || tr != Mid {
		t.Errorf("ByRef(prod_123) = %q, %v", tr, ok)
	}
	if _, ok := table.ByRef("prod_999"); ok {
		t.Error("unknown ref should miss")
	}

	if tr, ok := table.ByName("top plan"); !ok || tr != Top {
		t.Errorf("ByName(top plan) = %q, %v", tr, ok)
	}
	// Legacy plan names resolve through normalization.
	if tr, ok := table.ByName("premium"); !ok || tr != Top {
		t.Errorf("ByName(premium) = %q, %v", tr, ok)
	}
	if _, ok := table.ByName("unrelated"); ok {
		t.Error("unknown name should miss")
	}
}
