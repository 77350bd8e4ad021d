package types

import (
	"encoding/json"
	"testing"
)

func TestAmountConstructors(t *testing.T) {
	tests := []struct {
		name   string
		amount Amount
		basis  int64
		str    string
	}{
		{"FromBasis", FromBasis(50000), 50000, "5.0000"},
		{"FromFloat whole", FromFloat(10), 100000, "10.0000"},
		{"FromFloat fractional", FromFloat(0.009), 90, "0.0090"},
		{"FromFloat rounds half up", FromFloat(0.00005), 1, "0.0001"},
		{"FromFloat truncates below half", FromFloat(0.00004), 0, "0.0000"},
		{"Negative", FromFloat(-1.25), -12500, "-1.2500"},
		{"Zero", Zero, 0, "0.0000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.amount.Basis() != tt.basis {
				t.Errorf("Basis: got %d, want %d", tt.amount.Basis(), tt.basis)
			}
			if tt.amount.String() != tt.str {
				t.Errorf("String: got %s, want %s", tt.amount.String(), tt.str)
			}
		})
	}
}

func TestAmountParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Amount
		wantErr bool
	}{
		{"10.5", FromBasis(105000), false},
		{"0.0090", FromBasis(90), false},
		{" 5 ", FromBasis(50000), false},
		{"-2.25", FromBasis(-22500), false},
		{"", 0, true},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAmountArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		op       func() Amount
		expected Amount
	}{
		{"Add", func() Amount { return FromFloat(1).Add(FromFloat(2)) }, FromFloat(3)},
		{"Sub", func() Amount { return FromFloat(5).Sub(FromFloat(2)) }, FromFloat(3)},
		{"Neg", func() Amount { return FromFloat(1).Neg() }, FromFloat(-1)},
		{"ClampFloor below", func() Amount { return FromFloat(-0.5).ClampFloor(Zero) }, Zero},
		{"ClampFloor above", func() Amount { return FromFloat(2).ClampFloor(Zero) }, FromFloat(2)},
		{"Min", func() Amount { return FromFloat(1).Min(FromFloat(2)) }, FromFloat(1)},
		{"Max tops off", func() Amount { return FromFloat(7.5).Max(FromFloat(5)) }, FromFloat(7.5)},
		{"Sum", func() Amount { return SumAmounts(FromFloat(1), FromFloat(2), FromFloat(0.5)) }, FromFloat(3.5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.op(); got != tt.expected {
				t.Errorf("got %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestAmountJSONRoundTrip(t *testing.T) {
	in := FromFloat(12.3456)

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `"12.3456"` {
		t.Errorf("marshal: got %s", data)
	}

	var out Amount
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Errorf("round trip: got %s, want %s", out, in)
	}

	// Bare numbers are accepted too.
	if err := json.Unmarshal([]byte(`0.009`), &out); err != nil {
		t.Fatal(err)
	}
	if out != FromBasis(90) {
		t.Errorf("bare number: got %s", out)
	}
}
