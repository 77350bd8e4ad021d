// Package types provides common value types used across creditmeter.
package types

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Scale is the number of basis units per credit. One credit equals one
// dollar of allowance; amounts are kept at four decimal places so that
// many fractional-cent debits do not compound rounding error.
const Scale = 10_000

// Amount is a monetary credit amount in basis units (1/10000 of a credit).
// All arithmetic is integer-only; no floating point.
//
// Examples:
//   - FromBasis(50000) = 5.0000 credits
//   - FromFloat(0.009) = 0.0090 credits (90 basis units)
type Amount int64

// Zero is the zero credit amount.
const Zero Amount = 0

// FromBasis creates an Amount from raw basis units.
func FromBasis(n int64) Amount { return Amount(n) }

// FromFloat converts a floating-point credit value to an Amount, rounding
// half away from zero at the fourth decimal place.
func FromFloat(v float64) Amount {
	return Amount(math.Round(v * Scale))
}

// ParseAmount parses a decimal credit string such as "10.5" or "0.0090".
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("types: parse amount: empty string")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("types: parse amount %q: %w", s, err)
	}
	return FromFloat(v), nil
}

// Basis returns the raw basis-unit value.
func (a Amount) Basis() int64 { return int64(a) }

// Float64 returns the amount as a floating-point credit value.
// Intended for display and estimation only, never for ledger arithmetic.
func (a Amount) Float64() float64 { return float64(a) / Scale }

// Add returns a + b.
func (a Amount) Add(b Amount) Amount { return a + b }

// Sub returns a - b.
func (a Amount) Sub(b Amount) Amount { return a - b }

// Neg returns the negated amount.
func (a Amount) Neg() Amount { return -a }

// ClampFloor returns a, raised to floor if it is below it.
func (a Amount) ClampFloor(floor Amount) Amount {
	if a < floor {
		return floor
	}
	return a
}

// Min returns the smaller of two amounts.
func (a Amount) Min(b Amount) Amount {
	if a < b {
		return a
	}
	return b
}

// Max returns the larger of two amounts.
func (a Amount) Max(b Amount) Amount {
	if a > b {
		return a
	}
	return b
}

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool { return a == 0 }

// IsPositive reports whether the amount is greater than zero.
func (a Amount) IsPositive() bool { return a > 0 }

// IsNegative reports whether the amount is less than zero.
func (a Amount) IsNegative() bool { return a < 0 }

// String formats the amount with exactly four decimal places, e.g. "5.0000".
func (a Amount) String() string {
	n := int64(a)
	neg := n < 0
	if neg {
		n = -n
	}
	s := fmt.Sprintf("%d.%04d", n/Scale, n%Scale)
	if neg {
		return "-" + s
	}
	return s
}

// MarshalJSON implements json.Marshaler, emitting the decimal string form.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler, accepting both quoted decimal
// strings and bare JSON numbers.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// SumAmounts calculates the sum of multiple amounts.
func SumAmounts(values ...Amount) Amount {
	var total Amount
	for _, v := range values {
		total += v
	}
	return total
}
