// Package money centralizes exact decimal arithmetic for the forensics
// engine. Every amount, rate, tolerance, and exposure value in the system
// flows through shopspring/decimal.Decimal; float64 never appears on a
// money path.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RoundingMode is the closed set of quantization modes the engine accepts.
type RoundingMode string

const (
	RoundHalfUp RoundingMode = "ROUND_HALF_UP"
)

func (m RoundingMode) valid() bool {
	return m == RoundHalfUp
}

// Quantize rounds amount to quantum (e.g. "0.01") using mode. Quantum must
// parse as a positive decimal; mode must be a recognized RoundingMode.
// Rounding mode and quantum are required inputs — callers never fall back
// to an implicit default (spec: "absence is a hard error").
func Quantize(amount decimal.Decimal, mode RoundingMode, quantum string) (decimal.Decimal, error) {
	if mode == "" {
		return decimal.Decimal{}, fmt.Errorf("ROUNDING_MODE_REQUIRED")
	}
	if !mode.valid() {
		return decimal.Decimal{}, fmt.Errorf("ROUNDING_MODE_INVALID: %s", mode)
	}
	if quantum == "" {
		return decimal.Decimal{}, fmt.Errorf("ROUNDING_QUANTUM_REQUIRED")
	}
	q, err := decimal.NewFromString(quantum)
	if err != nil || !q.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("ROUNDING_QUANTUM_INVALID: %s", quantum)
	}
	places := -q.Exponent()
	if places < 0 {
		places = 0
	}
	switch mode {
	case RoundHalfUp:
		return quantizeHalfUp(amount, places), nil
	}
	return decimal.Decimal{}, fmt.Errorf("ROUNDING_MODE_INVALID: %s", mode)
}

// quantizeHalfUp rounds half away from zero at the given number of decimal
// places. shopspring/decimal's own Round() is banker's rounding on exact
// ties, which diverges from the source engine's Decimal.ROUND_HALF_UP, so
// ties are resolved explicitly here.
func quantizeHalfUp(d decimal.Decimal, places int32) decimal.Decimal {
	shift := decimal.New(1, places)
	shifted := d.Mul(shift)
	floor := shifted.Truncate(0)
	frac := shifted.Sub(floor).Abs()
	half := decimal.New(5, -1)

	rounded := floor
	if frac.GreaterThanOrEqual(half) {
		if shifted.Sign() >= 0 {
			rounded = floor.Add(decimal.New(1, 0))
		} else {
			rounded = floor.Sub(decimal.New(1, 0))
		}
	}
	return rounded.Div(shift).Truncate(places)
}

// ParsePositive parses s as a decimal and requires it to be strictly
// greater than zero, used for FX rates and amounts throughout the engine.
func ParsePositive(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("amount %q is not a valid decimal: %w", s, err)
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("amount %q must be strictly positive", s)
	}
	return d, nil
}

// FullPrecisionString renders d with its full stored precision, matching
// the source engine's format(dec, "f") canonicalization of FX rates.
func FullPrecisionString(d decimal.Decimal) string {
	if d.Exponent() < 0 {
		return d.StringFixed(-d.Exponent())
	}
	return d.String()
}
