// Package fxconvert implements the FX converter (C5, spec §4.5): a pure
// function from (amount, currency, fx rates, rounding mode, quantum) to a
// converted amount and the rate used.
package fxconvert

import (
	"github.com/galapoto/finforensics/internal/ferrors"
	"github.com/galapoto/finforensics/internal/money"
	"github.com/shopspring/decimal"
)

// Result is the ephemeral converted-amount triple from spec §3 (base
// currency is implied by the caller's FX artifact).
type Result struct {
	AmountConverted decimal.Decimal
	FxRateUsed      decimal.Decimal
}

// Convert applies the FX conversion rule from spec §4.5. If currencyOriginal
// equals baseCurrency the rate is exactly 1; otherwise the rate is looked
// up in rates (keyed by currencyOriginal) and a missing rate is a hard
// error. Rounding mode and quantum are required.
func Convert(
	amountOriginal decimal.Decimal,
	currencyOriginal string,
	baseCurrency string,
	rates map[string]decimal.Decimal,
	roundingMode money.RoundingMode,
	roundingQuantum string,
) (Result, error) {
	var rate decimal.Decimal
	if currencyOriginal == baseCurrency {
		rate = decimal.NewFromInt(1)
	} else {
		r, ok := rates[currencyOriginal]
		if !ok {
			return Result{}, ferrors.WithValue(ferrors.ErrFxRateMissing, currencyOriginal)
		}
		rate = r
	}

	raw := amountOriginal.Mul(rate)
	converted, err := money.Quantize(raw, roundingMode, roundingQuantum)
	if err != nil {
		return Result{}, err
	}
	return Result{AmountConverted: converted, FxRateUsed: rate}, nil
}
