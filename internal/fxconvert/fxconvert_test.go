package fxconvert

import (
	"testing"

	"github.com/galapoto/finforensics/internal/money"
	"github.com/shopspring/decimal"
)

func TestConvertSameCurrencyUsesRateOne(t *testing.T) {
	amt := decimal.RequireFromString("100.00")
	res, err := Convert(amt, "USD", "USD", nil, money.RoundHalfUp, "0.01")
	if err != nil {
		t.Fatal(err)
	}
	if !res.FxRateUsed.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected rate 1, got %s", res.FxRateUsed)
	}
	if !res.AmountConverted.Equal(amt) {
		t.Fatalf("expected unchanged amount, got %s", res.AmountConverted)
	}
}

func TestConvertMissingRateIsHardError(t *testing.T) {
	amt := decimal.RequireFromString("100.00")
	_, err := Convert(amt, "EUR", "USD", map[string]decimal.Decimal{}, money.RoundHalfUp, "0.01")
	if err == nil {
		t.Fatal("expected FX_RATE_MISSING error")
	}
}

func TestConvertAppliesRateAndQuantizes(t *testing.T) {
	amt := decimal.RequireFromString("100")
	rates := map[string]decimal.Decimal{"EUR": decimal.RequireFromString("0.915")}
	res, err := Convert(amt, "EUR", "USD", rates, money.RoundHalfUp, "0.01")
	if err != nil {
		t.Fatal(err)
	}
	if res.AmountConverted.StringFixed(2) != "91.50" {
		t.Fatalf("expected 91.50, got %s", res.AmountConverted)
	}
}

func TestConvertDifferentRateChangesOutput(t *testing.T) {
	amt := decimal.RequireFromString("100")
	res1, _ := Convert(amt, "EUR", "USD", map[string]decimal.Decimal{"EUR": decimal.RequireFromString("0.91")}, money.RoundHalfUp, "0.01")
	res2, _ := Convert(amt, "EUR", "USD", map[string]decimal.Decimal{"EUR": decimal.RequireFromString("0.92")}, money.RoundHalfUp, "0.01")
	if res1.AmountConverted.Equal(res2.AmountConverted) {
		t.Fatal("expected differing FX rate to change converted amount")
	}
}

func TestConvertRequiresRoundingMode(t *testing.T) {
	amt := decimal.RequireFromString("100")
	_, err := Convert(amt, "USD", "USD", nil, "", "0.01")
	if err == nil {
		t.Fatal("expected ROUNDING_MODE_REQUIRED")
	}
}
