package matching

import (
	"fmt"

	"github.com/galapoto/finforensics/internal/domain"
	"github.com/shopspring/decimal"
)

// computedTolerance mirrors original_source's _tolerance_amount(): the max
// of the flat tolerance_amount and tolerance_percent * |driving amount|,
// ignoring whichever is unset. At least one must be set.
func computedTolerance(ctx RuleContext, driving CanonicalInput) (decimal.Decimal, error) {
	var candidates []decimal.Decimal
	if ctx.Params.ToleranceAmount != nil {
		candidates = append(candidates, *ctx.Params.ToleranceAmount)
	}
	if ctx.Params.TolerancePercent != nil {
		candidates = append(candidates, driving.AmountConverted.Abs().Mul(*ctx.Params.TolerancePercent))
	}
	if len(candidates) == 0 {
		return decimal.Decimal{}, fmt.Errorf("TOLERANCE_REQUIRED")
	}
	max := candidates[0]
	for _, c := range candidates[1:] {
		if c.GreaterThan(max) {
			max = c
		}
	}
	return max, nil
}

func toleranceEligibleFor(ctx RuleContext, driving, counterpart CanonicalInput) (bool, *ToleranceEvidence, error) {
	threshold, err := computedTolerance(ctx, driving)
	if err != nil {
		return false, nil, err
	}
	sum := driving.SignedConvertedAmount().Add(counterpart.SignedConvertedAmount())
	imbalance := sum.Abs()
	if imbalance.GreaterThan(threshold) {
		return false, nil, nil
	}
	return true, &ToleranceEvidence{
		ToleranceAmount:         ctx.Params.ToleranceAmount,
		TolerancePercent:        ctx.Params.TolerancePercent,
		ComputedToleranceInBase: threshold,
		ImbalanceInBase:         imbalance,
		ThresholdApplied:        threshold,
	}, nil
}

// NewToleranceInvoicePaymentRule is ff.match.invoice_payment.tolerance v1.
func NewToleranceInvoicePaymentRule() MatchingRule {
	return &oneToOneRule{
		ruleID:          "ff.match.invoice_payment.tolerance",
		ruleVersion:     "1",
		drivingType:     domain.RecordTypeInvoice,
		counterpartType: domain.RecordTypePayment,
		confidence:      domain.ConfidenceWithinTolerance,
		eligible:        toleranceEligibleFor,
		selectionRationale: "Converted amounts balance within explicit tolerance; deterministic selection applied.",
		matchMethod:        "tolerance_balance",
		byImbalance:        true,
	}
}

// NewToleranceInvoiceCreditNoteRule is ff.match.invoice_credit_note.tolerance v1.
func NewToleranceInvoiceCreditNoteRule() MatchingRule {
	return &oneToOneRule{
		ruleID:          "ff.match.invoice_credit_note.tolerance",
		ruleVersion:     "1",
		drivingType:     domain.RecordTypeInvoice,
		counterpartType: domain.RecordTypeCreditNote,
		confidence:      domain.ConfidenceWithinTolerance,
		eligible:        toleranceEligibleFor,
		selectionRationale: "Converted amounts balance within explicit tolerance; deterministic selection applied.",
		matchMethod:        "tolerance_balance",
		byImbalance:        true,
	}
}
