package matching

import (
	"sort"
	"time"

	"github.com/galapoto/finforensics/internal/domain"
	"github.com/shopspring/decimal"
)

// partialInvoicePaymentRule is ff.match.invoice_payment.partial v1
// (one-to-many, spec §4.7): for each invoice, accumulate eligible payments
// in (posted_at, record_id) order until the invoice's absolute amount is
// covered. Exactly-balanced accumulations are skipped so an exact rule can
// own them instead.
type partialInvoicePaymentRule struct{}

func NewPartialInvoicePaymentRule() MatchingRule { return &partialInvoicePaymentRule{} }

func (r *partialInvoicePaymentRule) RuleID() string      { return "ff.match.invoice_payment.partial" }
func (r *partialInvoicePaymentRule) RuleVersion() string { return "1" }

func (r *partialInvoicePaymentRule) Apply(ctx RuleContext, inputs []CanonicalInput, used map[string]bool) ([]MatchOutcome, error) {
	var invoices, payments []CanonicalInput
	for _, in := range inputs {
		if used[in.Record.RecordID] {
			continue
		}
		switch in.Record.RecordType {
		case domain.RecordTypeInvoice:
			invoices = append(invoices, in)
		case domain.RecordTypePayment:
			payments = append(payments, in)
		}
	}

	var outcomes []MatchOutcome
	for _, inv := range invoices {
		var eligible []CanonicalInput
		for _, p := range payments {
			if used[p.Record.RecordID] {
				continue
			}
			if p.Record.CounterpartyID != inv.Record.CounterpartyID {
				continue
			}
			if p.Record.Direction == inv.Record.Direction {
				continue
			}
			if !withinDaysLimit(ctx, inv, p) {
				continue
			}
			eligible = append(eligible, p)
		}
		if len(eligible) == 0 {
			continue
		}
		sort.Slice(eligible, func(i, j int) bool {
			if !eligible[i].Record.PostedAt.Equal(eligible[j].Record.PostedAt) {
				return eligible[i].Record.PostedAt.Before(eligible[j].Record.PostedAt)
			}
			return eligible[i].Record.RecordID < eligible[j].Record.RecordID
		})

		invoiceAbs := inv.AmountConverted.Abs()
		totalApplied := decimal.Zero
		var chosen []CanonicalInput
		for _, p := range eligible {
			if totalApplied.GreaterThanOrEqual(invoiceAbs) {
				break
			}
			totalApplied = totalApplied.Add(p.AmountConverted.Abs())
			chosen = append(chosen, p)
		}
		if len(chosen) == 0 {
			continue
		}
		if totalApplied.Equal(invoiceAbs) {
			// Exactly balanced: let an exact rule own this pairing.
			continue
		}

		// Symmetric vs a clamped subtraction: payments can overshoot the
		// invoice (e.g. spec.md S3's 40+30+50 against a 100.00 invoice), and
		// the residual is the overshoot magnitude, not zero. Same formula as
		// the many-to-one rule below.
		remaining := totalApplied.Sub(invoiceAbs).Abs()

		matchedIDs := []string{inv.Record.RecordID}
		var cpOriginal, cpConverted []decimal.Decimal
		var cpPostedAt []time.Time
		var daysDiffs []int
		for _, p := range chosen {
			matchedIDs = append(matchedIDs, p.Record.RecordID)
			cpOriginal = append(cpOriginal, p.Record.AmountOriginal)
			cpConverted = append(cpConverted, p.AmountConverted)
			cpPostedAt = append(cpPostedAt, p.Record.PostedAt)
			daysDiffs = append(daysDiffs, daysDiff(inv.Record.PostedAt, p.Record.PostedAt))
		}

		outcomes = append(outcomes, MatchOutcome{
			RuleID:             r.RuleID(),
			RuleVersion:        r.RuleVersion(),
			Confidence:         domain.ConfidencePartial,
			MatchedRecordIDs:   matchedIDs,
			UnmatchedAmount:    decimalPtr(remaining),
			SelectionRationale: "Payments accumulated in (posted_at, record_id) order until invoice amount covered; residual recorded explicitly.",
			Evidence: OutcomeEvidence{
				AmountComparison: AmountComparison{
					InvoiceAmountOriginal:       inv.Record.AmountOriginal,
					InvoiceAmountConverted:      inv.AmountConverted,
					CounterpartAmountsOriginal:  cpOriginal,
					CounterpartAmountsConverted: cpConverted,
					SumConverted:                totalApplied,
					DiffOriginal:                inv.Record.AmountOriginal.Sub(totalApplied).Abs(),
					DiffConverted:               remaining,
					ComparisonCurrency:          inv.BaseCurrency,
				},
				DateComparison: DateComparison{
					InvoicePostedAt:     inv.Record.PostedAt,
					CounterpartPostedAt: cpPostedAt,
					DaysDiff:            daysDiffs,
				},
				ReferenceComparison: buildReferenceComparison(inv, chosen),
				Counterparty:        buildCounterpartyComparison(inv, chosen),
				MatchSelection: MatchSelection{
					Method:        "partial_accumulation_one_to_many",
					Criteria:      []string{"same_counterparty", "opposite_direction", "accumulate_until_covered"},
					PriorityOrder: []string{"posted_at", "record_id"},
				},
			},
		})
	}
	return outcomes, nil
}

// partialManyInvoicesOnePaymentRule is
// ff.match.invoice_payment.partial_many_to_one v1 (many-to-one): driven by
// a payment, accumulates invoices in (posted_at, record_id) order; emits
// only when at least two invoices participate.
type partialManyInvoicesOnePaymentRule struct{}

func NewPartialManyInvoicesOnePaymentRule() MatchingRule { return &partialManyInvoicesOnePaymentRule{} }

func (r *partialManyInvoicesOnePaymentRule) RuleID() string {
	return "ff.match.invoice_payment.partial_many_to_one"
}
func (r *partialManyInvoicesOnePaymentRule) RuleVersion() string { return "1" }

func (r *partialManyInvoicesOnePaymentRule) Apply(ctx RuleContext, inputs []CanonicalInput, used map[string]bool) ([]MatchOutcome, error) {
	var invoices, payments []CanonicalInput
	for _, in := range inputs {
		if used[in.Record.RecordID] {
			continue
		}
		switch in.Record.RecordType {
		case domain.RecordTypeInvoice:
			invoices = append(invoices, in)
		case domain.RecordTypePayment:
			payments = append(payments, in)
		}
	}

	var outcomes []MatchOutcome
	for _, pay := range payments {
		var eligible []CanonicalInput
		for _, inv := range invoices {
			if used[inv.Record.RecordID] {
				continue
			}
			if inv.Record.CounterpartyID != pay.Record.CounterpartyID {
				continue
			}
			if inv.Record.Direction == pay.Record.Direction {
				continue
			}
			if !withinDaysLimit(ctx, pay, inv) {
				continue
			}
			eligible = append(eligible, inv)
		}
		if len(eligible) < 2 {
			continue
		}
		sort.Slice(eligible, func(i, j int) bool {
			if !eligible[i].Record.PostedAt.Equal(eligible[j].Record.PostedAt) {
				return eligible[i].Record.PostedAt.Before(eligible[j].Record.PostedAt)
			}
			return eligible[i].Record.RecordID < eligible[j].Record.RecordID
		})

		paymentAbs := pay.AmountConverted.Abs()
		totalInvoices := decimal.Zero
		var chosen []CanonicalInput
		for _, inv := range eligible {
			if totalInvoices.GreaterThanOrEqual(paymentAbs) {
				break
			}
			totalInvoices = totalInvoices.Add(inv.AmountConverted.Abs())
			chosen = append(chosen, inv)
		}
		if len(chosen) < 2 {
			continue
		}
		if totalInvoices.Equal(paymentAbs) {
			continue
		}

		// Same formula as the one-to-many rule: the many-to-one residual is
		// the absolute difference, not a clamped subtraction, mirroring
		// original_source's PartialManyInvoicesOnePaymentRule.
		remaining := totalInvoices.Sub(paymentAbs).Abs()

		matchedIDs := []string{pay.Record.RecordID}
		var cpOriginal, cpConverted []decimal.Decimal
		var cpPostedAt []time.Time
		var daysDiffs []int
		for _, inv := range chosen {
			matchedIDs = append(matchedIDs, inv.Record.RecordID)
			cpOriginal = append(cpOriginal, inv.Record.AmountOriginal)
			cpConverted = append(cpConverted, inv.AmountConverted)
			cpPostedAt = append(cpPostedAt, inv.Record.PostedAt)
			daysDiffs = append(daysDiffs, daysDiff(pay.Record.PostedAt, inv.Record.PostedAt))
		}

		outcomes = append(outcomes, MatchOutcome{
			RuleID:             r.RuleID(),
			RuleVersion:        r.RuleVersion(),
			Confidence:         domain.ConfidencePartial,
			MatchedRecordIDs:   matchedIDs,
			UnmatchedAmount:    decimalPtr(remaining),
			SelectionRationale: "Invoices accumulated in (posted_at, record_id) order against one payment; residual recorded explicitly.",
			Evidence: OutcomeEvidence{
				AmountComparison: AmountComparison{
					InvoiceAmountOriginal:       pay.Record.AmountOriginal,
					InvoiceAmountConverted:      pay.AmountConverted,
					CounterpartAmountsOriginal:  cpOriginal,
					CounterpartAmountsConverted: cpConverted,
					SumConverted:                totalInvoices,
					DiffOriginal:                pay.Record.AmountOriginal.Sub(totalInvoices).Abs(),
					DiffConverted:               remaining,
					ComparisonCurrency:          pay.BaseCurrency,
				},
				DateComparison: DateComparison{
					InvoicePostedAt:     pay.Record.PostedAt,
					CounterpartPostedAt: cpPostedAt,
					DaysDiff:            daysDiffs,
				},
				ReferenceComparison: buildReferenceComparison(pay, chosen),
				Counterparty:        buildCounterpartyComparison(pay, chosen),
				MatchSelection: MatchSelection{
					Method:        "partial_accumulation_many_to_one",
					Criteria:      []string{"same_counterparty", "opposite_direction", "accumulate_until_covered", "min_two_invoices"},
					PriorityOrder: []string{"posted_at", "record_id"},
				},
			},
		})
	}
	return outcomes, nil
}

func buildReferenceComparison(driving CanonicalInput, chosen []CanonicalInput) ReferenceComparison {
	var cpRefs []string
	for _, c := range chosen {
		cpRefs = append(cpRefs, c.Record.ReferenceIDs...)
	}
	matched := intersectRefs(driving.Record.ReferenceIDs, cpRefs)
	return ReferenceComparison{
		InvoiceReferenceIDs:     driving.Record.ReferenceIDs,
		CounterpartReferenceIDs: cpRefs,
		Matched:                 matched,
		Unmatched:               append(unmatchedRefs(driving.Record.ReferenceIDs, matched), unmatchedRefs(cpRefs, matched)...),
	}
}

func buildCounterpartyComparison(driving CanonicalInput, chosen []CanonicalInput) CounterpartyComparison {
	var ids []string
	for _, c := range chosen {
		ids = append(ids, c.Record.CounterpartyID)
	}
	return CounterpartyComparison{
		InvoiceCounterpartyID:      driving.Record.CounterpartyID,
		CounterpartCounterpartyIDs: ids,
		Matched:                    true,
		MatchLogic:                 "exact counterparty_id equality",
	}
}

func decimalPtr(d decimal.Decimal) *decimal.Decimal { return &d }
