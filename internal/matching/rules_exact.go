package matching

import (
	"sort"
	"time"

	"github.com/galapoto/finforensics/internal/domain"
	"github.com/shopspring/decimal"
)

// oneToOneRule is the shared shape of the four one-to-one rules (exact and
// tolerance, against payments and credit notes): find, for each driving
// record of drivingType, the best eligible counterpart of counterpartType,
// under a caller-supplied balance predicate.
type oneToOneRule struct {
	ruleID         string
	ruleVersion    string
	drivingType    domain.RecordType
	counterpartType domain.RecordType
	confidence     domain.Confidence
	// eligible reports whether the pair balances under this rule's rule
	// (exact: sum==0; tolerance: |sum|<=computed tolerance), and if so
	// returns the tolerance evidence sub-record (nil for exact rules).
	eligible func(ctx RuleContext, driving, counterpart CanonicalInput) (bool, *ToleranceEvidence, error)
	selectionRationale string
	matchMethod        string
	// byImbalance selects the tolerance-rule candidate ordering (minimum
	// absolute imbalance, then days_diff, then record_id) instead of the
	// exact-rule ordering (reference intersection, then days_diff, then
	// record_id).
	byImbalance bool
}

func (r *oneToOneRule) RuleID() string      { return r.ruleID }
func (r *oneToOneRule) RuleVersion() string { return r.ruleVersion }

// priorityOrder names the candidate ordering selected by byImbalance, as
// recorded in the match selection evidence.
func (r *oneToOneRule) priorityOrder() []string {
	if r.byImbalance {
		return []string{"imbalance", "days_diff", "record_id"}
	}
	return []string{"reference_intersection", "days_diff", "record_id"}
}

func referencesIntersect(a, b []string) bool {
	set := map[string]bool{}
	for _, x := range a {
		set[x] = true
	}
	for _, x := range b {
		if set[x] {
			return true
		}
	}
	return false
}

func intersectRefs(a, b []string) []string {
	set := map[string]bool{}
	for _, x := range a {
		set[x] = true
	}
	var out []string
	for _, x := range b {
		if set[x] {
			out = append(out, x)
		}
	}
	return out
}

func unmatchedRefs(a, matched []string) []string {
	m := map[string]bool{}
	for _, x := range matched {
		m[x] = true
	}
	var out []string
	for _, x := range a {
		if !m[x] {
			out = append(out, x)
		}
	}
	return out
}

func withinDaysLimit(ctx RuleContext, driving, counterpart CanonicalInput) bool {
	if ctx.Params.MaxPostedDaysDiff == nil {
		return true
	}
	return daysDiff(driving.Record.PostedAt, counterpart.Record.PostedAt) <= *ctx.Params.MaxPostedDaysDiff
}

func (r *oneToOneRule) Apply(ctx RuleContext, inputs []CanonicalInput, used map[string]bool) ([]MatchOutcome, error) {
	var drivers, counterparts []CanonicalInput
	for _, in := range inputs {
		if used[in.Record.RecordID] {
			continue
		}
		if in.Record.RecordType == r.drivingType {
			drivers = append(drivers, in)
		} else if in.Record.RecordType == r.counterpartType {
			counterparts = append(counterparts, in)
		}
	}

	var outcomes []MatchOutcome
	for _, driving := range drivers {
		type candidate struct {
			cp        CanonicalInput
			hasRefs   bool
			daysDiff  int
			imbalance decimal.Decimal
			tolerance *ToleranceEvidence
		}
		var candidates []candidate
		var excluded []ExcludedCandidate

		for _, cp := range counterparts {
			if used[cp.Record.RecordID] {
				continue
			}
			if cp.Record.CounterpartyID != driving.Record.CounterpartyID {
				continue
			}
			if cp.Record.Direction == driving.Record.Direction {
				excluded = append(excluded, ExcludedCandidate{RecordID: cp.Record.RecordID, Reason: "same direction as driving record"})
				continue
			}
			if !withinDaysLimit(ctx, driving, cp) {
				excluded = append(excluded, ExcludedCandidate{RecordID: cp.Record.RecordID, Reason: "exceeds max_posted_days_diff"})
				continue
			}
			ok, tol, err := r.eligible(ctx, driving, cp)
			if err != nil {
				return nil, err
			}
			if !ok {
				excluded = append(excluded, ExcludedCandidate{RecordID: cp.Record.RecordID, Reason: "amounts do not balance under rule"})
				continue
			}
			imbalance := driving.SignedConvertedAmount().Add(cp.SignedConvertedAmount()).Abs()
			candidates = append(candidates, candidate{
				cp:        cp,
				hasRefs:   referencesIntersect(driving.Record.ReferenceIDs, cp.Record.ReferenceIDs),
				daysDiff:  daysDiff(driving.Record.PostedAt, cp.Record.PostedAt),
				imbalance: imbalance,
				tolerance: tol,
			})
		}
		if len(candidates) == 0 {
			continue
		}

		sort.Slice(candidates, func(i, j int) bool {
			if r.byImbalance {
				if !candidates[i].imbalance.Equal(candidates[j].imbalance) {
					return candidates[i].imbalance.LessThan(candidates[j].imbalance)
				}
			} else if candidates[i].hasRefs != candidates[j].hasRefs {
				return candidates[i].hasRefs // true (has refs) sorts first
			}
			if candidates[i].daysDiff != candidates[j].daysDiff {
				return candidates[i].daysDiff < candidates[j].daysDiff
			}
			return candidates[i].cp.Record.RecordID < candidates[j].cp.Record.RecordID
		})
		chosen := candidates[0]
		cp := chosen.cp

		sum := driving.SignedConvertedAmount().Add(cp.SignedConvertedAmount())
		matchedIDs := []string{driving.Record.RecordID, cp.Record.RecordID}
		matchedRefs := intersectRefs(driving.Record.ReferenceIDs, cp.Record.ReferenceIDs)

		outcome := MatchOutcome{
			RuleID:           r.ruleID,
			RuleVersion:      r.ruleVersion,
			Confidence:       r.confidence,
			MatchedRecordIDs: matchedIDs,
			SelectionRationale: r.selectionRationale,
			Evidence: OutcomeEvidence{
				AmountComparison: AmountComparison{
					InvoiceAmountOriginal:       driving.Record.AmountOriginal,
					InvoiceAmountConverted:      driving.AmountConverted,
					CounterpartAmountsOriginal:  []decimal.Decimal{cp.Record.AmountOriginal},
					CounterpartAmountsConverted: []decimal.Decimal{cp.AmountConverted},
					SumConverted:                sum,
					DiffOriginal:                driving.Record.AmountOriginal.Sub(cp.Record.AmountOriginal).Abs(),
					DiffConverted:               sum.Abs(),
					ComparisonCurrency:          driving.BaseCurrency,
				},
				DateComparison: DateComparison{
					InvoicePostedAt:     driving.Record.PostedAt,
					CounterpartPostedAt: []time.Time{cp.Record.PostedAt},
					DaysDiff:            []int{chosen.daysDiff},
				},
				ReferenceComparison: ReferenceComparison{
					InvoiceReferenceIDs:     driving.Record.ReferenceIDs,
					CounterpartReferenceIDs: cp.Record.ReferenceIDs,
					Matched:                 matchedRefs,
					Unmatched:               append(unmatchedRefs(driving.Record.ReferenceIDs, matchedRefs), unmatchedRefs(cp.Record.ReferenceIDs, matchedRefs)...),
				},
				Counterparty: CounterpartyComparison{
					InvoiceCounterpartyID:      driving.Record.CounterpartyID,
					CounterpartCounterpartyIDs: []string{cp.Record.CounterpartyID},
					Matched:                    true,
					MatchLogic:                 "exact counterparty_id equality",
				},
				MatchSelection: MatchSelection{
					Method:             r.matchMethod,
					Criteria:           []string{"same_counterparty", "opposite_direction", "balance_rule"},
					PriorityOrder:      r.priorityOrder(),
					ExcludedCandidates: excluded,
				},
				Tolerance: chosen.tolerance,
			},
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func exactEligible(_ RuleContext, driving, counterpart CanonicalInput) (bool, *ToleranceEvidence, error) {
	sum := driving.SignedConvertedAmount().Add(counterpart.SignedConvertedAmount())
	if !sum.IsZero() {
		return false, nil, nil
	}
	return true, nil, nil
}

// NewExactInvoicePaymentRule is ff.match.invoice_payment.exact v1.
func NewExactInvoicePaymentRule() MatchingRule {
	return &oneToOneRule{
		ruleID:          "ff.match.invoice_payment.exact",
		ruleVersion:     "1",
		drivingType:     domain.RecordTypeInvoice,
		counterpartType: domain.RecordTypePayment,
		confidence:      domain.ConfidenceExact,
		eligible:        exactEligible,
		selectionRationale: "Exact converted amounts balance to zero; deterministic selection applied.",
		matchMethod:        "exact_balance",
	}
}

// NewExactInvoiceCreditNoteRule is ff.match.invoice_credit_note.exact v1.
func NewExactInvoiceCreditNoteRule() MatchingRule {
	return &oneToOneRule{
		ruleID:          "ff.match.invoice_credit_note.exact",
		ruleVersion:     "1",
		drivingType:     domain.RecordTypeInvoice,
		counterpartType: domain.RecordTypeCreditNote,
		confidence:      domain.ConfidenceExact,
		eligible:        exactEligible,
		selectionRationale: "Exact converted amounts balance to zero; deterministic selection applied.",
		matchMethod:        "exact_balance",
	}
}
