// Package matching implements the matching framework and orchestrator
// (C6, spec §4.6) plus the concrete rules (C7, spec §4.7): exact,
// tolerance, and partial invoice/payment/credit-note matching with
// first-match-wins orchestration.
package matching

import (
	"fmt"
	"time"

	"github.com/galapoto/finforensics/internal/domain"
	"github.com/galapoto/finforensics/internal/money"
	"github.com/shopspring/decimal"
)

// AllowedConfidence is the closed set a rule may report; any other value
// from a rule implementation is a programming error (spec §4.6).
var AllowedConfidence = map[domain.Confidence]bool{
	domain.ConfidenceExact:           true,
	domain.ConfidenceWithinTolerance: true,
	domain.ConfidencePartial:         true,
	domain.ConfidenceAmbiguous:       true,
}

// RuleParameters is the run's explicit parameter record (spec §4.6).
type RuleParameters struct {
	RoundingMode        money.RoundingMode
	RoundingQuantum     string
	ToleranceAmount     *decimal.Decimal
	TolerancePercent    *decimal.Decimal
	MaxPostedDaysDiff   *int
}

// RuleContext carries the run-scoped state every rule needs.
type RuleContext struct {
	DatasetVersionID string
	FxArtifactID     string
	StartedAt        time.Time
	Params           RuleParameters
}

// CanonicalInput pairs a canonical record with its converted amount, the
// unit every matching rule actually operates on.
type CanonicalInput struct {
	Record          domain.CanonicalRecord
	AmountConverted decimal.Decimal
	FxRateUsed      decimal.Decimal
	BaseCurrency    string
}

// SignedConvertedAmount is the single accounting convention the core
// enforces: debit is positive, credit is negative (spec §4.6).
func (c CanonicalInput) SignedConvertedAmount() decimal.Decimal {
	if c.Record.Direction == domain.DirectionCredit {
		return c.AmountConverted.Neg()
	}
	return c.AmountConverted
}

// MatchOutcome is what a rule proposes; the orchestrator decides whether
// it is ultimately applied.
type MatchOutcome struct {
	RuleID           string
	RuleVersion      string
	Confidence       domain.Confidence
	MatchedRecordIDs []string // ordered, driving record first
	UnmatchedAmount  *decimal.Decimal
	SelectionRationale string
	Evidence         OutcomeEvidence
}

// OutcomeEvidence is the structured payload a rule builds alongside its
// outcome; internal/evidence maps this into the persisted schema v1
// bundle (spec §3's required evidence sections).
type OutcomeEvidence struct {
	AmountComparison   AmountComparison
	DateComparison     DateComparison
	ReferenceComparison ReferenceComparison
	Counterparty       CounterpartyComparison
	MatchSelection     MatchSelection
	Tolerance          *ToleranceEvidence
}

type AmountComparison struct {
	InvoiceAmountOriginal    decimal.Decimal
	InvoiceAmountConverted   decimal.Decimal
	CounterpartAmountsOriginal []decimal.Decimal
	CounterpartAmountsConverted []decimal.Decimal
	SumConverted             decimal.Decimal
	DiffOriginal             decimal.Decimal
	DiffConverted            decimal.Decimal
	ComparisonCurrency       string
}

type DateComparison struct {
	InvoicePostedAt     time.Time
	CounterpartPostedAt []time.Time
	DaysDiff            []int
}

type ReferenceComparison struct {
	InvoiceReferenceIDs     []string
	CounterpartReferenceIDs []string
	Matched                 []string
	Unmatched               []string
}

type CounterpartyComparison struct {
	InvoiceCounterpartyID     string
	CounterpartCounterpartyIDs []string
	Matched                   bool
	MatchLogic                string
}

type MatchSelection struct {
	Method              string
	Criteria            []string
	PriorityOrder       []string
	ExcludedCandidates  []ExcludedCandidate
}

type ExcludedCandidate struct {
	RecordID string
	Reason   string
}

type ToleranceEvidence struct {
	ToleranceAmount         *decimal.Decimal
	TolerancePercent        *decimal.Decimal
	ComputedToleranceInBase decimal.Decimal
	ImbalanceInBase         decimal.Decimal
	ThresholdApplied        decimal.Decimal
}

// MatchingRule is the shared contract spec §4.6 requires; it proposes zero
// or more outcomes without knowing whether they will ultimately be applied.
type MatchingRule interface {
	RuleID() string
	RuleVersion() string
	Apply(ctx RuleContext, recordsSortedByRecordID []CanonicalInput, usedRecordIDs map[string]bool) ([]MatchOutcome, error)
}

// ValidateOutcome enforces the structural guarantees spec §4.7's state
// machine relies on: no duplicate record ids within an outcome, a known
// confidence, and a non-empty matched set. Violations are fatal per spec
// §4.7 ("abort the run and report nothing partial").
func ValidateOutcome(o MatchOutcome) error {
	if len(o.MatchedRecordIDs) == 0 {
		return fmt.Errorf("match outcome for rule %s has empty matched_record_ids", o.RuleID)
	}
	if !AllowedConfidence[o.Confidence] {
		return fmt.Errorf("match outcome for rule %s has unknown confidence %q", o.RuleID, o.Confidence)
	}
	seen := map[string]bool{}
	for _, id := range o.MatchedRecordIDs {
		if seen[id] {
			return fmt.Errorf("match outcome for rule %s has duplicate record id %s", o.RuleID, id)
		}
		seen[id] = true
	}
	return nil
}

func daysDiff(a, b time.Time) int {
	d := a.Sub(b)
	days := int(d.Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}
