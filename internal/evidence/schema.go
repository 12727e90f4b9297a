// Package evidence implements the evidence registry (C8, spec §4.8): a
// schema-v1 evidence bundle, exhaustive and machine-checked before write,
// plus the leakage evidence sub-record (DESIGN.md Open Question 5).
package evidence

import (
	"time"

	"github.com/galapoto/finforensics/internal/ferrors"
	"github.com/shopspring/decimal"
)

// RuleIdentity is the "rule identity" required section (spec §3).
type RuleIdentity struct {
	RuleID            string
	RuleVersion       string
	FrameworkVersion  string
	ExecutedParameters map[string]any
}

// Tolerance is the optional tolerance section, present only when a
// tolerance rule applied.
type Tolerance struct {
	ToleranceAmount         *decimal.Decimal
	TolerancePercent        *decimal.Decimal
	ComputedToleranceInBase decimal.Decimal
	ThresholdApplied        decimal.Decimal
}

// AmountComparison is the required amount-comparison section.
type AmountComparison struct {
	InvoiceAmountOriginal       decimal.Decimal
	InvoiceAmountConverted      decimal.Decimal
	CounterpartAmountsOriginal  []decimal.Decimal
	CounterpartAmountsConverted []decimal.Decimal
	SumConverted                decimal.Decimal
	DiffOriginal                *decimal.Decimal
	DiffConverted               *decimal.Decimal
	ComparisonCurrency          string
}

// DateComparison is the required date-comparison section.
type DateComparison struct {
	InvoicePostedAt     time.Time
	CounterpartPostedAt []time.Time
	DaysDiff            []int
}

// ReferenceComparison is the required reference-comparison section.
type ReferenceComparison struct {
	InvoiceReferenceIDs     []string
	CounterpartReferenceIDs []string
	Matched                 []string
	Unmatched               []string
}

// Counterparty is the required counterparty section.
type Counterparty struct {
	InvoiceCounterpartyID      string
	CounterpartCounterpartyIDs []string
	Matched                    bool
	MatchLogic                 string
}

// MatchSelectionRationale is the required match-selection section.
type MatchSelectionRationale struct {
	Method             string
	Criteria           []string
	PriorityOrder      []string
	ExcludedCandidates []ExcludedCandidate
}

type ExcludedCandidate struct {
	RecordID string
	Reason   string
}

// PrimarySourceLinks is the required primary-sources section.
type PrimarySourceLinks struct {
	RecordIDs       []string
	SourceSystem    []string
	SourceRecordIDs []string
	CanonicalRecordIDs []string
}

// SchemaV1 is the full, mandatory evidence bundle for one Finding, per
// spec §3/§4.8. Every field below is required except Tolerance.
type SchemaV1 struct {
	RuleIdentity        RuleIdentity
	Tolerance           *Tolerance
	AmountComparison    AmountComparison
	DateComparison      DateComparison
	ReferenceComparison ReferenceComparison
	Counterparty        Counterparty
	MatchSelection      MatchSelectionRationale
	PrimarySources      PrimarySourceLinks
}

// Validate enforces original_source's evidence_schema_v1.py validation
// order exactly: rule identity is checked with priority even when other
// top-level fields are also missing, followed by per-section checks in a
// fixed order. This ordering and the resulting error codes are a directly
// tested property (spec §8 S5).
func (s SchemaV1) Validate() error {
	if s.RuleIdentity.RuleID == "" || s.RuleIdentity.RuleVersion == "" || s.RuleIdentity.FrameworkVersion == "" {
		return ferrors.ErrEvidenceRuleIdentityFieldMissing
	}

	if s.AmountComparison.InvoiceAmountOriginal.IsZero() && s.AmountComparison.ComparisonCurrency == "" {
		return ferrors.WithValue(ferrors.ErrEvidenceAmountComparisonFieldMissing, "amount_comparison")
	}
	if s.AmountComparison.DiffOriginal == nil {
		return ferrors.WithValue(ferrors.ErrEvidenceAmountComparisonFieldMissing, "diff_original")
	}
	if s.AmountComparison.DiffConverted == nil {
		return ferrors.WithValue(ferrors.ErrEvidenceAmountComparisonFieldMissing, "diff_converted")
	}
	if s.AmountComparison.ComparisonCurrency == "" {
		return ferrors.WithValue(ferrors.ErrEvidenceAmountComparisonFieldMissing, "comparison_currency")
	}

	if s.DateComparison.InvoicePostedAt.IsZero() {
		return ferrors.WithValue(ferrors.ErrEvidenceDateComparisonFieldMissing, "invoice_posted_at")
	}
	if s.DateComparison.CounterpartPostedAt == nil {
		return ferrors.WithValue(ferrors.ErrEvidenceDateComparisonFieldMissing, "counterpart_posted_at")
	}
	if s.DateComparison.DaysDiff == nil {
		return ferrors.WithValue(ferrors.ErrEvidenceDateComparisonFieldMissing, "days_diff")
	}

	if s.ReferenceComparison.InvoiceReferenceIDs == nil {
		return ferrors.WithValue(ferrors.ErrEvidenceReferenceComparisonFieldMissing, "invoice_reference_ids")
	}
	if s.ReferenceComparison.CounterpartReferenceIDs == nil {
		return ferrors.WithValue(ferrors.ErrEvidenceReferenceComparisonFieldMissing, "counterpart_reference_ids")
	}

	if s.Counterparty.InvoiceCounterpartyID == "" {
		return ferrors.WithValue(ferrors.ErrEvidenceCounterpartyFieldMissing, "invoice_counterparty_id")
	}
	if s.Counterparty.MatchLogic == "" {
		return ferrors.WithValue(ferrors.ErrEvidenceCounterpartyFieldMissing, "match_logic")
	}

	if s.MatchSelection.Method == "" {
		return ferrors.WithValue(ferrors.ErrEvidenceMatchSelectionFieldMissing, "method")
	}
	if s.MatchSelection.PriorityOrder == nil {
		return ferrors.WithValue(ferrors.ErrEvidenceMatchSelectionFieldMissing, "priority_order")
	}

	if s.PrimarySources.RecordIDs == nil {
		return ferrors.WithValue(ferrors.ErrEvidencePrimarySourcesFieldMissing, "record_ids")
	}
	if s.PrimarySources.SourceSystem == nil {
		return ferrors.WithValue(ferrors.ErrEvidencePrimarySourcesFieldMissing, "source_system")
	}
	if s.PrimarySources.SourceRecordIDs == nil {
		return ferrors.WithValue(ferrors.ErrEvidencePrimarySourcesFieldMissing, "source_record_ids")
	}
	if s.PrimarySources.CanonicalRecordIDs == nil {
		return ferrors.WithValue(ferrors.ErrEvidencePrimarySourcesFieldMissing, "canonical_record_ids")
	}

	return nil
}
