// Package leakage implements the leakage classifier and exposure deriver
// (C9, spec §4.9). There is no corresponding file in original_source; the
// typology/exposure rules here are designed from spec §4.9's text and the
// leakage evidence schema's field taxonomy — see DESIGN.md Open Question 6.
package leakage

import (
	"github.com/galapoto/finforensics/internal/domain"
	"github.com/galapoto/finforensics/internal/matching"
	"github.com/shopspring/decimal"
)

// Typology is the closed set spec §4.9 names.
type Typology string

const (
	TypologyUnmatchedPayable    Typology = "unmatched_payable_exposure"
	TypologyUnmatchedReceivable Typology = "unmatched_receivable_exposure"
	TypologyDuplicateSettlement Typology = "duplicate_settlement_risk"
	TypologyTimingInconsistency Typology = "timing_inconsistency"
)

// ClassifierVersion is recorded in every typology rationale so future rule
// revisions remain distinguishable in persisted evidence.
const ClassifierVersion = "1"

// Classification is the C9 output for one applied match outcome.
type Classification struct {
	Typology       Typology
	ExposureAbs    decimal.Decimal
	ExposureSigned decimal.Decimal
	CurrencyMode   string // "original_only" or "fx_to_base"
	Confidence     string
}

// drivingDirection returns the direction of the outcome's first (driving)
// matched record, the convention every rule in internal/matching follows
// when it builds MatchedRecordIDs.
func drivingDirection(inputsByID map[string]matching.CanonicalInput, outcome matching.MatchOutcome) domain.Direction {
	if len(outcome.MatchedRecordIDs) == 0 {
		return domain.DirectionDebit
	}
	return inputsByID[outcome.MatchedRecordIDs[0]].Record.Direction
}

func directionTypology(dir domain.Direction) Typology {
	if dir == domain.DirectionCredit {
		return TypologyUnmatchedReceivable
	}
	return TypologyUnmatchedPayable
}

// Classify implements the priority-ordered rules from SPEC_FULL.md §4.9a.
func Classify(outcome matching.MatchOutcome, inputsByID map[string]matching.CanonicalInput, maxPostedDaysDiffSet bool) Classification {
	dir := drivingDirection(inputsByID, outcome)

	switch {
	case len(outcome.MatchedRecordIDs) > 2 && outcome.UnmatchedAmount == nil:
		return Classification{
			Typology:       TypologyDuplicateSettlement,
			ExposureAbs:    decimal.Zero,
			ExposureSigned: decimal.Zero,
			CurrencyMode:   "fx_to_base",
			Confidence:     "high",
		}
	case outcome.UnmatchedAmount != nil:
		abs := outcome.UnmatchedAmount.Abs()
		signed := *outcome.UnmatchedAmount
		if dir == domain.DirectionCredit {
			signed = signed.Neg()
		}
		return Classification{
			Typology:       directionTypology(dir),
			ExposureAbs:    abs,
			ExposureSigned: signed,
			CurrencyMode:   "fx_to_base",
			Confidence:     "medium",
		}
	case maxPostedDaysDiffSet && anyNonzeroDaysDiff(outcome):
		return Classification{
			Typology:       TypologyTimingInconsistency,
			ExposureAbs:    decimal.Zero,
			ExposureSigned: decimal.Zero,
			CurrencyMode:   "fx_to_base",
			Confidence:     "medium",
		}
	default:
		return Classification{
			Typology:       directionTypology(dir),
			ExposureAbs:    decimal.Zero,
			ExposureSigned: decimal.Zero,
			CurrencyMode:   "fx_to_base",
			Confidence:     "high",
		}
	}
}

func anyNonzeroDaysDiff(outcome matching.MatchOutcome) bool {
	for _, d := range outcome.Evidence.DateComparison.DaysDiff {
		if d != 0 {
			return true
		}
	}
	return false
}
