package leakage

import (
	"testing"
	"time"

	"github.com/galapoto/finforensics/internal/domain"
	"github.com/galapoto/finforensics/internal/matching"
	"github.com/shopspring/decimal"
)

func inputFor(id string, dir domain.Direction) matching.CanonicalInput {
	return matching.CanonicalInput{
		Record: domain.CanonicalRecord{RecordID: id, Direction: dir},
	}
}

func TestClassifyExactSameDayIsZeroExposureS1(t *testing.T) {
	inputs := map[string]matching.CanonicalInput{
		"I1": inputFor("I1", domain.DirectionDebit),
		"P1": inputFor("P1", domain.DirectionCredit),
	}
	outcome := matching.MatchOutcome{
		MatchedRecordIDs: []string{"I1", "P1"},
		Evidence:         matching.OutcomeEvidence{DateComparison: matching.DateComparison{DaysDiff: []int{0}}},
	}
	c := Classify(outcome, inputs, false)
	if c.Typology != TypologyUnmatchedPayable {
		t.Fatalf("expected unmatched_payable_exposure default, got %s", c.Typology)
	}
	if !c.ExposureAbs.IsZero() {
		t.Fatalf("expected zero exposure for exact match, got %s", c.ExposureAbs)
	}
}

func TestClassifyUnmatchedAmountDebitIsPayable(t *testing.T) {
	inputs := map[string]matching.CanonicalInput{
		"I1": inputFor("I1", domain.DirectionDebit),
		"P1": inputFor("P1", domain.DirectionCredit),
	}
	residual := decimal.RequireFromString("20.00")
	outcome := matching.MatchOutcome{
		MatchedRecordIDs: []string{"I1", "P1"},
		UnmatchedAmount:  &residual,
	}
	c := Classify(outcome, inputs, false)
	if c.Typology != TypologyUnmatchedPayable {
		t.Fatalf("expected unmatched_payable_exposure, got %s", c.Typology)
	}
	if !c.ExposureAbs.Equal(decimal.RequireFromString("20.00")) {
		t.Fatalf("expected exposure_abs 20.00, got %s", c.ExposureAbs)
	}
}

func TestClassifyUnmatchedAmountCreditIsReceivable(t *testing.T) {
	inputs := map[string]matching.CanonicalInput{
		"P1": inputFor("P1", domain.DirectionCredit),
		"I1": inputFor("I1", domain.DirectionDebit),
	}
	residual := decimal.RequireFromString("20.00")
	outcome := matching.MatchOutcome{
		MatchedRecordIDs: []string{"P1", "I1"},
		UnmatchedAmount:  &residual,
	}
	c := Classify(outcome, inputs, false)
	if c.Typology != TypologyUnmatchedReceivable {
		t.Fatalf("expected unmatched_receivable_exposure, got %s", c.Typology)
	}
}

func TestClassifyMoreThanTwoMatchedIsDuplicateSettlement(t *testing.T) {
	inputs := map[string]matching.CanonicalInput{
		"I1": inputFor("I1", domain.DirectionDebit),
		"P1": inputFor("P1", domain.DirectionCredit),
		"P2": inputFor("P2", domain.DirectionCredit),
	}
	outcome := matching.MatchOutcome{MatchedRecordIDs: []string{"I1", "P1", "P2"}}
	c := Classify(outcome, inputs, false)
	if c.Typology != TypologyDuplicateSettlement {
		t.Fatalf("expected duplicate_settlement_risk, got %s", c.Typology)
	}
}

func TestClassifyTimingInconsistency(t *testing.T) {
	inputs := map[string]matching.CanonicalInput{
		"I1": inputFor("I1", domain.DirectionDebit),
		"P1": inputFor("P1", domain.DirectionCredit),
	}
	outcome := matching.MatchOutcome{
		MatchedRecordIDs: []string{"I1", "P1"},
		Evidence:         matching.OutcomeEvidence{DateComparison: matching.DateComparison{InvoicePostedAt: time.Now(), DaysDiff: []int{3}}},
	}
	c := Classify(outcome, inputs, true)
	if c.Typology != TypologyTimingInconsistency {
		t.Fatalf("expected timing_inconsistency, got %s", c.Typology)
	}
}
