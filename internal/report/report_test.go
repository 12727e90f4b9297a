package report

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/galapoto/finforensics/internal/assumptions"
	"github.com/galapoto/finforensics/internal/domain"
	"github.com/galapoto/finforensics/internal/ferrors"
)

func sampleFinding(id, ruleID string, evidenceID string) domain.Finding {
	return domain.Finding{
		FindingID:         id,
		RunID:             "run-1",
		DatasetVersionID:  "ds-1",
		RuleID:            ruleID,
		RuleVersion:       "1",
		FindingType:       domain.FindingTypeExactMatch,
		Confidence:        domain.ConfidenceExact,
		MatchedRecordIDs:  []string{"I1", "P1"},
		PrimaryEvidenceID: evidenceID,
		EvidenceIDs:       []string{evidenceID},
	}
}

func sampleLeakage(id, findingID, typology string, exposure string) domain.LeakageItem {
	return domain.LeakageItem{
		LeakageItemID:  id,
		RunID:          "run-1",
		FindingID:      findingID,
		DatasetVersionID: "ds-1",
		Typology:       typology,
		ExposureAbs:    decimal.RequireFromString(exposure),
		ExposureSigned: decimal.RequireFromString(exposure),
	}
}

func TestAssembleSortsFindingsByRuleThenFindingID(t *testing.T) {
	findings := []domain.Finding{
		sampleFinding("F2", "ff.match.zzz", "E2"),
		sampleFinding("F1", "ff.match.aaa", "E1"),
	}
	leakage := []domain.LeakageItem{
		sampleLeakage("L2", "F2", "unmatched_payable_exposure", "0"),
		sampleLeakage("L1", "F1", "unmatched_payable_exposure", "0"),
	}
	rep, err := Assemble("run-1", "ds-1", "engine_financial_forensics", "1", findings, leakage, nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rep.Findings) != 2 || rep.Findings[0].FindingID != "F1" || rep.Findings[1].FindingID != "F2" {
		t.Fatalf("expected findings sorted by rule_id, got %+v", rep.Findings)
	}
}

func TestAssembleTruncatesAtMaxReportFindings(t *testing.T) {
	findings := []domain.Finding{
		sampleFinding("F1", "ff.match.a", "E1"),
		sampleFinding("F2", "ff.match.b", "E2"),
		sampleFinding("F3", "ff.match.c", "E3"),
	}
	leakage := []domain.LeakageItem{
		sampleLeakage("L1", "F1", "unmatched_payable_exposure", "0"),
		sampleLeakage("L2", "F2", "unmatched_payable_exposure", "0"),
		sampleLeakage("L3", "F3", "unmatched_payable_exposure", "0"),
	}
	rep, err := Assemble("run-1", "ds-1", "engine_financial_forensics", "1", findings, leakage, nil, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rep.Findings) != 2 {
		t.Fatalf("expected truncation to 2 findings, got %d", len(rep.Findings))
	}
	if rep.Executive.TotalFindings != 3 {
		t.Fatalf("expected executive totals to reflect untruncated count, got %d", rep.Executive.TotalFindings)
	}
}

func TestAssembleRejectsFindingLeakageCountMismatch(t *testing.T) {
	findings := []domain.Finding{sampleFinding("F1", "ff.match.a", "E1")}
	_, err := Assemble("run-1", "ds-1", "engine_financial_forensics", "1", findings, nil, nil, 0)
	if !errors.Is(err, ferrors.ErrMissingLeakageItems) {
		t.Fatalf("expected ErrMissingLeakageItems, got %v", err)
	}
}

func TestAssembleRejectsMissingPrimaryEvidence(t *testing.T) {
	findings := []domain.Finding{sampleFinding("F1", "ff.match.a", "")}
	leakage := []domain.LeakageItem{sampleLeakage("L1", "F1", "unmatched_payable_exposure", "0")}
	_, err := Assemble("run-1", "ds-1", "engine_financial_forensics", "1", findings, leakage, nil, 0)
	if !errors.Is(err, ferrors.ErrMissingEvidenceForRun) {
		t.Fatalf("expected ErrMissingEvidenceForRun, got %v", err)
	}
}

func TestAssembleAggregatesLeakageByTypologySorted(t *testing.T) {
	findings := []domain.Finding{
		sampleFinding("F1", "ff.match.a", "E1"),
		sampleFinding("F2", "ff.match.b", "E2"),
	}
	leakage := []domain.LeakageItem{
		sampleLeakage("L1", "F1", "unmatched_receivable_exposure", "10.00"),
		sampleLeakage("L2", "F2", "duplicate_settlement_risk", "5.00"),
	}
	rep, err := Assemble("run-1", "ds-1", "engine_financial_forensics", "1", findings, leakage, nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rep.LeakageBreakdown) != 2 {
		t.Fatalf("expected 2 breakdown rows, got %d", len(rep.LeakageBreakdown))
	}
	if rep.LeakageBreakdown[0].Typology != "duplicate_settlement_risk" {
		t.Fatalf("expected typologies sorted lexically, got %+v", rep.LeakageBreakdown)
	}
	if !rep.Exposure.TotalExposureAbs.Equal(decimal.RequireFromString("15.00")) {
		t.Fatalf("expected total exposure 15.00, got %s", rep.Exposure.TotalExposureAbs)
	}
}

func TestAssembleCarriesAssumptionsIntoExecutiveOverview(t *testing.T) {
	entries := []assumptions.Entry{{Key: "fx_artifact", Detail: "fx-1"}}
	findings := []domain.Finding{sampleFinding("F1", "ff.match.a", "E1")}
	leakage := []domain.LeakageItem{sampleLeakage("L1", "F1", "unmatched_payable_exposure", "0")}
	rep, err := Assemble("run-1", "ds-1", "engine_financial_forensics", "1", findings, leakage, entries, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rep.Executive.Assumptions) != 1 || rep.Executive.Assumptions[0].Key != "fx_artifact" {
		t.Fatalf("expected assumptions carried through, got %+v", rep.Executive.Assumptions)
	}
}

func TestAssembleSortsEvidenceIndexByEvidenceID(t *testing.T) {
	findings := []domain.Finding{
		sampleFinding("F1", "ff.match.a", "E9"),
		sampleFinding("F2", "ff.match.b", "E2"),
	}
	leakage := []domain.LeakageItem{
		sampleLeakage("L1", "F1", "unmatched_payable_exposure", "0"),
		sampleLeakage("L2", "F2", "unmatched_payable_exposure", "0"),
	}
	rep, err := Assemble("run-1", "ds-1", "engine_financial_forensics", "1", findings, leakage, nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rep.EvidenceIndex) != 4 {
		t.Fatalf("expected 4 evidence index rows, got %d", len(rep.EvidenceIndex))
	}
	for i := 1; i < len(rep.EvidenceIndex); i++ {
		if rep.EvidenceIndex[i-1].EvidenceID > rep.EvidenceIndex[i].EvidenceID {
			t.Fatalf("expected evidence index sorted by evidence_id, got %+v", rep.EvidenceIndex)
		}
	}
	if rep.EvidenceIndex[0].EvidenceID != "E2" || rep.EvidenceIndex[1].EvidenceID != "E2" {
		t.Fatalf("expected E2's rows first, got %+v", rep.EvidenceIndex)
	}
	if rep.EvidenceIndex[0].SubjectKind != "finding" || rep.EvidenceIndex[1].SubjectKind != "leakage_item" {
		t.Fatalf("expected finding row before leakage_item row for shared evidence_id, got %+v", rep.EvidenceIndex)
	}
}
