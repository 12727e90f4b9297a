// Package report assembles the five deterministic sections spec §6's
// Report endpoint names from a completed Run's persisted Findings,
// LeakageItems, and Evidence. Assembly is pure sorting and aggregation —
// no recomputation of matching or leakage classification happens here.
package report

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/galapoto/finforensics/internal/assumptions"
	"github.com/galapoto/finforensics/internal/domain"
	"github.com/galapoto/finforensics/internal/ferrors"
)

// ExecutiveOverview is the first section: run identity, totals, and the
// standing/run-specific assumptions a reader needs before trusting the
// rest of the report.
type ExecutiveOverview struct {
	RunID            string
	DatasetVersionID string
	EngineID         string
	EngineVersion    string
	TotalFindings    int
	TotalLeakageItems int
	Assumptions      []assumptions.Entry
}

// LeakageBreakdownRow is one typology's aggregate exposure, sorted by
// typology name.
type LeakageBreakdownRow struct {
	Typology       string
	Count          int
	ExposureAbsSum decimal.Decimal
}

// ExposureSummary totals exposure across every leakage item, signed and
// unsigned, so a reader can see both gross and net exposure.
type ExposureSummary struct {
	TotalExposureAbs    decimal.Decimal
	TotalExposureSigned decimal.Decimal
	ItemCount           int
}

// FindingRow is one row of the detailed findings table.
type FindingRow struct {
	FindingID        string
	RuleID           string
	RuleVersion      string
	FindingType      domain.FindingType
	Confidence       domain.Confidence
	MatchedRecordIDs []string
	UnmatchedAmount  *decimal.Decimal
	PrimaryEvidenceID string
}

// EvidenceIndexRow links a finding, or the finding's leakage item, to the
// finding's primary evidence record.
type EvidenceIndexRow struct {
	SubjectKind string // "finding" or "leakage_item"
	SubjectID   string
	EvidenceID  string
}

// Report is the full, deterministic response body.
type Report struct {
	Executive        ExecutiveOverview
	LeakageBreakdown []LeakageBreakdownRow
	Exposure         ExposureSummary
	Findings         []FindingRow
	EvidenceIndex    []EvidenceIndexRow
}

// Assemble builds a Report from a run's already-persisted rows. findings
// and leakageItems must both be non-empty or both empty together — a
// mismatch between the two (more findings than leakage items, or the
// reverse) indicates a partially-written run and is rejected rather than
// silently reported.
func Assemble(runID, datasetVersionID, engineID, engineVersion string, findings []domain.Finding, leakageItems []domain.LeakageItem, assumptionEntries []assumptions.Entry, maxReportFindings int) (Report, error) {
	if len(findings) != len(leakageItems) {
		return Report{}, ferrors.ErrMissingLeakageItems
	}

	byFinding := make(map[string]domain.LeakageItem, len(leakageItems))
	for _, l := range leakageItems {
		byFinding[l.FindingID] = l
	}
	for _, f := range findings {
		if _, ok := byFinding[f.FindingID]; !ok {
			return Report{}, ferrors.ErrMissingLeakageItems
		}
		if f.PrimaryEvidenceID == "" {
			return Report{}, ferrors.ErrMissingEvidenceForRun
		}
	}

	sortedFindings := append([]domain.Finding(nil), findings...)
	sort.Slice(sortedFindings, func(i, j int) bool {
		if sortedFindings[i].RuleID != sortedFindings[j].RuleID {
			return sortedFindings[i].RuleID < sortedFindings[j].RuleID
		}
		return sortedFindings[i].FindingID < sortedFindings[j].FindingID
	})

	truncated := sortedFindings
	if maxReportFindings > 0 && len(truncated) > maxReportFindings {
		truncated = truncated[:maxReportFindings]
	}

	findingRows := make([]FindingRow, 0, len(truncated))
	evidenceIndex := make([]EvidenceIndexRow, 0, len(truncated)*2)
	for _, f := range truncated {
		findingRows = append(findingRows, FindingRow{
			FindingID:         f.FindingID,
			RuleID:            f.RuleID,
			RuleVersion:       f.RuleVersion,
			FindingType:       f.FindingType,
			Confidence:        f.Confidence,
			MatchedRecordIDs:  f.MatchedRecordIDs,
			UnmatchedAmount:   f.UnmatchedAmount,
			PrimaryEvidenceID: f.PrimaryEvidenceID,
		})
		evidenceIndex = append(evidenceIndex, EvidenceIndexRow{SubjectKind: "finding", SubjectID: f.FindingID, EvidenceID: f.PrimaryEvidenceID})
		if item, ok := byFinding[f.FindingID]; ok {
			evidenceIndex = append(evidenceIndex, EvidenceIndexRow{SubjectKind: "leakage_item", SubjectID: item.LeakageItemID, EvidenceID: f.PrimaryEvidenceID})
		}
	}
	// Ordered by evidence_id per spec. A leakage item is listed under its
	// finding's primary evidence_id (its own leakage_evidence record is not
	// listed), so the two rows tie and SubjectKind breaks the tie.
	sort.Slice(evidenceIndex, func(i, j int) bool {
		if evidenceIndex[i].EvidenceID != evidenceIndex[j].EvidenceID {
			return evidenceIndex[i].EvidenceID < evidenceIndex[j].EvidenceID
		}
		if evidenceIndex[i].SubjectKind != evidenceIndex[j].SubjectKind {
			return evidenceIndex[i].SubjectKind < evidenceIndex[j].SubjectKind
		}
		return evidenceIndex[i].SubjectID < evidenceIndex[j].SubjectID
	})

	byTypology := map[string]*LeakageBreakdownRow{}
	var typologies []string
	exposureAbsTotal := decimal.Zero
	exposureSignedTotal := decimal.Zero
	for _, l := range leakageItems {
		row, ok := byTypology[l.Typology]
		if !ok {
			row = &LeakageBreakdownRow{Typology: l.Typology, ExposureAbsSum: decimal.Zero}
			byTypology[l.Typology] = row
			typologies = append(typologies, l.Typology)
		}
		row.Count++
		row.ExposureAbsSum = row.ExposureAbsSum.Add(l.ExposureAbs)
		exposureAbsTotal = exposureAbsTotal.Add(l.ExposureAbs)
		exposureSignedTotal = exposureSignedTotal.Add(l.ExposureSigned)
	}
	sort.Strings(typologies)
	breakdown := make([]LeakageBreakdownRow, 0, len(typologies))
	for _, t := range typologies {
		breakdown = append(breakdown, *byTypology[t])
	}

	return Report{
		Executive: ExecutiveOverview{
			RunID:             runID,
			DatasetVersionID:  datasetVersionID,
			EngineID:          engineID,
			EngineVersion:     engineVersion,
			TotalFindings:     len(findings),
			TotalLeakageItems: len(leakageItems),
			Assumptions:       assumptionEntries,
		},
		LeakageBreakdown: breakdown,
		Exposure: ExposureSummary{
			TotalExposureAbs:    exposureAbsTotal,
			TotalExposureSigned: exposureSignedTotal,
			ItemCount:           len(leakageItems),
		},
		Findings:      findingRows,
		EvidenceIndex: evidenceIndex,
	}, nil
}
