package engine

import (
	"github.com/galapoto/finforensics/internal/domain"
	"github.com/galapoto/finforensics/internal/evidence"
	"github.com/galapoto/finforensics/internal/leakage"
	"github.com/galapoto/finforensics/internal/matching"
)

// toEvidenceSchema projects a rule's OutcomeEvidence into the persisted
// SchemaV1 bundle (spec §3's required evidence sections). recordsByID
// supplies the source_system/source_record_id provenance for every matched
// record, in the same order as o.MatchedRecordIDs.
func toEvidenceSchema(o matching.MatchOutcome, recordsByID map[string]domain.CanonicalRecord) evidence.SchemaV1 {
	diffOriginal := o.Evidence.AmountComparison.DiffOriginal
	diffConverted := o.Evidence.AmountComparison.DiffConverted

	excluded := make([]evidence.ExcludedCandidate, 0, len(o.Evidence.MatchSelection.ExcludedCandidates))
	for _, c := range o.Evidence.MatchSelection.ExcludedCandidates {
		excluded = append(excluded, evidence.ExcludedCandidate{RecordID: c.RecordID, Reason: c.Reason})
	}

	sourceSystems := make([]string, 0, len(o.MatchedRecordIDs))
	sourceRecordIDs := make([]string, 0, len(o.MatchedRecordIDs))
	for _, id := range o.MatchedRecordIDs {
		rec := recordsByID[id]
		sourceSystems = append(sourceSystems, rec.SourceSystem)
		sourceRecordIDs = append(sourceRecordIDs, rec.SourceRecordID)
	}

	schema := evidence.SchemaV1{
		RuleIdentity: evidence.RuleIdentity{
			RuleID:           o.RuleID,
			RuleVersion:      o.RuleVersion,
			FrameworkVersion: EngineVersion,
		},
		AmountComparison: evidence.AmountComparison{
			InvoiceAmountOriginal:       o.Evidence.AmountComparison.InvoiceAmountOriginal,
			InvoiceAmountConverted:      o.Evidence.AmountComparison.InvoiceAmountConverted,
			CounterpartAmountsOriginal:  o.Evidence.AmountComparison.CounterpartAmountsOriginal,
			CounterpartAmountsConverted: o.Evidence.AmountComparison.CounterpartAmountsConverted,
			SumConverted:                o.Evidence.AmountComparison.SumConverted,
			DiffOriginal:                &diffOriginal,
			DiffConverted:               &diffConverted,
			ComparisonCurrency:          o.Evidence.AmountComparison.ComparisonCurrency,
		},
		DateComparison: evidence.DateComparison{
			InvoicePostedAt:     o.Evidence.DateComparison.InvoicePostedAt,
			CounterpartPostedAt: o.Evidence.DateComparison.CounterpartPostedAt,
			DaysDiff:            o.Evidence.DateComparison.DaysDiff,
		},
		ReferenceComparison: evidence.ReferenceComparison{
			InvoiceReferenceIDs:     o.Evidence.ReferenceComparison.InvoiceReferenceIDs,
			CounterpartReferenceIDs: o.Evidence.ReferenceComparison.CounterpartReferenceIDs,
			Matched:                 o.Evidence.ReferenceComparison.Matched,
			Unmatched:               o.Evidence.ReferenceComparison.Unmatched,
		},
		Counterparty: evidence.Counterparty{
			InvoiceCounterpartyID:      o.Evidence.Counterparty.InvoiceCounterpartyID,
			CounterpartCounterpartyIDs: o.Evidence.Counterparty.CounterpartCounterpartyIDs,
			Matched:                    o.Evidence.Counterparty.Matched,
			MatchLogic:                 o.Evidence.Counterparty.MatchLogic,
		},
		MatchSelection: evidence.MatchSelectionRationale{
			Method:             o.Evidence.MatchSelection.Method,
			Criteria:           o.Evidence.MatchSelection.Criteria,
			PriorityOrder:      o.Evidence.MatchSelection.PriorityOrder,
			ExcludedCandidates: excluded,
		},
		PrimarySources: evidence.PrimarySourceLinks{
			RecordIDs:          o.MatchedRecordIDs,
			SourceSystem:       sourceSystems,
			SourceRecordIDs:    sourceRecordIDs,
			CanonicalRecordIDs: o.MatchedRecordIDs,
		},
	}

	if o.Evidence.Tolerance != nil {
		schema.Tolerance = &evidence.Tolerance{
			ToleranceAmount:         o.Evidence.Tolerance.ToleranceAmount,
			TolerancePercent:        o.Evidence.Tolerance.TolerancePercent,
			ComputedToleranceInBase: o.Evidence.Tolerance.ComputedToleranceInBase,
			ThresholdApplied:        o.Evidence.Tolerance.ThresholdApplied,
		}
	}
	return schema
}

// toLeakageSchema projects a Classification into the leakage evidence
// sub-bundle, linked back to its Finding.
func toLeakageSchema(c leakage.Classification, f domain.Finding, primaryEvidenceID string, fx domain.FxArtifact) evidence.LeakageSchemaV1 {
	return evidence.LeakageSchemaV1{
		Typology: evidence.TypologyAssignmentRationale{
			Typology: string(c.Typology),
			RuleIDs:  []string{f.RuleID},
			Version:  leakage.ClassifierVersion,
		},
		Exposure: evidence.NumericExposureDerivation{
			Method:         "rule_outcome_derived",
			CurrencyMode:   c.CurrencyMode,
			FxArtifactID:   f.FxArtifactID,
			FxChecksum:     fx.Checksum,
			RoundingMode:   "ROUND_HALF_UP",
			BaseCurrency:   fx.BaseCurrency,
			ExposureAbs:    c.ExposureAbs,
			ExposureSigned: c.ExposureSigned,
			Confidence:     c.Confidence,
		},
		Finding: evidence.FindingReferences{
			FindingID:         f.FindingID,
			RunID:             f.RunID,
			RuleID:            f.RuleID,
			PrimaryEvidenceID: primaryEvidenceID,
		},
		Records: evidence.PrimaryRecordsInvolved{
			RecordIDs: f.MatchedRecordIDs,
		},
	}
}
