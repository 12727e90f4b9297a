package evidence

import (
	"github.com/galapoto/finforensics/internal/ferrors"
	"github.com/shopspring/decimal"
)

// TypologyAssignmentRationale explains why a LeakageItem received its
// typology, mirroring original_source's leakage/evidence_schema_v1.py.
type TypologyAssignmentRationale struct {
	Typology   string
	RuleIDs    []string
	InputsUsed map[string]any
	Version    string
}

// NumericExposureDerivation records how exposure was computed.
type NumericExposureDerivation struct {
	Method         string
	CurrencyMode   string // "original_only" or "fx_to_base"
	FxArtifactID   string
	FxChecksum     string
	RoundingMode   string
	BaseCurrency   string
	ExposureAbs    decimal.Decimal
	ExposureSigned decimal.Decimal
	Confidence     string
}

// FindingReferences links a LeakageItem's evidence back to its Finding.
type FindingReferences struct {
	FindingID        string
	RunID            string
	RuleID           string
	PrimaryEvidenceID string
}

// PrimaryRecordsInvolved lists the canonical records behind the exposure.
type PrimaryRecordsInvolved struct {
	RecordIDs []string
}

// LeakageSchemaV1 is the leakage-item evidence sub-bundle — a distinct
// record kind from SchemaV1, per DESIGN.md Open Question 5, not a
// duplicate of the finding-level evidence bundle.
type LeakageSchemaV1 struct {
	Typology  TypologyAssignmentRationale
	Exposure  NumericExposureDerivation
	Finding   FindingReferences
	Records   PrimaryRecordsInvolved
}

// Validate mirrors original_source's leakage validation order: typology
// section first, then exposure, then finding references, then records.
func (s LeakageSchemaV1) Validate() error {
	if s.Typology.Typology == "" {
		return ferrors.WithValue(ferrors.ErrLeakageEvidenceTypologyFieldMissing, "typology")
	}
	if s.Typology.Version == "" {
		return ferrors.WithValue(ferrors.ErrLeakageEvidenceTypologyFieldMissing, "version")
	}
	if s.Exposure.CurrencyMode == "" {
		return ferrors.WithValue(ferrors.ErrLeakageEvidenceExposureFieldMissing, "currency_mode")
	}
	if s.Exposure.Method == "" {
		return ferrors.WithValue(ferrors.ErrLeakageEvidenceExposureFieldMissing, "method")
	}
	if s.Finding.FindingID == "" {
		return ferrors.WithValue(ferrors.ErrLeakageEvidenceFindingFieldMissing, "finding_id")
	}
	if s.Finding.RunID == "" {
		return ferrors.WithValue(ferrors.ErrLeakageEvidenceFindingFieldMissing, "run_id")
	}
	if s.Records.RecordIDs == nil {
		return ferrors.WithValue(ferrors.ErrLeakageEvidenceRecordFieldMissing, "record_ids")
	}
	return nil
}
