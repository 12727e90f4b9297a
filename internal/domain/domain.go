// Package domain holds the shared entity types described in spec §3,
// referenced by normalization, matching, evidence, leakage, and the engine
// driver alike.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RecordType is the closed enum for a canonical record's kind.
type RecordType string

const (
	RecordTypeInvoice     RecordType = "invoice"
	RecordTypePayment     RecordType = "payment"
	RecordTypeCreditNote  RecordType = "credit_note"
	RecordTypeJournalLine RecordType = "journal_line"
)

// Direction is the closed enum for a canonical record's accounting side.
type Direction string

const (
	DirectionDebit  Direction = "debit"
	DirectionCredit Direction = "credit"
)

// Confidence is the closed enum a matching rule may report.
type Confidence string

const (
	ConfidenceExact          Confidence = "exact"
	ConfidenceWithinTolerance Confidence = "within_tolerance"
	ConfidencePartial        Confidence = "partial"
	ConfidenceAmbiguous      Confidence = "ambiguous"
)

// FindingType is the closed enum persisted on a Finding.
type FindingType string

const (
	FindingTypeExactMatch     FindingType = "exact_match"
	FindingTypeToleranceMatch FindingType = "tolerance_match"
	FindingTypePartialMatch   FindingType = "partial_match"
)

// ConfidenceToFindingType is the immutable mapping from spec §4.7.
func ConfidenceToFindingType(c Confidence) (FindingType, bool) {
	switch c {
	case ConfidenceExact:
		return FindingTypeExactMatch, true
	case ConfidenceWithinTolerance:
		return FindingTypeToleranceMatch, true
	case ConfidencePartial, ConfidenceAmbiguous:
		return FindingTypePartialMatch, true
	default:
		return "", false
	}
}

// RawRecord is one ingested row bound to a DatasetVersion, prior to
// normalization (spec §3).
type RawRecord struct {
	RawRecordID    string
	DatasetVersionID string
	SourceSystem   string
	SourceRecordID string
	Payload        map[string]any
	IngestedAt     time.Time
}

// CanonicalRecord is the deterministic projection of a RawRecord (C4
// output, spec §3). SourceSystem and SourceRecordID are carried forward
// unchanged from the RawRecord that produced record_id (not re-derived);
// they exist on this type purely as evidence provenance, so the primary
// sources section (spec §3) can cite them without a second lookup.
type CanonicalRecord struct {
	RecordID         string
	DatasetVersionID string
	RecordType       RecordType
	PostedAt         time.Time
	CounterpartyID   string
	AmountOriginal   decimal.Decimal
	CurrencyOriginal string
	Direction        Direction
	ReferenceIDs     []string
	IngestedAt       time.Time
	SourceSystem     string
	SourceRecordID   string
}

// FxArtifact is the content-addressed rate bundle (spec §3/§4.3).
type FxArtifact struct {
	FxArtifactID     string
	DatasetVersionID string
	BaseCurrency     string
	EffectiveDate    time.Time
	Rates            map[string]decimal.Decimal // currency -> rate to base
	Checksum         string
	ArtifactURI      string
}

// Run is one invocation of the engine driver (spec §3/§4.11).
type Run struct {
	RunID            string
	DatasetVersionID string
	FxArtifactID     string
	StartedAt        time.Time
	Status           string
	Parameters       map[string]any
	EngineVersion    string
}

// Finding is a matched relationship between canonical records (spec §3).
type Finding struct {
	FindingID         string
	RunID             string
	DatasetVersionID  string
	RuleID            string
	RuleVersion       string
	FrameworkVersion  string
	FindingType       FindingType
	Confidence        Confidence
	MatchedRecordIDs  []string // ordered, driving record first
	UnmatchedAmount   *decimal.Decimal
	FxArtifactID      string
	PrimaryEvidenceID string
	EvidenceIDs       []string
	CreatedAt         time.Time
}

// LeakageItem is the classified exposure bound one-to-one with a Finding
// (spec §3/§4.9).
type LeakageItem struct {
	LeakageItemID    string
	RunID            string
	FindingID        string
	DatasetVersionID string
	Typology         string
	ExposureAbs      decimal.Decimal
	ExposureSigned   decimal.Decimal
	CreatedAt        time.Time
}
