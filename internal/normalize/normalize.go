// Package normalize implements the canonical normalizer (C4, spec §4.4): a
// pure function mapping a raw record into a CanonicalRecord. It performs
// only closed-table lookups, trimming, and parsing — no enrichment, no
// inference, no cross-record aggregation.
package normalize

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/galapoto/finforensics/internal/domain"
	"github.com/galapoto/finforensics/internal/ferrors"
	"github.com/galapoto/finforensics/internal/ids"
	"github.com/shopspring/decimal"
)

// recordTypeAliases mirrors original_source's normalization.py alias table.
var recordTypeAliases = map[string]domain.RecordType{
	"invoice": domain.RecordTypeInvoice,
	"inv":     domain.RecordTypeInvoice,

	"payment": domain.RecordTypePayment,
	"pay":     domain.RecordTypePayment,

	"credit_note": domain.RecordTypeCreditNote,
	"credit":      domain.RecordTypeCreditNote,
	"cn":          domain.RecordTypeCreditNote,

	"journal_line": domain.RecordTypeJournalLine,
	"journal":      domain.RecordTypeJournalLine,
	"jl":           domain.RecordTypeJournalLine,
}

// directionAliases mirrors normalization.py's direction table.
var directionAliases = map[string]domain.Direction{
	"debit": domain.DirectionDebit,
	"dr":    domain.DirectionDebit,
	"d":     domain.DirectionDebit,

	"credit": domain.DirectionCredit,
	"cr":     domain.DirectionCredit,
	"c":      domain.DirectionCredit,
}

// ValidCurrencies is the fixed ISO 4217 set the source engine validates
// against (normalization.py's VALID_CURRENCIES).
var ValidCurrencies = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "JPY": true, "CHF": true,
	"CAD": true, "AUD": true, "NZD": true, "SEK": true, "NOK": true,
	"DKK": true, "PLN": true, "CZK": true, "HUF": true, "RUB": true,
	"CNY": true,
}

// RecordType maps a raw string to the closed RecordType enum.
func RecordType(raw string) (domain.RecordType, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	rt, ok := recordTypeAliases[key]
	if !ok {
		return "", ferrors.WithValue(ferrors.ErrCanonicalTypeInvalid, raw)
	}
	return rt, nil
}

// NormalizeDirection maps a raw string to the closed Direction enum.
func NormalizeDirection(raw string) (domain.Direction, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	d, ok := directionAliases[key]
	if !ok {
		return "", ferrors.WithValue(ferrors.ErrCanonicalDirectionInvalid, raw)
	}
	return d, nil
}

// Currency uppercases, trims, and validates raw against the fixed ISO set.
func Currency(raw string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(raw))
	if len(c) != 3 || !ValidCurrencies[c] {
		return "", ferrors.WithValue(ferrors.ErrCanonicalCurrencyInvalid, raw)
	}
	return c, nil
}

// Amount parses raw into an exact decimal, requiring it to be strictly
// positive (spec §3's CanonicalRecord invariant).
func Amount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, ferrors.WithValue(ferrors.ErrCanonicalAmountInvalid, raw)
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, ferrors.WithValue(ferrors.ErrCanonicalAmountInvalid, raw)
	}
	return d, nil
}

// ReferenceIDs parses either a list of strings or a comma-separated string
// into an order-preserving, trimmed sequence. A nil/empty input yields an
// empty (non-nil) slice — absent and empty are both "no references" but
// the distinction from a populated slice must still marshal as `[]`, not
// `null`.
func ReferenceIDs(raw any) ([]string, error) {
	out := []string{}
	switch v := raw.(type) {
	case nil:
		return out, nil
	case []string:
		for _, s := range v {
			s = strings.TrimSpace(s)
			if s != "" {
				out = append(out, s)
			}
		}
		return out, nil
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("reference_ids element %v is not a string", item)
			}
			s = strings.TrimSpace(s)
			if s != "" {
				out = append(out, s)
			}
		}
		return out, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return out, nil
		}
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("reference_ids has unsupported type %T", raw)
	}
}

// PostedAt parses raw as ISO-8601 with an explicit offset, rejecting naive
// timestamps. A trailing "Z" is treated as UTC, matching the source
// engine's fromisoformat("Z" -> "+00:00") normalization.
func PostedAt(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, ferrors.WithValue(ferrors.ErrCanonicalDateInvalid, raw)
	}
	if strings.HasSuffix(s, "Z") {
		s = strings.TrimSuffix(s, "Z") + "+00:00"
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, ferrors.WithValue(ferrors.ErrCanonicalDateInvalid, raw)
	}
	return t, nil
}

// RawRecordInput is the minimal shape the Ingest API (spec §6) hands to
// Normalize; opaque payload fields are looked up by the fixed names the
// source engine expects.
type RawRecordInput struct {
	SourceSystem     string
	SourceRecordID   string
	RecordTypeRaw    string
	PostedAtRaw      string
	CounterpartyID   string
	AmountOriginal   string
	CurrencyOriginal string
	DirectionRaw     string
	ReferenceIDsRaw  any
}

func requireNonEmpty(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return ferrors.WithValue(ferrors.ErrRecordFieldMissing, field)
	}
	return nil
}

// Normalize is the C4 pure function: raw_record -> canonical_record. It
// performs only the operations spec §4.4 allows and raises a dedicated
// error kind for every other condition.
func Normalize(raw RawRecordInput, datasetVersionID string, ingestedAt time.Time) (domain.CanonicalRecord, error) {
	for field, v := range map[string]string{
		"source_system":     raw.SourceSystem,
		"source_record_id":  raw.SourceRecordID,
		"record_type":       raw.RecordTypeRaw,
		"posted_at":         raw.PostedAtRaw,
		"counterparty_id":   raw.CounterpartyID,
		"amount_original":   raw.AmountOriginal,
		"currency_original": raw.CurrencyOriginal,
		"direction":         raw.DirectionRaw,
	} {
		if err := requireNonEmpty(field, v); err != nil {
			return domain.CanonicalRecord{}, err
		}
	}

	recordType, err := RecordType(raw.RecordTypeRaw)
	if err != nil {
		return domain.CanonicalRecord{}, err
	}
	currency, err := Currency(raw.CurrencyOriginal)
	if err != nil {
		return domain.CanonicalRecord{}, err
	}
	direction, err := NormalizeDirection(raw.DirectionRaw)
	if err != nil {
		return domain.CanonicalRecord{}, err
	}
	amount, err := Amount(raw.AmountOriginal)
	if err != nil {
		return domain.CanonicalRecord{}, err
	}
	refs, err := ReferenceIDs(raw.ReferenceIDsRaw)
	if err != nil {
		return domain.CanonicalRecord{}, ferrors.WithValue(ferrors.ErrRecordFieldMissing, "reference_ids")
	}
	postedAt, err := PostedAt(raw.PostedAtRaw)
	if err != nil {
		return domain.CanonicalRecord{}, err
	}

	recordID, err := ids.CanonicalRecordID(datasetVersionID, raw.SourceSystem, raw.SourceRecordID)
	if err != nil {
		return domain.CanonicalRecord{}, err
	}

	return domain.CanonicalRecord{
		RecordID:         recordID.String(),
		DatasetVersionID: datasetVersionID,
		RecordType:       recordType,
		PostedAt:         postedAt,
		CounterpartyID:   strings.TrimSpace(raw.CounterpartyID),
		AmountOriginal:   amount,
		CurrencyOriginal: currency,
		Direction:        direction,
		ReferenceIDs:     refs,
		IngestedAt:       ingestedAt,
		SourceSystem:     strings.TrimSpace(raw.SourceSystem),
		SourceRecordID:   strings.TrimSpace(raw.SourceRecordID),
	}, nil
}

// SortByRecordID sorts canonical records lexicographically by record_id,
// the ordering boundary spec §4.6/§5 requires before orchestration starts.
func SortByRecordID(records []domain.CanonicalRecord) {
	sort.Slice(records, func(i, j int) bool { return records[i].RecordID < records[j].RecordID })
}
