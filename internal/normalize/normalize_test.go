package normalize

import (
	"testing"
	"time"

	"github.com/galapoto/finforensics/internal/domain"
)

func validInput() RawRecordInput {
	return RawRecordInput{
		SourceSystem:     "erp",
		SourceRecordID:   "inv-100",
		RecordTypeRaw:    "inv",
		PostedAtRaw:      "2026-01-01T00:00:00Z",
		CounterpartyID:   "C1",
		AmountOriginal:   "100.00",
		CurrencyOriginal: "usd",
		DirectionRaw:     "dr",
		ReferenceIDsRaw:  "doc-1, doc-2",
	}
}

func TestNormalizeHappyPath(t *testing.T) {
	rec, err := Normalize(validInput(), "dv-1", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if rec.RecordType != domain.RecordTypeInvoice {
		t.Fatalf("expected invoice, got %s", rec.RecordType)
	}
	if rec.Direction != domain.DirectionDebit {
		t.Fatalf("expected debit, got %s", rec.Direction)
	}
	if rec.CurrencyOriginal != "USD" {
		t.Fatalf("expected USD, got %s", rec.CurrencyOriginal)
	}
	if len(rec.ReferenceIDs) != 2 || rec.ReferenceIDs[0] != "doc-1" || rec.ReferenceIDs[1] != "doc-2" {
		t.Fatalf("unexpected reference ids: %v", rec.ReferenceIDs)
	}
}

func TestNormalizeIsDeterministic(t *testing.T) {
	ts := time.Now()
	a, err := Normalize(validInput(), "dv-1", ts)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Normalize(validInput(), "dv-1", ts)
	if err != nil {
		t.Fatal(err)
	}
	if a.RecordID != b.RecordID {
		t.Fatalf("expected stable record_id, got %s vs %s", a.RecordID, b.RecordID)
	}
}

func TestNormalizeRejectsInvalidCurrency(t *testing.T) {
	in := validInput()
	in.CurrencyOriginal = "XXX"
	if _, err := Normalize(in, "dv-1", time.Now()); err == nil {
		t.Fatal("expected error for invalid currency")
	}
}

func TestNormalizeRejectsNaiveTimestamp(t *testing.T) {
	in := validInput()
	in.PostedAtRaw = "2026-01-01T00:00:00"
	if _, err := Normalize(in, "dv-1", time.Now()); err == nil {
		t.Fatal("expected error for naive timestamp")
	}
}

func TestNormalizeRejectsNonPositiveAmount(t *testing.T) {
	in := validInput()
	in.AmountOriginal = "0"
	if _, err := Normalize(in, "dv-1", time.Now()); err == nil {
		t.Fatal("expected error for non-positive amount")
	}
}

func TestReferenceIDsEmptyIsEmptySliceNotNil(t *testing.T) {
	refs, err := ReferenceIDs(nil)
	if err != nil {
		t.Fatal(err)
	}
	if refs == nil {
		t.Fatal("expected non-nil empty slice")
	}
	if len(refs) != 0 {
		t.Fatalf("expected empty slice, got %v", refs)
	}
}
