package ids

import "testing"

func TestDeriveIsDeterministic(t *testing.T) {
	a, err := CanonicalRecordID("dv-1", "erp", "inv-100")
	if err != nil {
		t.Fatal(err)
	}
	b, err := CanonicalRecordID("dv-1", "erp", "inv-100")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("expected identical ids for identical inputs, got %s vs %s", a, b)
	}
}

func TestDeriveDiffersOnInput(t *testing.T) {
	a, _ := CanonicalRecordID("dv-1", "erp", "inv-100")
	b, _ := CanonicalRecordID("dv-1", "erp", "inv-101")
	if a == b {
		t.Fatal("expected different ids for different source_record_id")
	}
}

func TestDeriveRejectsSeparatorInField(t *testing.T) {
	_, err := CanonicalRecordID("dv-1", "erp\x1finjected", "inv-100")
	if err != ErrSeparatorInField {
		t.Fatalf("expected ErrSeparatorInField, got %v", err)
	}
}

func TestNamespacesAreDistinct(t *testing.T) {
	recID, _ := Derive(NamespaceCanonicalRecord, "same", "key")
	runID, _ := Derive(NamespaceRun, "same", "key")
	if recID == runID {
		t.Fatal("expected different namespaces to yield different ids for identical key string")
	}
}

func TestFindingIDRequiresPresortedMatchedIDs(t *testing.T) {
	a, _ := FindingID("dv-1", "ff.match.invoice_payment.exact", "1", []string{"a", "b"})
	b, _ := FindingID("dv-1", "ff.match.invoice_payment.exact", "1", []string{"b", "a"})
	if a == b {
		t.Fatal("expected different join order to yield different ids; caller is responsible for sorting")
	}
}
