package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/galapoto/finforensics/internal/artifacts"
	"github.com/galapoto/finforensics/internal/domain"
	"github.com/galapoto/finforensics/internal/evidence"
	"github.com/galapoto/finforensics/internal/ferrors"
	"github.com/galapoto/finforensics/internal/fxartifact"
	"github.com/galapoto/finforensics/internal/lifecycle"
	"github.com/galapoto/finforensics/internal/matching"
	"github.com/galapoto/finforensics/internal/normalize"
	"github.com/shopspring/decimal"
)

type memDatasetVersions struct{ known map[string]bool }

func (d *memDatasetVersions) Exists(_ context.Context, id string) (bool, error) { return d.known[id], nil }

type memCanonicalRecords struct {
	mu      sync.Mutex
	records []domain.CanonicalRecord
}

func (r *memCanonicalRecords) ListByDataset(_ context.Context, datasetVersionID string) ([]domain.CanonicalRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.CanonicalRecord, 0)
	for _, rec := range r.records {
		if rec.DatasetVersionID == datasetVersionID {
			out = append(out, rec)
		}
	}
	return out, nil
}

type memRuns struct {
	mu   sync.Mutex
	data map[string]domain.Run
}

func (r *memRuns) Insert(_ context.Context, run domain.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.data == nil {
		r.data = map[string]domain.Run{}
	}
	r.data[run.RunID] = run
	return nil
}

type memFindings struct {
	mu   sync.Mutex
	data map[string]domain.Finding
}

func (f *memFindings) FindByID(_ context.Context, id string) (domain.Finding, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.data[id]
	return rec, ok, nil
}

func (f *memFindings) Insert(_ context.Context, rec domain.Finding) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data == nil {
		f.data = map[string]domain.Finding{}
	}
	f.data[rec.FindingID] = rec
	return nil
}

type memLeakage struct {
	mu   sync.Mutex
	data map[string]domain.LeakageItem
}

func (l *memLeakage) Insert(_ context.Context, item domain.LeakageItem) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.data == nil {
		l.data = map[string]domain.LeakageItem{}
	}
	l.data[item.LeakageItemID] = item
	return nil
}

type memEvidenceRepo struct {
	mu   sync.Mutex
	data map[string]evidence.Record
}

func (r *memEvidenceRepo) FindByID(_ context.Context, id string) (evidence.Record, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.data[id]
	return rec, ok, nil
}

func (r *memEvidenceRepo) Insert(_ context.Context, rec evidence.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.data == nil {
		r.data = map[string]evidence.Record{}
	}
	r.data[rec.EvidenceID] = rec
	return nil
}

type memFxMetadata struct {
	mu   sync.Mutex
	data map[string]domain.FxArtifact
}

func (m *memFxMetadata) FindByChecksum(_ context.Context, datasetVersionID, checksum string) (domain.FxArtifact, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.data {
		if a.DatasetVersionID == datasetVersionID && a.Checksum == checksum {
			return a, true, nil
		}
	}
	return domain.FxArtifact{}, false, nil
}

func (m *memFxMetadata) Insert(_ context.Context, a domain.FxArtifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string]domain.FxArtifact{}
	}
	m.data[a.FxArtifactID] = a
	return nil
}

func (m *memFxMetadata) FindByID(_ context.Context, datasetVersionID, fxArtifactID string) (domain.FxArtifact, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.data[fxArtifactID]
	if !ok || a.DatasetVersionID != datasetVersionID {
		return domain.FxArtifact{}, false, nil
	}
	return a, true, nil
}

type memLifecycleStore struct {
	mu     sync.Mutex
	states map[string]lifecycle.WorkflowState
}

func (s *memLifecycleStore) GetState(_ context.Context, kind lifecycle.SubjectKind, id string) (lifecycle.WorkflowState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[string(kind)+"/"+id]
	return st, ok, nil
}

func (s *memLifecycleStore) PutState(_ context.Context, st lifecycle.WorkflowState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.states == nil {
		s.states = map[string]lifecycle.WorkflowState{}
	}
	s.states[string(st.SubjectKind)+"/"+st.SubjectID] = st
	return nil
}

func (s *memLifecycleStore) AppendTransition(context.Context, lifecycle.WorkflowTransition) error {
	return nil
}
func (s *memLifecycleStore) AppendAudit(context.Context, lifecycle.AuditRecord) error { return nil }

func mkRecord(t *testing.T, datasetVersionID, sourceSystem, sourceRecordID string, rt, dir, amount, currency, postedAt, counterparty string, refs ...string) domain.CanonicalRecord {
	rec, err := normalize.Normalize(normalize.RawRecordInput{
		SourceSystem:     sourceSystem,
		SourceRecordID:   sourceRecordID,
		RecordTypeRaw:    rt,
		PostedAtRaw:      postedAt,
		CounterpartyID:   counterparty,
		AmountOriginal:   amount,
		CurrencyOriginal: currency,
		DirectionRaw:     dir,
		ReferenceIDsRaw:  refsToAny(refs),
	}, datasetVersionID, time.Now())
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	return rec
}

func refsToAny(refs []string) any {
	if len(refs) == 0 {
		return nil
	}
	out := make([]any, len(refs))
	for i, r := range refs {
		out[i] = r
	}
	return out
}

type harness struct {
	engine   *Engine
	records  *memCanonicalRecords
	datasets *memDatasetVersions
	fxSvc    *fxartifact.Service
}

func newHarness() *harness {
	records := &memCanonicalRecords{}
	datasets := &memDatasetVersions{known: map[string]bool{"dv-1": true}}
	fxSvc := &fxartifact.Service{Store: artifacts.NewMemoryStore(), Metadata: &memFxMetadata{}}

	e := &Engine{
		EngineEnabled:    true,
		DatasetVersions:  datasets,
		CanonicalRecords: records,
		FxArtifacts:      fxSvc,
		Runs:             &memRuns{},
		Findings:         &memFindings{},
		Leakage:          &memLeakage{},
		Evidence:         &evidence.Registry{Repo: &memEvidenceRepo{}},
		Lifecycle:        &lifecycle.Machine{Store: &memLifecycleStore{}},
	}
	return &harness{engine: e, records: records, datasets: datasets, fxSvc: fxSvc}
}

func (h *harness) addRecord(rec domain.CanonicalRecord) {
	h.records.records = append(h.records.records, rec)
}

func (h *harness) createFx(t *testing.T, datasetVersionID, base string, rates map[string]decimal.Decimal) domain.FxArtifact {
	fx, err := h.fxSvc.Create(context.Background(), datasetVersionID, base, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), rates, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("create fx: %v", err)
	}
	return fx
}

func baseParams() matching.RuleParameters {
	return matching.RuleParameters{RoundingMode: "ROUND_HALF_UP", RoundingQuantum: "0.01"}
}

func TestExactInvoicePaymentS1(t *testing.T) {
	h := newHarness()
	h.addRecord(mkRecord(t, "dv-1", "erp", "I1", "invoice", "debit", "100.00", "USD", "2026-01-01T00:00:00Z", "C1", "doc-1"))
	h.addRecord(mkRecord(t, "dv-1", "erp", "P1", "payment", "credit", "100.00", "USD", "2026-01-02T00:00:00Z", "C1", "doc-1"))
	fx := h.createFx(t, "dv-1", "USD", map[string]decimal.Decimal{"USD": decimal.NewFromInt(1)})

	summary, err := h.engine.Run(context.Background(), Request{
		DatasetVersionID: "dv-1",
		FxArtifactID:     fx.FxArtifactID,
		StartedAt:        time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC),
		Params:           baseParams(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(summary.Findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(summary.Findings))
	}
	f := summary.Findings[0]
	if f.RuleID != "ff.match.invoice_payment.exact" || f.Confidence != domain.ConfidenceExact {
		t.Fatalf("unexpected finding: %+v", f)
	}
	if f.UnmatchedAmount != nil {
		t.Fatalf("expected nil unmatched_amount, got %v", f.UnmatchedAmount)
	}
	if len(summary.LeakageItems) != 1 || !summary.LeakageItems[0].ExposureAbs.IsZero() {
		t.Fatalf("expected one zero-exposure leakage item, got %+v", summary.LeakageItems)
	}
}

func TestToleranceMatchS2(t *testing.T) {
	h := newHarness()
	h.addRecord(mkRecord(t, "dv-1", "erp", "I1", "invoice", "debit", "100.00", "USD", "2026-01-01T00:00:00Z", "C1", "doc-1"))
	h.addRecord(mkRecord(t, "dv-1", "erp", "P1", "payment", "credit", "99.50", "USD", "2026-01-02T00:00:00Z", "C1", "doc-1"))
	fx := h.createFx(t, "dv-1", "USD", map[string]decimal.Decimal{"USD": decimal.NewFromInt(1)})

	tolAmount := decimal.RequireFromString("1.00")
	params := baseParams()
	params.ToleranceAmount = &tolAmount

	summary, err := h.engine.Run(context.Background(), Request{
		DatasetVersionID: "dv-1",
		FxArtifactID:     fx.FxArtifactID,
		StartedAt:        time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC),
		Params:           params,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(summary.Findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(summary.Findings))
	}
	f := summary.Findings[0]
	if f.RuleID != "ff.match.invoice_payment.tolerance" || f.Confidence != domain.ConfidenceWithinTolerance {
		t.Fatalf("unexpected finding: %+v", f)
	}
}

func TestPartialOneToManyS3(t *testing.T) {
	h := newHarness()
	h.addRecord(mkRecord(t, "dv-1", "erp", "I1", "invoice", "debit", "100.00", "USD", "2026-01-01T00:00:00Z", "C1"))
	h.addRecord(mkRecord(t, "dv-1", "erp", "P1", "payment", "credit", "40.00", "USD", "2026-01-02T00:00:00Z", "C1"))
	h.addRecord(mkRecord(t, "dv-1", "erp", "P2", "payment", "credit", "30.00", "USD", "2026-01-03T00:00:00Z", "C1"))
	h.addRecord(mkRecord(t, "dv-1", "erp", "P3", "payment", "credit", "50.00", "USD", "2026-01-04T00:00:00Z", "C1"))
	fx := h.createFx(t, "dv-1", "USD", map[string]decimal.Decimal{"USD": decimal.NewFromInt(1)})

	summary, err := h.engine.Run(context.Background(), Request{
		DatasetVersionID: "dv-1",
		FxArtifactID:     fx.FxArtifactID,
		StartedAt:        time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		Params:           baseParams(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(summary.Findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(summary.Findings))
	}
	f := summary.Findings[0]
	if f.Confidence != domain.ConfidencePartial {
		t.Fatalf("expected partial confidence, got %s", f.Confidence)
	}
	if len(f.MatchedRecordIDs) != 4 {
		t.Fatalf("expected 4 matched records, got %d", len(f.MatchedRecordIDs))
	}
	if f.UnmatchedAmount == nil || !f.UnmatchedAmount.Abs().Equal(decimal.RequireFromString("20.00")) {
		t.Fatalf("expected residual magnitude 20.00, got %v", f.UnmatchedAmount)
	}
}

func TestDeterministicRunIDS1(t *testing.T) {
	h1 := newHarness()
	h1.addRecord(mkRecord(t, "dv-1", "erp", "I1", "invoice", "debit", "100.00", "USD", "2026-01-01T00:00:00Z", "C1"))
	h1.addRecord(mkRecord(t, "dv-1", "erp", "P1", "payment", "credit", "100.00", "USD", "2026-01-02T00:00:00Z", "C1"))
	fx1 := h1.createFx(t, "dv-1", "USD", map[string]decimal.Decimal{"USD": decimal.NewFromInt(1)})
	startedAt := time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)

	s1, err := h1.engine.Run(context.Background(), Request{DatasetVersionID: "dv-1", FxArtifactID: fx1.FxArtifactID, StartedAt: startedAt, Params: baseParams()})
	if err != nil {
		t.Fatal(err)
	}

	h2 := newHarness()
	h2.addRecord(mkRecord(t, "dv-1", "erp", "I1", "invoice", "debit", "100.00", "USD", "2026-01-01T00:00:00Z", "C1"))
	h2.addRecord(mkRecord(t, "dv-1", "erp", "P1", "payment", "credit", "100.00", "USD", "2026-01-02T00:00:00Z", "C1"))
	fx2 := h2.createFx(t, "dv-1", "USD", map[string]decimal.Decimal{"USD": decimal.NewFromInt(1)})
	s2, err := h2.engine.Run(context.Background(), Request{DatasetVersionID: "dv-1", FxArtifactID: fx2.FxArtifactID, StartedAt: startedAt, Params: baseParams()})
	if err != nil {
		t.Fatal(err)
	}

	if s1.RunID != s2.RunID {
		t.Fatalf("expected identical run_id for identical inputs, got %s vs %s", s1.RunID, s2.RunID)
	}
	if s1.Findings[0].FindingID != s2.Findings[0].FindingID {
		t.Fatalf("expected identical finding_id, got %s vs %s", s1.Findings[0].FindingID, s2.Findings[0].FindingID)
	}
}

func TestFxRateChangeAltersConvertedAmountS4(t *testing.T) {
	h1 := newHarness()
	h1.addRecord(mkRecord(t, "dv-1", "erp", "I1", "invoice", "debit", "100.00", "EUR", "2026-01-01T00:00:00Z", "C1"))
	h1.addRecord(mkRecord(t, "dv-1", "erp", "P1", "payment", "credit", "100.00", "EUR", "2026-01-02T00:00:00Z", "C1"))
	fx1 := h1.createFx(t, "dv-1", "USD", map[string]decimal.Decimal{"USD": decimal.NewFromInt(1), "EUR": decimal.RequireFromString("0.91")})
	s1, err := h1.engine.Run(context.Background(), Request{DatasetVersionID: "dv-1", FxArtifactID: fx1.FxArtifactID, StartedAt: time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC), Params: baseParams()})
	if err != nil {
		t.Fatal(err)
	}

	h2 := newHarness()
	h2.addRecord(mkRecord(t, "dv-1", "erp", "I1", "invoice", "debit", "100.00", "EUR", "2026-01-01T00:00:00Z", "C1"))
	h2.addRecord(mkRecord(t, "dv-1", "erp", "P1", "payment", "credit", "100.00", "EUR", "2026-01-02T00:00:00Z", "C1"))
	fx2 := h2.createFx(t, "dv-1", "USD", map[string]decimal.Decimal{"USD": decimal.NewFromInt(1), "EUR": decimal.RequireFromString("0.92")})
	s2, err := h2.engine.Run(context.Background(), Request{DatasetVersionID: "dv-1", FxArtifactID: fx2.FxArtifactID, StartedAt: time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC), Params: baseParams()})
	if err != nil {
		t.Fatal(err)
	}

	var rateUsed1, rateUsed2, converted1, converted2 decimal.Decimal
	for _, r := range s1.Conversions {
		rateUsed1 = r.FxRateUsed
		converted1 = r.AmountConverted
		break
	}
	for _, r := range s2.Conversions {
		rateUsed2 = r.FxRateUsed
		converted2 = r.AmountConverted
		break
	}
	if rateUsed1.Equal(rateUsed2) {
		t.Fatalf("expected different fx_rate_used across runs, got %s for both", rateUsed1)
	}
	if converted1.Equal(converted2) {
		t.Fatalf("expected different amount_converted across runs, got %s for both", converted1)
	}
}

func TestRuntimeLimitExceededS6(t *testing.T) {
	h := newHarness()
	h.addRecord(mkRecord(t, "dv-1", "erp", "I1", "invoice", "debit", "100.00", "USD", "2026-01-01T00:00:00Z", "C1"))
	h.addRecord(mkRecord(t, "dv-1", "erp", "P1", "payment", "credit", "100.00", "USD", "2026-01-02T00:00:00Z", "C1"))
	fx := h.createFx(t, "dv-1", "USD", map[string]decimal.Decimal{"USD": decimal.NewFromInt(1)})

	_, err := h.engine.Run(context.Background(), Request{
		DatasetVersionID: "dv-1",
		FxArtifactID:     fx.FxArtifactID,
		StartedAt:        time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC),
		Params:           baseParams(),
		Limits:           Limits{MaxCanonicalRecords: 1},
	})
	if ferrors.Code(err) != "RUNTIME_LIMIT_EXCEEDED" {
		t.Fatalf("expected RUNTIME_LIMIT_EXCEEDED, got %v", err)
	}
}

func TestEngineDisabledRejectsRun(t *testing.T) {
	h := newHarness()
	h.engine.EngineEnabled = false
	_, err := h.engine.Run(context.Background(), Request{DatasetVersionID: "dv-1", FxArtifactID: "fx-1", StartedAt: time.Now(), Params: baseParams()})
	if ferrors.Code(err) != "ENGINE_DISABLED" {
		t.Fatalf("expected ENGINE_DISABLED, got %v", err)
	}
}
