// Package engine implements the driver (C11, spec §4.11): the single
// entry point that turns a run request into persisted Findings,
// LeakageItems, and Evidence, following the exact nine-step sequence the
// spec names.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/galapoto/finforensics/internal/assumptions"
	"github.com/galapoto/finforensics/internal/config"
	"github.com/galapoto/finforensics/internal/domain"
	"github.com/galapoto/finforensics/internal/evidence"
	"github.com/galapoto/finforensics/internal/ferrors"
	"github.com/galapoto/finforensics/internal/fxconvert"
	"github.com/galapoto/finforensics/internal/fxartifact"
	"github.com/galapoto/finforensics/internal/ids"
	"github.com/galapoto/finforensics/internal/leakage"
	"github.com/galapoto/finforensics/internal/lifecycle"
	"github.com/galapoto/finforensics/internal/matching"
)

// EngineVersion is recorded on every Run and Finding; bumping it changes
// every derived run_id, by design (spec §3).
const EngineVersion = "1"

// Limits carries the three runtime caps spec §4.11/§5 name. A zero or
// negative value means "caller omitted it"; fixed defaults then apply (no
// silent defaults unless the caller omits them).
type Limits struct {
	MaxCanonicalRecords int
	MaxFindings         int
	MaxReportFindings   int
}

// Request is one run invocation (spec §6's Run endpoint input).
type Request struct {
	DatasetVersionID string
	FxArtifactID     string
	StartedAt        time.Time
	Params           matching.RuleParameters
	Limits           Limits
}

// DatasetVersionRepo confirms a DatasetVersion exists before a run may
// proceed (spec §4.11 step 3).
type DatasetVersionRepo interface {
	Exists(ctx context.Context, datasetVersionID string) (bool, error)
}

// CanonicalRecordRepo loads every canonical record bound to a dataset.
type CanonicalRecordRepo interface {
	ListByDataset(ctx context.Context, datasetVersionID string) ([]domain.CanonicalRecord, error)
}

// RunRepo persists the Run row; Insert is idempotent on run_id.
type RunRepo interface {
	Insert(ctx context.Context, r domain.Run) error
}

// FindingRepo persists Findings, idempotent-insert-if-absent by
// finding_id (spec §4.11 step 8).
type FindingRepo interface {
	FindByID(ctx context.Context, findingID string) (domain.Finding, bool, error)
	Insert(ctx context.Context, f domain.Finding) error
}

// LeakageRepo persists LeakageItems, unique per (run_id, finding_id).
type LeakageRepo interface {
	Insert(ctx context.Context, l domain.LeakageItem) error
}

// Engine wires every dependency the driver needs.
type Engine struct {
	EngineEnabled bool

	DatasetVersions DatasetVersionRepo
	CanonicalRecords CanonicalRecordRepo
	FxArtifacts     *fxartifact.Service
	Runs            RunRepo
	Findings        FindingRepo
	Leakage         LeakageRepo
	Evidence        *evidence.Registry
	Lifecycle       *lifecycle.Machine
}

// Summary is the deterministic response spec §6's Run endpoint returns.
type Summary struct {
	RunID            string
	DatasetVersionID string
	EngineID         string
	EngineVersion    string
	Findings         []domain.Finding
	LeakageItems     []domain.LeakageItem
	Conversions      map[string]fxconvert.Result
	Assumptions      []assumptions.Entry
}

func canonicalParams(p matching.RuleParameters) string {
	s := fmt.Sprintf("rounding_mode=%s;rounding_quantum=%s", p.RoundingMode, p.RoundingQuantum)
	if p.ToleranceAmount != nil {
		s += ";tolerance_amount=" + p.ToleranceAmount.String()
	}
	if p.TolerancePercent != nil {
		s += ";tolerance_percent=" + p.TolerancePercent.String()
	}
	if p.MaxPostedDaysDiff != nil {
		s += fmt.Sprintf(";max_posted_days_diff=%d", *p.MaxPostedDaysDiff)
	}
	return s
}

// parametersToMap projects the run parameters into the JSON-friendly shape
// persisted on domain.Run.Parameters, read back by the report assembler to
// recompute the tolerance assumption without re-deriving it from scratch.
func parametersToMap(p matching.RuleParameters) map[string]any {
	m := map[string]any{
		"rounding_mode":    string(p.RoundingMode),
		"rounding_quantum": p.RoundingQuantum,
	}
	if p.ToleranceAmount != nil {
		m["tolerance_amount"] = p.ToleranceAmount.String()
	}
	if p.TolerancePercent != nil {
		m["tolerance_percent"] = p.TolerancePercent.String()
	}
	if p.MaxPostedDaysDiff != nil {
		m["max_posted_days_diff"] = *p.MaxPostedDaysDiff
	}
	return m
}

func validateRequest(req Request) error {
	if req.DatasetVersionID == "" {
		return ferrors.ErrDatasetVersionMissing
	}
	if req.FxArtifactID == "" {
		return ferrors.ErrFxArtifactMissing
	}
	if req.StartedAt.IsZero() || req.StartedAt.Location() == nil {
		return ferrors.ErrStartedAtInvalid
	}
	if req.Params.RoundingMode == "" || req.Params.RoundingQuantum == "" {
		return ferrors.ErrRoundingModeRequired
	}
	return nil
}

const (
	defaultMaxCanonicalRecords = 250000
	defaultMaxFindings         = 50000
	defaultMaxReportFindings   = 10000
)

func withDefaults(l Limits) Limits {
	if l.MaxCanonicalRecords <= 0 {
		l.MaxCanonicalRecords = defaultMaxCanonicalRecords
	}
	if l.MaxFindings <= 0 {
		l.MaxFindings = defaultMaxFindings
	}
	if l.MaxReportFindings <= 0 {
		l.MaxReportFindings = defaultMaxReportFindings
	}
	return l
}

// ruleList builds the fixed rule order spec §4.11 step 6 names: exact
// invoice/payment, exact invoice/credit-note, then — only when tolerance
// parameters are present — the two tolerance variants, then the two
// partial variants.
func ruleList(p matching.RuleParameters) []matching.MatchingRule {
	rules := []matching.MatchingRule{
		matching.NewExactInvoicePaymentRule(),
		matching.NewExactInvoiceCreditNoteRule(),
	}
	if p.ToleranceAmount != nil || p.TolerancePercent != nil {
		rules = append(rules,
			matching.NewToleranceInvoicePaymentRule(),
			matching.NewToleranceInvoiceCreditNoteRule(),
		)
	}
	rules = append(rules,
		matching.NewPartialManyInvoicesOnePaymentRule(),
		matching.NewPartialInvoicePaymentRule(),
	)
	return rules
}

// Run executes the nine-step sequence from spec §4.11.
func (e *Engine) Run(ctx context.Context, req Request) (Summary, error) {
	// Step 1: kill-switch.
	if !e.EngineEnabled {
		return Summary{}, ferrors.ErrEngineDisabled
	}

	// Step 2: input validation.
	if err := validateRequest(req); err != nil {
		return Summary{}, err
	}
	limits := withDefaults(req.Limits)

	// Step 3: DatasetVersion existence, then FX artifact load (verifies
	// checksum on read).
	exists, err := e.DatasetVersions.Exists(ctx, req.DatasetVersionID)
	if err != nil {
		return Summary{}, err
	}
	if !exists {
		return Summary{}, ferrors.ErrDatasetVersionNotFound
	}
	fx, err := e.FxArtifacts.Load(ctx, req.DatasetVersionID, req.FxArtifactID)
	if err != nil {
		return Summary{}, err
	}

	// Step 4: canonical records sorted by record_id, runtime cap enforced
	// before any further work.
	records, err := e.CanonicalRecords.ListByDataset(ctx, req.DatasetVersionID)
	if err != nil {
		return Summary{}, err
	}
	if len(records) > limits.MaxCanonicalRecords {
		return Summary{}, ferrors.WithValue(ferrors.ErrRuntimeLimitExceeded, "max_canonical_records")
	}
	sort.Slice(records, func(i, j int) bool { return records[i].RecordID < records[j].RecordID })

	// Step 5: FX-convert every record into a CanonicalInput.
	inputs := make([]matching.CanonicalInput, 0, len(records))
	inputsByID := make(map[string]matching.CanonicalInput, len(records))
	recordsByID := make(map[string]domain.CanonicalRecord, len(records))
	conversions := make(map[string]fxconvert.Result, len(records))
	for _, rec := range records {
		recordsByID[rec.RecordID] = rec
		res, err := fxconvert.Convert(rec.AmountOriginal, rec.CurrencyOriginal, fx.BaseCurrency, fx.Rates, req.Params.RoundingMode, req.Params.RoundingQuantum)
		if err != nil {
			return Summary{}, err
		}
		in := matching.CanonicalInput{
			Record:          rec,
			AmountConverted: res.AmountConverted,
			FxRateUsed:      res.FxRateUsed,
			BaseCurrency:    fx.BaseCurrency,
		}
		inputs = append(inputs, in)
		inputsByID[rec.RecordID] = in
		conversions[rec.RecordID] = res
	}

	// Step 6: fixed rule order.
	ruleCtx := matching.RuleContext{
		DatasetVersionID: req.DatasetVersionID,
		FxArtifactID:     req.FxArtifactID,
		StartedAt:        req.StartedAt,
		Params:           req.Params,
	}
	rules := ruleList(req.Params)

	// Step 7: orchestrate, then enforce max_findings before building any
	// Finding/Evidence/LeakageItem (DESIGN.md Open Question 2 — moved
	// before the write loop, unlike original_source's after-the-fact
	// check).
	outcomes, _, err := matching.RunMatching(ruleCtx, inputs, rules)
	if err != nil {
		return Summary{}, err
	}
	if len(outcomes) > limits.MaxFindings {
		return Summary{}, ferrors.WithValue(ferrors.ErrRuntimeLimitExceeded, "max_findings")
	}

	paramsHash := sha256.Sum256([]byte(canonicalParams(req.Params)))
	runID, err := ids.RunID(req.DatasetVersionID, config.EngineID, EngineVersion, hex.EncodeToString(paramsHash[:]))
	if err != nil {
		return Summary{}, err
	}
	run := domain.Run{
		RunID:            runID.String(),
		DatasetVersionID: req.DatasetVersionID,
		FxArtifactID:     req.FxArtifactID,
		StartedAt:        req.StartedAt,
		Status:           "completed",
		EngineVersion:    EngineVersion,
		Parameters:       parametersToMap(req.Params),
	}
	if err := e.Runs.Insert(ctx, run); err != nil {
		return Summary{}, err
	}

	// Step 8: per outcome, evidence -> finding -> leakage item -> default
	// lifecycle state.
	findings := make([]domain.Finding, 0, len(outcomes))
	leakageItems := make([]domain.LeakageItem, 0, len(outcomes))
	maxPostedDaysDiffSet := req.Params.MaxPostedDaysDiff != nil

	for _, outcome := range outcomes {
		sortedMatched := append([]string(nil), outcome.MatchedRecordIDs...)
		sort.Strings(sortedMatched)

		findingID, err := ids.FindingID(req.DatasetVersionID, outcome.RuleID, outcome.RuleVersion, sortedMatched)
		if err != nil {
			return Summary{}, err
		}
		findingType, ok := domain.ConfidenceToFindingType(outcome.Confidence)
		if !ok {
			return Summary{}, fmt.Errorf("unrecognized confidence %q", outcome.Confidence)
		}

		schema := toEvidenceSchema(outcome, recordsByID)
		evidenceID, err := e.Evidence.Emit(ctx, req.DatasetVersionID, config.EngineID, "finding_evidence", findingID.String(), schema, req.StartedAt)
		if err != nil {
			return Summary{}, err
		}

		finding := domain.Finding{
			FindingID:         findingID.String(),
			RunID:             run.RunID,
			DatasetVersionID:  req.DatasetVersionID,
			RuleID:            outcome.RuleID,
			RuleVersion:       outcome.RuleVersion,
			FrameworkVersion:  EngineVersion,
			FindingType:       findingType,
			Confidence:        outcome.Confidence,
			MatchedRecordIDs:  outcome.MatchedRecordIDs,
			UnmatchedAmount:   outcome.UnmatchedAmount,
			FxArtifactID:      req.FxArtifactID,
			PrimaryEvidenceID: evidenceID,
			EvidenceIDs:       []string{evidenceID},
			CreatedAt:         req.StartedAt,
		}
		if _, ok, err := e.Findings.FindByID(ctx, finding.FindingID); err != nil {
			return Summary{}, err
		} else if !ok {
			if err := e.Findings.Insert(ctx, finding); err != nil {
				return Summary{}, err
			}
		}
		findings = append(findings, finding)

		class := leakage.Classify(outcome, inputsByID, maxPostedDaysDiffSet)
		leakageItemID, err := ids.LeakageItemID(run.RunID, finding.FindingID)
		if err != nil {
			return Summary{}, err
		}
		leakageSchema := toLeakageSchema(class, finding, evidenceID, fx)
		if _, err := e.Evidence.Emit(ctx, req.DatasetVersionID, config.EngineID, "leakage_evidence", leakageItemID.String(), leakageSchema, req.StartedAt); err != nil {
			return Summary{}, err
		}
		item := domain.LeakageItem{
			LeakageItemID:    leakageItemID.String(),
			RunID:            run.RunID,
			FindingID:        finding.FindingID,
			DatasetVersionID: req.DatasetVersionID,
			Typology:         string(class.Typology),
			ExposureAbs:      class.ExposureAbs,
			ExposureSigned:   class.ExposureSigned,
			CreatedAt:        req.StartedAt,
		}
		if err := e.Leakage.Insert(ctx, item); err != nil {
			return Summary{}, err
		}
		leakageItems = append(leakageItems, item)

		if err := e.Lifecycle.EnsureDefault(ctx, lifecycle.SubjectFinding, finding.FindingID, req.StartedAt); err != nil {
			return Summary{}, err
		}
		if err := e.Lifecycle.EnsureDefault(ctx, lifecycle.SubjectLeakage, item.LeakageItemID, req.StartedAt); err != nil {
			return Summary{}, err
		}
	}

	// Step 9: deterministic summary ordering by (rule_id, finding_id).
	sort.Slice(findings, func(i, j int) bool {
		if findings[i].RuleID != findings[j].RuleID {
			return findings[i].RuleID < findings[j].RuleID
		}
		return findings[i].FindingID < findings[j].FindingID
	})
	sort.Slice(leakageItems, func(i, j int) bool {
		if leakageItems[i].Typology != leakageItems[j].Typology {
			return leakageItems[i].Typology < leakageItems[j].Typology
		}
		return leakageItems[i].FindingID < leakageItems[j].FindingID
	})

	reg := assumptions.Default()
	reg.AddFXAssumption(req.FxArtifactID, fx.BaseCurrency)
	reg.AddToleranceAssumption(req.Params.ToleranceAmount, req.Params.TolerancePercent)
	reg.AddDataCompletenessAssumption(len(records))

	return Summary{
		RunID:            run.RunID,
		DatasetVersionID: req.DatasetVersionID,
		EngineID:         config.EngineID,
		EngineVersion:    EngineVersion,
		Findings:         findings,
		LeakageItems:     leakageItems,
		Conversions:      conversions,
		Assumptions:      reg.Entries,
	}, nil
}

