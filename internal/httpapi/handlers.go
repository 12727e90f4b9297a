// Package httpapi exposes the FX artifact, run, and report endpoints spec
// §6 names, following the teacher's net/http + ServeMux idiom: thin
// handlers that decode JSON, call into the domain packages, and map
// ferrors sentinels to HTTP status codes the same way the teacher's
// httpStatusForErr maps store.ErrValidation/ErrNotFound/ErrIdempotencyConflict.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gowebpki/jcs"
	"github.com/shopspring/decimal"

	"github.com/galapoto/finforensics/internal/assumptions"
	"github.com/galapoto/finforensics/internal/config"
	"github.com/galapoto/finforensics/internal/domain"
	"github.com/galapoto/finforensics/internal/engine"
	"github.com/galapoto/finforensics/internal/ferrors"
	"github.com/galapoto/finforensics/internal/fxartifact"
	"github.com/galapoto/finforensics/internal/matching"
	"github.com/galapoto/finforensics/internal/money"
	"github.com/galapoto/finforensics/internal/report"
)

// FindingLister and LeakageLister are the read paths the report endpoint
// needs beyond what engine.Engine already declares; kept as narrow
// interfaces here rather than importing internal/store directly, matching
// the rest of the codebase's repo-interface-per-consumer convention.
type FindingLister interface {
	ListByRun(ctx context.Context, runID string) ([]domain.Finding, error)
}

type LeakageLister interface {
	ListByRun(ctx context.Context, runID string) ([]domain.LeakageItem, error)
}

type RunFinder interface {
	FindByID(ctx context.Context, datasetVersionID, runID string) (domain.Run, bool, error)
}

// Handlers wires every dependency an HTTP request needs to resolve.
type Handlers struct {
	Engine        *engine.Engine
	FxArtifacts   *fxartifact.Service
	Runs          RunFinder
	Findings      FindingLister
	Leakage       LeakageLister
	CanonicalRecs engine.CanonicalRecordRepo
	MaxReportFindings int
}

func NewHandlers(h Handlers) *Handlers { return &h }

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

// writeCanonicalJSON serializes v and rewrites it through RFC 8785 (JCS)
// before writing, so that two requests producing byte-identical data
// structures also produce byte-identical response bodies — the report
// endpoint's "determinism required at byte level" contract (spec §6).
func writeCanonicalJSON(w http.ResponseWriter, code int, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, err = w.Write(canon)
	return err
}

func httpStatusForErr(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	}
	if status := ferrors.HTTPStatus(err); status != 0 {
		return status
	}
	return http.StatusInternalServerError
}

func publicErrMessage(code int, err error) string {
	if code >= 500 {
		return "internal error"
	}
	return err.Error()
}

func writeHandlerErr(w http.ResponseWriter, err error) {
	code := httpStatusForErr(err)
	writeErr(w, code, publicErrMessage(code, err))
}

// --- FX artifacts ---

type createFxArtifactRequest struct {
	DatasetVersionID string            `json:"dataset_version_id"`
	BaseCurrency     string            `json:"base_currency"`
	EffectiveDate    string            `json:"effective_date"`
	Rates            map[string]string `json:"rates"`
	CreatedAt        string            `json:"created_at"`
}

type fxArtifactResponse struct {
	FxArtifactID string `json:"fx_artifact_id"`
	Checksum     string `json:"checksum"`
	ArtifactURI  string `json:"artifact_uri"`
}

// parseOffsetTime requires an RFC3339 timestamp with an explicit offset,
// per SPEC_FULL §4.3a — the same "caller-supplied instant, must be
// tz-aware" rule the Run endpoint's started_at applies.
func parseOffsetTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, ferrors.ErrStartedAtInvalid
	}
	return t, nil
}

func (h *Handlers) CreateFxArtifact(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req createFxArtifactRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	effectiveDate, err := parseOffsetTime(req.EffectiveDate)
	if err != nil {
		writeHandlerErr(w, err)
		return
	}
	createdAt, err := parseOffsetTime(req.CreatedAt)
	if err != nil {
		writeHandlerErr(w, err)
		return
	}

	rates := make(map[string]decimal.Decimal, len(req.Rates))
	for currency, raw := range req.Rates {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			writeHandlerErr(w, ferrors.WithValue(ferrors.ErrFxArtifactInvalid, currency))
			return
		}
		rates[currency] = d
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	artifact, err := h.FxArtifacts.Create(ctx, req.DatasetVersionID, req.BaseCurrency, effectiveDate, rates, createdAt)
	if err != nil {
		writeHandlerErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, fxArtifactResponse{
		FxArtifactID: artifact.FxArtifactID,
		Checksum:     artifact.Checksum,
		ArtifactURI:  artifact.ArtifactURI,
	})
}

// GET /v1/fx-artifacts/{id}?dataset_version_id=...
func (h *Handlers) GetFxArtifact(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/fx-artifacts/")
	datasetVersionID := r.URL.Query().Get("dataset_version_id")
	if id == "" || datasetVersionID == "" {
		writeErr(w, http.StatusBadRequest, "dataset_version_id and fx_artifact_id are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	artifact, err := h.FxArtifacts.Load(ctx, datasetVersionID, id)
	if err != nil {
		writeHandlerErr(w, err)
		return
	}
	rates := make(map[string]string, len(artifact.Rates))
	for c, v := range artifact.Rates {
		rates[c] = money.FullPrecisionString(v)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"fx_artifact_id":     artifact.FxArtifactID,
		"dataset_version_id": artifact.DatasetVersionID,
		"base_currency":      artifact.BaseCurrency,
		"effective_date":     artifact.EffectiveDate.UTC().Format(time.RFC3339),
		"rates":              rates,
		"checksum":           artifact.Checksum,
		"artifact_uri":       artifact.ArtifactURI,
	})
}

// --- Runs ---

type runParametersRequest struct {
	RoundingMode       string   `json:"rounding_mode"`
	RoundingQuantum    string   `json:"rounding_quantum"`
	ToleranceAmount    *string  `json:"tolerance_amount"`
	TolerancePercent   *string  `json:"tolerance_percent"`
	MaxPostedDaysDiff  *int     `json:"max_posted_days_diff"`
	MaxCanonicalRecords int     `json:"max_canonical_records"`
	MaxFindings         int     `json:"max_findings"`
	MaxReportFindings   int     `json:"max_report_findings"`
}

type createRunRequest struct {
	DatasetVersionID string                `json:"dataset_version_id"`
	FxArtifactID     string                `json:"fx_artifact_id"`
	StartedAt        string                `json:"started_at"`
	Parameters       runParametersRequest `json:"parameters"`
}

func (h *Handlers) CreateRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req createRunRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	startedAt, err := parseOffsetTime(req.StartedAt)
	if err != nil {
		writeHandlerErr(w, err)
		return
	}

	var toleranceAmount, tolerancePercent *decimal.Decimal
	if req.Parameters.ToleranceAmount != nil {
		d, err := decimal.NewFromString(*req.Parameters.ToleranceAmount)
		if err != nil {
			writeErr(w, http.StatusBadRequest, "invalid tolerance_amount")
			return
		}
		toleranceAmount = &d
	}
	if req.Parameters.TolerancePercent != nil {
		d, err := decimal.NewFromString(*req.Parameters.TolerancePercent)
		if err != nil {
			writeErr(w, http.StatusBadRequest, "invalid tolerance_percent")
			return
		}
		tolerancePercent = &d
	}

	runReq := engine.Request{
		DatasetVersionID: req.DatasetVersionID,
		FxArtifactID:     req.FxArtifactID,
		StartedAt:        startedAt,
		Params: matching.RuleParameters{
			RoundingMode:      money.RoundingMode(req.Parameters.RoundingMode),
			RoundingQuantum:   req.Parameters.RoundingQuantum,
			ToleranceAmount:   toleranceAmount,
			TolerancePercent:  tolerancePercent,
			MaxPostedDaysDiff: req.Parameters.MaxPostedDaysDiff,
		},
		Limits: engine.Limits{
			MaxCanonicalRecords: req.Parameters.MaxCanonicalRecords,
			MaxFindings:         req.Parameters.MaxFindings,
			MaxReportFindings:   req.Parameters.MaxReportFindings,
		},
	}

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	summary, err := h.Engine.Run(ctx, runReq)
	if err != nil {
		writeHandlerErr(w, err)
		return
	}

	conversions := make(map[string]map[string]string, len(summary.Conversions))
	for recordID, res := range summary.Conversions {
		conversions[recordID] = map[string]string{
			"amount_converted": res.AmountConverted.String(),
			"fx_rate_used":      res.FxRateUsed.String(),
		}
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"run_id":             summary.RunID,
		"dataset_version_id": summary.DatasetVersionID,
		"engine_id":          summary.EngineID,
		"engine_version":     summary.EngineVersion,
		"findings":           summary.Findings,
		"conversions":        conversions,
		"report_sections":    map[string]any{"status": "ready"},
	})
}

// GET /v1/runs/{dataset_version_id}/{run_id}/report
func (h *Handlers) GetRunReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/runs/")
	parts := strings.Split(path, "/")
	if len(parts) != 3 || parts[2] != "report" {
		writeErr(w, http.StatusNotFound, "not found")
		return
	}
	datasetVersionID, runID := parts[0], parts[1]

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	run, ok, err := h.Runs.FindByID(ctx, datasetVersionID, runID)
	if err != nil {
		writeHandlerErr(w, err)
		return
	}
	if !ok {
		writeHandlerErr(w, ferrors.ErrRunNotFound)
		return
	}

	findings, err := h.Findings.ListByRun(ctx, runID)
	if err != nil {
		writeHandlerErr(w, err)
		return
	}
	leakageItems, err := h.Leakage.ListByRun(ctx, runID)
	if err != nil {
		writeHandlerErr(w, err)
		return
	}

	fx, err := h.FxArtifacts.Load(ctx, datasetVersionID, run.FxArtifactID)
	if err != nil {
		writeHandlerErr(w, err)
		return
	}
	records, err := h.CanonicalRecs.ListByDataset(ctx, datasetVersionID)
	if err != nil {
		writeHandlerErr(w, err)
		return
	}
	reg := assumptions.Rebuild(run.Parameters, run.FxArtifactID, fx.BaseCurrency, len(records))

	rep, err := report.Assemble(run.RunID, run.DatasetVersionID, config.EngineID, run.EngineVersion, findings, leakageItems, reg.Entries, h.MaxReportFindings)
	if err != nil {
		writeHandlerErr(w, err)
		return
	}
	if err := writeCanonicalJSON(w, http.StatusOK, rep); err != nil {
		writeHandlerErr(w, err)
		return
	}
}
