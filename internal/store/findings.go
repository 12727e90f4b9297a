package store

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/galapoto/finforensics/internal/domain"
)

// Findings implements engine.FindingRepo.
type Findings struct{ db *DB }

func NewFindings(db *DB) *Findings { return &Findings{db: db} }

func (r *Findings) FindByID(ctx context.Context, findingID string) (domain.Finding, bool, error) {
	var (
		f             domain.Finding
		findingType   string
		confidence    string
		matchedJSON   []byte
		unmatchedStr  *string
		evidenceJSON  []byte
	)
	err := r.db.pool.QueryRow(ctx,
		`SELECT finding_id, run_id, dataset_version_id, rule_id, rule_version, framework_version,
			finding_type, confidence, matched_record_ids, unmatched_amount, fx_artifact_id,
			primary_evidence_id, evidence_ids, created_at
		 FROM findings WHERE finding_id=$1`,
		findingID,
	).Scan(
		&f.FindingID, &f.RunID, &f.DatasetVersionID, &f.RuleID, &f.RuleVersion, &f.FrameworkVersion,
		&findingType, &confidence, &matchedJSON, &unmatchedStr, &f.FxArtifactID,
		&f.PrimaryEvidenceID, &evidenceJSON, &f.CreatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return domain.Finding{}, false, nil
		}
		return domain.Finding{}, false, err
	}
	f.FindingType = domain.FindingType(findingType)
	f.Confidence = domain.Confidence(confidence)
	if err := json.Unmarshal(matchedJSON, &f.MatchedRecordIDs); err != nil {
		return domain.Finding{}, false, err
	}
	if err := json.Unmarshal(evidenceJSON, &f.EvidenceIDs); err != nil {
		return domain.Finding{}, false, err
	}
	if unmatchedStr != nil {
		d, err := decimal.NewFromString(*unmatchedStr)
		if err != nil {
			return domain.Finding{}, false, err
		}
		f.UnmatchedAmount = &d
	}
	return f, true, nil
}

// Insert is idempotent-insert-if-absent; the engine driver already checks
// FindByID before calling Insert, so ON CONFLICT here is a second,
// belt-and-braces guard against a concurrent duplicate run.
func (r *Findings) Insert(ctx context.Context, f domain.Finding) error {
	matchedJSON, err := json.Marshal(f.MatchedRecordIDs)
	if err != nil {
		return err
	}
	evidenceJSON, err := json.Marshal(f.EvidenceIDs)
	if err != nil {
		return err
	}
	var unmatchedStr *string
	if f.UnmatchedAmount != nil {
		s := f.UnmatchedAmount.String()
		unmatchedStr = &s
	}
	_, err = r.db.pool.Exec(ctx,
		`INSERT INTO findings(
			finding_id, run_id, dataset_version_id, rule_id, rule_version, framework_version,
			finding_type, confidence, matched_record_ids, unmatched_amount, fx_artifact_id,
			primary_evidence_id, evidence_ids, created_at
		) VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (finding_id) DO NOTHING`,
		f.FindingID, f.RunID, f.DatasetVersionID, f.RuleID, f.RuleVersion, f.FrameworkVersion,
		string(f.FindingType), string(f.Confidence), matchedJSON, unmatchedStr, f.FxArtifactID,
		f.PrimaryEvidenceID, evidenceJSON, f.CreatedAt,
	)
	return err
}

// ListByRun returns every Finding for a run, sorted the same way the
// engine driver's in-memory summary sorts them: (rule_id, finding_id).
func (r *Findings) ListByRun(ctx context.Context, runID string) ([]domain.Finding, error) {
	rows, err := r.db.pool.Query(ctx,
		`SELECT finding_id FROM findings WHERE run_id=$1 ORDER BY rule_id, finding_id`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]domain.Finding, 0, len(ids))
	for _, id := range ids {
		f, ok, err := r.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, f)
		}
	}
	return out, nil
}
