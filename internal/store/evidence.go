package store

import (
	"context"

	"github.com/galapoto/finforensics/internal/evidence"
)

// Evidence implements evidence.Repo. Rows are immutable once written; the
// registry (internal/evidence) enforces content-identity comparison before
// ever calling Insert, so this type never has to detect a conflict itself.
type Evidence struct{ db *DB }

func NewEvidence(db *DB) *Evidence { return &Evidence{db: db} }

func (r *Evidence) FindByID(ctx context.Context, evidenceID string) (evidence.Record, bool, error) {
	var rec evidence.Record
	err := r.db.pool.QueryRow(ctx,
		`SELECT evidence_id, dataset_version_id, engine_id, kind, stable_key, created_at, payload_json
		 FROM evidence WHERE evidence_id=$1`,
		evidenceID,
	).Scan(&rec.EvidenceID, &rec.DatasetVersionID, &rec.EngineID, &rec.Kind, &rec.StableKey, &rec.CreatedAt, &rec.PayloadJSON)
	if err != nil {
		if isNoRows(err) {
			return evidence.Record{}, false, nil
		}
		return evidence.Record{}, false, err
	}
	return rec, true, nil
}

func (r *Evidence) Insert(ctx context.Context, rec evidence.Record) error {
	_, err := r.db.pool.Exec(ctx,
		`INSERT INTO evidence(evidence_id, dataset_version_id, engine_id, kind, stable_key, created_at, payload_json)
		 VALUES($1,$2,$3,$4,$5,$6,$7::jsonb)
		 ON CONFLICT (evidence_id) DO NOTHING`,
		rec.EvidenceID, rec.DatasetVersionID, rec.EngineID, rec.Kind, rec.StableKey, rec.CreatedAt, rec.PayloadJSON,
	)
	return err
}

// ListByDataset returns every evidence record for a dataset, used by the
// report endpoint's evidence index section.
func (r *Evidence) ListByDataset(ctx context.Context, datasetVersionID string) ([]evidence.Record, error) {
	rows, err := r.db.pool.Query(ctx,
		`SELECT evidence_id, dataset_version_id, engine_id, kind, stable_key, created_at, payload_json
		 FROM evidence WHERE dataset_version_id=$1 ORDER BY evidence_id`,
		datasetVersionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []evidence.Record
	for rows.Next() {
		var rec evidence.Record
		if err := rows.Scan(&rec.EvidenceID, &rec.DatasetVersionID, &rec.EngineID, &rec.Kind, &rec.StableKey, &rec.CreatedAt, &rec.PayloadJSON); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
