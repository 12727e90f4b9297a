package store

import (
	"context"
	"encoding/json"

	"github.com/galapoto/finforensics/internal/domain"
)

// Runs implements engine.RunRepo.
type Runs struct{ db *DB }

func NewRuns(db *DB) *Runs { return &Runs{db: db} }

// Insert is idempotent on run_id: a second Run with identical inputs
// derives the same run_id and is a silent no-op, per spec §8 property 2.
func (r *Runs) Insert(ctx context.Context, run domain.Run) error {
	params := run.Parameters
	if params == nil {
		params = map[string]any{}
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return err
	}
	_, err = r.db.pool.Exec(ctx,
		`INSERT INTO runs(run_id, dataset_version_id, fx_artifact_id, started_at, status, engine_version, parameters_json)
		 VALUES($1,$2,$3,$4,$5,$6,$7::jsonb)
		 ON CONFLICT (run_id) DO NOTHING`,
		run.RunID, run.DatasetVersionID, run.FxArtifactID, run.StartedAt, run.Status, run.EngineVersion, paramsJSON,
	)
	return err
}

// FindByID loads a Run for the report endpoint, rejecting a dataset
// mismatch the same way fxartifact.Load does.
func (r *Runs) FindByID(ctx context.Context, datasetVersionID, runID string) (domain.Run, bool, error) {
	var (
		run        domain.Run
		paramsJSON []byte
	)
	err := r.db.pool.QueryRow(ctx,
		`SELECT run_id, dataset_version_id, fx_artifact_id, started_at, status, engine_version, parameters_json
		 FROM runs WHERE dataset_version_id=$1 AND run_id=$2`,
		datasetVersionID, runID,
	).Scan(&run.RunID, &run.DatasetVersionID, &run.FxArtifactID, &run.StartedAt, &run.Status, &run.EngineVersion, &paramsJSON)
	if err != nil {
		if isNoRows(err) {
			return domain.Run{}, false, nil
		}
		return domain.Run{}, false, err
	}
	if len(paramsJSON) > 0 {
		if err := json.Unmarshal(paramsJSON, &run.Parameters); err != nil {
			return domain.Run{}, false, err
		}
	}
	return run, true, nil
}
