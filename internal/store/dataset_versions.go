package store

import (
	"context"
	"time"
)

// DatasetVersions implements engine.DatasetVersionRepo and supplies the
// ingestion-time Ensure helper that stands a DatasetVersion up the first
// time a raw batch references it.
type DatasetVersions struct{ db *DB }

func NewDatasetVersions(db *DB) *DatasetVersions { return &DatasetVersions{db: db} }

func (r *DatasetVersions) Exists(ctx context.Context, datasetVersionID string) (bool, error) {
	var ok bool
	err := r.db.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM dataset_version WHERE dataset_version_id=$1)`,
		datasetVersionID,
	).Scan(&ok)
	return ok, err
}

// Ensure inserts a dataset_version row if absent. Idempotent: a second call
// for the same id is a no-op.
func (r *DatasetVersions) Ensure(ctx context.Context, datasetVersionID string, createdAt time.Time) error {
	_, err := r.db.pool.Exec(ctx,
		`INSERT INTO dataset_version(dataset_version_id, created_at) VALUES($1,$2)
		 ON CONFLICT (dataset_version_id) DO NOTHING`,
		datasetVersionID, createdAt,
	)
	return err
}
