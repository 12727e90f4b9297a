package store

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/galapoto/finforensics/internal/domain"
)

// Leakage implements engine.LeakageRepo.
type Leakage struct{ db *DB }

func NewLeakage(db *DB) *Leakage { return &Leakage{db: db} }

// Insert is unique on (run_id, finding_id); a second run over identical
// inputs derives the same leakage_item_id and the insert is a no-op.
func (r *Leakage) Insert(ctx context.Context, l domain.LeakageItem) error {
	_, err := r.db.pool.Exec(ctx,
		`INSERT INTO leakage_items(
			leakage_item_id, run_id, finding_id, dataset_version_id, typology,
			exposure_abs, exposure_signed, created_at
		) VALUES($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (run_id, finding_id) DO NOTHING`,
		l.LeakageItemID, l.RunID, l.FindingID, l.DatasetVersionID, l.Typology,
		l.ExposureAbs.String(), l.ExposureSigned.String(), l.CreatedAt,
	)
	return err
}

// ListByRun returns every LeakageItem for a run, sorted the same way the
// engine driver's summary sorts them: (typology, finding_id).
func (r *Leakage) ListByRun(ctx context.Context, runID string) ([]domain.LeakageItem, error) {
	rows, err := r.db.pool.Query(ctx,
		`SELECT leakage_item_id, run_id, finding_id, dataset_version_id, typology,
			exposure_abs, exposure_signed, created_at
		 FROM leakage_items WHERE run_id=$1 ORDER BY typology, finding_id`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.LeakageItem
	for rows.Next() {
		var (
			l                          domain.LeakageItem
			exposureAbs, exposureSign string
		)
		if err := rows.Scan(
			&l.LeakageItemID, &l.RunID, &l.FindingID, &l.DatasetVersionID, &l.Typology,
			&exposureAbs, &exposureSign, &l.CreatedAt,
		); err != nil {
			return nil, err
		}
		abs, err := decimal.NewFromString(exposureAbs)
		if err != nil {
			return nil, err
		}
		signed, err := decimal.NewFromString(exposureSign)
		if err != nil {
			return nil, err
		}
		l.ExposureAbs = abs
		l.ExposureSigned = signed
		out = append(out, l)
	}
	return out, rows.Err()
}
