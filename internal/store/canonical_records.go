package store

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/galapoto/finforensics/internal/domain"
)

// CanonicalRecords implements engine.CanonicalRecordRepo and the ingestion
// write path behind the normalizer (C4).
type CanonicalRecords struct{ db *DB }

func NewCanonicalRecords(db *DB) *CanonicalRecords { return &CanonicalRecords{db: db} }

// Insert writes one normalized CanonicalRecord, idempotent on record_id
// (the deterministic id the normalizer derived from source_system +
// source_record_id, so re-ingesting the same source row is a no-op).
func (r *CanonicalRecords) Insert(ctx context.Context, rec domain.CanonicalRecord) error {
	refs, err := json.Marshal(rec.ReferenceIDs)
	if err != nil {
		return err
	}
	_, err = r.db.pool.Exec(ctx,
		`INSERT INTO canonical_records(
			record_id, dataset_version_id, record_type, posted_at, counterparty_id,
			amount_original, currency_original, direction, reference_ids, ingested_at,
			source_system, source_record_id
		) VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (record_id) DO NOTHING`,
		rec.RecordID, rec.DatasetVersionID, string(rec.RecordType), rec.PostedAt, rec.CounterpartyID,
		rec.AmountOriginal.String(), rec.CurrencyOriginal, string(rec.Direction), refs, rec.IngestedAt,
		rec.SourceSystem, rec.SourceRecordID,
	)
	return err
}

// ListByDataset returns every canonical record bound to a dataset, sorted
// by record_id (spec §4.11 step 4's ordering boundary).
func (r *CanonicalRecords) ListByDataset(ctx context.Context, datasetVersionID string) ([]domain.CanonicalRecord, error) {
	rows, err := r.db.pool.Query(ctx,
		`SELECT record_id, dataset_version_id, record_type, posted_at, counterparty_id,
			amount_original, currency_original, direction, reference_ids, ingested_at,
			source_system, source_record_id
		 FROM canonical_records WHERE dataset_version_id=$1 ORDER BY record_id`,
		datasetVersionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CanonicalRecord
	for rows.Next() {
		var (
			rec        domain.CanonicalRecord
			recordType string
			direction  string
			amountStr  string
			refsJSON   []byte
		)
		if err := rows.Scan(
			&rec.RecordID, &rec.DatasetVersionID, &recordType, &rec.PostedAt, &rec.CounterpartyID,
			&amountStr, &rec.CurrencyOriginal, &direction, &refsJSON, &rec.IngestedAt,
			&rec.SourceSystem, &rec.SourceRecordID,
		); err != nil {
			return nil, err
		}
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return nil, err
		}
		var refs []string
		if err := json.Unmarshal(refsJSON, &refs); err != nil {
			return nil, err
		}
		rec.RecordType = domain.RecordType(recordType)
		rec.Direction = domain.Direction(direction)
		rec.AmountOriginal = amount
		rec.ReferenceIDs = refs
		out = append(out, rec)
	}
	return out, rows.Err()
}
