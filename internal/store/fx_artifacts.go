package store

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/galapoto/finforensics/internal/domain"
)

// FxArtifacts implements fxartifact.MetadataRepo.
type FxArtifacts struct{ db *DB }

func NewFxArtifacts(db *DB) *FxArtifacts { return &FxArtifacts{db: db} }

func (r *FxArtifacts) Insert(ctx context.Context, a domain.FxArtifact) error {
	rates := make(map[string]string, len(a.Rates))
	for c, v := range a.Rates {
		rates[c] = v.String()
	}
	ratesJSON, err := json.Marshal(rates)
	if err != nil {
		return err
	}
	_, err = r.db.pool.Exec(ctx,
		`INSERT INTO fx_artifacts(
			fx_artifact_id, dataset_version_id, base_currency, effective_date, rates_json, checksum, artifact_uri
		) VALUES($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (dataset_version_id, checksum) DO NOTHING`,
		a.FxArtifactID, a.DatasetVersionID, a.BaseCurrency, a.EffectiveDate, ratesJSON, a.Checksum, a.ArtifactURI,
	)
	return err
}

func (r *FxArtifacts) scanRow(row pgx.Row) (domain.FxArtifact, bool, error) {
	var (
		a         domain.FxArtifact
		ratesJSON []byte
	)
	if err := row.Scan(
		&a.FxArtifactID, &a.DatasetVersionID, &a.BaseCurrency, &a.EffectiveDate, &ratesJSON, &a.Checksum, &a.ArtifactURI,
	); err != nil {
		if err == pgx.ErrNoRows {
			return domain.FxArtifact{}, false, nil
		}
		return domain.FxArtifact{}, false, err
	}
	var rawRates map[string]string
	if err := json.Unmarshal(ratesJSON, &rawRates); err != nil {
		return domain.FxArtifact{}, false, err
	}
	rates := make(map[string]decimal.Decimal, len(rawRates))
	for c, s := range rawRates {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return domain.FxArtifact{}, false, err
		}
		rates[c] = d
	}
	a.Rates = rates
	return a, true, nil
}

func (r *FxArtifacts) FindByChecksum(ctx context.Context, datasetVersionID, checksum string) (domain.FxArtifact, bool, error) {
	row := r.db.pool.QueryRow(ctx,
		`SELECT fx_artifact_id, dataset_version_id, base_currency, effective_date, rates_json, checksum, artifact_uri
		 FROM fx_artifacts WHERE dataset_version_id=$1 AND checksum=$2`,
		datasetVersionID, checksum,
	)
	return r.scanRow(row)
}

func (r *FxArtifacts) FindByID(ctx context.Context, datasetVersionID, fxArtifactID string) (domain.FxArtifact, bool, error) {
	row := r.db.pool.QueryRow(ctx,
		`SELECT fx_artifact_id, dataset_version_id, base_currency, effective_date, rates_json, checksum, artifact_uri
		 FROM fx_artifacts WHERE dataset_version_id=$1 AND fx_artifact_id=$2`,
		datasetVersionID, fxArtifactID,
	)
	return r.scanRow(row)
}
