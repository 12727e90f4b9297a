// Package fxartifact implements the FX artifact service (C3, spec §4.3):
// canonicalizes a rate bundle into content-addressed JSON, stores the bytes
// via the artifact store (C2), and is idempotent on
// (dataset_version_id, checksum).
package fxartifact

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/galapoto/finforensics/internal/artifacts"
	"github.com/galapoto/finforensics/internal/domain"
	"github.com/galapoto/finforensics/internal/ferrors"
	"github.com/galapoto/finforensics/internal/ids"
	"github.com/galapoto/finforensics/internal/money"
	"github.com/galapoto/finforensics/internal/normalize"
	"github.com/shopspring/decimal"
)

// Service wires the artifact store and a metadata repository together.
type Service struct {
	Store    artifacts.Store
	Metadata MetadataRepo
}

// MetadataRepo persists FxArtifact rows; implemented by internal/store for
// Postgres and by an in-memory map in tests.
type MetadataRepo interface {
	FindByChecksum(ctx context.Context, datasetVersionID, checksum string) (domain.FxArtifact, bool, error)
	Insert(ctx context.Context, a domain.FxArtifact) error
	FindByID(ctx context.Context, datasetVersionID, fxArtifactID string) (domain.FxArtifact, bool, error)
}

// canonicalPayload mirrors original_source's _canonical_fx_payload_bytes:
// sorted keys, no whitespace, full-precision rate strings.
type canonicalPayload struct {
	BaseCurrency     string            `json:"base_currency"`
	DatasetVersionID string            `json:"dataset_version_id"`
	EffectiveDate    string            `json:"effective_date"`
	Rates            map[string]string `json:"rates"`
}

func canonicalBytes(datasetVersionID, baseCurrency string, effectiveDate time.Time, rates map[string]decimal.Decimal) ([]byte, map[string]decimal.Decimal, error) {
	sortedCurrencies := make([]string, 0, len(rates))
	for c := range rates {
		sortedCurrencies = append(sortedCurrencies, c)
	}
	sort.Strings(sortedCurrencies)

	rateStrings := make(map[string]string, len(rates))
	parsed := make(map[string]decimal.Decimal, len(rates))
	for _, rawCurrency := range sortedCurrencies {
		currency, err := normalize.Currency(rawCurrency)
		if err != nil {
			return nil, nil, err
		}
		rate := rates[rawCurrency]
		if !rate.IsPositive() {
			return nil, nil, ferrors.WithValue(ferrors.ErrFxArtifactInvalid, fmt.Sprintf("rate for %s must be > 0", currency))
		}
		rateStrings[currency] = money.FullPrecisionString(rate)
		parsed[currency] = rate
	}

	base, err := normalize.Currency(baseCurrency)
	if err != nil {
		return nil, nil, err
	}

	payload := canonicalPayload{
		DatasetVersionID: datasetVersionID,
		BaseCurrency:     base,
		EffectiveDate:    effectiveDate.UTC().Format(time.RFC3339),
		Rates:            rateStrings,
	}
	// encoding/json sorts map keys lexicographically, emits struct fields in
	// declaration order (kept alphabetical above), and emits no whitespace
	// by default, matching the canonicalization contract.
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	return b, parsed, nil
}

// Key returns the content-addressed storage path for a checksum, per spec
// §6's fixed convention.
func Key(datasetVersionID, checksum string) string {
	return fmt.Sprintf("core/fx/%s/%s.json", datasetVersionID, checksum)
}

// Create canonicalizes, hashes, stores, and persists an FxArtifact. Two
// requests with identical (dataset_version_id, checksum) are idempotent and
// return the existing record.
func (s *Service) Create(ctx context.Context, datasetVersionID, baseCurrency string, effectiveDate time.Time, rates map[string]decimal.Decimal, createdAt time.Time) (domain.FxArtifact, error) {
	if createdAt.IsZero() || createdAt.Location() == nil {
		return domain.FxArtifact{}, ferrors.ErrStartedAtInvalid
	}
	data, parsedRates, err := canonicalBytes(datasetVersionID, baseCurrency, effectiveDate, rates)
	if err != nil {
		return domain.FxArtifact{}, err
	}
	checksum := artifacts.Checksum(data)

	if existing, ok, err := s.Metadata.FindByChecksum(ctx, datasetVersionID, checksum); err != nil {
		return domain.FxArtifact{}, err
	} else if ok {
		return existing, nil
	}

	base, _ := normalize.Currency(baseCurrency)
	res, err := s.Store.Put(ctx, Key(datasetVersionID, checksum), data, "application/json")
	if err != nil {
		return domain.FxArtifact{}, err
	}

	id, err := ids.FxArtifactID(datasetVersionID, checksum)
	if err != nil {
		return domain.FxArtifact{}, err
	}

	artifact := domain.FxArtifact{
		FxArtifactID:     id.String(),
		DatasetVersionID: datasetVersionID,
		BaseCurrency:     base,
		EffectiveDate:    effectiveDate,
		Rates:            parsedRates,
		Checksum:         res.SHA256,
		ArtifactURI:      res.URI,
	}
	if err := s.Metadata.Insert(ctx, artifact); err != nil {
		return domain.FxArtifact{}, err
	}
	return artifact, nil
}

// Load retrieves an FxArtifact by id, re-verifying SHA-256 on read and
// rejecting a dataset mismatch.
func (s *Service) Load(ctx context.Context, datasetVersionID, fxArtifactID string) (domain.FxArtifact, error) {
	meta, ok, err := s.Metadata.FindByID(ctx, datasetVersionID, fxArtifactID)
	if err != nil {
		return domain.FxArtifact{}, err
	}
	if !ok {
		return domain.FxArtifact{}, ferrors.WithValue(ferrors.ErrFxArtifactMissing, fxArtifactID)
	}
	if meta.DatasetVersionID != datasetVersionID {
		return domain.FxArtifact{}, ferrors.WithValue(ferrors.ErrInconsistentReference, "fx_artifact dataset mismatch")
	}
	data, err := s.Store.Get(ctx, Key(datasetVersionID, meta.Checksum))
	if err != nil {
		return domain.FxArtifact{}, err
	}
	if err := artifacts.VerifyChecksum(data, meta.Checksum); err != nil {
		return domain.FxArtifact{}, err
	}
	return meta, nil
}
