// Package ids implements the deterministic ID service (C1): stable
// identifiers produced by applying a fixed namespace UUID to a canonical
// key string. Identical inputs always yield identical ids; this is the
// only place in the engine allowed to mint an identifier.
package ids

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// sep is the reserved field separator used to build canonical key strings.
// Callers must not embed it in any joined component.
const sep = "\x1f"

// Pre-assigned namespaces, one per entity kind, so that two entities with
// coincidentally identical key strings but different kinds never collide.
var (
	NamespaceCanonicalRecord = uuid.MustParse("d6e1f9a0-1c2b-4e3d-8f4a-0a1b2c3d4e01")
	NamespaceRun             = uuid.MustParse("d6e1f9a0-1c2b-4e3d-8f4a-0a1b2c3d4e02")
	NamespaceFinding         = uuid.MustParse("d6e1f9a0-1c2b-4e3d-8f4a-0a1b2c3d4e03")
	NamespaceEvidence        = uuid.MustParse("d6e1f9a0-1c2b-4e3d-8f4a-0a1b2c3d4e04")
	NamespaceLeakageItem     = uuid.MustParse("d6e1f9a0-1c2b-4e3d-8f4a-0a1b2c3d4e05")
	NamespaceFxArtifact      = uuid.MustParse("d6e1f9a0-1c2b-4e3d-8f4a-0a1b2c3d4e06")
	NamespaceLink            = uuid.MustParse("d6e1f9a0-1c2b-4e3d-8f4a-0a1b2c3d4e07")
)

// ErrSeparatorInField is returned when a component contains the reserved
// join separator, which would allow two distinct input tuples to collapse
// onto the same canonical key string.
var ErrSeparatorInField = fmt.Errorf("id component contains reserved separator")

// Derive computes a stable UUID by joining parts with the reserved
// separator and hashing the result into namespace via UUIDv5 (SHA-1 based,
// per RFC 4122 — google/uuid's NewSHA1).
func Derive(namespace uuid.UUID, parts ...string) (uuid.UUID, error) {
	for _, p := range parts {
		if strings.Contains(p, sep) {
			return uuid.UUID{}, ErrSeparatorInField
		}
	}
	key := strings.Join(parts, sep)
	return uuid.NewSHA1(namespace, []byte(key)), nil
}

// MustDerive panics on a separator violation; used only where parts are
// engine-controlled constants, never raw user input.
func MustDerive(namespace uuid.UUID, parts ...string) uuid.UUID {
	id, err := Derive(namespace, parts...)
	if err != nil {
		panic(err)
	}
	return id
}

// CanonicalRecordID derives record_id from (dataset_version_id,
// source_system, source_record_id) per spec §3/§4.4.
func CanonicalRecordID(datasetVersionID, sourceSystem, sourceRecordID string) (uuid.UUID, error) {
	return Derive(NamespaceCanonicalRecord, datasetVersionID, sourceSystem, sourceRecordID)
}

// RunID derives run_id from (dataset_version_id, engine_id, engine_version,
// canonical parameter hash) per spec §3 and DESIGN.md Open Question 1.
func RunID(datasetVersionID, engineID, engineVersion, parametersHash string) (uuid.UUID, error) {
	return Derive(NamespaceRun, datasetVersionID, engineID, engineVersion, parametersHash)
}

// FindingID derives finding_id from (dataset_version_id, rule_id,
// rule_version, sorted tuple of matched record ids) per spec §3 and
// DESIGN.md Open Question 4. Callers must pass matchedRecordIDs already
// sorted lexicographically.
func FindingID(datasetVersionID, ruleID, ruleVersion string, sortedMatchedRecordIDs []string) (uuid.UUID, error) {
	parts := append([]string{datasetVersionID, ruleID, ruleVersion}, sortedMatchedRecordIDs...)
	return Derive(NamespaceFinding, parts...)
}

// EvidenceID derives evidence_id from (dataset_version_id, engine_id, kind,
// stable_key) per spec §4.8.
func EvidenceID(datasetVersionID, engineID, kind, stableKey string) (uuid.UUID, error) {
	return Derive(NamespaceEvidence, datasetVersionID, engineID, kind, stableKey)
}

// LeakageItemID derives leakage_item_id from (run_id, finding_id); unique
// per spec §3's (run_id, finding_id) constraint.
func LeakageItemID(runID, findingID string) (uuid.UUID, error) {
	return Derive(NamespaceLeakageItem, runID, findingID)
}

// FxArtifactID derives fx_artifact_id from (dataset_version_id, checksum)
// per spec §3/§4.3's idempotency key.
func FxArtifactID(datasetVersionID, checksum string) (uuid.UUID, error) {
	return Derive(NamespaceFxArtifact, datasetVersionID, checksum)
}
