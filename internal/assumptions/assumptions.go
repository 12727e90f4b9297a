// Package assumptions implements the run-scoped AssumptionRegistry (spec
// §4.12): the standing scope exclusions from spec §1 plus run-specific
// entries derived from the actual parameters a run used. The registry is
// documentation-of-record surfaced in the report's executive section; it
// never gates or alters a run.
package assumptions

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// Entry is one recorded assumption.
type Entry struct {
	Key    string
	Detail string
}

// Registry accumulates the assumptions a single run operated under.
type Registry struct {
	Entries []Entry
}

// Default seeds the five standing exclusions spec §1 names: the core
// never declares fraud, infers intent, nets intercompany eliminations,
// makes business decisions, or pursues recovery.
func Default() *Registry {
	return &Registry{Entries: []Entry{
		{Key: "no_fraud", Detail: "The engine does not declare fraud; findings are advisory signals only."},
		{Key: "no_decisions", Detail: "The engine does not make or recommend business decisions."},
		{Key: "no_eliminations", Detail: "Intercompany transactions are not netted or eliminated."},
		{Key: "no_intent", Detail: "No inference is made about counterparty or actor intent."},
		{Key: "no_recovery", Detail: "The engine does not pursue or track recovery of exposures it surfaces."},
	}}
}

// AddFXAssumption records the FX artifact actually used to convert
// amounts for this run.
func (r *Registry) AddFXAssumption(fxArtifactID, baseCurrency string) {
	r.Entries = append(r.Entries, Entry{
		Key:    "fx_conversion",
		Detail: "Amounts were converted to " + baseCurrency + " using fx_artifact_id=" + fxArtifactID + "; no other rate source is consulted.",
	})
}

// AddToleranceAssumption records the tolerance parameters actually used,
// or, when both are nil, that no tolerance rules were configured.
func (r *Registry) AddToleranceAssumption(amount, percent *decimal.Decimal) {
	detail := "No tolerance rules were configured for this run."
	switch {
	case amount != nil && percent != nil:
		detail = "Tolerance rules used max(" + amount.String() + ", " + percent.String() + " of driving amount) as the matching threshold."
	case amount != nil:
		detail = "Tolerance rules used a fixed threshold of " + amount.String() + "."
	case percent != nil:
		detail = "Tolerance rules used a threshold of " + percent.String() + " of the driving amount."
	}
	r.Entries = append(r.Entries, Entry{Key: "tolerance_threshold", Detail: detail})
}

// Rebuild reconstructs the registry a run produced from its persisted
// parameters, for callers (the report endpoint) that only have the Run row
// on hand and not the in-memory Registry a just-completed run returned.
func Rebuild(params map[string]any, fxArtifactID, baseCurrency string, canonicalRecordCount int) *Registry {
	reg := Default()
	reg.AddFXAssumption(fxArtifactID, baseCurrency)

	var amount, percent *decimal.Decimal
	if raw, ok := params["tolerance_amount"].(string); ok {
		if d, err := decimal.NewFromString(raw); err == nil {
			amount = &d
		}
	}
	if raw, ok := params["tolerance_percent"].(string); ok {
		if d, err := decimal.NewFromString(raw); err == nil {
			percent = &d
		}
	}
	reg.AddToleranceAssumption(amount, percent)
	reg.AddDataCompletenessAssumption(canonicalRecordCount)
	return reg
}

// AddDataCompletenessAssumption records that only the canonical records
// present in the dataset snapshot at run time were considered; the
// engine makes no attempt to detect missing upstream records.
func (r *Registry) AddDataCompletenessAssumption(canonicalRecordCount int) {
	r.Entries = append(r.Entries, Entry{
		Key:    "data_completeness",
		Detail: "The run considered exactly " + strconv.Itoa(canonicalRecordCount) + " canonical record(s) present in the dataset snapshot at start time; completeness of upstream ingestion is not verified.",
	})
}
