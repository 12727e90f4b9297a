package matching

import "sort"

// OrchestrationLog records per-rule telemetry (proposed vs applied) for
// diagnostics only; it never affects persisted state (spec §4.6).
type OrchestrationLog struct {
	Proposed map[string]int
	Applied  map[string]int
}

func newLog() *OrchestrationLog {
	return &OrchestrationLog{Proposed: map[string]int{}, Applied: map[string]int{}}
}

func outcomeSortKey(o MatchOutcome) string {
	key := o.RuleID + "\x1f" + o.RuleVersion
	for _, id := range o.MatchedRecordIDs {
		key += "\x1f" + id
	}
	return key
}

// RunMatching implements the orchestrator algorithm from spec §4.6:
// records are assumed already sorted by record_id by the caller (C11);
// rules are iterated in the fixed order passed in; each rule's proposed
// outcomes are sorted by (rule_id, rule_version, matched_record_ids);
// first-match-wins is enforced across the whole rule sequence.
func RunMatching(ctx RuleContext, inputs []CanonicalInput, rules []MatchingRule) ([]MatchOutcome, *OrchestrationLog, error) {
	used := map[string]bool{}
	var applied []MatchOutcome
	log := newLog()

	for _, rule := range rules {
		proposed, err := rule.Apply(ctx, inputs, used)
		if err != nil {
			return nil, nil, err
		}
		for _, o := range proposed {
			if err := ValidateOutcome(o); err != nil {
				return nil, nil, err
			}
		}
		sort.Slice(proposed, func(i, j int) bool {
			return outcomeSortKey(proposed[i]) < outcomeSortKey(proposed[j])
		})
		log.Proposed[rule.RuleID()] += len(proposed)

		for _, o := range proposed {
			if anyUsed(o.MatchedRecordIDs, used) {
				continue
			}
			for _, id := range o.MatchedRecordIDs {
				used[id] = true
			}
			applied = append(applied, o)
			log.Applied[rule.RuleID()]++
		}
	}

	return applied, log, nil
}

func anyUsed(ids []string, used map[string]bool) bool {
	for _, id := range ids {
		if used[id] {
			return true
		}
	}
	return false
}
