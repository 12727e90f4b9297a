package store

import (
	"context"

	"github.com/galapoto/finforensics/internal/lifecycle"
)

// Lifecycle implements lifecycle.Store.
type Lifecycle struct{ db *DB }

func NewLifecycle(db *DB) *Lifecycle { return &Lifecycle{db: db} }

func (r *Lifecycle) GetState(ctx context.Context, kind lifecycle.SubjectKind, subjectID string) (lifecycle.WorkflowState, bool, error) {
	var (
		s           lifecycle.WorkflowState
		kindStr     string
		stateStr    string
	)
	err := r.db.pool.QueryRow(ctx,
		`SELECT subject_kind, subject_id, state, updated_at FROM workflow_state WHERE subject_kind=$1 AND subject_id=$2`,
		string(kind), subjectID,
	).Scan(&kindStr, &s.SubjectID, &stateStr, &s.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return lifecycle.WorkflowState{}, false, nil
		}
		return lifecycle.WorkflowState{}, false, err
	}
	s.SubjectKind = lifecycle.SubjectKind(kindStr)
	s.State = lifecycle.State(stateStr)
	return s, true, nil
}

// PutState upserts the current state for a subject; this is the one table
// in the schema that is not strictly append-only, since "current workflow
// state" is by definition a single row per subject — every transition is
// still durably recorded in workflow_transition regardless.
func (r *Lifecycle) PutState(ctx context.Context, s lifecycle.WorkflowState) error {
	_, err := r.db.pool.Exec(ctx,
		`INSERT INTO workflow_state(subject_kind, subject_id, state, updated_at)
		 VALUES($1,$2,$3,$4)
		 ON CONFLICT (subject_kind, subject_id) DO UPDATE SET state=EXCLUDED.state, updated_at=EXCLUDED.updated_at`,
		string(s.SubjectKind), s.SubjectID, string(s.State), s.UpdatedAt,
	)
	return err
}

func (r *Lifecycle) AppendTransition(ctx context.Context, t lifecycle.WorkflowTransition) error {
	_, err := r.db.pool.Exec(ctx,
		`INSERT INTO workflow_transition(
			subject_kind, subject_id, from_state, to_state, actor, reason, has_evidence, has_approval, occurred_at
		) VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		string(t.SubjectKind), t.SubjectID, string(t.FromState), string(t.ToState), t.Actor, t.Reason,
		t.HasEvidence, t.HasApproval, t.OccurredAt,
	)
	return err
}

func (r *Lifecycle) AppendAudit(ctx context.Context, a lifecycle.AuditRecord) error {
	_, err := r.db.pool.Exec(ctx,
		`INSERT INTO audit_log(subject_kind, subject_id, action, status, detail, occurred_at)
		 VALUES($1,$2,$3,$4,$5,$6)`,
		string(a.SubjectKind), a.SubjectID, a.Action, a.Status, a.Detail, a.OccurredAt,
	)
	return err
}
