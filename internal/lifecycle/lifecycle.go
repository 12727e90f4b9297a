// Package lifecycle implements the workflow state machine (C10, spec
// §4.10): per-subject draft/review/approved/locked states gating report
// and audit access.
package lifecycle

import (
	"context"
	"time"

	"github.com/galapoto/finforensics/internal/ferrors"
)

// State is one of the four workflow states.
type State string

const (
	StateDraft    State = "draft"
	StateReview   State = "review"
	StateApproved State = "approved"
	StateLocked   State = "locked"
)

// SubjectKind distinguishes what a workflow_state row governs.
type SubjectKind string

const (
	SubjectFinding   SubjectKind = "finding"
	SubjectLeakage   SubjectKind = "leakage_item"
	SubjectReport    SubjectKind = "report"
	SubjectRun       SubjectKind = "run"
)

// transitionRule names the preconditions a transition enforces.
type transitionRule struct {
	requiresEvidence bool
	requiresApproval bool
}

// validTransitions enumerates every allowed (from, to) pair; anything
// absent is rejected outright, per spec §4.10.
var validTransitions = map[State]map[State]transitionRule{
	StateDraft: {
		StateReview: {},
	},
	StateReview: {
		StateDraft:    {},
		StateApproved: {requiresEvidence: true, requiresApproval: true},
	},
	StateApproved: {
		StateLocked: {requiresEvidence: true, requiresApproval: true},
	},
	StateLocked: {},
}

// WorkflowState is the current state of one subject.
type WorkflowState struct {
	SubjectKind SubjectKind
	SubjectID   string
	State       State
	UpdatedAt   time.Time
}

// WorkflowTransition is an immutable, append-only transition record.
type WorkflowTransition struct {
	SubjectKind     SubjectKind
	SubjectID       string
	FromState       State
	ToState         State
	Actor           string
	Reason          string
	HasEvidence     bool
	HasApproval     bool
	OccurredAt      time.Time
}

// AuditRecord is an append-only audit log entry, including failed attempts.
type AuditRecord struct {
	SubjectKind SubjectKind
	SubjectID   string
	Action      string
	Status      string // "success" or "failure"
	Detail      string
	OccurredAt  time.Time
}

// Store persists workflow state, transitions, and audit records.
type Store interface {
	GetState(ctx context.Context, kind SubjectKind, subjectID string) (WorkflowState, bool, error)
	PutState(ctx context.Context, s WorkflowState) error
	AppendTransition(ctx context.Context, t WorkflowTransition) error
	AppendAudit(ctx context.Context, a AuditRecord) error
}

// Machine drives workflow state transitions against a Store.
type Machine struct {
	Store Store
}

// EnsureDefault creates a subject's workflow_state in StateDraft if none
// exists yet. Called by the engine driver after it inserts a Finding or
// LeakageItem (spec §4.11 step 8).
func (m *Machine) EnsureDefault(ctx context.Context, kind SubjectKind, subjectID string, now time.Time) error {
	_, ok, err := m.Store.GetState(ctx, kind, subjectID)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return m.Store.PutState(ctx, WorkflowState{SubjectKind: kind, SubjectID: subjectID, State: StateDraft, UpdatedAt: now})
}

// Transition attempts to move a subject from its current state to `to`.
// hasEvidence/hasApproval are supplied by the caller (the engine/httpapi
// layer knows whether evidence is bound and whether an administrative
// actor approved this transition); the machine only checks them against
// the transition's declared prerequisites.
func (m *Machine) Transition(ctx context.Context, kind SubjectKind, subjectID string, to State, actor, reason string, hasEvidence, hasApproval bool, now time.Time) error {
	current, ok, err := m.Store.GetState(ctx, kind, subjectID)
	if err != nil {
		return err
	}
	from := StateDraft
	if ok {
		from = current.State
	}

	rule, allowed := validTransitions[from][to]
	if !allowed {
		_ = m.Store.AppendAudit(ctx, AuditRecord{SubjectKind: kind, SubjectID: subjectID, Action: "transition", Status: "failure", Detail: string(from) + "->" + string(to), OccurredAt: now})
		return ferrors.Wrap(ferrors.ErrInvalidStateTransition, "%s -> %s not allowed", from, to)
	}
	if rule.requiresEvidence && !hasEvidence {
		_ = m.Store.AppendAudit(ctx, AuditRecord{SubjectKind: kind, SubjectID: subjectID, Action: "transition", Status: "failure", Detail: "missing evidence", OccurredAt: now})
		return ferrors.Wrap(ferrors.ErrMissingPrerequisites, "evidence not bound to subject")
	}
	if rule.requiresApproval && !hasApproval {
		_ = m.Store.AppendAudit(ctx, AuditRecord{SubjectKind: kind, SubjectID: subjectID, Action: "transition", Status: "failure", Detail: "missing approval", OccurredAt: now})
		return ferrors.Wrap(ferrors.ErrMissingPrerequisites, "approval by administrative actor required")
	}

	if err := m.Store.PutState(ctx, WorkflowState{SubjectKind: kind, SubjectID: subjectID, State: to, UpdatedAt: now}); err != nil {
		return err
	}
	return m.Store.AppendTransition(ctx, WorkflowTransition{
		SubjectKind: kind,
		SubjectID:   subjectID,
		FromState:   from,
		ToState:     to,
		Actor:       actor,
		Reason:      reason,
		HasEvidence: hasEvidence,
		HasApproval: hasApproval,
		OccurredAt:  now,
	})
}

// RequireApprovedForRead gates report/audit access: reads are only
// permitted when the subject's current lifecycle state is approved (or
// locked, a strict superset). Violations are a distinct error kind and
// themselves written to the audit log with a failure status.
func (m *Machine) RequireApprovedForRead(ctx context.Context, kind SubjectKind, subjectID string, now time.Time) error {
	current, ok, err := m.Store.GetState(ctx, kind, subjectID)
	if err != nil {
		return err
	}
	if !ok || (current.State != StateApproved && current.State != StateLocked) {
		_ = m.Store.AppendAudit(ctx, AuditRecord{SubjectKind: kind, SubjectID: subjectID, Action: "read", Status: "failure", Detail: "not approved", OccurredAt: now})
		return ferrors.ErrLifecycleViolation
	}
	return nil
}
