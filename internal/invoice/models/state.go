package models

import (
	dErrors "facturo/pkg/domain-errors"
)

// LifecycleState is the legal state of an invoice. The original system kept
// this as a loosely-typed string column with checks scattered across call
// sites; here it is a closed enum with a single transition table so illegal
// transitions fail at exactly one point.
type LifecycleState string

const (
	// StateDraft: fully mutable, unnumbered, deletable.
	StateDraft LifecycleState = "draft"
	// StateIssued: numbered, chained, content frozen.
	StateIssued LifecycleState = "issued"
	// StatePaid: issued and settled; no content change.
	StatePaid LifecycleState = "paid"
	// StateVoided: terminal; no content change, never deleted.
	StateVoided LifecycleState = "voided"
)

// transitions is the single source of truth for allowed lifecycle changes.
// Deletion is not a transition: it is permitted only from draft and enforced
// by CanDelete plus the store contract.
var transitions = map[LifecycleState]map[LifecycleState]bool{
	StateDraft:  {StateIssued: true},
	StateIssued: {StatePaid: true, StateVoided: true},
	StatePaid:   {StateVoided: true},
	StateVoided: {},
}

// Valid reports whether s is one of the four legal states.
func (s LifecycleState) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransitionTo reports whether the table permits s -> target.
func (s LifecycleState) CanTransitionTo(target LifecycleState) bool {
	return transitions[s][target]
}

// Terminal reports whether no further transitions exist from s.
func (s LifecycleState) Terminal() bool {
	return len(transitions[s]) == 0
}

// transitionError names the offending source and target states, per the
// error contract: actionable, user-facing, never retried.
func transitionError(from, to LifecycleState) error {
	return dErrors.Newf(dErrors.CodeInvalidTransition,
		"invoice cannot transition from %s to %s", from, to)
}
