package orchestrator

import "github.com/fyrsmithlabs/remedyd/internal/record"

// State is one node of the remediation state machine.
type State string

const (
	StateIdle        State = "Idle"
	StateDetecting   State = "Detecting"
	StateConfiguring State = "Configuring"
	StateProtecting  State = "Protecting"
	StateMutating    State = "Mutating"
	StateVerifying   State = "Verifying"
	StateCommitting  State = "Committing"
	StateRollingBack State = "RollingBack"

	StateNoActionNeeded State = "NoActionNeeded"
	StateCommitted      State = "Committed"
	StateRolledBack     State = "RolledBack"
	StateFailed         State = "Failed"
)

// Terminal reports whether no further transition exists.
func (s State) Terminal() bool {
	switch s {
	case StateNoActionNeeded, StateCommitted, StateRolledBack, StateFailed:
		return true
	}
	return false
}

// FinalStatus maps a terminal state to the record status.
func (s State) FinalStatus() record.FinalStatus {
	switch s {
	case StateNoActionNeeded:
		return record.StatusNoActionNeeded
	case StateCommitted:
		return record.StatusCommitted
	case StateRolledBack:
		return record.StatusRolledBack
	default:
		return record.StatusFailed
	}
}

// stepInput is everything a transition may depend on. Keeping
// transitions pure over this triple is what keeps the rollback logic
// flat: no state handler ever decides where to go next.
type stepInput struct {
	emptyChangeSet bool
	verification   record.VerificationOutcome
	errored        bool
}

// nextState is the transition function. An error from any state leads
// to Failed; otherwise each state has exactly one branch point at most.
func nextState(s State, in stepInput) State {
	if in.errored {
		return StateFailed
	}
	switch s {
	case StateIdle:
		return StateDetecting
	case StateDetecting:
		if in.emptyChangeSet {
			return StateNoActionNeeded
		}
		return StateConfiguring
	case StateConfiguring:
		return StateProtecting
	case StateProtecting:
		return StateMutating
	case StateMutating:
		return StateVerifying
	case StateVerifying:
		if in.verification == record.VerificationPass {
			return StateCommitting
		}
		return StateRollingBack
	case StateCommitting:
		return StateCommitted
	case StateRollingBack:
		return StateRolledBack
	}
	return StateFailed
}
