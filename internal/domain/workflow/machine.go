package workflow

import (
	"fmt"
	"sort"
)

// StateMachine tracks a current state and validates transitions out of it
type StateMachine interface {
	State() State
	CanFire(trigger Trigger) bool
	Fire(trigger Trigger) error
	PermittedTriggers() []Trigger
}

type stateMachine struct {
	current State
	table   transitionTable
}

var (
	flowBuilder = newFlowBuilder()
	stepBuilder = newStepBuilder()
)

// Flow lifecycle: PENDING -> IN_PROGRESS -> APPROVED | REJECTED. A flow may
// terminate straight from PENDING when its first decision settles it.
func newFlowBuilder() StateMachineBuilder {
	b := NewBuilder()
	for _, s := range []State{StatePending, StateInProgress} {
		b.Configure(s).
			Permit(TriggerAdvance, StateInProgress).
			Permit(TriggerApprove, StateApproved).
			Permit(TriggerReject, StateRejected)
	}
	b.Configure(StateApproved)
	b.Configure(StateRejected)
	return b
}

func newStepBuilder() StateMachineBuilder {
	b := NewBuilder()
	b.Configure(StatePending).
		Permit(TriggerApprove, StateApproved).
		Permit(TriggerReject, StateRejected)
	b.Configure(StateApproved)
	b.Configure(StateRejected)
	return b
}

// NewFlowMachine returns the flow lifecycle machine positioned at state.
func NewFlowMachine(state State) StateMachine {
	return flowBuilder.Build(state)
}

// NewStepMachine returns the step lifecycle machine positioned at state.
func NewStepMachine(state State) StateMachine {
	return stepBuilder.Build(state)
}

func (m *stateMachine) State() State {
	return m.current
}

// CanFire reports whether any transition is configured for the trigger.
// Guards are not evaluated.
func (m *stateMachine) CanFire(trigger Trigger) bool {
	return len(m.table[m.current][trigger]) > 0
}

// Fire takes the first configured transition whose guard passes.
func (m *stateMachine) Fire(trigger Trigger) error {
	transitions := m.table[m.current][trigger]
	if len(transitions) == 0 {
		return fmt.Errorf("%w: cannot fire %s from %s", ErrInvalidTransition, trigger, m.current)
	}

	for _, t := range transitions {
		if t.guard == nil || t.guard() {
			m.current = t.toState
			return nil
		}
	}

	return fmt.Errorf("%w: trigger %s from state %s", ErrGuardFailed, trigger, m.current)
}

func (m *stateMachine) PermittedTriggers() []Trigger {
	triggers := make([]Trigger, 0, len(m.table[m.current]))
	for trigger, ts := range m.table[m.current] {
		if len(ts) > 0 {
			triggers = append(triggers, trigger)
		}
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i] < triggers[j] })
	return triggers
}
