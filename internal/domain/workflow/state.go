package workflow

// State is a flow or step state. Steps use the PENDING, APPROVED and
// REJECTED subset.
type State string

const (
	StatePending    State = "PENDING"
	StateInProgress State = "IN_PROGRESS"
	StateApproved   State = "APPROVED"
	StateRejected   State = "REJECTED"
)

// IsTerminal returns true if the state is absorbing
func (s State) IsTerminal() bool {
	return s == StateApproved || s == StateRejected
}

// IsActive returns true if steps of a flow in this state may be acted on
func (s State) IsActive() bool {
	return s == StatePending || s == StateInProgress
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a valid workflow state. It must not
// read package variables: the machine builders call it during package init.
func (s State) IsValid() bool {
	switch s {
	case StatePending, StateInProgress, StateApproved, StateRejected:
		return true
	}
	return false
}
