package workflow

// Trigger represents an event that can cause a state transition
type Trigger string

const (
	// TriggerAdvance records an approval that leaves required steps outstanding.
	TriggerAdvance Trigger = "ADVANCE"
	TriggerApprove Trigger = "APPROVE"
	TriggerReject  Trigger = "REJECT"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}

// Action is an approver's decision on a step.
type Action string

const (
	ActionApprove Action = "APPROVE"
	ActionReject  Action = "REJECT"
)

// ParseAction validates a decision received from a caller.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionApprove, ActionReject:
		return Action(s), nil
	}
	return "", InvalidRequest("decision must be APPROVE or REJECT, got %q", s)
}

// Trigger maps the action onto the step machine trigger.
func (a Action) Trigger() Trigger {
	if a == ActionReject {
		return TriggerReject
	}
	return TriggerApprove
}
