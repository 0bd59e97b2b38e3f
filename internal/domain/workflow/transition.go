package workflow

import (
	"fmt"
	"sort"
	"time"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
)

// Command is one approver decision on one step.
type Command struct {
	StepID      string
	ActorID     string
	Action      Action
	Comment     string
	Attachments []string
}

// Result tells the caller where the flow stands after a decision.
type Result struct {
	Completed     bool     `json:"completed"`
	NextStepID    string   `json:"next_step_id,omitempty"`
	NextStepIDs   []string `json:"next_step_ids,omitempty"`
	NextStepOrder int      `json:"next_step_order,omitempty"`
	Outcome       State    `json:"outcome,omitempty"`
}

// Transition is everything one decision changes. It is computed without
// touching storage; the caller persists it inside the flow's unit of work.
type Transition struct {
	Flow *entity.ApprovalFlow
	Step *entity.ApprovalStep
	// Activated holds steps whose order became actionable.
	Activated []*entity.ApprovalStep
	// Outcome is set when the flow reached a terminal state.
	Outcome State
	Events  []*event.Event
	Result  Result
}

// Begin positions a new flow at order 1 and returns the approval requests
// owed to the approvers at that order. The flow and steps are mutated in
// place. Order 1 must hold a required step, otherwise nobody could be asked
// to move the flow forward.
func Begin(flow *entity.ApprovalFlow, steps []*entity.ApprovalStep, now time.Time) ([]*event.Event, error) {
	next := nextRequiredOrder(steps)
	if next == 0 {
		return nil, fmt.Errorf("%w: plan has no required step", ErrNoApproversFound)
	}
	if next != 1 {
		return nil, fmt.Errorf("%w: first required step is at order %d", ErrInvalidPlan, next)
	}

	flow.Status = string(StatePending)
	flow.CurrentStep = 1

	activated := activate(steps, 0, 1, now)
	return approvalRequests(flow, activated, now), nil
}

// Decide applies cmd to the flow. Checks run before any change: actor,
// step status, flow status, then whether the step's order has been reached.
func Decide(flow *entity.ApprovalFlow, steps []*entity.ApprovalStep, cmd Command, now time.Time) (*Transition, error) {
	var target *entity.ApprovalStep
	for _, s := range steps {
		if s.ID == cmd.StepID {
			target = s
			break
		}
	}
	if target == nil {
		return nil, fmt.Errorf("%w: %s", ErrStepNotFound, cmd.StepID)
	}

	if cmd.ActorID != target.ApproverID {
		return nil, fmt.Errorf("%w: step %s", ErrNotAuthorized, target.ID)
	}
	stepMachine := NewStepMachine(State(target.Status))
	if !stepMachine.CanFire(cmd.Action.Trigger()) {
		return nil, fmt.Errorf("%w: step %s is %s", ErrAlreadyProcessed, target.ID, target.Status)
	}
	if !State(flow.Status).IsActive() {
		return nil, fmt.Errorf("%w: flow %s is %s", ErrFlowNotActionable, flow.ID, flow.Status)
	}
	if target.StepOrder > flow.CurrentStep {
		return nil, fmt.Errorf("%w: step order %d, current %d", ErrStepNotReached, target.StepOrder, flow.CurrentStep)
	}

	if err := stepMachine.Fire(cmd.Action.Trigger()); err != nil {
		return nil, err
	}

	step := target.Clone()
	step.Status = string(stepMachine.State())
	step.ProcessedAt = &now
	step.Comment = cmd.Comment
	step.Attachments = cmd.Attachments
	step.UpdatedAt = now

	updated := make([]*entity.ApprovalStep, len(steps))
	for i, s := range steps {
		if s.ID == step.ID {
			updated[i] = step
		} else {
			updated[i] = s.Clone()
		}
	}

	t := &Transition{Flow: flow.Clone(), Step: step}
	t.Flow.UpdatedAt = now
	flowMachine := NewFlowMachine(State(flow.Status))

	if cmd.Action == ActionReject {
		if err := flowMachine.Fire(TriggerReject); err != nil {
			return nil, err
		}
		t.terminate(flowMachine.State(), now)
		t.Events = append(t.Events, event.NewEvent(event.TypeFlowRejected, flow.ID, flow.TransactionID, flow.RequesterID,
			map[string]interface{}{
				event.KeyApproved: false,
				event.KeyReason:   cmd.Comment,
				event.KeyStepID:   step.ID,
			}, now))
		return t, nil
	}

	next := nextRequiredOrder(updated)
	if next == 0 {
		if err := flowMachine.Fire(TriggerApprove); err != nil {
			return nil, err
		}
		t.terminate(flowMachine.State(), now)
		t.Events = append(t.Events, event.NewEvent(event.TypeFlowApproved, flow.ID, flow.TransactionID, flow.RequesterID,
			map[string]interface{}{
				event.KeyApproved: true,
			}, now))
		return t, nil
	}

	if err := flowMachine.Fire(TriggerAdvance); err != nil {
		return nil, err
	}
	t.Flow.Status = string(flowMachine.State())

	if next > flow.CurrentStep {
		t.Activated = activate(updated, flow.CurrentStep, next, now)
		t.Flow.CurrentStep = next
		t.Events = approvalRequests(t.Flow, t.Activated, now)
	}

	t.Result.NextStepOrder = t.Flow.CurrentStep
	for _, s := range updated {
		if s.StepOrder == t.Flow.CurrentStep && s.IsRequired && s.Status == string(StatePending) {
			t.Result.NextStepIDs = append(t.Result.NextStepIDs, s.ID)
		}
	}
	if len(t.Result.NextStepIDs) > 0 {
		t.Result.NextStepID = t.Result.NextStepIDs[0]
	}
	return t, nil
}

func (t *Transition) terminate(outcome State, now time.Time) {
	t.Flow.Status = string(outcome)
	t.Flow.CompletedAt = &now
	t.Outcome = outcome
	t.Result = Result{Completed: true, Outcome: outcome}
}

// nextRequiredOrder returns the smallest order holding a required step that
// is still pending, or 0 when every required step is approved.
func nextRequiredOrder(steps []*entity.ApprovalStep) int {
	next := 0
	for _, s := range steps {
		if !s.IsRequired || s.Status != string(StatePending) {
			continue
		}
		if next == 0 || s.StepOrder < next {
			next = s.StepOrder
		}
	}
	return next
}

// activate stamps pending steps with from < order <= to and returns them in
// plan order.
func activate(steps []*entity.ApprovalStep, from, to int, now time.Time) []*entity.ApprovalStep {
	var activated []*entity.ApprovalStep
	for _, s := range steps {
		if s.Status != string(StatePending) || s.StepOrder <= from || s.StepOrder > to {
			continue
		}
		at := now
		s.ActivatedAt = &at
		activated = append(activated, s)
	}
	sort.SliceStable(activated, func(i, j int) bool {
		return activated[i].StepOrder < activated[j].StepOrder
	})
	return activated
}

func approvalRequests(flow *entity.ApprovalFlow, steps []*entity.ApprovalStep, now time.Time) []*event.Event {
	events := make([]*event.Event, 0, len(steps))
	for _, s := range steps {
		events = append(events, event.NewEvent(event.TypeApprovalRequested, flow.ID, flow.TransactionID, s.ApproverID,
			map[string]interface{}{
				event.KeyStepID:         s.ID,
				event.KeyOrganizationID: s.OrganizationID,
				event.KeyStepOrder:      s.StepOrder,
			}, now))
	}
	return events
}
