package planner

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/garyjia/expense-approval/pkg/utils"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Planner computes approver chains from the organization directory. It never
// writes and reads nothing but its inputs, so equal inputs give equal plans.
type Planner struct {
	directory port.OrganizationDirectory
	policy    Policy
	logger    Logger
}

var _ port.ApprovalPlanner = (*Planner)(nil)

// New creates a planner over the directory.
func New(directory port.OrganizationDirectory, policy Policy, logger Logger) *Planner {
	return &Planner{
		directory: directory,
		policy:    policy,
		logger:    logger,
	}
}

// Plan walks the hierarchy from the originating organization to the root.
// Level rules collect approvers until one covers the amount; category rules
// add approvers at the first node of their type.
func (p *Planner) Plan(ctx context.Context, req port.PlanRequest) (*port.Plan, error) {
	req, err := normalize(req)
	if err != nil {
		return nil, err
	}

	path, err := p.directory.HierarchyPath(ctx, req.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("load hierarchy of %s: %w", req.OrganizationID, err)
	}

	chain := newChain(req.RequesterID, p.timeoutFor(req.Priority))
	covered := false
	visitedTypes := make(map[string]bool)

	for _, node := range path {
		if !covered {
			for _, rule := range p.policy.Levels {
				if rule.OrgType != node.Type {
					continue
				}
				holders, err := p.directory.RoleHolders(ctx, node.ID, rule.Role)
				if err != nil {
					return nil, fmt.Errorf("load %s holders at %s: %w", rule.Role, node.ID, err)
				}
				// A rule nobody else can sign for does not cover the amount;
				// the request escalates to the next rule.
				if !chain.add(node.ID, rule.Role, holders, rule.Parallel, true) {
					continue
				}
				if rule.Limit == nil || rule.Limit.GreaterThanOrEqual(req.Amount) {
					covered = true
					break
				}
			}
		}

		if visitedTypes[node.Type] {
			continue
		}
		visitedTypes[node.Type] = true

		for _, rule := range p.policy.Categories {
			if rule.OrgType != node.Type || !strings.EqualFold(rule.Category, req.Category) {
				continue
			}
			if req.Amount.LessThan(rule.MinAmount) {
				continue
			}
			holders, err := p.directory.RoleHolders(ctx, node.ID, rule.Role)
			if err != nil {
				return nil, fmt.Errorf("load %s holders at %s: %w", rule.Role, node.ID, err)
			}
			chain.add(node.ID, rule.Role, holders, rule.Parallel, rule.Required)
		}
	}

	if !chain.hasRequired() {
		if p.logger != nil {
			p.logger.Info("No approvers resolved",
				"organization_id", req.OrganizationID,
				"amount", req.Amount.String(),
				"category", req.Category,
			)
		}
		return nil, fmt.Errorf("%w: organization %s, amount %s, category %s",
			workflow.ErrNoApproversFound, req.OrganizationID, req.Amount.String(), req.Category)
	}

	chain.dropTrailingOptional()
	return &port.Plan{Steps: chain.steps, TotalSteps: chain.order}, nil
}

func (p *Planner) timeoutFor(priority string) *int {
	hours, ok := p.policy.TimeoutHours[priority]
	if !ok || hours <= 0 {
		return nil
	}
	return &hours
}

func normalize(req port.PlanRequest) (port.PlanRequest, error) {
	req.RequesterID = strings.TrimSpace(req.RequesterID)
	req.OrganizationID = strings.TrimSpace(req.OrganizationID)
	req.Category = strings.ToUpper(strings.TrimSpace(req.Category))
	req.Priority = strings.ToUpper(strings.TrimSpace(req.Priority))
	if req.Priority == "" {
		req.Priority = entity.PriorityNormal
	}

	if req.RequesterID == "" {
		return req, workflow.InvalidRequest("requester is required")
	}
	if req.OrganizationID == "" {
		return req, workflow.InvalidRequest("organization is required")
	}
	if err := utils.ValidateAmount(req.Amount); err != nil {
		return req, workflow.InvalidRequest("%v", err)
	}
	if req.Category == "" {
		return req, workflow.InvalidRequest("category is required")
	}
	if !entity.IsValidPriority(req.Priority) {
		return req, workflow.InvalidRequest("priority must be NORMAL or HIGH, got %q", req.Priority)
	}
	return req, nil
}

// chain accumulates planned steps. Each approver appears once, at the first
// position they were planned for, and the requester never appears.
type chain struct {
	requesterID string
	timeout     *int
	used        map[string]bool
	order       int
	steps       []port.PlannedStep
}

func newChain(requesterID string, timeout *int) *chain {
	return &chain{
		requesterID: requesterID,
		timeout:     timeout,
		used:        make(map[string]bool),
	}
}

// add plans one order for the rule and reports whether the rule had any
// eligible holder, including ones already in the chain. Optional approvers
// are only planned once a required one precedes them, so order 1 always
// holds a required step.
func (c *chain) add(orgID, role string, holders []string, parallel, required bool) bool {
	sorted := append([]string(nil), holders...)
	sort.Strings(sorted)

	eligible := false
	var fresh []string
	for i, h := range sorted {
		if h == "" || h == c.requesterID || (i > 0 && sorted[i-1] == h) {
			continue
		}
		eligible = true
		if !c.used[h] {
			fresh = append(fresh, h)
		}
	}
	if len(fresh) == 0 || (!required && !c.hasRequired()) {
		return eligible
	}
	if !parallel {
		fresh = fresh[:1]
	}

	c.order++
	for _, h := range fresh {
		c.used[h] = true
		step := port.PlannedStep{
			Order:          c.order,
			ApproverID:     h,
			Role:           role,
			OrganizationID: orgID,
			Required:       required,
			Parallel:       parallel,
		}
		if c.timeout != nil {
			hours := *c.timeout
			step.TimeoutHours = &hours
		}
		c.steps = append(c.steps, step)
	}
	return true
}

func (c *chain) hasRequired() bool {
	for _, s := range c.steps {
		if s.Required {
			return true
		}
	}
	return false
}

// dropTrailingOptional removes optional orders planned after the last
// required one. The flow completes as soon as its last required step is
// approved, so those approvers would never be reached.
func (c *chain) dropTrailingOptional() {
	last := 0
	for _, s := range c.steps {
		if s.Required && s.Order > last {
			last = s.Order
		}
	}

	kept := c.steps[:0]
	for _, s := range c.steps {
		if s.Order <= last {
			kept = append(kept, s)
		}
	}
	c.steps = kept
	c.order = last
}
