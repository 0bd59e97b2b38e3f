package planner

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// Role labels used by the default policy
const (
	RoleDepartmentHead         = "DEPARTMENT_HEAD"
	RoleTreasurer              = "TREASURER"
	RoleSeniorPastor           = "SENIOR_PASTOR"
	RoleBoardChair             = "BOARD_CHAIR"
	RoleMissionsCoordinator    = "MISSIONS_COORDINATOR"
	RoleDistrictSuperintendent = "DISTRICT_SUPERINTENDENT"
	RoleFinanceCommittee       = "FINANCE_COMMITTEE"
)

// LevelRule adds the holders of Role at nodes of OrgType to the chain. The
// walk up the hierarchy stops at the first rule whose Limit covers the amount;
// a nil Limit covers any amount.
type LevelRule struct {
	OrgType  string
	Role     string
	Limit    *decimal.Decimal
	Parallel bool
}

// CategoryRule adds an extra approver for a spending category once the amount
// reaches MinAmount.
type CategoryRule struct {
	Category  string
	OrgType   string
	Role      string
	MinAmount decimal.Decimal
	Parallel  bool
	Required  bool
}

// Policy is the complete planning configuration.
type Policy struct {
	Levels     []LevelRule
	Categories []CategoryRule
	// TimeoutHours maps priority to the step timeout; zero means none.
	TimeoutHours map[string]int
}

func limit(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

// DefaultPolicy is the approval matrix of a typical local church.
func DefaultPolicy() Policy {
	return Policy{
		Levels: []LevelRule{
			{OrgType: entity.OrgTypeDepartment, Role: RoleDepartmentHead, Limit: limit(500)},
			{OrgType: entity.OrgTypeChurch, Role: RoleTreasurer, Limit: limit(2000)},
			{OrgType: entity.OrgTypeChurch, Role: RoleSeniorPastor, Limit: limit(10000)},
			{OrgType: entity.OrgTypeDistrict, Role: RoleDistrictSuperintendent, Limit: limit(50000)},
			{OrgType: entity.OrgTypeConference, Role: RoleFinanceCommittee, Parallel: true},
		},
		Categories: []CategoryRule{
			{Category: entity.CategoryCapital, OrgType: entity.OrgTypeChurch, Role: RoleBoardChair, MinAmount: decimal.NewFromInt(5000), Required: true},
			{Category: entity.CategoryMissions, OrgType: entity.OrgTypeChurch, Role: RoleMissionsCoordinator, MinAmount: decimal.Zero, Required: false},
		},
		TimeoutHours: map[string]int{
			entity.PriorityNormal: 72,
			entity.PriorityHigh:   24,
		},
	}
}

// Validate rejects rules that can never match.
func (p Policy) Validate() error {
	if len(p.Levels) == 0 {
		return fmt.Errorf("policy needs at least one level rule")
	}
	for i, r := range p.Levels {
		if !entity.IsValidOrgType(r.OrgType) {
			return fmt.Errorf("level rule %d: unknown org type %q", i, r.OrgType)
		}
		if strings.TrimSpace(r.Role) == "" {
			return fmt.Errorf("level rule %d: role is required", i)
		}
		if r.Limit != nil && !r.Limit.IsPositive() {
			return fmt.Errorf("level rule %d: limit must be positive", i)
		}
	}
	for i, r := range p.Categories {
		if strings.TrimSpace(r.Category) == "" || strings.TrimSpace(r.Role) == "" {
			return fmt.Errorf("category rule %d: category and role are required", i)
		}
		if !entity.IsValidOrgType(r.OrgType) {
			return fmt.Errorf("category rule %d: unknown org type %q", i, r.OrgType)
		}
		if r.MinAmount.IsNegative() {
			return fmt.Errorf("category rule %d: min amount must not be negative", i)
		}
	}
	for priority, hours := range p.TimeoutHours {
		if !entity.IsValidPriority(priority) {
			return fmt.Errorf("timeout for unknown priority %q", priority)
		}
		if hours < 0 {
			return fmt.Errorf("timeout for %s must not be negative", priority)
		}
	}
	return nil
}
