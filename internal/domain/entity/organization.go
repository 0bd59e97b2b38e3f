package entity

// Organization is a node of the church hierarchy.
type Organization struct {
	ID       string `json:"id" yaml:"id"`
	ParentID string `json:"parent_id,omitempty" yaml:"parent"`
	Name     string `json:"name" yaml:"name"`
	Type     string `json:"type" yaml:"type"`
}

// RoleAssignment binds a user to a role at an organization.
type RoleAssignment struct {
	OrganizationID string `json:"organization_id" yaml:"organization"`
	UserID         string `json:"user_id" yaml:"user"`
	Role           string `json:"role" yaml:"role"`
}
