package directory

import (
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
)

// File is the on-disk layout of a directory snapshot
type File struct {
	Organizations []entity.Organization   `yaml:"organizations"`
	Roles         []entity.RoleAssignment `yaml:"roles"`
}

// Directory is an immutable in-memory organization directory
type Directory struct {
	orgs    map[string]entity.Organization
	holders map[string][]string
}

// LoadFile reads and validates a directory snapshot from a YAML file
func LoadFile(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory file: %w", err)
	}
	return Parse(data)
}

// Parse builds a directory from YAML content
func Parse(data []byte) (*Directory, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal directory: %w", err)
	}
	return New(file)
}

// New validates a snapshot and indexes it
func New(file File) (*Directory, error) {
	d := &Directory{
		orgs:    make(map[string]entity.Organization, len(file.Organizations)),
		holders: make(map[string][]string),
	}

	for _, org := range file.Organizations {
		if org.ID == "" {
			return nil, fmt.Errorf("organization without id")
		}
		if !entity.IsValidOrgType(org.Type) {
			return nil, fmt.Errorf("organization %s has invalid type %q", org.ID, org.Type)
		}
		if _, dup := d.orgs[org.ID]; dup {
			return nil, fmt.Errorf("duplicate organization %s", org.ID)
		}
		d.orgs[org.ID] = org
	}

	for _, org := range file.Organizations {
		if org.ParentID != "" {
			if _, ok := d.orgs[org.ParentID]; !ok {
				return nil, fmt.Errorf("organization %s has unknown parent %s", org.ID, org.ParentID)
			}
		}
		if _, err := d.path(org.ID); err != nil {
			return nil, err
		}
	}

	seen := make(map[string]bool)
	for _, ra := range file.Roles {
		if _, ok := d.orgs[ra.OrganizationID]; !ok {
			return nil, fmt.Errorf("role %s for %s references unknown organization %s", ra.Role, ra.UserID, ra.OrganizationID)
		}
		if ra.UserID == "" || ra.Role == "" {
			return nil, fmt.Errorf("incomplete role assignment at %s", ra.OrganizationID)
		}
		k := key(ra.OrganizationID, ra.Role)
		if seen[k+"\x00"+ra.UserID] {
			continue
		}
		seen[k+"\x00"+ra.UserID] = true
		d.holders[k] = append(d.holders[k], ra.UserID)
	}
	for _, users := range d.holders {
		sort.Strings(users)
	}

	return d, nil
}

// HierarchyPath implements port.OrganizationDirectory
func (d *Directory) HierarchyPath(_ context.Context, orgID string) ([]entity.Organization, error) {
	if _, ok := d.orgs[orgID]; !ok {
		return nil, fmt.Errorf("organization %s: %w", orgID, workflow.ErrOrganizationNotFound)
	}
	return d.path(orgID)
}

// RoleHolders implements port.OrganizationDirectory
func (d *Directory) RoleHolders(_ context.Context, orgID, role string) ([]string, error) {
	users := d.holders[key(orgID, role)]
	return append([]string{}, users...), nil
}

// Size returns the number of organizations
func (d *Directory) Size() int {
	return len(d.orgs)
}

func (d *Directory) path(orgID string) ([]entity.Organization, error) {
	var path []entity.Organization
	seen := make(map[string]bool)
	for id := orgID; id != ""; {
		if seen[id] {
			return nil, fmt.Errorf("organization hierarchy of %s is cyclic", orgID)
		}
		seen[id] = true
		org := d.orgs[id]
		path = append(path, org)
		id = org.ParentID
	}
	return path, nil
}

func key(orgID, role string) string {
	return orgID + "\x00" + role
}

var _ port.OrganizationDirectory = (*Directory)(nil)
