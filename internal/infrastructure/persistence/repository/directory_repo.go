package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// maxHierarchyDepth guards against parent cycles in directory data
const maxHierarchyDepth = 32

// DirectoryRepository implements port.OrganizationDirectory over the
// organizations and role_assignments tables.
type DirectoryRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewDirectoryRepository creates a new organization directory repository
func NewDirectoryRepository(db *sqlite.DB, logger *zap.Logger) port.OrganizationDirectory {
	return &DirectoryRepository{
		db:     db,
		logger: logger,
	}
}

// HierarchyPath returns the organization followed by its ancestors
func (r *DirectoryRepository) HierarchyPath(ctx context.Context, orgID string) ([]entity.Organization, error) {
	query := `SELECT id, parent_id, name, type FROM organizations WHERE id = ?`

	var path []entity.Organization
	seen := make(map[string]bool)
	current := orgID

	for current != "" {
		if seen[current] || len(path) >= maxHierarchyDepth {
			r.logger.Error("Organization hierarchy cycle detected", zap.String("organization_id", orgID))
			return nil, fmt.Errorf("organization hierarchy of %s is cyclic", orgID)
		}
		seen[current] = true

		var org entity.Organization
		var parentID sql.NullString
		err := r.db.Executor(ctx).QueryRowContext(ctx, query, current).Scan(&org.ID, &parentID, &org.Name, &org.Type)
		if errors.Is(err, sql.ErrNoRows) {
			if len(path) == 0 {
				return nil, fmt.Errorf("organization %s: %w", orgID, workflow.ErrOrganizationNotFound)
			}
			return nil, fmt.Errorf("parent organization %s of %s: %w", current, orgID, workflow.ErrOrganizationNotFound)
		}
		if err != nil {
			r.logger.Error("Failed to load organization", zap.String("organization_id", current), zap.Error(err))
			return nil, fmt.Errorf("failed to load organization: %w", err)
		}

		org.ParentID = parentID.String
		path = append(path, org)
		current = org.ParentID
	}

	return path, nil
}

// RoleHolders returns the users holding a role at an organization
func (r *DirectoryRepository) RoleHolders(ctx context.Context, orgID, role string) ([]string, error) {
	query := `
		SELECT user_id FROM role_assignments
		WHERE organization_id = ? AND role = ?
		ORDER BY user_id ASC
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, orgID, role)
	if err != nil {
		r.logger.Error("Failed to load role holders",
			zap.String("organization_id", orgID),
			zap.String("role", role),
			zap.Error(err))
		return nil, fmt.Errorf("failed to load role holders: %w", err)
	}
	defer rows.Close()

	holders := make([]string, 0)
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("failed to scan role holder: %w", err)
		}
		holders = append(holders, userID)
	}
	return holders, rows.Err()
}
