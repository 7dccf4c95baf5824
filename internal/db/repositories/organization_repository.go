// organization_repository.go implements OrganizationRepository, providing database queries
// for organization lookup and active membership resolution.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/atlvs/lifecycle-gate/internal/db/models"
)

// OrganizationRepository handles database operations for organizations and memberships
type OrganizationRepository struct {
	db *sqlx.DB
}

// NewOrganizationRepository creates a new organization repository
func NewOrganizationRepository(db *sqlx.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// GetByID retrieves an organization by ID
func (r *OrganizationRepository) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	query := `
		SELECT id, name, slug, created_at, updated_at
		FROM organizations
		WHERE id = $1
	`

	var org models.Organization
	err := r.db.GetContext(ctx, &org, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return &org, nil
}

// GetActiveMembership returns the user's active membership in the organization
// joined with its role, or nil when the user has no active membership.
func (r *OrganizationRepository) GetActiveMembership(ctx context.Context, userID, orgID string) (*models.MembershipWithRole, error) {
	query := `
		SELECT uo.user_id, uo.organization_id, uo.role_id, r.name AS role_name, r.permissions
		FROM user_organizations uo
		JOIN roles r ON r.id = uo.role_id
		WHERE uo.user_id = $1 AND uo.organization_id = $2 AND uo.is_active = TRUE
	`

	var m models.MembershipWithRole
	err := r.db.GetContext(ctx, &m, query, userID, orgID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return &m, nil
}
