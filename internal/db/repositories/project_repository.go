// project_repository.go implements ProjectRepository, providing project lookup and the
// transactional status change used by the lifecycle gate.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/atlvs/lifecycle-gate/internal/db/models"
)

// ErrStatusChanged is returned by AdvanceStatus when the stored status no longer
// matches the expected one because another writer got there first.
var ErrStatusChanged = errors.New("project status changed concurrently")

// ProjectRepository handles database operations for projects
type ProjectRepository struct {
	db *sqlx.DB
}

// NewProjectRepository creates a new project repository
func NewProjectRepository(db *sqlx.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// GetWithOrganization retrieves a project and the organization owning its workspace
func (r *ProjectRepository) GetWithOrganization(ctx context.Context, id string) (*models.ProjectWithOrg, error) {
	query := `
		SELECT p.id, p.workspace_id, p.name, p.slug, p.status, p.created_at, p.updated_at,
		       w.organization_id
		FROM projects p
		JOIN workspaces w ON w.id = p.workspace_id
		WHERE p.id = $1
	`

	var p models.ProjectWithOrg
	err := r.db.GetContext(ctx, &p, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &p, nil
}

// AdvanceStatus moves the project from status `from` to `to` and appends the
// matching activity record in a single transaction. The update only applies
// while the stored status still equals `from`; otherwise nothing is written
// and ErrStatusChanged is returned.
func (r *ProjectRepository) AdvanceStatus(ctx context.Context, project *models.ProjectWithOrg, from, to, actorID string) (*models.ActivityLog, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck

	var updatedAt time.Time
	err = tx.QueryRowxContext(ctx,
		`UPDATE projects SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3 RETURNING updated_at`,
		to, project.ID, from,
	).Scan(&updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStatusChanged
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update project status: %w", err)
	}

	field := "status"
	entry := &models.ActivityLog{
		ID:             uuid.New().String(),
		OrganizationID: project.OrganizationID,
		ProjectID:      &project.ID,
		UserID:         actorID,
		Action:         models.ActivityPhaseAdvanced,
		Field:          &field,
		OldValue:       &from,
		NewValue:       &to,
		CreatedAt:      updatedAt,
	}
	if err := insertActivity(ctx, tx, entry); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit status change: %w", err)
	}

	project.Status = to
	project.UpdatedAt = updatedAt
	return entry, nil
}
