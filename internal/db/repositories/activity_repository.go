// activity_repository.go implements ActivityRepository, providing inserts and paginated
// reads of project activity records.
package repositories

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/atlvs/lifecycle-gate/internal/db/models"
)

// ActivityRepository handles activity log database operations
type ActivityRepository struct {
	db *sqlx.DB
}

// NewActivityRepository creates a new ActivityRepository
func NewActivityRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

const insertActivityQuery = `
	INSERT INTO activity_logs (id, organization_id, project_id, user_id, action, field, old_value, new_value, created_at)
	VALUES (:id, :organization_id, :project_id, :user_id, :action, :field, :old_value, :new_value, :created_at)
`

// insertActivity writes entry through ext, which may be the pool or an open transaction
func insertActivity(ctx context.Context, ext sqlx.ExtContext, entry *models.ActivityLog) error {
	if _, err := sqlx.NamedExecContext(ctx, ext, insertActivityQuery, entry); err != nil {
		return fmt.Errorf("failed to insert activity log: %w", err)
	}
	return nil
}

// ListByProject returns a page of a project's activity, newest first, and the total count
func (r *ActivityRepository) ListByProject(ctx context.Context, projectID string, limit, offset int) ([]*models.ActivityLog, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM activity_logs WHERE project_id = $1`, projectID); err != nil {
		return nil, 0, fmt.Errorf("failed to count activity: %w", err)
	}

	query := `
		SELECT id, organization_id, project_id, user_id, action, field, old_value, new_value, created_at
		FROM activity_logs
		WHERE project_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	logs := []*models.ActivityLog{}
	if err := r.db.SelectContext(ctx, &logs, query, projectID, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to list activity: %w", err)
	}
	return logs, total, nil
}
