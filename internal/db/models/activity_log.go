// Package models - activity_log.go defines the ActivityLog model, the append-only record of
// changes made to a project.
package models

import "time"

// Activity actions
const (
	ActivityPhaseAdvanced = "project.phase_advanced"
)

// ActivityLog records a single field change on a project
type ActivityLog struct {
	ID             string    `db:"id" json:"id"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	ProjectID      *string   `db:"project_id" json:"project_id,omitempty"`
	UserID         string    `db:"user_id" json:"user_id"`
	Action         string    `db:"action" json:"action"`
	Field          *string   `db:"field" json:"field,omitempty"`
	OldValue       *string   `db:"old_value" json:"old_value,omitempty"`
	NewValue       *string   `db:"new_value" json:"new_value,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
