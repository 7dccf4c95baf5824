// Package models - project.go defines the Project model whose status walks the lifecycle
// phase table.
package models

import "time"

// Project is a unit of work moving through the lifecycle. Status holds a phase
// name and is only changed by the transition gate.
type Project struct {
	ID          string    `db:"id" json:"id"`
	WorkspaceID string    `db:"workspace_id" json:"workspace_id"`
	Name        string    `db:"name" json:"name"`
	Slug        string    `db:"slug" json:"slug"`
	Status      string    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ProjectWithOrg is a project together with the organization that owns its workspace
type ProjectWithOrg struct {
	Project
	OrganizationID string `db:"organization_id" json:"organization_id"`
}
