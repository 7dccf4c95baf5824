// Package models - organization.go defines the Organization model, the tenant that owns
// the workspaces, roles and memberships stored alongside it.
package models

import "time"

// Organization represents a tenant on the platform
type Organization struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Slug      string    `db:"slug" json:"slug"` // URL-safe, unique
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
