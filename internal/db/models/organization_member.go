// Package models - organization_member.go defines the joined membership view the
// permission checks read.
package models

// MembershipWithRole is an active user_organizations row joined with its role. A
// user has at most one active membership per organization.
type MembershipWithRole struct {
	UserID         string      `db:"user_id" json:"user_id"`
	OrganizationID string      `db:"organization_id" json:"organization_id"`
	RoleID         string      `db:"role_id" json:"role_id"`
	RoleName       string      `db:"role_name" json:"role_name"`
	Permissions    Permissions `db:"permissions" json:"permissions"`
}
