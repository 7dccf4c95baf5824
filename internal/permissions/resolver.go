// Package permissions answers whether a user holds a capability inside an organization.
//
// A user's capabilities in an organization are exactly the tags on the role of
// their active membership there. There is no wildcard, no role hierarchy and no
// caching: every check reads the membership fresh.
package permissions

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/atlvs/lifecycle-gate/internal/auth"
	"github.com/atlvs/lifecycle-gate/internal/db/models"
	"github.com/atlvs/lifecycle-gate/internal/telemetry"
)

// MembershipStore loads a user's active membership joined with its role.
// It returns nil, nil when the user has no active membership.
type MembershipStore interface {
	GetActiveMembership(ctx context.Context, userID, orgID string) (*models.MembershipWithRole, error)
}

// Resolver resolves capabilities from role memberships
type Resolver struct {
	store MembershipStore
}

// NewResolver creates a resolver backed by store
func NewResolver(store MembershipStore) *Resolver {
	return &Resolver{store: store}
}

// HasCapability reports whether the user's active role in the organization
// carries the capability. A missing or inactive membership is a plain deny;
// only storage failures produce an error.
func (r *Resolver) HasCapability(ctx context.Context, userID, orgID string, capability auth.Capability) (bool, error) {
	tags, err := r.Capabilities(ctx, userID, orgID)
	if err != nil {
		return false, err
	}
	return auth.HasCapability(tags, capability), nil
}

// Capabilities returns the resolved capability set of the user in the
// organization. The result is empty, never nil, when the user has none.
func (r *Resolver) Capabilities(ctx context.Context, userID, orgID string) ([]string, error) {
	m, err := r.store.GetActiveMembership(ctx, userID, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve membership: %w", err)
	}
	if m == nil {
		return []string{}, nil
	}

	if m.Permissions.ParseErr != nil {
		// Unreadable role data denies silently to the caller but is surfaced to operators.
		telemetry.PermissionParseFailuresTotal.Inc()
		slog.Warn("role permissions could not be parsed; treating as empty",
			"role_id", m.RoleID,
			"organization_id", orgID,
			"user_id", userID,
			"error", m.Permissions.ParseErr,
		)
		return []string{}, nil
	}

	if m.Permissions.Tags == nil {
		return []string{}, nil
	}
	if err := auth.ValidateCapabilities(m.Permissions.Tags); err != nil {
		// Unknown tags are kept; exact matching means they never grant anything.
		telemetry.PermissionUnknownTagsTotal.Inc()
		slog.Warn("role carries unrecognised capability tags",
			"role_id", m.RoleID,
			"organization_id", orgID,
			"error", err,
		)
	}
	return m.Permissions.Tags, nil
}
