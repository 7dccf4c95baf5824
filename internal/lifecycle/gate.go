package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/atlvs/lifecycle-gate/internal/db/models"
	"github.com/atlvs/lifecycle-gate/internal/db/repositories"
	"github.com/atlvs/lifecycle-gate/internal/telemetry"
)

// ProjectStore loads projects and persists phase changes
type ProjectStore interface {
	GetWithOrganization(ctx context.Context, id string) (*models.ProjectWithOrg, error)
	AdvanceStatus(ctx context.Context, project *models.ProjectWithOrg, from, to, actorID string) (*models.ActivityLog, error)
}

// MembershipStore resolves a user's active role in an organization
type MembershipStore interface {
	GetActiveMembership(ctx context.Context, userID, orgID string) (*models.MembershipWithRole, error)
}

// ProjectView is a project annotated with its current and next phase
type ProjectView struct {
	*models.ProjectWithOrg
	Phase     *Phase `json:"phase"`
	NextPhase *Phase `json:"next_phase"`
}

// NewProjectView attaches phase metadata to p. Phase is nil when the stored
// status is not in the table; NextPhase is nil for the terminal phase.
func NewProjectView(p *models.ProjectWithOrg) *ProjectView {
	v := &ProjectView{ProjectWithOrg: p}
	if phase, ok := GetPhaseInfo(p.Status); ok {
		v.Phase = &phase
	}
	if next, ok := GetNextPhase(p.Status); ok {
		v.NextPhase = &next
	}
	return v
}

// AdvanceResult is returned by a successful Advance
type AdvanceResult struct {
	Project  *ProjectView        `json:"project"`
	Activity *models.ActivityLog `json:"activity"`
}

// Gate moves projects forward through the phase table
type Gate struct {
	projects    ProjectStore
	memberships MembershipStore
}

// NewGate creates a gate
func NewGate(projects ProjectStore, memberships MembershipStore) *Gate {
	return &Gate{projects: projects, memberships: memberships}
}

// Advance moves the project to its next phase on behalf of actingUserID.
//
// The acting user needs an active membership in the project's organization
// whose role tier meets the next phase's requirement. The status change and
// its activity record are written in one transaction; every failure leaves
// the stored project untouched.
func (g *Gate) Advance(ctx context.Context, projectID, actingUserID string) (*AdvanceResult, error) {
	project, err := g.projects.GetWithOrganization(ctx, projectID)
	if err != nil {
		recordTransition("", "", "error")
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	if project == nil {
		recordTransition("", "", "not_found")
		return nil, ErrNotFound
	}

	from := project.Status
	if PhaseIndex(from) < 0 {
		recordTransition("", "", "unknown_phase")
		return nil, fmt.Errorf("%w: %q", ErrUnknownPhase, from)
	}

	next, ok := GetNextPhase(from)
	if !ok {
		recordTransition(from, "", "terminal")
		return nil, ErrAlreadyTerminal
	}

	membership, err := g.memberships.GetActiveMembership(ctx, actingUserID, project.OrganizationID)
	if err != nil {
		recordTransition(from, next.Name, "error")
		return nil, fmt.Errorf("failed to resolve acting user's role: %w", err)
	}
	if membership == nil {
		recordTransition(from, next.Name, "forbidden")
		return nil, ErrForbidden
	}

	tier := GetUserTier(membership.RoleName)
	if !CanAccessPhase(next, tier) {
		slog.Info("phase advance denied",
			"project_id", project.ID,
			"user_id", actingUserID,
			"role", membership.RoleName,
			"from", from,
			"to", next.Name,
			"required_tier", next.RequiredTier.String(),
		)
		recordTransition(from, next.Name, "forbidden")
		return nil, ErrForbidden
	}

	activity, err := g.projects.AdvanceStatus(ctx, project, from, next.Name, actingUserID)
	if errors.Is(err, repositories.ErrStatusChanged) {
		recordTransition(from, next.Name, "conflict")
		return nil, ErrConflict
	}
	if err != nil {
		recordTransition(from, next.Name, "error")
		return nil, fmt.Errorf("failed to persist phase change: %w", err)
	}

	recordTransition(from, next.Name, "advanced")
	slog.Info("project phase advanced",
		"project_id", project.ID,
		"organization_id", project.OrganizationID,
		"user_id", actingUserID,
		"from", from,
		"to", next.Name,
	)

	return &AdvanceResult{Project: NewProjectView(project), Activity: activity}, nil
}

func recordTransition(from, to, outcome string) {
	telemetry.PhaseTransitionsTotal.WithLabelValues(from, to, outcome).Inc()
}
