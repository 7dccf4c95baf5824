// Package projects implements the lifecycle endpoints: the phase table, project detail with
// phase metadata, the advance gate and the per-project activity feed.
package projects

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/atlvs/lifecycle-gate/internal/db/models"
	"github.com/atlvs/lifecycle-gate/internal/lifecycle"
	"github.com/atlvs/lifecycle-gate/internal/middleware"
)

// ProjectReader loads a project together with its owning organization
type ProjectReader interface {
	GetWithOrganization(ctx context.Context, id string) (*models.ProjectWithOrg, error)
}

// MembershipReader resolves the caller's active role in an organization
type MembershipReader interface {
	GetActiveMembership(ctx context.Context, userID, orgID string) (*models.MembershipWithRole, error)
}

// ActivityLister pages through a project's activity log
type ActivityLister interface {
	ListByProject(ctx context.Context, projectID string, limit, offset int) ([]*models.ActivityLog, int, error)
}

// Advancer runs the transition gate
type Advancer interface {
	Advance(ctx context.Context, projectID, actingUserID string) (*lifecycle.AdvanceResult, error)
}

// Handlers serves the project lifecycle endpoints
type Handlers struct {
	projects    ProjectReader
	memberships MembershipReader
	activity    ActivityLister
	gate        Advancer
}

// NewHandlers creates a new Handlers instance
func NewHandlers(projects ProjectReader, memberships MembershipReader, activity ActivityLister, gate Advancer) *Handlers {
	return &Handlers{
		projects:    projects,
		memberships: memberships,
		activity:    activity,
		gate:        gate,
	}
}

// @Summary      List lifecycle phases
// @Description  Returns the ordered lifecycle phase table with the role tier each phase requires.
// @Tags         Lifecycle
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "phases: []lifecycle.Phase"
// @Router       /api/v1/lifecycle/phases [get]
// ListPhasesHandler returns the phase table
// GET /api/v1/lifecycle/phases
func (h *Handlers) ListPhasesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"phases": lifecycle.Phases(),
		})
	}
}

// @Summary      Get project
// @Description  Returns a project with its current phase, the next phase and whether the caller may advance it.
// @Tags         Lifecycle
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Project ID"
// @Success      200  {object}  map[string]interface{}  "project: lifecycle.ProjectView, can_advance: bool"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Project not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/projects/{id} [get]
// GetProjectHandler returns a single project
// GET /api/v1/projects/:id
func (h *Handlers) GetProjectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		userID := c.GetString(middleware.UserIDKey)

		project, err := h.projects.GetWithOrganization(ctx, c.Param("id"))
		if err != nil {
			slog.Error("failed to load project", "project_id", c.Param("id"), "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to get project",
			})
			return
		}
		if project == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Project not found",
			})
			return
		}

		membership, err := h.memberships.GetActiveMembership(ctx, userID, project.OrganizationID)
		if err != nil {
			slog.Error("failed to resolve membership", "project_id", project.ID, "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to get project",
			})
			return
		}
		// Non-members learn nothing about the project's existence.
		if membership == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Project not found",
			})
			return
		}

		view := lifecycle.NewProjectView(project)
		canAdvance := view.NextPhase != nil &&
			lifecycle.CanAccessPhase(*view.NextPhase, lifecycle.GetUserTier(membership.RoleName))

		c.JSON(http.StatusOK, gin.H{
			"project":     view,
			"role":        membership.RoleName,
			"can_advance": canAdvance,
		})
	}
}

// @Summary      Advance project phase
// @Description  Moves the project to the next lifecycle phase. The caller's role tier must meet the next phase's requirement.
// @Tags         Lifecycle
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Project ID"
// @Success      200  {object}  map[string]interface{}  "project: lifecycle.ProjectView, activity: models.ActivityLog"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      403  {object}  map[string]interface{}  "Insufficient role for the next phase"
// @Failure      404  {object}  map[string]interface{}  "Project not found"
// @Failure      409  {object}  map[string]interface{}  "Already in the final phase, or changed concurrently"
// @Failure      422  {object}  map[string]interface{}  "Stored phase is not recognised"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/projects/{id}/advance [post]
// AdvanceHandler runs the transition gate for the authenticated user
// POST /api/v1/projects/:id/advance
func (h *Handlers) AdvanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(middleware.UserIDKey)

		result, err := h.gate.Advance(c.Request.Context(), c.Param("id"), userID)
		if err != nil {
			status, message := advanceErrorStatus(err)
			if status == http.StatusInternalServerError {
				slog.Error("phase advance failed", "project_id", c.Param("id"), "user_id", userID, "error", err)
			}
			c.JSON(status, gin.H{
				"error": message,
			})
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

func advanceErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, lifecycle.ErrNotFound):
		return http.StatusNotFound, "Project not found"
	case errors.Is(err, lifecycle.ErrForbidden):
		return http.StatusForbidden, "Your role cannot advance this project to the next phase"
	case errors.Is(err, lifecycle.ErrAlreadyTerminal):
		return http.StatusConflict, "Project is already in the final phase"
	case errors.Is(err, lifecycle.ErrConflict):
		return http.StatusConflict, "Project phase changed concurrently, reload and retry"
	case errors.Is(err, lifecycle.ErrUnknownPhase):
		return http.StatusUnprocessableEntity, "Project is in an unrecognised phase"
	default:
		return http.StatusInternalServerError, "Failed to advance project"
	}
}

// @Summary      List project activity
// @Description  Returns a paginated, newest-first list of a project's activity. Requires activity:read in the organization.
// @Tags         Lifecycle
// @Security     Bearer
// @Produce      json
// @Param        org_id    path   string  true   "Organization ID"
// @Param        id        path   string  true   "Project ID"
// @Param        page      query  int     false  "Page number (default 1)"
// @Param        per_page  query  int     false  "Items per page, max 100 (default 20)"
// @Success      200  {object}  map[string]interface{}  "activity: []models.ActivityLog, pagination: {page, per_page, total}"
// @Failure      400  {object}  map[string]interface{}  "Page out of range"
// @Failure      403  {object}  map[string]interface{}  "Missing required capability"
// @Failure      404  {object}  map[string]interface{}  "Project not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/organizations/{org_id}/projects/{id}/activity [get]
// ListActivityHandler lists a project's activity log. The route is expected to sit behind
// RequireCapability(activity:read) on :org_id; the project must belong to that organization.
// GET /api/v1/organizations/:org_id/projects/:id/activity?page=1&per_page=20
func (h *Handlers) ListActivityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
		if page < 1 {
			page = 1
		}
		if perPage < 1 || perPage > 100 {
			perPage = 20
		}
		if page > math.MaxInt32/perPage {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "page out of range",
			})
			return
		}
		offset := (page - 1) * perPage

		project, err := h.projects.GetWithOrganization(ctx, c.Param("id"))
		if err != nil {
			slog.Error("failed to load project", "project_id", c.Param("id"), "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list activity",
			})
			return
		}
		if project == nil || project.OrganizationID != c.Param(middleware.OrgIDParam) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Project not found",
			})
			return
		}

		logs, total, err := h.activity.ListByProject(ctx, project.ID, perPage, offset)
		if err != nil {
			slog.Error("failed to list activity", "project_id", project.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list activity",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"activity": logs,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}
