// Package organizations serves organization-scoped endpoints for the authenticated caller.
package organizations

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/atlvs/lifecycle-gate/internal/db/models"
	"github.com/atlvs/lifecycle-gate/internal/middleware"
)

// OrganizationReader loads organizations
type OrganizationReader interface {
	GetByID(ctx context.Context, id string) (*models.Organization, error)
}

// CapabilityResolver returns a user's capability set in an organization
type CapabilityResolver interface {
	Capabilities(ctx context.Context, userID, orgID string) ([]string, error)
}

// Handlers handles organization endpoints
type Handlers struct {
	orgs     OrganizationReader
	resolver CapabilityResolver
}

// NewHandlers creates a new Handlers instance
func NewHandlers(orgs OrganizationReader, resolver CapabilityResolver) *Handlers {
	return &Handlers{orgs: orgs, resolver: resolver}
}

// @Summary      Get my capabilities
// @Description  Returns the capability tags the authenticated user holds in the organization through their active role. Users without an active membership receive an empty list.
// @Tags         Organizations
// @Security     Bearer
// @Produce      json
// @Param        org_id  path  string  true  "Organization ID"
// @Success      200  {object}  map[string]interface{}  "organization: models.Organization, capabilities: []string"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Organization not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/organizations/{org_id}/me/permissions [get]
// MyPermissionsHandler returns the caller's resolved capabilities
// GET /api/v1/organizations/:org_id/me/permissions
func (h *Handlers) MyPermissionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		userID := c.GetString(middleware.UserIDKey)
		orgID := c.Param(middleware.OrgIDParam)

		org, err := h.orgs.GetByID(ctx, orgID)
		if err != nil {
			slog.Error("failed to load organization", "organization_id", orgID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to get organization",
			})
			return
		}
		if org == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Organization not found",
			})
			return
		}

		capabilities, err := h.resolver.Capabilities(ctx, userID, org.ID)
		if err != nil {
			slog.Error("failed to resolve capabilities", "organization_id", org.ID, "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to resolve permissions",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"organization": org,
			"capabilities": capabilities,
		})
	}
}
