// Package middleware (rbac.go) implements capability checks against the caller's role in
// the organization named by the route.
//
// Capabilities are resolved from the database on every request rather than carried in
// the token, so a role change applies on the caller's next request.
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/atlvs/lifecycle-gate/internal/auth"
)

// CapabilityChecker answers capability questions for a user in an organization
type CapabilityChecker interface {
	HasCapability(ctx context.Context, userID, orgID string, capability auth.Capability) (bool, error)
}

// OrgIDParam is the route parameter RequireCapability reads the organization from
const OrgIDParam = "org_id"

// RequireCapability aborts with 403 unless the authenticated user holds
// capability in the organization given by the :org_id route parameter.
func RequireCapability(checker CapabilityChecker, capability auth.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(UserIDKey)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
			})
			return
		}

		orgID := c.Param(OrgIDParam)
		if orgID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "Organization ID is required",
			})
			return
		}

		ok, err := checker.HasCapability(c.Request.Context(), userID, orgID, capability)
		if err != nil {
			slog.Error("capability check failed",
				"user_id", userID,
				"organization_id", orgID,
				"capability", string(capability),
				"error", err,
			)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to check permissions",
			})
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "Missing required capability",
				"details": "Required capability: " + string(capability),
			})
			return
		}

		c.Next()
	}
}
