package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/atlvs/lifecycle-gate/internal/auth"
)

// Context keys set by AuthMiddleware. ClaimsKey may already be set by
// RateLimitMiddleware for the same Authorization header.
const (
	UserIDKey = "user_id"
	ClaimsKey = "claims"
)

// TokenVerifier validates bearer tokens
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// AuthMiddleware requires a bearer token issued by the hosted auth provider and
// stores the verified user ID under UserIDKey.
func AuthMiddleware(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing authorization header",
			})
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header must start with 'Bearer '",
			})
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization token is empty",
			})
			return
		}

		claims := verifiedClaims(c)
		if claims == nil {
			var err error
			claims, err = verifier.Verify(token)
			if err != nil {
				slog.Debug("token rejected", "error", err, "request_id", c.GetString(RequestIDKey))
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "Invalid or expired token",
				})
				return
			}
		}

		c.Set(UserIDKey, claims.UserID())
		c.Set(ClaimsKey, claims)

		c.Next()
	}
}

// verifiedClaims returns the claims an earlier middleware verified, if any
func verifiedClaims(c *gin.Context) *auth.Claims {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*auth.Claims)
	return claims
}
