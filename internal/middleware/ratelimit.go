// ratelimit.go adapts ratelimit.Limiter to Gin. The limiter decides and builds the
// rejection; this layer only copies headers and body onto the response.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/atlvs/lifecycle-gate/internal/auth"
	"github.com/atlvs/lifecycle-gate/internal/ratelimit"
)

// RateLimitMiddleware counts each request against the rule covering its URL path.
//
// A bearer token is counted under its subject only once verifier accepts it;
// the verified claims are left under ClaimsKey so AuthMiddleware does not check
// the signature twice. Missing, forged and expired tokens fall back to Gin's
// proxy-aware ClientIP. A nil verifier counts every request by address.
func RateLimitMiddleware(limiter *ratelimit.Limiter, verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := ratelimit.WithClientIP(c.Request.Context(), c.ClientIP())
		if claims := verifyBearer(c, verifier); claims != nil {
			c.Set(ClaimsKey, claims)
			ctx = ratelimit.WithVerifiedUser(ctx, claims.UserID())
		}
		c.Request = c.Request.WithContext(ctx)

		decision, rejection := limiter.CheckRateLimit(c.Request, c.Request.URL.Path)
		if rejection != nil {
			rejection.WriteHeaders(c.Writer.Header())
			c.AbortWithStatusJSON(rejection.Status, gin.H(rejection.Body()))
			return
		}
		if decision != nil {
			decision.WriteHeaders(c.Writer.Header())
		}

		c.Next()
	}
}

func verifyBearer(c *gin.Context, verifier TokenVerifier) *auth.Claims {
	if verifier == nil {
		return nil
	}
	authHeader := c.GetHeader("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return nil
	}
	claims, err := verifier.Verify(token)
	if err != nil || claims.UserID() == "" {
		return nil
	}
	return claims
}
