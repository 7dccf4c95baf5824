// Package middleware provides the Gin middleware of the lifecycle gate: request IDs,
// request metrics, rate limiting, token authentication and capability checks.
//
// Ordering is fixed in api/router.go:
//
//	Recovery → RequestID → Metrics → Logger → RateLimit → Auth → RequireCapability → Handler
//
// Rate limiting runs before auth so abusive clients are turned away before any
// token verification or database work.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/atlvs/lifecycle-gate/internal/telemetry"
)

// noRouteLabel is the path label for requests that matched no route
const noRouteLabel = "<no-route>"

// MetricsMiddleware records http_requests_total and http_request_duration_seconds.
// The path label is the matched route template (/api/v1/projects/:id/advance),
// never the raw URL, to keep label cardinality bounded.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = noRouteLabel
		}
		method := c.Request.Method

		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
