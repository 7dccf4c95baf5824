// Package api wires together all HTTP routes for the lifecycle gate service.
//
// Route grouping:
//   - /health, /ready and /version are unauthenticated and unlimited so health checks
//     never compete with client traffic for rate limit budget.
//   - Everything under /api/v1 passes the rate limiter first and then requires a
//     bearer token from the hosted auth provider. Limiting runs before
//     authentication so unauthenticated floods are still counted: the limiter
//     keys a request on its token subject only after verifying the token, and
//     on the client address otherwise.
//   - Organization-scoped routes carry :org_id so RequireCapability can resolve the
//     caller's role in that organization.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/atlvs/lifecycle-gate/internal/api/organizations"
	"github.com/atlvs/lifecycle-gate/internal/api/projects"
	"github.com/atlvs/lifecycle-gate/internal/auth"
	"github.com/atlvs/lifecycle-gate/internal/config"
	"github.com/atlvs/lifecycle-gate/internal/db/repositories"
	"github.com/atlvs/lifecycle-gate/internal/lifecycle"
	"github.com/atlvs/lifecycle-gate/internal/middleware"
	"github.com/atlvs/lifecycle-gate/internal/permissions"
	"github.com/atlvs/lifecycle-gate/internal/ratelimit"
)

// Version is reported by /version and the `version` command
const Version = "0.1.0"

// BackgroundServices holds the resources created alongside the router that must be
// released during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	// Limiter is exposed so configuration reloads can swap its rule table
	Limiter *ratelimit.Limiter

	memoryStore *ratelimit.MemoryStore
	redisClient redis.UniversalClient
}

// Shutdown stops the sweep goroutine and closes the Redis client. It should be called
// after the HTTP server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.memoryStore != nil {
		bg.memoryStore.Stop()
	}
	if bg.redisClient != nil {
		if err := bg.redisClient.Close(); err != nil {
			slog.Warn("failed to close redis client", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *sqlx.DB) (*gin.Engine, *BackgroundServices, error) {
	verifier, err := auth.NewTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize token verifier: %w", err)
	}

	bg, err := newRateLimiter(cfg)
	if err != nil {
		return nil, nil, err
	}

	router := gin.New()
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		bg.Shutdown()
		return nil, nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}

	// Initialize repositories
	orgRepo := repositories.NewOrganizationRepository(db)
	projectRepo := repositories.NewProjectRepository(db)
	activityRepo := repositories.NewActivityRepository(db)

	resolver := permissions.NewResolver(orgRepo)
	gate := lifecycle.NewGate(projectRepo, orgRepo)

	projectHandlers := projects.NewHandlers(projectRepo, orgRepo, activityRepo, gate)
	orgHandlers := organizations.NewHandlers(orgRepo, resolver)

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(CORSMiddleware(cfg))

	router.GET("/health", healthCheckHandler(db))
	router.GET("/ready", readinessHandler(db, bg.redisClient))
	router.GET("/version", versionHandler())

	apiV1 := router.Group("/api/v1")
	if cfg.Security.RateLimiting.Enabled {
		apiV1.Use(middleware.RateLimitMiddleware(bg.Limiter, verifier))
	}
	apiV1.Use(middleware.AuthMiddleware(verifier))
	{
		apiV1.GET("/lifecycle/phases", projectHandlers.ListPhasesHandler())

		apiV1.GET("/projects/:id", projectHandlers.GetProjectHandler())
		apiV1.POST("/projects/:id/advance", projectHandlers.AdvanceHandler())

		orgGroup := apiV1.Group("/organizations/:" + middleware.OrgIDParam)
		{
			orgGroup.GET("/me/permissions", orgHandlers.MyPermissionsHandler())
			orgGroup.GET("/projects/:id/activity",
				middleware.RequireCapability(resolver, auth.CapabilityActivityRead),
				projectHandlers.ListActivityHandler())
		}
	}

	return router, bg, nil
}

// newRateLimiter builds the limiter over the configured counter store
func newRateLimiter(cfg *config.Config) (*BackgroundServices, error) {
	rl := cfg.Security.RateLimiting
	rules := ratelimit.RulesFromConfig(rl.Routes)
	if len(rules) == 0 {
		rules = ratelimit.DefaultRules()
	}

	bg := &BackgroundServices{}
	var store ratelimit.Store

	switch rl.Backend {
	case "redis":
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		client := redis.NewClient(opts)
		bg.redisClient = client
		store = ratelimit.NewRedisStore(client, cfg.Redis.KeyPrefix)
	default:
		memoryStore := ratelimit.NewMemoryStore(rl.SweepInterval)
		bg.memoryStore = memoryStore
		store = memoryStore
	}

	bg.Limiter = ratelimit.NewLimiter(store, rules, rl.Backend)
	slog.Info("rate limiter initialized", "backend", rl.Backend, "enabled", rl.Enabled, "rules", len(rules))
	return bg, nil
}

// @Summary      Health check
// @Description  Returns the health status of the service. Checks database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks the database and, with the redis backend, the rate limit store.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, checks, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "ready: false, checks, error"
// @Router       /ready [get]
// readinessHandler returns the readiness status of the service. The redis ping is
// skipped when the memory store is in use.
func readinessHandler(db *sqlx.DB, redisClient redis.UniversalClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		checks := gin.H{}

		if err := db.PingContext(ctx); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		if redisClient != nil {
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err := redisClient.Ping(pingCtx).Err()
			cancel()
			if err != nil {
				checks["redis"] = "unhealthy"
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"ready":  false,
					"checks": checks,
					"error":  "rate limit store not ready",
				})
				return
			}
			checks["redis"] = "healthy"
		}

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Description  Returns the current service and API version.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware emits one structured record per request. The output format follows
// the global slog handler configured by telemetry.SetupLogger.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}

		slog.LogAttrs(
			c.Request.Context(),
			level,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", c.GetString(middleware.RequestIDKey)),
			slog.String("user_id", c.GetString(middleware.UserIDKey)),
			slog.String("user_agent", c.Request.UserAgent()),
		)
	}
}

// corsExposedHeaders lets browser clients read the rate limit state
var corsExposedHeaders = strings.Join([]string{
	"X-Request-ID",
	"X-RateLimit-Limit",
	"X-RateLimit-Remaining",
	"X-RateLimit-Reset",
	"Retry-After",
}, ", ")

// CORSMiddleware handles CORS. Only origins listed explicitly may send
// credentials; a "*" entry admits any origin without them.
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed, wildcard := false, false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if origin != "" && allowedOrigin == origin {
				allowed = true
				wildcard = false
				break
			}
			if allowedOrigin == "*" {
				allowed = true
				wildcard = true
			}
		}

		if allowed {
			if wildcard {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Access-Control-Allow-Credentials", "true")
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID")
			c.Header("Access-Control-Expose-Headers", corsExposedHeaders)
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
