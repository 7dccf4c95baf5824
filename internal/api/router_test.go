package api

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/atlvs/lifecycle-gate/internal/config"
)

const testSecret = "router-test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func newHealthDB(t *testing.T, pingOK bool) *sqlx.DB {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if pingOK {
		mock.ExpectPing()
	} else {
		mock.ExpectPing().WillReturnError(sql.ErrConnDone)
	}
	return sqlx.NewDb(db, "postgres")
}

func newRouterDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func routerConfig() *config.Config {
	return &config.Config{
		Auth: config.AuthConfig{JWTSecret: testSecret},
		Security: config.SecurityConfig{
			CORS: config.CORSConfig{AllowedOrigins: []string{"https://app.atlvs.test"}},
			RateLimiting: config.RateLimitingConfig{
				Enabled: true,
				Backend: "memory",
				Routes:  config.DefaultRouteLimits(),
			},
		},
	}
}

func newTestRouter(t *testing.T, cfg *config.Config) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newRouterDB(t)
	router, bg, err := NewRouter(cfg, db)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	t.Cleanup(bg.Shutdown)
	return router, mock
}

func bearer(t *testing.T, userID string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + s
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return body
}

// ---------------------------------------------------------------------------
// healthCheckHandler
// ---------------------------------------------------------------------------

func TestHealthCheckHandler_Healthy(t *testing.T) {
	db := newHealthDB(t, true)

	r := gin.New()
	r.GET("/health", healthCheckHandler(db))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if body := decode(t, w); body["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", body["status"])
	}
}

func TestHealthCheckHandler_Unhealthy(t *testing.T) {
	db := newHealthDB(t, false)

	r := gin.New()
	r.GET("/health", healthCheckHandler(db))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
	if body := decode(t, w); body["status"] != "unhealthy" {
		t.Errorf("status = %v, want unhealthy", body["status"])
	}
}

// ---------------------------------------------------------------------------
// readinessHandler
// ---------------------------------------------------------------------------

func TestReadinessHandler_MemoryBackend(t *testing.T) {
	db := newHealthDB(t, true)

	r := gin.New()
	r.GET("/ready", readinessHandler(db, nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	checks := decode(t, w)["checks"].(map[string]interface{})
	if _, ok := checks["redis"]; ok {
		t.Error("redis must not be pinged without a redis client")
	}
}

func TestReadinessHandler_DatabaseDown(t *testing.T) {
	db := newHealthDB(t, false)

	r := gin.New()
	r.GET("/ready", readinessHandler(db, nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
	if body := decode(t, w); body["ready"] != false {
		t.Errorf("ready = %v, want false", body["ready"])
	}
}

func TestReadinessHandler_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	t.Run("reachable", func(t *testing.T) {
		r := gin.New()
		r.GET("/ready", readinessHandler(newHealthDB(t, true), client))

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		checks := decode(t, w)["checks"].(map[string]interface{})
		if checks["redis"] != "healthy" {
			t.Errorf("redis = %v, want healthy", checks["redis"])
		}
	})

	t.Run("unreachable", func(t *testing.T) {
		down, err := miniredis.Run()
		if err != nil {
			t.Fatalf("miniredis.Run: %v", err)
		}
		addr := down.Addr()
		down.Close()

		downClient := redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1})
		t.Cleanup(func() { downClient.Close() })

		r := gin.New()
		r.GET("/ready", readinessHandler(newHealthDB(t, true), downClient))

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", w.Code)
		}
	})
}

// ---------------------------------------------------------------------------
// versionHandler
// ---------------------------------------------------------------------------

func TestVersionHandler(t *testing.T) {
	r := gin.New()
	r.GET("/version", versionHandler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	body := decode(t, w)
	if body["version"] != Version || body["api_version"] != "v1" {
		t.Errorf("body = %v", body)
	}
}

// ---------------------------------------------------------------------------
// CORSMiddleware
// ---------------------------------------------------------------------------

func TestCORSMiddleware(t *testing.T) {
	cfg := routerConfig()
	r := gin.New()
	r.Use(CORSMiddleware(cfg))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Origin", "https://app.atlvs.test")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.atlvs.test" {
			t.Errorf("Allow-Origin = %q", got)
		}
		if got := w.Header().Get("Access-Control-Expose-Headers"); got != corsExposedHeaders {
			t.Errorf("Expose-Headers = %q", got)
		}
		if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
			t.Errorf("Allow-Credentials = %q, want true for a listed origin", got)
		}
	})

	t.Run("other origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Origin", "https://evil.test")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Allow-Origin = %q, want empty", got)
		}
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/x", nil)
		req.Header.Set("Origin", "https://app.atlvs.test")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", w.Code)
		}
	})
}

func TestCORSMiddleware_WildcardOmitsCredentials(t *testing.T) {
	cfg := routerConfig()
	cfg.Security.CORS.AllowedOrigins = []string{"*", "https://app.atlvs.test"}
	r := gin.New()
	r.Use(CORSMiddleware(cfg))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	t.Run("unlisted origin matched by wildcard", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Origin", "https://evil.test")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("Allow-Origin = %q, want *", got)
		}
		if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "" {
			t.Errorf("Allow-Credentials = %q, want none", got)
		}
	})

	t.Run("listed origin keeps credentials", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Origin", "https://app.atlvs.test")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.atlvs.test" {
			t.Errorf("Allow-Origin = %q", got)
		}
		if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
			t.Errorf("Allow-Credentials = %q, want true", got)
		}
	})
}

func TestCORSMiddleware_NoOriginsByDefault(t *testing.T) {
	cfg := routerConfig()
	cfg.Security.CORS.AllowedOrigins = nil
	r := gin.New()
	r.Use(CORSMiddleware(cfg))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://app.atlvs.test")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q, want empty", got)
	}
}

// ---------------------------------------------------------------------------
// NewRouter
// ---------------------------------------------------------------------------

func TestNewRouter_RequiresJWTSecret(t *testing.T) {
	db, _ := newRouterDB(t)
	cfg := routerConfig()
	cfg.Auth.JWTSecret = ""

	if _, _, err := NewRouter(cfg, db); err == nil {
		t.Fatal("expected error without jwt secret")
	}
}

func TestNewRouter_InvalidRedisURL(t *testing.T) {
	db, _ := newRouterDB(t)
	cfg := routerConfig()
	cfg.Security.RateLimiting.Backend = "redis"
	cfg.Redis.URL = "not-a-redis-url"

	if _, _, err := NewRouter(cfg, db); err == nil {
		t.Fatal("expected error for invalid redis url")
	}
}

func TestNewRouter_InvalidTrustedProxy(t *testing.T) {
	db, _ := newRouterDB(t)
	cfg := routerConfig()
	cfg.Server.TrustedProxies = []string{"not-an-ip"}

	if _, _, err := NewRouter(cfg, db); err == nil {
		t.Fatal("expected error for invalid trusted proxy")
	}
}

func TestNewRouter_RequiresAuthentication(t *testing.T) {
	router, _ := newTestRouter(t, routerConfig())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/lifecycle/phases", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	// The limiter runs ahead of authentication.
	if got := w.Header().Get("X-RateLimit-Limit"); got != "100" {
		t.Errorf("X-RateLimit-Limit = %q, want 100", got)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestNewRouter_ListPhases(t *testing.T) {
	router, _ := newTestRouter(t, routerConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/lifecycle/phases", nil)
	req.Header.Set("Authorization", bearer(t, "alice"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	if phases := decode(t, w)["phases"].([]interface{}); len(phases) != 5 {
		t.Errorf("phases = %d, want 5", len(phases))
	}
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "99" {
		t.Errorf("X-RateLimit-Remaining = %q, want 99", got)
	}
}

func TestNewRouter_RateLimitRejects(t *testing.T) {
	cfg := routerConfig()
	cfg.Security.RateLimiting.Routes = []config.RouteLimitConfig{
		{Prefix: "/api/v1", Window: time.Minute, MaxRequests: 2},
	}
	router, _ := newTestRouter(t, cfg)
	token := bearer(t, "alice")

	for i := 1; i <= 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/lifecycle/phases", nil)
		req.Header.Set("Authorization", token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if i <= 2 && w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, w.Code)
		}
		if i == 3 {
			if w.Code != http.StatusTooManyRequests {
				t.Fatalf("request 3: status = %d, want 429", w.Code)
			}
			if w.Header().Get("Retry-After") == "" {
				t.Error("expected Retry-After header")
			}
		}
	}

	// Another identity has its own window.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/lifecycle/phases", nil)
	req.Header.Set("Authorization", bearer(t, "bob"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("other client: status = %d, want 200", w.Code)
	}
}

// Credentials nothing has verified cannot buy a fresh window: rotating them from
// one address still exhausts that address's budget.
func TestNewRouter_RateLimitCountsForgedCredentialsByAddress(t *testing.T) {
	cfg := routerConfig()
	cfg.Security.RateLimiting.Routes = []config.RouteLimitConfig{
		{Prefix: "/api/v1", Window: time.Minute, MaxRequests: 2},
	}
	router, _ := newTestRouter(t, cfg)

	codes := map[int]int{}
	for i := 0; i < 50; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/lifecycle/phases", nil)
		req.RemoteAddr = "198.51.100.7:40000"
		if i%2 == 0 {
			req.Header.Set("X-API-Key", fmt.Sprintf("forged%04d", i))
		} else {
			req.Header.Set("Authorization", fmt.Sprintf("Bearer garbage-%d", i))
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		codes[w.Code]++
	}

	if codes[http.StatusUnauthorized] != 2 || codes[http.StatusTooManyRequests] != 48 {
		t.Errorf("status counts = %v, want 2 unauthorized then 48 limited", codes)
	}

	// A verified caller from the same address is counted on its own.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/lifecycle/phases", nil)
	req.RemoteAddr = "198.51.100.7:40001"
	req.Header.Set("Authorization", bearer(t, "alice"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("verified caller: status = %d, want 200", w.Code)
	}
}

func TestNewRouter_RateLimitingDisabled(t *testing.T) {
	cfg := routerConfig()
	cfg.Security.RateLimiting.Enabled = false
	router, _ := newTestRouter(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/lifecycle/phases", nil)
	req.Header.Set("Authorization", bearer(t, "alice"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("X-RateLimit-Limit"); got != "" {
		t.Errorf("X-RateLimit-Limit = %q, want none", got)
	}
}

func TestNewRouter_ActivityRequiresCapability(t *testing.T) {
	router, mock := newTestRouter(t, routerConfig())
	mock.ExpectQuery("SELECT.*FROM user_organizations").
		WithArgs("bob", "org-acme").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "organization_id", "role_id", "role_name", "permissions"}).
			AddRow("bob", "org-acme", "role-member", "member", []byte(`["project:advance"]`)))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/organizations/org-acme/projects/p1/activity", nil)
	req.Header.Set("Authorization", bearer(t, "bob"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestNewRouter_RedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := routerConfig()
	cfg.Security.RateLimiting.Backend = "redis"
	cfg.Redis.URL = "redis://" + mr.Addr() + "/0"
	cfg.Redis.KeyPrefix = "ratelimit:"
	router, _ := newTestRouter(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/lifecycle/phases", nil)
	req.Header.Set("Authorization", bearer(t, "alice"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "99" {
		t.Errorf("X-RateLimit-Remaining = %q, want 99", got)
	}
	if keys := mr.Keys(); len(keys) != 1 || keys[0] != "ratelimit:user:alice|/api/v1" {
		t.Errorf("redis keys = %v, want one counter for the verified user", keys)
	}
}
