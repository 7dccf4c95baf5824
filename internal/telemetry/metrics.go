// Package telemetry provides logging setup and Prometheus metrics for the lifecycle gate service.
//
// # Prometheus Metrics Endpoint
//
// Collectors are registered against the default registry and exposed on the
// side-channel HTTP server started by cmd/server:
//
//	GET http://<host>:<ATLVS_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// The endpoint is not served by the Gin router, so rate limiting never applies to scrapes.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template)
//   - Rate limiter rejections and store failures
//   - Project phase transitions by outcome
//   - Permission parse anomalies
//   - Database connection pool gauge (polled every 30 s)
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics. The path label holds the Gin route template
// (e.g. /api/v1/projects/:id/advance), never the raw URL.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)
)

// Rate limiter metrics.
//
// RateLimitRejectionsTotal is labelled by the matched rule prefix (e.g. /api/v1/auth),
// which is bounded by the configured rule table.
//
// Example PromQL:
//   - Rejections per rule:  sum by (route) (rate(rate_limit_rejections_total[5m]))
//
// RateLimitStoreErrorsTotal counts counter-store failures. The limiter fails open,
// so a non-zero rate here means limits are not being enforced.
var (
	RateLimitRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_rejections_total",
			Help: "Total number of requests rejected by the fixed-window rate limiter, by rule prefix.",
		},
		[]string{"route"},
	)

	RateLimitStoreErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_store_errors_total",
			Help: "Total number of rate limit counter store failures, by backend.",
		},
		[]string{"backend"},
	)
)

// PhaseTransitionsTotal counts advance attempts with labels {from, to, outcome}.
// outcome is one of: advanced, forbidden, terminal, conflict, not_found, unknown_phase, error.
// from/to are phase names from the static table (or empty), so cardinality is fixed.
var PhaseTransitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "project_phase_transitions_total",
		Help: "Total number of project phase advance attempts, by source phase, target phase, and outcome.",
	},
	[]string{"from", "to", "outcome"},
)

// PermissionParseFailuresTotal counts role permission payloads that could not be decoded.
// Each failure is treated as an empty permission set, so any increase should be investigated.
var PermissionParseFailuresTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "permission_parse_failures_total",
		Help: "Total number of role permission sets that failed to parse and were treated as empty.",
	},
)

// PermissionUnknownTagsTotal counts resolved role permission sets carrying tags the
// service never checks. Such tags grant nothing; a rise usually means a typo in role data.
var PermissionUnknownTagsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "permission_unknown_tags_total",
		Help: "Total number of resolved role permission sets containing unrecognised capability tags.",
	},
)

// DBOpenConnections tracks open connections in the sql.DB pool, sampled by StartDBStatsCollector.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector samples pool statistics every 30 seconds. The goroutine exits
// once the database stops answering pings, which happens after shutdown closes the pool.
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
