package ratelimit

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/atlvs/lifecycle-gate/internal/telemetry"
)

// Decision describes an admitted, rate limited request
type Decision struct {
	Key       string
	Rule      Rule
	Count     int
	Remaining int
	ResetAt   time.Time
}

// Rejection describes a refused request. The limiter builds the full client
// response itself: status, headers and body.
type Rejection struct {
	Status     int
	Err        error
	Limit      int
	ResetAt    time.Time
	RetryAfter int // seconds
}

// Limiter applies a RuleSet against a Store
type Limiter struct {
	rules   atomic.Pointer[RuleSet]
	store   Store
	backend string
	now     func() time.Time
}

// NewLimiter creates a limiter. backend names the store in logs and metrics.
func NewLimiter(store Store, rules []Rule, backend string) *Limiter {
	l := &Limiter{store: store, backend: backend, now: time.Now}
	l.SetRules(rules)
	return l
}

// SetRules swaps the rule table. In-flight windows keep their counts; a
// changed window length applies from the next window.
func (l *Limiter) SetRules(rules []Rule) {
	l.rules.Store(NewRuleSet(rules))
}

// Rules returns the active rule table in match order
func (l *Limiter) Rules() []Rule {
	return l.rules.Load().Rules()
}

// CheckRateLimit counts r against the rule covering routePath.
//
// It returns (nil, nil) for routes with no rule and when the store fails,
// which lets the request through. Otherwise exactly one of the results is
// non-nil.
func (l *Limiter) CheckRateLimit(r *http.Request, routePath string) (*Decision, *Rejection) {
	rule, ok := l.rules.Load().Match(routePath)
	if !ok {
		return nil, nil
	}

	identity, err := ClientIdentity(r)
	if err != nil {
		return nil, &Rejection{Status: http.StatusBadRequest, Err: err}
	}

	key := identity + "|" + rule.Prefix
	now := l.now()
	count, resetAt, err := l.store.Increment(r.Context(), key, rule.Window, now)
	if err != nil {
		telemetry.RateLimitStoreErrorsTotal.WithLabelValues(l.backend).Inc()
		slog.Warn("rate limit store unavailable; allowing request",
			"backend", l.backend,
			"prefix", rule.Prefix,
			"error", err,
		)
		return nil, nil
	}

	if count > rule.MaxRequests {
		telemetry.RateLimitRejectionsTotal.WithLabelValues(rule.Prefix).Inc()
		return nil, &Rejection{
			Status:     http.StatusTooManyRequests,
			Err:        ErrRateLimited,
			Limit:      rule.MaxRequests,
			ResetAt:    resetAt,
			RetryAfter: retryAfterSeconds(resetAt.Sub(now), rule.Window),
		}
	}

	return &Decision{
		Key:       key,
		Rule:      rule,
		Count:     count,
		Remaining: rule.MaxRequests - count,
		ResetAt:   resetAt,
	}, nil
}

// ErrRateLimited is the error carried by a 429 rejection
var ErrRateLimited = errors.New("rate limit exceeded")

// retryAfterSeconds rounds up to whole seconds, bounded to [1, window]
func retryAfterSeconds(remaining, window time.Duration) int {
	secs := int(math.Ceil(remaining.Seconds()))
	maxSecs := int(math.Ceil(window.Seconds()))
	if secs > maxSecs {
		secs = maxSecs
	}
	if secs < 1 {
		secs = 1
	}
	return secs
}

// WriteHeaders sets the X-RateLimit-* headers for an admitted request
func (d *Decision) WriteHeaders(h http.Header) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Rule.MaxRequests))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}

// WriteHeaders sets the headers of the rejection response
func (rej *Rejection) WriteHeaders(h http.Header) {
	if rej.Status != http.StatusTooManyRequests {
		return
	}
	h.Set("X-RateLimit-Limit", strconv.Itoa(rej.Limit))
	h.Set("X-RateLimit-Remaining", "0")
	h.Set("X-RateLimit-Reset", strconv.FormatInt(rej.ResetAt.Unix(), 10))
	h.Set("Retry-After", strconv.Itoa(rej.RetryAfter))
}

// Body returns the JSON body of the rejection response
func (rej *Rejection) Body() map[string]interface{} {
	if rej.Status != http.StatusTooManyRequests {
		return map[string]interface{}{"error": rej.Err.Error()}
	}
	return map[string]interface{}{
		"error":       "Rate limit exceeded",
		"retry_after": rej.RetryAfter,
	}
}
