// Package ratelimit implements fixed-window request limiting keyed by client identity and
// route family.
//
// Each request is matched against a table of route prefixes. The longest matching
// prefix selects the window length and request budget; routes that match no prefix
// are not limited. Counters live in a Store, either in process memory or in Redis
// when several instances must share one budget.
package ratelimit

import (
	"sort"
	"strings"
	"time"

	"github.com/atlvs/lifecycle-gate/internal/config"
)

// Rule is the budget for one route family
type Rule struct {
	Prefix      string
	Window      time.Duration
	MaxRequests int
}

// RuleSet matches request paths against rules by longest prefix
type RuleSet struct {
	rules []Rule
}

// NewRuleSet builds a rule set. Rules are copied and ordered longest prefix first.
func NewRuleSet(rules []Rule) *RuleSet {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Prefix) > len(sorted[j].Prefix)
	})
	return &RuleSet{rules: sorted}
}

// Match returns the rule with the longest prefix covering path. A prefix
// covers a path when they are equal or the path continues past the prefix at
// a segment boundary, so /api/v1/projects covers /api/v1/projects/42 but not
// /api/v1/projectsx.
func (rs *RuleSet) Match(path string) (Rule, bool) {
	for _, r := range rs.rules {
		if prefixCovers(r.Prefix, path) {
			return r, true
		}
	}
	return Rule{}, false
}

// Rules returns the rules in match order
func (rs *RuleSet) Rules() []Rule {
	out := make([]Rule, len(rs.rules))
	copy(out, rs.rules)
	return out
}

func prefixCovers(prefix, path string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	if len(path) == len(prefix) || strings.HasSuffix(prefix, "/") {
		return true
	}
	return path[len(prefix)] == '/'
}

// RulesFromConfig converts the configured route table
func RulesFromConfig(routes []config.RouteLimitConfig) []Rule {
	rules := make([]Rule, 0, len(routes))
	for _, r := range routes {
		rules = append(rules, Rule{Prefix: r.Prefix, Window: r.Window, MaxRequests: r.MaxRequests})
	}
	return rules
}

// DefaultRules returns the built-in route table
func DefaultRules() []Rule {
	return RulesFromConfig(config.DefaultRouteLimits())
}
