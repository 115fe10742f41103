package domain

import (
	"sort"
	"strings"
)

// RoutingRule maps tickets matching its predicates to a chat channel.
type RoutingRule struct {
	RuleID            string `json:"ruleId" yaml:"ruleId"`
	TenantID          string `json:"tenantId" yaml:"-"`
	Priority          int    `json:"priority" yaml:"priority"`
	Enabled           bool   `json:"enabled" yaml:"enabled"`
	MatchContact      string `json:"matchContact,omitempty" yaml:"matchContact,omitempty"`
	MatchSubject      string `json:"matchSubject,omitempty" yaml:"matchSubject,omitempty"`
	MatchSubjectRegex string `json:"matchSubjectRegex,omitempty" yaml:"matchSubjectRegex,omitempty"`
	TargetChannel     string `json:"targetChannelId,omitempty" yaml:"targetChannelId,omitempty"`
	SkipAssignment    bool   `json:"skipAssignment,omitempty" yaml:"skipAssignment,omitempty"`
}

// HasPredicates reports whether at least one match predicate is non-blank.
// A rule without predicates never matches.
func (r RoutingRule) HasPredicates() bool {
	return strings.TrimSpace(r.MatchContact) != "" ||
		strings.TrimSpace(r.MatchSubject) != "" ||
		strings.TrimSpace(r.MatchSubjectRegex) != ""
}

// SortRules orders rules by priority, then rule id.
func SortRules(rules []RoutingRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].RuleID < rules[j].RuleID
	})
}
