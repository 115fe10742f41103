package routing

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dlclark/regexp2"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bridge/internal/domain"
)

const regexTimeout = 100 * time.Millisecond

// RuleSource lists a tenant's routing rules.
type RuleSource interface {
	ListRules(ctx context.Context, tenantID string) ([]domain.RoutingRule, error)
}

// Decision is the outcome of evaluating a tenant's rules against a ticket.
type Decision struct {
	Channel        string
	RuleID         string
	SkipAssignment bool
}

// Matched reports whether a rule picked the channel.
func (d Decision) Matched() bool {
	return d.RuleID != ""
}

// Resolver picks destination channels from routing rules.
type Resolver struct {
	rules  RuleSource
	logger *zap.Logger

	mu       sync.RWMutex
	compiled map[string]*regexp2.Regexp
}

// NewResolver constructs a Resolver.
func NewResolver(rules RuleSource, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{rules: rules, logger: logger, compiled: make(map[string]*regexp2.Regexp)}
}

// Resolve evaluates enabled rules in (priority, ruleId) order. The first
// matching rule with a target channel wins; defaultChannel is used otherwise.
func (r *Resolver) Resolve(ctx context.Context, tenantID string, ticket domain.Ticket, defaultChannel string) (Decision, error) {
	rules, err := r.rules.ListRules(ctx, tenantID)
	if err != nil {
		return Decision{}, fmt.Errorf("list rules for %s: %w", tenantID, err)
	}
	domain.SortRules(rules)

	decision := Decision{Channel: defaultChannel}
	for _, rule := range rules {
		if !rule.Enabled || !r.matches(rule, ticket) {
			continue
		}
		if rule.SkipAssignment {
			decision.SkipAssignment = true
		}
		if decision.RuleID == "" && strings.TrimSpace(rule.TargetChannel) != "" {
			decision.Channel = rule.TargetChannel
			decision.RuleID = rule.RuleID
		}
	}
	return decision, nil
}

// ResolveChannel returns only the channel of Resolve.
func (r *Resolver) ResolveChannel(ctx context.Context, tenantID string, ticket domain.Ticket, defaultChannel string) (string, error) {
	decision, err := r.Resolve(ctx, tenantID, ticket, defaultChannel)
	if err != nil {
		return "", err
	}
	return decision.Channel, nil
}

func (r *Resolver) matches(rule domain.RoutingRule, ticket domain.Ticket) bool {
	if !rule.HasPredicates() {
		return false
	}
	if p := strings.TrimSpace(rule.MatchContact); p != "" && !containsFold(ticket.ContactName, p) {
		return false
	}
	if p := strings.TrimSpace(rule.MatchSubject); p != "" && !containsFold(ticket.Summary, p) {
		return false
	}
	if p := strings.TrimSpace(rule.MatchSubjectRegex); p != "" {
		re, err := r.compile(p)
		if err != nil {
			r.logger.Warn("routing rule regex does not compile",
				zap.String("rule_id", rule.RuleID),
				zap.String("pattern", p),
				zap.Error(err),
			)
			return false
		}
		ok, err := re.MatchString(ticket.Summary)
		if err != nil {
			r.logger.Warn("routing rule regex failed",
				zap.String("rule_id", rule.RuleID),
				zap.Error(err),
			)
			return false
		}
		if !ok {
			return false
		}
	}
	return true
}

func (r *Resolver) compile(pattern string) (*regexp2.Regexp, error) {
	r.mu.RLock()
	re, ok := r.compiled[pattern]
	r.mu.RUnlock()
	if ok {
		return re, nil
	}

	re, err := regexp2.Compile(pattern, regexp2.IgnoreCase)
	if err != nil {
		return nil, err
	}
	re.MatchTimeout = regexTimeout

	r.mu.Lock()
	r.compiled[pattern] = re
	r.mu.Unlock()
	return re, nil
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
