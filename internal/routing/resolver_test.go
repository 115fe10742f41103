package routing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/ticket-bridge/internal/domain"
)

type staticRules []domain.RoutingRule

func (s staticRules) ListRules(context.Context, string) ([]domain.RoutingRule, error) {
	out := make([]domain.RoutingRule, len(s))
	copy(out, s)
	return out, nil
}

type failingRules struct{}

func (failingRules) ListRules(context.Context, string) ([]domain.RoutingRule, error) {
	return nil, errors.New("store down")
}

func TestResolveFirstMatchByPriority(t *testing.T) {
	rules := staticRules{
		{RuleID: "catch-billing", Priority: 20, Enabled: true, MatchSubject: "billing", TargetChannel: "C-GENERAL-BILLING"},
		{RuleID: "jane-billing", Priority: 10, Enabled: true, MatchSubject: "billing", MatchContact: "jane", TargetChannel: "C-JANE"},
	}
	resolver := NewResolver(rules, zaptest.NewLogger(t))
	ticket := domain.Ticket{Summary: "Billing question", ContactName: "Jane Doe"}

	decision, err := resolver.Resolve(context.Background(), "T1", ticket, "C-DEFAULT")
	require.NoError(t, err)
	assert.Equal(t, "C-JANE", decision.Channel)
	assert.Equal(t, "jane-billing", decision.RuleID)

	channel, err := resolver.ResolveChannel(context.Background(), "T1", domain.Ticket{Summary: "BILLING", ContactName: "Bob"}, "C-DEFAULT")
	require.NoError(t, err)
	assert.Equal(t, "C-GENERAL-BILLING", channel)
}

func TestResolveFallsBackToDefault(t *testing.T) {
	rules := staticRules{
		{RuleID: "disabled", Priority: 1, Enabled: false, MatchSubject: "vpn", TargetChannel: "C-OFF"},
		{RuleID: "no-predicates", Priority: 2, Enabled: true, TargetChannel: "C-ALL"},
		{RuleID: "bad-regex", Priority: 3, Enabled: true, MatchSubjectRegex: "([unclosed", TargetChannel: "C-BAD"},
	}
	resolver := NewResolver(rules, zaptest.NewLogger(t))

	decision, err := resolver.Resolve(context.Background(), "T1", domain.Ticket{Summary: "VPN down"}, "C-DEFAULT")
	require.NoError(t, err)
	assert.Equal(t, "C-DEFAULT", decision.Channel)
	assert.False(t, decision.Matched())
}

func TestResolveRegexIsCaseInsensitiveSearch(t *testing.T) {
	rules := staticRules{
		{RuleID: "net", Priority: 1, Enabled: true, MatchSubjectRegex: `vpn|fire\s*wall`, TargetChannel: "C-NET"},
	}
	resolver := NewResolver(rules, zaptest.NewLogger(t))

	channel, err := resolver.ResolveChannel(context.Background(), "T1", domain.Ticket{Summary: "Office VPN down"}, "C-DEFAULT")
	require.NoError(t, err)
	assert.Equal(t, "C-NET", channel)

	channel, err = resolver.ResolveChannel(context.Background(), "T1", domain.Ticket{Summary: "printer jam"}, "C-DEFAULT")
	require.NoError(t, err)
	assert.Equal(t, "C-DEFAULT", channel)
}

func TestResolveCollectsSkipAssignment(t *testing.T) {
	rules := staticRules{
		{RuleID: "route", Priority: 1, Enabled: true, MatchSubject: "backup", TargetChannel: "C-OPS"},
		{RuleID: "noise", Priority: 2, Enabled: true, MatchSubject: "backup failed", SkipAssignment: true},
	}
	resolver := NewResolver(rules, zaptest.NewLogger(t))

	decision, err := resolver.Resolve(context.Background(), "T1", domain.Ticket{Summary: "Nightly backup failed"}, "C-DEFAULT")
	require.NoError(t, err)
	assert.Equal(t, "C-OPS", decision.Channel)
	assert.True(t, decision.SkipAssignment)
}

func TestResolvePropagatesSourceErrors(t *testing.T) {
	resolver := NewResolver(failingRules{}, zaptest.NewLogger(t))
	_, err := resolver.Resolve(context.Background(), "T1", domain.Ticket{}, "C-DEFAULT")
	require.Error(t, err)
}
