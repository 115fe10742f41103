package service

import (
	"context"
	"strings"

	"github.com/dlclark/regexp2"

	"github.com/spec-kit/ticket-bridge/internal/domain"
	"github.com/spec-kit/ticket-bridge/internal/repository"
	apperrors "github.com/spec-kit/ticket-bridge/pkg/util/errorutil"
)

// TenantService backs the admin API for tenant configuration and routing rules.
type TenantService struct {
	tenants repository.TenantRepository
}

// NewTenantService constructs the service.
func NewTenantService(tenants repository.TenantRepository) *TenantService {
	return &TenantService{tenants: tenants}
}

// GetConfig returns the tenant's configuration.
func (s *TenantService) GetConfig(ctx context.Context, tenantID string) (*domain.TenantConfig, error) {
	cfg, err := s.tenants.GetConfig(ctx, tenantID)
	if repository.IsNotFound(err) {
		return nil, apperrors.NewNotFound("tenant", map[string]any{"tenant_id": tenantID})
	}
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return cfg, nil
}

// PutConfig replaces the tenant's configuration. The id always comes from the path.
// Secrets left empty keep their stored values.
func (s *TenantService) PutConfig(ctx context.Context, tenantID string, cfg *domain.TenantConfig) (*domain.TenantConfig, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, apperrors.NewValidationError("tenant id is required", nil)
	}
	if cfg.TenantID != "" && cfg.TenantID != tenantID {
		return nil, apperrors.NewValidationError("tenant id cannot change", map[string]any{"tenant_id": tenantID})
	}
	switch cfg.ReplyMode {
	case "", domain.ReplyModeTimeEntry, domain.ReplyModeNote:
	default:
		return nil, apperrors.NewValidationError("unsupported reply mode", map[string]any{"reply_mode": cfg.ReplyMode})
	}
	cfg.TenantID = tenantID

	current, err := s.tenants.GetConfig(ctx, tenantID)
	switch {
	case err == nil:
		keepSecrets(cfg, current)
	case !repository.IsNotFound(err):
		return nil, apperrors.MapError(err)
	}

	if err := s.tenants.SaveConfig(ctx, cfg); err != nil {
		return nil, apperrors.MapError(err)
	}
	return cfg, nil
}

// ListRules returns the tenant's rules in evaluation order.
func (s *TenantService) ListRules(ctx context.Context, tenantID string) ([]domain.RoutingRule, error) {
	rules, err := s.tenants.ListRules(ctx, tenantID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return rules, nil
}

// SaveRule validates and upserts a rule.
func (s *TenantService) SaveRule(ctx context.Context, tenantID string, rule *domain.RoutingRule) (*domain.RoutingRule, error) {
	rule.TenantID = tenantID
	if err := validateRule(rule); err != nil {
		return nil, err
	}
	if err := s.tenants.SaveRule(ctx, rule); err != nil {
		return nil, apperrors.MapError(err)
	}
	return rule, nil
}

// DeleteRule removes a rule.
func (s *TenantService) DeleteRule(ctx context.Context, tenantID, ruleID string) error {
	deleted, err := s.tenants.DeleteRule(ctx, tenantID, ruleID)
	if err != nil {
		return apperrors.MapError(err)
	}
	if !deleted {
		return apperrors.NewNotFound("rule", map[string]any{"rule_id": ruleID})
	}
	return nil
}

func keepSecrets(next, current *domain.TenantConfig) {
	keep := func(dst *string, stored string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = stored
		}
	}
	keep(&next.SlackBotToken, current.SlackBotToken)
	keep(&next.SlackSigningSecret, current.SlackSigningSecret)
	keep(&next.ConnectwisePrivateKey, current.ConnectwisePrivateKey)
}

func validateRule(rule *domain.RoutingRule) error {
	details := map[string]any{}
	if rule.Priority < 0 || rule.Priority > 9999 {
		details["priority"] = "must be between 0 and 9999"
	}
	if strings.ContainsAny(rule.RuleID, "#/") {
		details["ruleId"] = "must not contain '#' or '/'"
	}
	if !rule.HasPredicates() {
		details["predicates"] = "at least one match predicate is required"
	}
	if strings.TrimSpace(rule.TargetChannel) == "" && !rule.SkipAssignment {
		details["targetChannelId"] = "required unless the rule only skips assignment"
	}
	if p := strings.TrimSpace(rule.MatchSubjectRegex); p != "" {
		if _, err := regexp2.Compile(p, regexp2.IgnoreCase); err != nil {
			details["matchSubjectRegex"] = err.Error()
		}
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid routing rule", details)
	}
	return nil
}
