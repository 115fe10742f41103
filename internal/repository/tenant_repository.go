package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/spec-kit/ticket-bridge/internal/domain"
	"github.com/spec-kit/ticket-bridge/internal/syncstate"
)

const (
	configSortKey  = "CONFIG"
	ruleSortPrefix = "RULE#"

	listTrackedCompanies = "tracked_companies"
)

// TenantRepository stores tenant configuration and routing rules.
type TenantRepository interface {
	GetConfig(ctx context.Context, tenantID string) (*domain.TenantConfig, error)
	SaveConfig(ctx context.Context, cfg *domain.TenantConfig) error
	ListRules(ctx context.Context, tenantID string) ([]domain.RoutingRule, error)
	// SaveRule upserts by rule id and assigns a new id when empty.
	SaveRule(ctx context.Context, rule *domain.RoutingRule) error
	// DeleteRule removes every stored copy of the rule id; false means none existed.
	DeleteRule(ctx context.Context, tenantID, ruleID string) (bool, error)
}

type tenantRepository struct {
	store syncstate.Store
}

// NewTenantRepository constructs repository.
func NewTenantRepository(store syncstate.Store) TenantRepository {
	return &tenantRepository{store: store}
}

func configKey(tenantID string) syncstate.Key {
	return syncstate.Key{Partition: tenantID, Sort: configSortKey}
}

func ruleKey(rule *domain.RoutingRule) syncstate.Key {
	return syncstate.Key{
		Partition: rule.TenantID,
		Sort:      fmt.Sprintf("%s%04d#%s", ruleSortPrefix, rule.Priority, rule.RuleID),
	}
}

func (r *tenantRepository) GetConfig(ctx context.Context, tenantID string) (*domain.TenantConfig, error) {
	item, ok, err := r.store.Get(ctx, configKey(tenantID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}

	memberID, _ := strconv.Atoi(item.Field("assignee_member_id"))
	return &domain.TenantConfig{
		TenantID:              tenantID,
		DisplayName:           item.Field("display_name"),
		SlackTeamID:           item.Field("slack_team_id"),
		SlackBotToken:         item.Field("slack_bot_token"),
		SlackBotUserID:        item.Field("slack_bot_user_id"),
		SlackSigningSecret:    item.Field("slack_signing_secret"),
		DefaultChannelID:      item.Field("default_channel_id"),
		ConnectwiseSite:       item.Field("cw_site"),
		ConnectwiseCompanyID:  item.Field("cw_company_id"),
		ConnectwiseClientID:   item.Field("cw_client_id"),
		ConnectwisePublicKey:  item.Field("cw_public_key"),
		ConnectwisePrivateKey: item.Field("cw_private_key"),
		TrackedCompanyIDs:     append([]string(nil), item.List(listTrackedCompanies)...),
		AssigneeMemberID:      memberID,
		AssigneeIdentifier:    item.Field("assignee_identifier"),
		ReplyMode:             domain.ReplyMode(item.Field("reply_mode")),
	}, nil
}

func (r *tenantRepository) SaveConfig(ctx context.Context, cfg *domain.TenantConfig) error {
	if strings.TrimSpace(cfg.TenantID) == "" {
		return fmt.Errorf("tenant id is required")
	}
	fields := map[string]string{
		"display_name":         cfg.DisplayName,
		"slack_team_id":        cfg.SlackTeamID,
		"slack_bot_token":      cfg.SlackBotToken,
		"slack_bot_user_id":    cfg.SlackBotUserID,
		"slack_signing_secret": cfg.SlackSigningSecret,
		"default_channel_id":   cfg.DefaultChannelID,
		"cw_site":              cfg.ConnectwiseSite,
		"cw_company_id":        cfg.ConnectwiseCompanyID,
		"cw_client_id":         cfg.ConnectwiseClientID,
		"cw_public_key":        cfg.ConnectwisePublicKey,
		"cw_private_key":       cfg.ConnectwisePrivateKey,
		"assignee_identifier":  cfg.AssigneeIdentifier,
		"reply_mode":           string(cfg.ReplyMode),
	}
	if cfg.AssigneeMemberID > 0 {
		fields["assignee_member_id"] = strconv.Itoa(cfg.AssigneeMemberID)
	}
	for k, v := range fields {
		if v == "" {
			delete(fields, k)
		}
	}

	return r.store.Put(ctx, syncstate.Item{
		Key:    configKey(cfg.TenantID),
		Fields: fields,
		Lists:  map[string][]string{listTrackedCompanies: cfg.TrackedCompanyIDs},
	})
}

func (r *tenantRepository) ListRules(ctx context.Context, tenantID string) ([]domain.RoutingRule, error) {
	items, err := r.store.Query(ctx, tenantID, ruleSortPrefix)
	if err != nil {
		return nil, err
	}
	rules := make([]domain.RoutingRule, 0, len(items))
	for _, item := range items {
		priority, _ := strconv.Atoi(item.Field("priority"))
		enabled, _ := strconv.ParseBool(item.Field("enabled"))
		skip, _ := strconv.ParseBool(item.Field("skip_assignment"))
		rules = append(rules, domain.RoutingRule{
			RuleID:            item.Field("rule_id"),
			TenantID:          tenantID,
			Priority:          priority,
			Enabled:           enabled,
			MatchContact:      item.Field("match_contact"),
			MatchSubject:      item.Field("match_subject"),
			MatchSubjectRegex: item.Field("match_subject_regex"),
			TargetChannel:     item.Field("target_channel"),
			SkipAssignment:    skip,
		})
	}
	domain.SortRules(rules)
	return rules, nil
}

func (r *tenantRepository) SaveRule(ctx context.Context, rule *domain.RoutingRule) error {
	if strings.TrimSpace(rule.TenantID) == "" {
		return fmt.Errorf("tenant id is required")
	}
	if rule.RuleID == "" {
		rule.RuleID = uuid.NewString()
	}
	if _, err := r.DeleteRule(ctx, rule.TenantID, rule.RuleID); err != nil {
		return err
	}

	return r.store.Put(ctx, syncstate.Item{
		Key: ruleKey(rule),
		Fields: map[string]string{
			"rule_id":             rule.RuleID,
			"priority":            strconv.Itoa(rule.Priority),
			"enabled":             strconv.FormatBool(rule.Enabled),
			"match_contact":       rule.MatchContact,
			"match_subject":       rule.MatchSubject,
			"match_subject_regex": rule.MatchSubjectRegex,
			"target_channel":      rule.TargetChannel,
			"skip_assignment":     strconv.FormatBool(rule.SkipAssignment),
		},
	})
}

func (r *tenantRepository) DeleteRule(ctx context.Context, tenantID, ruleID string) (bool, error) {
	items, err := r.store.Query(ctx, tenantID, ruleSortPrefix)
	if err != nil {
		return false, err
	}
	deleted := false
	for _, item := range items {
		if item.Field("rule_id") != ruleID {
			continue
		}
		if err := r.store.Delete(ctx, item.Key); err != nil {
			return deleted, err
		}
		deleted = true
	}
	return deleted, nil
}
