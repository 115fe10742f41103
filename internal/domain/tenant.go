package domain

// ReplyMode selects what a chat reply becomes in the ticket system.
type ReplyMode string

const (
	ReplyModeTimeEntry ReplyMode = "time_entry"
	ReplyModeNote      ReplyMode = "note"
)

// TenantConfig holds per-tenant credentials and destinations.
type TenantConfig struct {
	TenantID              string    `json:"tenantId" yaml:"tenantId"`
	DisplayName           string    `json:"displayName,omitempty" yaml:"displayName,omitempty"`
	SlackTeamID           string    `json:"slackTeamId,omitempty" yaml:"slackTeamId,omitempty"`
	SlackBotToken         string    `json:"slackBotToken,omitempty" yaml:"slackBotToken,omitempty"`
	SlackBotUserID        string    `json:"slackBotUserId,omitempty" yaml:"slackBotUserId,omitempty"`
	SlackSigningSecret    string    `json:"slackSigningSecret,omitempty" yaml:"slackSigningSecret,omitempty"`
	DefaultChannelID      string    `json:"defaultChannelId,omitempty" yaml:"defaultChannelId,omitempty"`
	ConnectwiseSite       string    `json:"connectwiseSite,omitempty" yaml:"connectwiseSite,omitempty"`
	ConnectwiseCompanyID  string    `json:"connectwiseCompanyId,omitempty" yaml:"connectwiseCompanyId,omitempty"`
	ConnectwiseClientID   string    `json:"connectwiseClientId,omitempty" yaml:"connectwiseClientId,omitempty"`
	ConnectwisePublicKey  string    `json:"connectwisePublicKey,omitempty" yaml:"connectwisePublicKey,omitempty"`
	ConnectwisePrivateKey string    `json:"connectwisePrivateKey,omitempty" yaml:"connectwisePrivateKey,omitempty"`
	TrackedCompanyIDs     []string  `json:"trackedCompanyIds,omitempty" yaml:"trackedCompanyIds,omitempty"`
	AssigneeMemberID      int       `json:"assigneeMemberId,omitempty" yaml:"assigneeMemberId,omitempty"`
	AssigneeIdentifier    string    `json:"assigneeIdentifier,omitempty" yaml:"assigneeIdentifier,omitempty"`
	ReplyMode             ReplyMode `json:"replyMode,omitempty" yaml:"replyMode,omitempty"`
}

// Tracks reports whether events from companyID belong to this tenant.
// An empty tracked list accepts every company.
func (c *TenantConfig) Tracks(companyID string) bool {
	if len(c.TrackedCompanyIDs) == 0 {
		return true
	}
	for _, id := range c.TrackedCompanyIDs {
		if id == companyID {
			return true
		}
	}
	return false
}

// AutoAssigns reports whether unowned tickets should be assigned.
func (c *TenantConfig) AutoAssigns() bool {
	return c.AssigneeMemberID > 0 && c.AssigneeIdentifier != ""
}

// EffectiveReplyMode returns the reply mode, defaulting to time entries.
func (c *TenantConfig) EffectiveReplyMode() ReplyMode {
	if c.ReplyMode == ReplyModeNote {
		return ReplyModeNote
	}
	return ReplyModeTimeEntry
}
