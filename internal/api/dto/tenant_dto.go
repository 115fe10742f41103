package dto

import "github.com/spec-kit/ticket-bridge/internal/domain"

const redacted = "********"

// TenantConfigResponse is a tenant configuration with its secrets redacted.
type TenantConfigResponse struct {
	domain.TenantConfig
}

// NewTenantConfigResponse copies cfg and masks credentials.
func NewTenantConfigResponse(cfg *domain.TenantConfig) TenantConfigResponse {
	out := *cfg
	out.TrackedCompanyIDs = append([]string(nil), cfg.TrackedCompanyIDs...)
	for _, secret := range []*string{&out.SlackBotToken, &out.SlackSigningSecret, &out.ConnectwisePrivateKey} {
		if *secret != "" {
			*secret = redacted
		}
	}
	return TenantConfigResponse{TenantConfig: out}
}

// IsRedacted reports whether v is the placeholder sent in place of a secret.
func IsRedacted(v string) bool {
	return v == redacted
}
