package handlers

import (
	"context"

	"github.com/spec-kit/ticket-bridge/internal/domain"
	"github.com/spec-kit/ticket-bridge/internal/service"
	"github.com/spec-kit/ticket-bridge/internal/worker"
)

// TicketEventHandler receives normalized ticket webhooks.
type TicketEventHandler interface {
	OnTicketEvent(ctx context.Context, ev service.TicketEvent) (service.EventResult, error)
}

// ChatReplyHandler receives chat replies.
type ChatReplyHandler interface {
	OnChatReply(ctx context.Context, tenantID string, reply service.ChatReply) (service.RelayResult, error)
}

// OpenTicketSyncer backfills a company's open tickets.
type OpenTicketSyncer interface {
	SyncOpenTickets(ctx context.Context, tenantID, companyID string) (service.SyncSummary, error)
}

// TenantLookup loads tenant configuration.
type TenantLookup interface {
	GetConfig(ctx context.Context, tenantID string) (*domain.TenantConfig, error)
}

// BackgroundRunner runs work after the response has been sent.
type BackgroundRunner interface {
	Go(name string, task worker.Task) error
}
