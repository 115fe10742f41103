package service

import (
	"context"

	"github.com/spec-kit/ticket-bridge/internal/domain"
)

// TicketSystem is the ticket-system side of the bridge.
type TicketSystem interface {
	FetchTicket(ctx context.Context, tenant *domain.TenantConfig, ticketID string) (*domain.Ticket, error)
	FetchOpenTickets(ctx context.Context, tenant *domain.TenantConfig, companyID string) ([]domain.Ticket, error)
	// CreateTimeEntry returns the id the ticket system assigned to the entry.
	CreateTimeEntry(ctx context.Context, tenant *domain.TenantConfig, draft domain.TimeEntryDraft) (string, error)
	// CreateNote returns the id the ticket system assigned to the note.
	CreateNote(ctx context.Context, tenant *domain.TenantConfig, draft domain.NoteDraft) (string, error)
	AssignTicket(ctx context.Context, tenant *domain.TenantConfig, ticketID string, memberID int) error
}

// ChatSystem is the chat side of the bridge. An empty threadTS posts a top-level message.
type ChatSystem interface {
	PostMessage(ctx context.Context, tenant *domain.TenantConfig, channel, text, threadTS string) (domain.ChatMessage, error)
	DeleteMessage(ctx context.Context, tenant *domain.TenantConfig, channel, ts string) error
}
