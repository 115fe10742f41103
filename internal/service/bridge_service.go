package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/spec-kit/ticket-bridge/internal/domain"
	"github.com/spec-kit/ticket-bridge/internal/events"
	"github.com/spec-kit/ticket-bridge/internal/repository"
	"github.com/spec-kit/ticket-bridge/internal/routing"
)

// ErrTenantNotFound is returned when a tenant has no configuration.
var ErrTenantNotFound = errors.New("tenant not configured")

// EventOutcome describes how a ticket event was handled.
type EventOutcome string

const (
	EventProcessed        EventOutcome = "processed"
	EventIgnored          EventOutcome = "ignored"
	EventIgnoredUntracked EventOutcome = "ignored_untracked"
	EventRejected         EventOutcome = "rejected"
)

// TicketEvent is a normalized ticket-system webhook.
type TicketEvent struct {
	TenantID  string
	TicketID  string
	Action    domain.TicketAction
	CompanyID string
}

// EventResult is the outcome of OnTicketEvent.
type EventResult struct {
	Outcome  EventOutcome
	Reason   string
	Thread   ThreadResult
	Mirrored []PostResult
	Assigned bool
}

// SyncSummary reports an open-ticket backfill.
type SyncSummary struct {
	Tickets   int `json:"tickets"`
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// ChannelResolver picks the destination channel for a ticket.
type ChannelResolver interface {
	Resolve(ctx context.Context, tenantID string, ticket domain.Ticket, defaultChannel string) (routing.Decision, error)
}

// DefaultRunTimeout bounds one shared ticket run.
const DefaultRunTimeout = time.Minute

// BridgeService is the entry point for webhook deliveries from both systems.
type BridgeService struct {
	tenants     repository.TenantRepository
	tickets     TicketSystem
	resolver    ChannelResolver
	coordinator *SyncCoordinator
	assignments *AssignmentService
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	runTimeout  time.Duration

	inflight singleflight.Group
}

// BridgeDependencies bundles collaborators.
type BridgeDependencies struct {
	Tenants     repository.TenantRepository
	Tickets     TicketSystem
	Resolver    ChannelResolver
	Coordinator *SyncCoordinator
	Assignments *AssignmentService
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	// RunTimeout bounds a ticket run shared by concurrent deliveries.
	RunTimeout time.Duration
}

// NewBridgeService constructs the service.
func NewBridgeService(deps BridgeDependencies) *BridgeService {
	s := &BridgeService{
		tenants:     deps.Tenants,
		tickets:     deps.Tickets,
		resolver:    deps.Resolver,
		coordinator: deps.Coordinator,
		assignments: deps.Assignments,
		dispatcher:  deps.Dispatcher,
		logger:      deps.Logger,
		runTimeout:  deps.RunTimeout,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.runTimeout <= 0 {
		s.runTimeout = DefaultRunTimeout
	}
	return s
}

// OnTicketEvent handles a ticket created/updated/deleted notification.
// Concurrent deliveries for the same ticket inside this process share one run;
// across processes the sync record protocol keeps the thread unique. The shared
// run is detached from the caller's cancellation and bounded by the run
// timeout; each caller stops waiting when its own ctx ends.
func (s *BridgeService) OnTicketEvent(ctx context.Context, ev TicketEvent) (EventResult, error) {
	if strings.TrimSpace(ev.TenantID) == "" || strings.TrimSpace(ev.TicketID) == "" {
		return s.drop(ctx, ev, EventRejected, "missing tenant or ticket id"), nil
	}
	switch ev.Action {
	case domain.TicketActionAdded, domain.TicketActionUpdated:
	case domain.TicketActionDeleted:
		return s.drop(ctx, ev, EventIgnored, "ticket deleted"), nil
	default:
		return s.drop(ctx, ev, EventIgnored, fmt.Sprintf("unsupported action %q", ev.Action)), nil
	}

	tenant, err := s.tenants.GetConfig(ctx, ev.TenantID)
	if repository.IsNotFound(err) {
		return s.drop(ctx, ev, EventIgnoredUntracked, "unknown tenant"), nil
	}
	if err != nil {
		return EventResult{}, fmt.Errorf("load tenant %s: %w", ev.TenantID, err)
	}
	if !tenant.Tracks(ev.CompanyID) {
		return s.drop(ctx, ev, EventIgnoredUntracked, "company not tracked"), nil
	}

	key := ev.TenantID + "/" + ev.TicketID
	ch := s.inflight.DoChan(key, func() (interface{}, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.runTimeout)
		defer cancel()
		return s.processTicket(runCtx, tenant, ev)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return EventResult{}, ctx.Err()
	case res = <-ch:
	}
	if res.Shared {
		s.logger.Debug("ticket event joined an in-flight run",
			zap.String("tenant_id", ev.TenantID),
			zap.String("ticket_id", ev.TicketID),
		)
	}
	if res.Err != nil {
		return EventResult{}, res.Err
	}
	return res.Val.(EventResult), nil
}

func (s *BridgeService) processTicket(ctx context.Context, tenant *domain.TenantConfig, ev TicketEvent) (EventResult, error) {
	ticket, err := s.tickets.FetchTicket(ctx, tenant, ev.TicketID)
	if err != nil {
		return EventResult{}, fmt.Errorf("fetch ticket %s: %w", ev.TicketID, err)
	}
	if ev.CompanyID != "" && ticket.CompanyID != "" && ticket.CompanyID != ev.CompanyID {
		return s.drop(ctx, ev, EventIgnoredUntracked, "ticket moved to another company"), nil
	}

	decision, err := s.resolver.Resolve(ctx, tenant.TenantID, *ticket, tenant.DefaultChannelID)
	if err != nil {
		return EventResult{}, fmt.Errorf("route ticket %s: %w", ev.TicketID, err)
	}
	if decision.Channel == "" {
		return s.drop(ctx, ev, EventIgnored, "no destination channel"), nil
	}

	result := EventResult{Outcome: EventProcessed}
	result.Thread, err = s.coordinator.PostNewTicket(ctx, tenant, NewTicket{
		TicketID:    ticket.ID,
		Summary:     ticket.Summary,
		ContactName: ticket.ContactName,
		Channel:     decision.Channel,
	})
	if err != nil {
		return EventResult{}, err
	}

	result.Mirrored, err = s.coordinator.UpdateTicketThread(ctx, tenant, ticket, decision.Channel)
	if err != nil {
		return result, err
	}

	if ticket.Unassigned() && !decision.SkipAssignment && tenant.AutoAssigns() && s.assignments != nil {
		if _, err := s.assignments.AssignAndRecheck(ctx, tenant, ticket.ID); err != nil {
			s.logger.Warn("automatic assignment failed",
				zap.String("tenant_id", tenant.TenantID),
				zap.String("ticket_id", ticket.ID),
				zap.Error(err),
			)
		} else {
			result.Assigned = true
		}
	}

	s.logger.Info("ticket event processed",
		zap.String("tenant_id", tenant.TenantID),
		zap.String("ticket_id", ticket.ID),
		zap.String("thread", string(result.Thread.Outcome)),
		zap.Int("mirrored", len(result.Mirrored)),
		zap.String("rule_id", decision.RuleID),
	)
	return result, nil
}

// OnChatReply relays a chat reply to the ticket owning its thread.
func (s *BridgeService) OnChatReply(ctx context.Context, tenantID string, reply ChatReply) (RelayResult, error) {
	tenant, err := s.tenants.GetConfig(ctx, tenantID)
	if repository.IsNotFound(err) {
		s.logger.Warn("chat reply for unknown tenant", zap.String("tenant_id", tenantID))
		return RelayResult{Outcome: RelayIgnored, Reason: "unknown tenant"}, nil
	}
	if err != nil {
		return RelayResult{}, fmt.Errorf("load tenant %s: %w", tenantID, err)
	}
	return s.coordinator.RelayReplyToTicket(ctx, tenant, reply)
}

// SyncOpenTickets runs the ticket flow for every open ticket of a company.
// Failures are counted and logged; the run continues.
func (s *BridgeService) SyncOpenTickets(ctx context.Context, tenantID, companyID string) (SyncSummary, error) {
	tenant, err := s.tenants.GetConfig(ctx, tenantID)
	if repository.IsNotFound(err) {
		return SyncSummary{}, ErrTenantNotFound
	}
	if err != nil {
		return SyncSummary{}, fmt.Errorf("load tenant %s: %w", tenantID, err)
	}

	open, err := s.tickets.FetchOpenTickets(ctx, tenant, companyID)
	if err != nil {
		return SyncSummary{}, fmt.Errorf("fetch open tickets: %w", err)
	}

	summary := SyncSummary{Tickets: len(open)}
	for _, t := range open {
		res, err := s.OnTicketEvent(ctx, TicketEvent{
			TenantID:  tenantID,
			TicketID:  t.ID,
			Action:    domain.TicketActionUpdated,
			CompanyID: companyID,
		})
		if err != nil {
			summary.Failed++
			s.logger.Warn("open ticket sync failed",
				zap.String("tenant_id", tenantID),
				zap.String("ticket_id", t.ID),
				zap.Error(err),
			)
			continue
		}
		if res.Outcome == EventProcessed {
			summary.Processed++
		}
	}
	return summary, nil
}

func (s *BridgeService) drop(ctx context.Context, ev TicketEvent, outcome EventOutcome, reason string) EventResult {
	s.logger.Info("ticket event dropped",
		zap.String("tenant_id", ev.TenantID),
		zap.String("ticket_id", ev.TicketID),
		zap.String("action", string(ev.Action)),
		zap.String("outcome", string(outcome)),
		zap.String("reason", reason),
	)
	if s.dispatcher != nil {
		_ = s.dispatcher.Publish(ctx, events.New(events.EventTicketEventDropped, ev.TenantID, ev.TicketID, map[string]string{
			"outcome": string(outcome),
			"reason":  reason,
		}))
	}
	return EventResult{Outcome: outcome, Reason: reason}
}
