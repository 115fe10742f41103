package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bridge/internal/domain"
	"github.com/spec-kit/ticket-bridge/internal/events"
	"github.com/spec-kit/ticket-bridge/internal/worker"
)

// AssignmentNote is logged on a ticket once an automatic assignment sticks.
const AssignmentNote = "Assigned / Selected Resources. / "

// DelayedScheduler runs a task once after a delay.
type DelayedScheduler interface {
	After(name string, delay time.Duration, task worker.Task) (*worker.Handle, error)
}

// AssignmentService assigns unowned tickets and later confirms the assignment held.
type AssignmentService struct {
	tickets    TicketSystem
	scheduler  DelayedScheduler
	dispatcher events.Dispatcher
	logger     *zap.Logger
	delay      time.Duration
	now        func() time.Time
}

// AssignmentDependencies bundles collaborators.
type AssignmentDependencies struct {
	Tickets      TicketSystem
	Scheduler    DelayedScheduler
	Dispatcher   events.Dispatcher
	Logger       *zap.Logger
	RecheckDelay time.Duration
	Now          func() time.Time
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	s := &AssignmentService{
		tickets:    deps.Tickets,
		scheduler:  deps.Scheduler,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		delay:      deps.RecheckDelay,
		now:        deps.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// AssignAndRecheck assigns the ticket to the tenant's configured member and
// schedules the deferred re-check. The returned handle cancels the re-check.
func (s *AssignmentService) AssignAndRecheck(ctx context.Context, tenant *domain.TenantConfig, ticketID string) (*worker.Handle, error) {
	if !tenant.AutoAssigns() {
		return nil, nil
	}
	if err := s.tickets.AssignTicket(ctx, tenant, ticketID, tenant.AssigneeMemberID); err != nil {
		return nil, fmt.Errorf("assign ticket %s: %w", ticketID, err)
	}
	s.logger.Info("ticket assigned",
		zap.String("tenant_id", tenant.TenantID),
		zap.String("ticket_id", ticketID),
		zap.String("assignee", tenant.AssigneeIdentifier),
	)
	s.publish(ctx, events.EventTicketAssigned, tenant.TenantID, ticketID)

	// the re-check outlives the request and must not share its cancellation
	snapshot := *tenant
	name := fmt.Sprintf("assignment-recheck:%s:%s", tenant.TenantID, ticketID)
	handle, err := s.scheduler.After(name, s.delay, func(ctx context.Context) error {
		_, err := s.Recheck(ctx, &snapshot, ticketID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("schedule assignment re-check: %w", err)
	}
	return handle, nil
}

// Recheck logs the assignment time entry if the ticket is still owned by the
// configured assignee. It reports whether the entry was written.
func (s *AssignmentService) Recheck(ctx context.Context, tenant *domain.TenantConfig, ticketID string) (bool, error) {
	ticket, err := s.tickets.FetchTicket(ctx, tenant, ticketID)
	if err != nil {
		return false, fmt.Errorf("re-fetch ticket %s: %w", ticketID, err)
	}
	if !strings.EqualFold(ticket.OwnerIdentifier, tenant.AssigneeIdentifier) {
		s.logger.Info("assignment did not hold; skipping time entry",
			zap.String("tenant_id", tenant.TenantID),
			zap.String("ticket_id", ticketID),
			zap.String("owner", ticket.OwnerIdentifier),
		)
		return false, nil
	}

	_, err = s.tickets.CreateTimeEntry(ctx, tenant, domain.TimeEntryDraft{
		TicketID:         ticketID,
		Notes:            AssignmentNote,
		ActualHours:      0,
		InternalAnalysis: true,
		TimeStart:        s.now(),
	})
	if err != nil {
		return false, fmt.Errorf("log assignment on ticket %s: %w", ticketID, err)
	}
	s.publish(ctx, events.EventAssignmentConfirmed, tenant.TenantID, ticketID)
	return true, nil
}

func (s *AssignmentService) publish(ctx context.Context, eventType events.EventType, tenantID, ticketID string) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.New(eventType, tenantID, ticketID, nil))
}
