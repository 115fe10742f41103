package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/ticket-bridge/internal/domain"
	"github.com/spec-kit/ticket-bridge/internal/events"
	"github.com/spec-kit/ticket-bridge/internal/repository"
	"github.com/spec-kit/ticket-bridge/internal/routing"
	"github.com/spec-kit/ticket-bridge/internal/syncstate"
)

type bridgeFixture struct {
	bridge    *BridgeService
	tenants   repository.TenantRepository
	chat      *fakeChat
	tickets   *fakeTickets
	scheduler *fakeScheduler
	published *eventLog
}

func newBridgeFixture(t *testing.T, tickets ...domain.Ticket) *bridgeFixture {
	t.Helper()
	ctx := context.Background()
	store := syncstate.NewMemoryStore()
	logger := zaptest.NewLogger(t)
	dispatcher, log := recordingDispatcher(t)

	f := &bridgeFixture{
		tenants:   repository.NewTenantRepository(store),
		chat:      &fakeChat{},
		tickets:   newFakeTickets(tickets...),
		scheduler: &fakeScheduler{},
		published: log,
	}
	f.tickets.ownerAfterAssign = "jdoe"

	require.NoError(t, f.tenants.SaveConfig(ctx, &domain.TenantConfig{
		TenantID:           "T1",
		DefaultChannelID:   "C-DEFAULT",
		TrackedCompanyIDs:  []string{"19300"},
		AssigneeMemberID:   148,
		AssigneeIdentifier: "jdoe",
	}))
	require.NoError(t, f.tenants.SaveRule(ctx, &domain.RoutingRule{
		RuleID: "vpn", TenantID: "T1", Priority: 10, Enabled: true,
		MatchSubjectRegex: `\bvpn\b`, TargetChannel: "C-NET",
	}))
	require.NoError(t, f.tenants.SaveRule(ctx, &domain.RoutingRule{
		RuleID: "alerts", TenantID: "T1", Priority: 20, Enabled: true,
		MatchSubject: "[alert]", SkipAssignment: true,
	}))

	coordinator := NewSyncCoordinator(CoordinatorDependencies{
		Records:    repository.NewSyncRecordRepository(store),
		Chat:       f.chat,
		Tickets:    f.tickets,
		Dispatcher: dispatcher,
		Logger:     logger,
		Now:        func() time.Time { return fixedNow },
	})
	assignments := NewAssignmentService(AssignmentDependencies{
		Tickets:      f.tickets,
		Scheduler:    f.scheduler,
		Dispatcher:   dispatcher,
		Logger:       logger,
		RecheckDelay: 5 * time.Minute,
		Now:          func() time.Time { return fixedNow },
	})
	f.bridge = NewBridgeService(BridgeDependencies{
		Tenants:     f.tenants,
		Tickets:     f.tickets,
		Resolver:    routing.NewResolver(f.tenants, logger),
		Coordinator: coordinator,
		Assignments: assignments,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})
	return f
}

func updated(ticketID, companyID string) TicketEvent {
	return TicketEvent{TenantID: "T1", TicketID: ticketID, Action: domain.TicketActionUpdated, CompanyID: companyID}
}

func TestOnTicketEventFullFlow(t *testing.T) {
	ctx := context.Background()
	f := newBridgeFixture(t, *vpnTicket(domain.DiscussionEntry{ID: "1", CreatedAt: fixedNow, Text: "checking"}))

	res, err := f.bridge.OnTicketEvent(ctx, TicketEvent{TenantID: "T1", TicketID: "1001", Action: domain.TicketActionAdded, CompanyID: "19300"})
	require.NoError(t, err)
	assert.Equal(t, EventProcessed, res.Outcome)
	assert.Equal(t, ThreadCreated, res.Thread.Outcome)
	assert.Equal(t, "C-NET", res.Thread.Channel)
	assert.Len(t, res.Mirrored, 1)
	assert.True(t, res.Assigned)
	assert.Equal(t, []string{"1001:148"}, f.tickets.assigned)

	require.Len(t, f.scheduler.delays, 1)
	assert.Equal(t, 5*time.Minute, f.scheduler.delays[0])
	require.NoError(t, f.scheduler.runAll(ctx))
	require.Len(t, f.tickets.timeEntries, 1)
	entry := f.tickets.timeEntries[0]
	assert.Equal(t, AssignmentNote, entry.Notes)
	assert.Zero(t, entry.ActualHours)
	assert.True(t, entry.InternalAnalysis)
	assert.False(t, entry.EmailContact)
	assert.Equal(t, 1, f.published.count(events.EventAssignmentConfirmed))

	// redelivery adds nothing
	res, err = f.bridge.OnTicketEvent(ctx, updated("1001", "19300"))
	require.NoError(t, err)
	assert.Equal(t, ThreadSkipped, res.Thread.Outcome)
	assert.Empty(t, res.Mirrored)
	assert.False(t, res.Assigned, "ticket is owned now")
	assert.Len(t, f.chat.topLevel(), 1)
	assert.Len(t, f.chat.replies(), 1)
}

func TestOnTicketEventDefaultChannelAndSkipAssignment(t *testing.T) {
	ctx := context.Background()
	f := newBridgeFixture(t,
		domain.Ticket{ID: "2001", Summary: "[ALERT] disk 91%", CompanyID: "19300"},
		domain.Ticket{ID: "2002", Summary: "printer jam", CompanyID: "19300"},
	)

	res, err := f.bridge.OnTicketEvent(ctx, updated("2001", "19300"))
	require.NoError(t, err)
	assert.Equal(t, "C-DEFAULT", res.Thread.Channel)
	assert.False(t, res.Assigned)

	res, err = f.bridge.OnTicketEvent(ctx, updated("2002", "19300"))
	require.NoError(t, err)
	assert.Equal(t, "C-DEFAULT", res.Thread.Channel)
	assert.True(t, res.Assigned)
	assert.Equal(t, []string{"2002:148"}, f.tickets.assigned)
}

func TestOnTicketEventDrops(t *testing.T) {
	ctx := context.Background()
	moved := *vpnTicket()
	moved.CompanyID = "55555"
	f := newBridgeFixture(t, moved)

	cases := []struct {
		name    string
		event   TicketEvent
		outcome EventOutcome
	}{
		{"missing ticket id", TicketEvent{TenantID: "T1", Action: domain.TicketActionUpdated}, EventRejected},
		{"deleted", TicketEvent{TenantID: "T1", TicketID: "1001", Action: domain.TicketActionDeleted, CompanyID: "19300"}, EventIgnored},
		{"unknown action", TicketEvent{TenantID: "T1", TicketID: "1001", Action: "merged", CompanyID: "19300"}, EventIgnored},
		{"unknown tenant", TicketEvent{TenantID: "T9", TicketID: "1001", Action: domain.TicketActionUpdated}, EventIgnoredUntracked},
		{"untracked company", updated("1001", "77777"), EventIgnoredUntracked},
		{"company changed", updated("1001", "19300"), EventIgnoredUntracked},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := f.bridge.OnTicketEvent(ctx, tc.event)
			require.NoError(t, err)
			assert.Equal(t, tc.outcome, res.Outcome)
			assert.NotEmpty(t, res.Reason)
		})
	}
	assert.Empty(t, f.chat.topLevel())
	assert.Equal(t, len(cases), f.published.count(events.EventTicketEventDropped))
	assert.Equal(t, 1, f.tickets.fetches, "only the company-change case reaches the ticket system")
}

func TestOnTicketEventNoChannel(t *testing.T) {
	ctx := context.Background()
	f := newBridgeFixture(t, domain.Ticket{ID: "3001", Summary: "misc", CompanyID: "19300"})
	cfg, err := f.tenants.GetConfig(ctx, "T1")
	require.NoError(t, err)
	cfg.DefaultChannelID = ""
	require.NoError(t, f.tenants.SaveConfig(ctx, cfg))

	res, err := f.bridge.OnTicketEvent(ctx, updated("3001", "19300"))
	require.NoError(t, err)
	assert.Equal(t, EventIgnored, res.Outcome)
	assert.Empty(t, f.chat.posted)
}

func TestOnTicketEventConcurrentDeliveries(t *testing.T) {
	f := newBridgeFixture(t, *vpnTicket(domain.DiscussionEntry{ID: "1", CreatedAt: fixedNow, Text: "checking"}))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.bridge.OnTicketEvent(context.Background(), updated("1001", "19300"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.chat.visibleTopLevel())
	assert.Len(t, f.chat.replies(), 1)
}

func TestOnTicketEventRunOutlivesCancelledCaller(t *testing.T) {
	f := newBridgeFixture(t, *vpnTicket())
	f.tickets.gate = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.bridge.OnTicketEvent(ctx, updated("1001", "19300"))
		done <- err
	}()
	require.Eventually(t, func() bool { return f.tickets.fetchCount() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting on the shared run")
	}

	close(f.tickets.gate)
	require.Eventually(t, func() bool { return len(f.chat.topLevel()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestOnTicketEventFetchFailure(t *testing.T) {
	f := newBridgeFixture(t)
	_, err := f.bridge.OnTicketEvent(context.Background(), updated("404", "19300"))
	require.ErrorIs(t, err, errBoom)
}

func TestOnChatReplyRoutesByTenant(t *testing.T) {
	ctx := context.Background()
	f := newBridgeFixture(t, *vpnTicket())
	res, err := f.bridge.OnTicketEvent(ctx, updated("1001", "19300"))
	require.NoError(t, err)

	relay, err := f.bridge.OnChatReply(ctx, "T1", ChatReply{ThreadTS: res.Thread.ThreadTS, Text: "done"})
	require.NoError(t, err)
	assert.Equal(t, RelayWritten, relay.Outcome)

	relay, err = f.bridge.OnChatReply(ctx, "T9", ChatReply{ThreadTS: res.Thread.ThreadTS, Text: "done"})
	require.NoError(t, err)
	assert.Equal(t, RelayIgnored, relay.Outcome)
}

func TestSyncOpenTickets(t *testing.T) {
	ctx := context.Background()
	f := newBridgeFixture(t, *vpnTicket())
	f.tickets.open = []domain.Ticket{{ID: "1001"}, {ID: "404"}}

	summary, err := f.bridge.SyncOpenTickets(ctx, "T1", "19300")
	require.NoError(t, err)
	assert.Equal(t, SyncSummary{Tickets: 2, Processed: 1, Failed: 1}, summary)

	_, err = f.bridge.SyncOpenTickets(ctx, "T9", "19300")
	assert.ErrorIs(t, err, ErrTenantNotFound)
}
