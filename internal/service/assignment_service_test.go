package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/ticket-bridge/internal/domain"
	"github.com/spec-kit/ticket-bridge/internal/worker"
)

func assigningTenant() *domain.TenantConfig {
	return &domain.TenantConfig{TenantID: "T1", AssigneeMemberID: 148, AssigneeIdentifier: "JDoe"}
}

func TestRecheckSkipsWhenAssignmentDidNotHold(t *testing.T) {
	tickets := newFakeTickets(domain.Ticket{ID: "1001", OwnerIdentifier: "someone-else"})
	svc := NewAssignmentService(AssignmentDependencies{Tickets: tickets, Logger: zaptest.NewLogger(t)})

	logged, err := svc.Recheck(context.Background(), assigningTenant(), "1001")
	require.NoError(t, err)
	assert.False(t, logged)
	assert.Empty(t, tickets.timeEntries)
}

func TestRecheckMatchesOwnerCaseInsensitively(t *testing.T) {
	tickets := newFakeTickets(domain.Ticket{ID: "1001", OwnerIdentifier: "jdoe"})
	svc := NewAssignmentService(AssignmentDependencies{
		Tickets: tickets,
		Logger:  zaptest.NewLogger(t),
		Now:     func() time.Time { return fixedNow },
	})

	logged, err := svc.Recheck(context.Background(), assigningTenant(), "1001")
	require.NoError(t, err)
	assert.True(t, logged)
	require.Len(t, tickets.timeEntries, 1)
	assert.Equal(t, fixedNow, tickets.timeEntries[0].TimeStart)
}

func TestAssignAndRecheckWithoutAssigneeIsNoop(t *testing.T) {
	tickets := newFakeTickets(domain.Ticket{ID: "1001"})
	scheduler := &fakeScheduler{}
	svc := NewAssignmentService(AssignmentDependencies{Tickets: tickets, Scheduler: scheduler})

	handle, err := svc.AssignAndRecheck(context.Background(), &domain.TenantConfig{TenantID: "T1"}, "1001")
	require.NoError(t, err)
	assert.Nil(t, handle)
	assert.Empty(t, tickets.assigned)
	assert.Empty(t, scheduler.tasks)
}

func TestAssignAndRecheckOnRunner(t *testing.T) {
	tickets := newFakeTickets(domain.Ticket{ID: "1001"})
	tickets.ownerAfterAssign = "jdoe"
	runner := worker.NewRunner(zaptest.NewLogger(t))
	t.Cleanup(func() { _ = runner.Shutdown(context.Background()) })

	svc := NewAssignmentService(AssignmentDependencies{
		Tickets:      tickets,
		Scheduler:    runner,
		Logger:       zaptest.NewLogger(t),
		RecheckDelay: 10 * time.Millisecond,
	})

	reqCtx, cancel := context.WithCancel(context.Background())
	handle, err := svc.AssignAndRecheck(reqCtx, assigningTenant(), "1001")
	require.NoError(t, err)
	require.NotNil(t, handle)
	cancel()

	select {
	case <-handle.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("re-check never ran")
	}
	tickets.mu.Lock()
	defer tickets.mu.Unlock()
	assert.Len(t, tickets.timeEntries, 1, "the re-check outlives the request context")
}
