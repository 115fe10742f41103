package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spec-kit/ticket-bridge/internal/domain"
	"github.com/spec-kit/ticket-bridge/internal/worker"
)

var errBoom = errors.New("boom")

type postedMessage struct {
	Channel  string
	Text     string
	ThreadTS string
	TS       string
}

type fakeChat struct {
	mu      sync.Mutex
	seq     int
	posted  []postedMessage
	deleted []string
	// failWhen makes PostMessage fail for matching texts.
	failWhen func(text string) bool
}

func (f *fakeChat) PostMessage(_ context.Context, _ *domain.TenantConfig, channel, text, threadTS string) (domain.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWhen != nil && f.failWhen(text) {
		return domain.ChatMessage{}, errBoom
	}
	f.seq++
	ts := fmt.Sprintf("1700000000.%06d", f.seq)
	f.posted = append(f.posted, postedMessage{Channel: channel, Text: text, ThreadTS: threadTS, TS: ts})
	return domain.ChatMessage{Channel: channel, TS: ts}, nil
}

func (f *fakeChat) DeleteMessage(_ context.Context, _ *domain.TenantConfig, _ string, ts string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ts)
	return nil
}

func (f *fakeChat) topLevel() []postedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []postedMessage
	for _, p := range f.posted {
		if p.ThreadTS == "" {
			out = append(out, p)
		}
	}
	return out
}

func (f *fakeChat) replies() []postedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []postedMessage
	for _, p := range f.posted {
		if p.ThreadTS != "" {
			out = append(out, p)
		}
	}
	return out
}

func (f *fakeChat) visibleTopLevel() int {
	top := f.topLevel()
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(top) - len(f.deleted)
}

type fakeTickets struct {
	mu          sync.Mutex
	seq         int
	tickets     map[string]*domain.Ticket
	open        []domain.Ticket
	timeEntries []domain.TimeEntryDraft
	notes       []domain.NoteDraft
	assigned    []string
	fetches     int
	// ownerAfterAssign becomes the owner of an assigned ticket.
	ownerAfterAssign string
	writeErr         error
	// gate, when set, holds FetchTicket until closed or ctx ends.
	gate chan struct{}
}

func newFakeTickets(tickets ...domain.Ticket) *fakeTickets {
	f := &fakeTickets{tickets: map[string]*domain.Ticket{}}
	for i := range tickets {
		t := tickets[i]
		f.tickets[t.ID] = &t
	}
	return f
}

func (f *fakeTickets) FetchTicket(ctx context.Context, _ *domain.TenantConfig, ticketID string) (*domain.Ticket, error) {
	f.mu.Lock()
	f.fetches++
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[ticketID]
	if !ok {
		return nil, fmt.Errorf("ticket %s: %w", ticketID, errBoom)
	}
	cp := *t
	cp.Discussion = append([]domain.DiscussionEntry(nil), t.Discussion...)
	return &cp, nil
}

func (f *fakeTickets) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func (f *fakeTickets) FetchOpenTickets(_ context.Context, _ *domain.TenantConfig, _ string) ([]domain.Ticket, error) {
	return f.open, nil
}

func (f *fakeTickets) CreateTimeEntry(_ context.Context, _ *domain.TenantConfig, draft domain.TimeEntryDraft) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return "", f.writeErr
	}
	f.seq++
	f.timeEntries = append(f.timeEntries, draft)
	return fmt.Sprintf("te-%d", f.seq), nil
}

func (f *fakeTickets) CreateNote(_ context.Context, _ *domain.TenantConfig, draft domain.NoteDraft) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return "", f.writeErr
	}
	f.seq++
	f.notes = append(f.notes, draft)
	return fmt.Sprintf("note-%d", f.seq), nil
}

func (f *fakeTickets) AssignTicket(_ context.Context, _ *domain.TenantConfig, ticketID string, memberID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assigned = append(f.assigned, fmt.Sprintf("%s:%d", ticketID, memberID))
	if t, ok := f.tickets[ticketID]; ok && f.ownerAfterAssign != "" {
		t.OwnerIdentifier = f.ownerAfterAssign
	}
	return nil
}

// fakeScheduler captures delayed tasks instead of running them.
type fakeScheduler struct {
	mu     sync.Mutex
	names  []string
	delays []time.Duration
	tasks  []worker.Task
}

func (f *fakeScheduler) After(name string, delay time.Duration, task worker.Task) (*worker.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.names = append(f.names, name)
	f.delays = append(f.delays, delay)
	f.tasks = append(f.tasks, task)
	return nil, nil
}

func (f *fakeScheduler) runAll(ctx context.Context) error {
	f.mu.Lock()
	tasks := append([]worker.Task(nil), f.tasks...)
	f.mu.Unlock()
	var errs []error
	for _, task := range tasks {
		errs = append(errs, task(ctx))
	}
	return errors.Join(errs...)
}

func entryText(m postedMessage) string {
	parts := strings.SplitN(m.Text, "\n", 2)
	return strings.TrimPrefix(parts[0], EntryMarker)
}
