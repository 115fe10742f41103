package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventThreadCreated          EventType = "thread_created"
	EventThreadSkipped          EventType = "thread_skipped"
	EventDuplicateThreadRemoved EventType = "duplicate_thread_removed"
	EventEntryMirrored          EventType = "entry_mirrored"
	EventDuplicateEntryDetected EventType = "duplicate_entry_detected"
	EventMirrorFailed           EventType = "mirror_failed"
	EventReplyRelayed           EventType = "reply_relayed"
	EventReplyIgnored           EventType = "reply_ignored"
	EventTicketAssigned         EventType = "ticket_assigned"
	EventAssignmentConfirmed    EventType = "assignment_confirmed"
	EventTicketEventDropped     EventType = "ticket_event_dropped"
)

// AllEventTypes lists every type the engine publishes.
var AllEventTypes = []EventType{
	EventThreadCreated,
	EventThreadSkipped,
	EventDuplicateThreadRemoved,
	EventEntryMirrored,
	EventDuplicateEntryDetected,
	EventMirrorFailed,
	EventReplyRelayed,
	EventReplyIgnored,
	EventTicketAssigned,
	EventAssignmentConfirmed,
	EventTicketEventDropped,
}

// Event represents a sync event emitted by services.
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	TenantID  string            `json:"tenant_id"`
	TicketID  string            `json:"ticket_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// New stamps an event with an id and the current time.
func New(eventType EventType, tenantID, ticketID string, attrs map[string]string) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TenantID:  tenantID,
		TicketID:  ticketID,
		Timestamp: time.Now().UTC(),
		Attrs:     attrs,
	}
}
