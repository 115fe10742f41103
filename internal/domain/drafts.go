package domain

import "time"

// DefaultReplyHours is logged for a chat reply that does not state its hours.
const DefaultReplyHours = 0.15

// TimeEntryDraft describes a time entry to be created on a ticket.
type TimeEntryDraft struct {
	TicketID          string
	Notes             string
	ActualHours       float64
	DetailDescription bool
	InternalAnalysis  bool
	Resolution        bool
	EmailContact      bool
	EmailResource     bool
	EmailCc           bool
	Cc                string
	TimeStart         time.Time
}

// NewReplyTimeEntry returns the defaults applied to chat replies.
func NewReplyTimeEntry(ticketID string, start time.Time) TimeEntryDraft {
	return TimeEntryDraft{
		TicketID:          ticketID,
		ActualHours:       DefaultReplyHours,
		DetailDescription: true,
		EmailContact:      true,
		EmailResource:     true,
		TimeStart:         start,
	}
}

// NoteDraft describes a note to be created on a ticket.
type NoteDraft struct {
	TicketID          string
	Text              string
	DetailDescription bool
	InternalAnalysis  bool
	Resolution        bool
}

// ChatMessage is a message accepted by the chat system.
type ChatMessage struct {
	Channel string
	TS      string
}
