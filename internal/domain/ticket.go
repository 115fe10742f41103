package domain

import (
	"sort"
	"time"
)

// EntrySource differentiates discussion entries by their origin in the ticket system.
type EntrySource string

const (
	EntrySourceNote      EntrySource = "NOTE"
	EntrySourceTimeEntry EntrySource = "TIME_ENTRY"
)

// TicketAction enumerates ticket webhook actions.
type TicketAction string

const (
	TicketActionAdded   TicketAction = "added"
	TicketActionUpdated TicketAction = "updated"
	TicketActionDeleted TicketAction = "deleted"
)

// Ticket is the slice of a ticket-system ticket the bridge needs.
type Ticket struct {
	ID              string
	Summary         string
	CompanyID       string
	ContactName     string
	OwnerIdentifier string
	Closed          bool
	Discussion      []DiscussionEntry
}

// Unassigned reports whether the ticket has no owner.
func (t *Ticket) Unassigned() bool {
	return t.OwnerIdentifier == ""
}

// DiscussionEntry unifies ticket notes and time entries for mirroring.
type DiscussionEntry struct {
	ID         string
	AuthorName string
	Text       string
	CreatedAt  time.Time
	Source     EntrySource
	Internal   bool
	Resolution bool
	Detail     bool
}

// ParseEntryTime parses a ticket-system timestamp. Unparsable or empty values map to the epoch.
func ParseEntryTime(value string) time.Time {
	if value == "" {
		return time.Unix(0, 0).UTC()
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05Z07:00", "2006-01-02T15:04:05"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC()
		}
	}
	return time.Unix(0, 0).UTC()
}

// SortDiscussion returns a copy of entries ordered by creation time, oldest first.
// Entries with equal timestamps keep their input order.
func SortDiscussion(entries []DiscussionEntry) []DiscussionEntry {
	sorted := make([]DiscussionEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})
	return sorted
}
