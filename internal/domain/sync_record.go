package domain

// TicketSyncRecord links a ticket to its chat thread and tracks mirrored entries.
type TicketSyncRecord struct {
	TenantID       string
	TicketID       string
	ThreadTS       string
	Channel        string
	PostedEntryIDs []string
}

// HasThread reports whether the anchoring chat message has been recorded.
func (r *TicketSyncRecord) HasThread() bool {
	return r != nil && r.ThreadTS != ""
}

// PostedKey is the posted-set key for an entry. Notes and time entries are
// numbered independently, so the key carries the source.
func PostedKey(source EntrySource, id string) string {
	if source == EntrySourceTimeEntry {
		return "time:" + id
	}
	return "note:" + id
}

// HasMirrored reports whether the entry was already mirrored or written by
// the bridge. Bare ids from records written before keys carried the source
// still count.
func (r *TicketSyncRecord) HasMirrored(entry DiscussionEntry) bool {
	if r == nil {
		return false
	}
	key := PostedKey(entry.Source, entry.ID)
	for _, id := range r.PostedEntryIDs {
		if id == key || id == entry.ID {
			return true
		}
	}
	return false
}
