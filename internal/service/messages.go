package service

import "strings"

// EntryMarker prefixes every message the bridge posts. Replies starting with
// it are the bridge's own output and are never relayed back.
const EntryMarker = "🆔"

const replyFooter = "_________________________________"

// TicketMessage formats the top-level message that anchors a ticket thread.
func TicketMessage(ticketID, contactName, summary string) string {
	return EntryMarker + ticketID + "\n👤" + contactName + "\n📝: " + summary
}

// EntryMessage formats a mirrored discussion entry.
func EntryMessage(entryID, authorName, text string) string {
	return EntryMarker + entryID + "\n👤 " + authorName + "\n\n" + text + "\n" + replyFooter
}

// IsBridgeMessage reports whether text carries the bridge marker.
func IsBridgeMessage(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), EntryMarker)
}
