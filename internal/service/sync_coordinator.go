package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bridge/internal/command"
	"github.com/spec-kit/ticket-bridge/internal/domain"
	"github.com/spec-kit/ticket-bridge/internal/events"
	"github.com/spec-kit/ticket-bridge/internal/markup"
	"github.com/spec-kit/ticket-bridge/internal/repository"
)

// ErrThreadUnavailable is returned when a ticket has no thread and none could be created.
var ErrThreadUnavailable = errors.New("ticket thread unavailable")

// ThreadOutcome describes what PostNewTicket did.
type ThreadOutcome string

const (
	ThreadCreated ThreadOutcome = "created"
	ThreadSkipped ThreadOutcome = "skipped"
)

// ThreadResult is the outcome of PostNewTicket. ThreadTS is set when known.
type ThreadResult struct {
	Outcome  ThreadOutcome
	ThreadTS string
	Channel  string
}

// NewTicket carries what the top-level thread message needs.
type NewTicket struct {
	TicketID    string
	Summary     string
	ContactName string
	Channel     string
}

// PostResult describes one mirrored discussion entry.
type PostResult struct {
	EntryID   string
	MessageTS string
	// Duplicate is set when another process recorded the entry first.
	Duplicate bool
}

// MirrorError reports a mirroring run that stopped part way.
type MirrorError struct {
	TicketID string
	EntryID  string
	Mirrored int
	Err      error
}

func (e *MirrorError) Error() string {
	return fmt.Sprintf("mirror ticket %s stopped at entry %s after %d entries: %v", e.TicketID, e.EntryID, e.Mirrored, e.Err)
}

func (e *MirrorError) Unwrap() error {
	return e.Err
}

// ChatReply is an inbound chat message that may belong to a ticket thread.
type ChatReply struct {
	MessageTS   string
	ThreadTS    string
	AuthorID    string
	IsBotAuthor bool
	Text        string
}

// RelayOutcome describes what RelayReplyToTicket did.
type RelayOutcome string

const (
	RelayWritten  RelayOutcome = "written"
	RelayIgnored  RelayOutcome = "ignored"
	RelayNoTicket RelayOutcome = "no_ticket"
)

// Kinds of ticket entries a reply becomes.
const (
	EntryKindTimeEntry = "time_entry"
	EntryKindNote      = "note"
)

// RelayResult is the outcome of RelayReplyToTicket.
type RelayResult struct {
	Outcome  RelayOutcome
	Reason   string
	TicketID string
	RemoteID string
	Kind     string
}

// SyncCoordinator keeps tickets and chat threads in step. Every cross-process
// decision goes through the conditional writes of the sync record repository.
type SyncCoordinator struct {
	records    repository.SyncRecordRepository
	chat       ChatSystem
	tickets    TicketSystem
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// CoordinatorDependencies bundles collaborators.
type CoordinatorDependencies struct {
	Records    repository.SyncRecordRepository
	Chat       ChatSystem
	Tickets    TicketSystem
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Now        func() time.Time
}

// NewSyncCoordinator constructs the coordinator.
func NewSyncCoordinator(deps CoordinatorDependencies) *SyncCoordinator {
	c := &SyncCoordinator{
		records:    deps.Records,
		chat:       deps.Chat,
		tickets:    deps.Tickets,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		now:        deps.Now,
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// PostNewTicket posts the top-level message for a ticket unless some process
// already owns its thread. At most one top-level message stays visible per
// ticket even when called concurrently.
func (c *SyncCoordinator) PostNewTicket(ctx context.Context, tenant *domain.TenantConfig, ticket NewTicket) (ThreadResult, error) {
	return c.postNewTicket(ctx, tenant, ticket, false)
}

// postNewTicket with heal set also proceeds when the record exists without a thread.
func (c *SyncCoordinator) postNewTicket(ctx context.Context, tenant *domain.TenantConfig, ticket NewTicket, heal bool) (ThreadResult, error) {
	log := c.logger.With(zap.String("tenant_id", tenant.TenantID), zap.String("ticket_id", ticket.TicketID))

	created, err := c.records.CreateEmpty(ctx, tenant.TenantID, ticket.TicketID)
	if err != nil {
		return ThreadResult{}, fmt.Errorf("create sync record: %w", err)
	}
	if !created {
		rec, err := c.records.Get(ctx, tenant.TenantID, ticket.TicketID)
		if err != nil {
			return ThreadResult{}, fmt.Errorf("read sync record: %w", err)
		}
		if !heal || rec.HasThread() {
			log.Debug("thread already owned", zap.String("thread_ts", rec.ThreadTS))
			c.publish(ctx, events.EventThreadSkipped, tenant.TenantID, ticket.TicketID, nil)
			return ThreadResult{Outcome: ThreadSkipped, ThreadTS: rec.ThreadTS, Channel: rec.Channel}, nil
		}
		log.Info("recovering ticket without thread")
	}

	msg, err := c.chat.PostMessage(ctx, tenant, ticket.Channel, TicketMessage(ticket.TicketID, ticket.ContactName, ticket.Summary), "")
	if err != nil {
		// the record stays thread-less and is healed by the next update
		return ThreadResult{}, fmt.Errorf("post ticket message: %w", err)
	}
	if msg.Channel == "" {
		msg.Channel = ticket.Channel
	}

	claimed, claimErr := c.records.ClaimThread(ctx, tenant.TenantID, ticket.TicketID, msg.TS, msg.Channel)
	if claimErr == nil && !claimed {
		c.removeDuplicate(ctx, tenant, ticket.TicketID, msg)
		return c.skippedAfterRace(ctx, tenant, ticket.TicketID)
	}

	confirmed, confirmErr := c.records.ConfirmThread(ctx, tenant.TenantID, ticket.TicketID, msg.TS, msg.Channel)
	switch {
	case claimErr != nil && confirmErr != nil:
		c.removeDuplicate(ctx, tenant, ticket.TicketID, msg)
		return ThreadResult{}, fmt.Errorf("record thread: %w", errors.Join(claimErr, confirmErr))
	case claimErr != nil && !confirmed:
		c.removeDuplicate(ctx, tenant, ticket.TicketID, msg)
		return c.skippedAfterRace(ctx, tenant, ticket.TicketID)
	case claimErr == nil && (confirmErr != nil || !confirmed):
		log.Warn("thread re-assert failed after claim",
			zap.String("thread_ts", msg.TS),
			zap.Bool("confirmed", confirmed),
			zap.Error(confirmErr),
		)
	}

	log.Info("ticket thread created", zap.String("thread_ts", msg.TS), zap.String("channel", msg.Channel))
	c.publish(ctx, events.EventThreadCreated, tenant.TenantID, ticket.TicketID, map[string]string{
		"thread_ts": msg.TS,
		"channel":   msg.Channel,
	})
	return ThreadResult{Outcome: ThreadCreated, ThreadTS: msg.TS, Channel: msg.Channel}, nil
}

func (c *SyncCoordinator) skippedAfterRace(ctx context.Context, tenant *domain.TenantConfig, ticketID string) (ThreadResult, error) {
	result := ThreadResult{Outcome: ThreadSkipped}
	if rec, err := c.records.Get(ctx, tenant.TenantID, ticketID); err == nil {
		result.ThreadTS = rec.ThreadTS
		result.Channel = rec.Channel
	}
	return result, nil
}

// removeDuplicate deletes a message that lost the race for the thread.
func (c *SyncCoordinator) removeDuplicate(ctx context.Context, tenant *domain.TenantConfig, ticketID string, msg domain.ChatMessage) {
	log := c.logger.With(
		zap.String("tenant_id", tenant.TenantID),
		zap.String("ticket_id", ticketID),
		zap.String("message_ts", msg.TS),
	)
	if err := c.chat.DeleteMessage(ctx, tenant, msg.Channel, msg.TS); err != nil {
		log.Error("failed to delete duplicate ticket message", zap.Error(err))
		return
	}
	log.Info("duplicate ticket message removed")
	c.publish(ctx, events.EventDuplicateThreadRemoved, tenant.TenantID, ticketID, map[string]string{"message_ts": msg.TS})
}

// UpdateTicketThread mirrors every discussion entry not yet posted into the
// ticket's thread, oldest first. A missing thread is created first.
func (c *SyncCoordinator) UpdateTicketThread(ctx context.Context, tenant *domain.TenantConfig, ticket *domain.Ticket, channel string) ([]PostResult, error) {
	log := c.logger.With(zap.String("tenant_id", tenant.TenantID), zap.String("ticket_id", ticket.ID))

	rec, err := c.records.Get(ctx, tenant.TenantID, ticket.ID)
	if err != nil && !repository.IsNotFound(err) {
		return nil, fmt.Errorf("read sync record: %w", err)
	}
	if err != nil || !rec.HasThread() {
		log.Info("ticket has no thread; posting it first")
		if _, err := c.postNewTicket(ctx, tenant, NewTicket{
			TicketID:    ticket.ID,
			Summary:     ticket.Summary,
			ContactName: ticket.ContactName,
			Channel:     channel,
		}, true); err != nil {
			return nil, fmt.Errorf("ticket %s: %w", ticket.ID, errors.Join(ErrThreadUnavailable, err))
		}
		rec, err = c.records.Get(ctx, tenant.TenantID, ticket.ID)
		if err != nil {
			return nil, fmt.Errorf("ticket %s: %w", ticket.ID, errors.Join(ErrThreadUnavailable, err))
		}
		if !rec.HasThread() {
			return nil, fmt.Errorf("ticket %s: %w", ticket.ID, ErrThreadUnavailable)
		}
	}
	if rec.Channel == "" {
		rec.Channel = channel
	}

	results := make([]PostResult, 0)
	for _, entry := range domain.SortDiscussion(ticket.Discussion) {
		if entry.ID == "" || rec.HasMirrored(entry) {
			continue
		}

		// another process may have mirrored it since the first read
		fresh, err := c.records.Get(ctx, tenant.TenantID, ticket.ID)
		if err != nil {
			return results, &MirrorError{TicketID: ticket.ID, EntryID: entry.ID, Mirrored: len(results), Err: err}
		}
		if fresh.HasMirrored(entry) {
			continue
		}

		text := EntryMessage(entry.ID, entry.AuthorName, markup.TicketToChat(entry.Text))
		msg, err := c.chat.PostMessage(ctx, tenant, rec.Channel, text, rec.ThreadTS)
		if err != nil {
			log.Warn("failed to mirror entry", zap.String("entry_id", entry.ID), zap.Int("mirrored", len(results)), zap.Error(err))
			c.publish(ctx, events.EventMirrorFailed, tenant.TenantID, ticket.ID, map[string]string{"entry_id": entry.ID})
			return results, &MirrorError{TicketID: ticket.ID, EntryID: entry.ID, Mirrored: len(results), Err: err}
		}

		appended, err := c.records.MarkPosted(ctx, tenant.TenantID, ticket.ID, domain.PostedKey(entry.Source, entry.ID))
		if err != nil {
			log.Error("entry posted but not recorded", zap.String("entry_id", entry.ID), zap.Error(err))
			return results, &MirrorError{TicketID: ticket.ID, EntryID: entry.ID, Mirrored: len(results), Err: err}
		}
		if !appended {
			log.Warn("entry mirrored concurrently by another process", zap.String("entry_id", entry.ID))
			c.publish(ctx, events.EventDuplicateEntryDetected, tenant.TenantID, ticket.ID, map[string]string{"entry_id": entry.ID})
		} else {
			c.publish(ctx, events.EventEntryMirrored, tenant.TenantID, ticket.ID, map[string]string{"entry_id": entry.ID})
		}
		results = append(results, PostResult{EntryID: entry.ID, MessageTS: msg.TS, Duplicate: !appended})
	}
	return results, nil
}

// RelayReplyToTicket writes a chat reply to the ticket that owns its thread.
// Replies to unrelated messages are acknowledged without a write.
func (c *SyncCoordinator) RelayReplyToTicket(ctx context.Context, tenant *domain.TenantConfig, reply ChatReply) (RelayResult, error) {
	if reason := c.ignoreReason(tenant, reply); reason != "" {
		c.publish(ctx, events.EventReplyIgnored, tenant.TenantID, "", map[string]string{"reason": reason})
		return RelayResult{Outcome: RelayIgnored, Reason: reason}, nil
	}

	rec, err := c.findOwner(ctx, tenant.TenantID, reply)
	if repository.IsNotFound(err) {
		c.logger.Debug("reply does not belong to a ticket thread",
			zap.String("tenant_id", tenant.TenantID),
			zap.String("thread_ts", reply.ThreadTS),
			zap.String("message_ts", reply.MessageTS),
		)
		return RelayResult{Outcome: RelayNoTicket, Reason: "no ticket owns this thread"}, nil
	}
	if err != nil {
		return RelayResult{}, fmt.Errorf("lookup thread owner: %w", err)
	}

	log := c.logger.With(zap.String("tenant_id", tenant.TenantID), zap.String("ticket_id", rec.TicketID))

	// chat platforms redeliver events; each message is relayed once
	if reply.MessageTS != "" {
		claimed, err := c.records.ClaimReply(ctx, tenant.TenantID, reply.MessageTS, rec.TicketID)
		if err != nil {
			return RelayResult{}, fmt.Errorf("claim reply %s: %w", reply.MessageTS, err)
		}
		if !claimed {
			log.Info("reply already relayed", zap.String("message_ts", reply.MessageTS))
			c.publish(ctx, events.EventReplyIgnored, tenant.TenantID, rec.TicketID, map[string]string{"reason": "duplicate delivery"})
			return RelayResult{Outcome: RelayIgnored, Reason: "duplicate delivery", TicketID: rec.TicketID}, nil
		}
	}

	parsed := command.Parse(reply.Text)
	for _, unknown := range parsed.Unknown {
		log.Info("ignoring unknown reply command", zap.String("command", unknown.Raw))
	}
	draft := domain.NewReplyTimeEntry(rec.TicketID, c.now())
	for _, err := range parsed.Apply(&draft) {
		log.Warn("ignoring reply command", zap.Error(err))
	}
	draft.Notes = markup.ChatToTicket(parsed.Text)

	result := RelayResult{Outcome: RelayWritten, TicketID: rec.TicketID}
	source := domain.EntrySourceTimeEntry
	if tenant.EffectiveReplyMode() == domain.ReplyModeNote || parsed.WantsNote() {
		source = domain.EntrySourceNote
		result.Kind = EntryKindNote
		result.RemoteID, err = c.tickets.CreateNote(ctx, tenant, domain.NoteDraft{
			TicketID:          rec.TicketID,
			Text:              draft.Notes,
			DetailDescription: draft.DetailDescription,
			InternalAnalysis:  draft.InternalAnalysis,
			Resolution:        draft.Resolution,
		})
	} else {
		result.Kind = EntryKindTimeEntry
		result.RemoteID, err = c.tickets.CreateTimeEntry(ctx, tenant, draft)
	}
	if err != nil {
		if reply.MessageTS != "" {
			if relErr := c.records.ReleaseReply(ctx, tenant.TenantID, reply.MessageTS); relErr != nil {
				log.Error("failed to release reply claim", zap.String("message_ts", reply.MessageTS), zap.Error(relErr))
			}
		}
		return RelayResult{}, fmt.Errorf("write reply to ticket %s: %w", rec.TicketID, err)
	}

	// the new entry must never be mirrored back into the thread
	if _, err := c.records.MarkPosted(ctx, tenant.TenantID, rec.TicketID, domain.PostedKey(source, result.RemoteID)); err != nil {
		log.Error("reply written but not recorded", zap.String("remote_id", result.RemoteID), zap.Error(err))
		return result, fmt.Errorf("record relayed entry %s: %w", result.RemoteID, err)
	}

	log.Info("reply relayed to ticket", zap.String("kind", result.Kind), zap.String("remote_id", result.RemoteID))
	c.publish(ctx, events.EventReplyRelayed, tenant.TenantID, rec.TicketID, map[string]string{
		"kind":      result.Kind,
		"remote_id": result.RemoteID,
	})
	return result, nil
}

func (c *SyncCoordinator) ignoreReason(tenant *domain.TenantConfig, reply ChatReply) string {
	switch {
	case reply.IsBotAuthor:
		return "bot author"
	case tenant.SlackBotUserID != "" && reply.AuthorID == tenant.SlackBotUserID:
		return "bridge author"
	case IsBridgeMessage(reply.Text):
		return "bridge marker"
	default:
		return ""
	}
}

func (c *SyncCoordinator) findOwner(ctx context.Context, tenantID string, reply ChatReply) (*domain.TicketSyncRecord, error) {
	candidates := []string{reply.ThreadTS}
	if reply.MessageTS != reply.ThreadTS {
		candidates = append(candidates, reply.MessageTS)
	}
	for _, ts := range candidates {
		if ts == "" {
			continue
		}
		rec, err := c.records.FindByThread(ctx, tenantID, ts)
		if repository.IsNotFound(err) {
			continue
		}
		return rec, err
	}
	return nil, repository.ErrNotFound
}

func (c *SyncCoordinator) publish(ctx context.Context, eventType events.EventType, tenantID, ticketID string, attrs map[string]string) {
	if c.dispatcher == nil {
		return
	}
	_ = c.dispatcher.Publish(ctx, events.New(eventType, tenantID, ticketID, attrs))
}
