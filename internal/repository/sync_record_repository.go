package repository

import (
	"context"
	"errors"

	"github.com/spec-kit/ticket-bridge/internal/domain"
	"github.com/spec-kit/ticket-bridge/internal/syncstate"
)

const (
	ticketSortPrefix = "TICKET#"
	replySortPrefix  = "REPLY#"

	fieldTicketID = "ticket_id"
	fieldThreadTS = "thread_ts"
	fieldChannel  = "channel"
	listEntryIDs  = "entry_ids"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = syncstate.ErrNotFound

// SyncRecordRepository exposes the conditional-write protocol for ticket sync records.
type SyncRecordRepository interface {
	// CreateEmpty creates a thread-less record; false means it already existed.
	CreateEmpty(ctx context.Context, tenantID, ticketID string) (bool, error)
	Get(ctx context.Context, tenantID, ticketID string) (*domain.TicketSyncRecord, error)
	// ClaimThread records threadTS only while no thread is recorded.
	ClaimThread(ctx context.Context, tenantID, ticketID, threadTS, channel string) (bool, error)
	// ConfirmThread re-asserts threadTS; it fails if another thread owns the record.
	ConfirmThread(ctx context.Context, tenantID, ticketID, threadTS, channel string) (bool, error)
	// MarkPosted adds entryID to the posted set; false means it was already there.
	MarkPosted(ctx context.Context, tenantID, ticketID, entryID string) (bool, error)
	FindByThread(ctx context.Context, tenantID, threadTS string) (*domain.TicketSyncRecord, error)
	// ClaimReply marks a chat message as being relayed; false means another
	// delivery of the same message got there first.
	ClaimReply(ctx context.Context, tenantID, messageTS, ticketID string) (bool, error)
	// ReleaseReply undoes ClaimReply so a redelivery can retry the relay.
	ReleaseReply(ctx context.Context, tenantID, messageTS string) error
}

type syncRecordRepository struct {
	store syncstate.Store
}

// NewSyncRecordRepository constructs repository.
func NewSyncRecordRepository(store syncstate.Store) SyncRecordRepository {
	return &syncRecordRepository{store: store}
}

func ticketKey(tenantID, ticketID string) syncstate.Key {
	return syncstate.Key{Partition: tenantID, Sort: ticketSortPrefix + ticketID}
}

func (r *syncRecordRepository) CreateEmpty(ctx context.Context, tenantID, ticketID string) (bool, error) {
	return r.store.CreateIfAbsent(ctx, syncstate.Item{
		Key:    ticketKey(tenantID, ticketID),
		Fields: map[string]string{fieldTicketID: ticketID},
	})
}

func (r *syncRecordRepository) Get(ctx context.Context, tenantID, ticketID string) (*domain.TicketSyncRecord, error) {
	item, ok, err := r.store.Get(ctx, ticketKey(tenantID, ticketID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return recordFromItem(item), nil
}

func (r *syncRecordRepository) ClaimThread(ctx context.Context, tenantID, ticketID, threadTS, channel string) (bool, error) {
	return r.store.UpdateIf(ctx, ticketKey(tenantID, ticketID),
		map[string]string{fieldThreadTS: threadTS, fieldChannel: channel},
		syncstate.FieldEmpty(fieldThreadTS),
	)
}

func (r *syncRecordRepository) ConfirmThread(ctx context.Context, tenantID, ticketID, threadTS, channel string) (bool, error) {
	return r.store.UpdateIf(ctx, ticketKey(tenantID, ticketID),
		map[string]string{fieldThreadTS: threadTS, fieldChannel: channel},
		syncstate.FieldIn(fieldThreadTS, "", threadTS),
	)
}

func (r *syncRecordRepository) MarkPosted(ctx context.Context, tenantID, ticketID, entryID string) (bool, error) {
	return r.store.AppendIfAbsent(ctx, ticketKey(tenantID, ticketID), listEntryIDs, entryID)
}

func (r *syncRecordRepository) FindByThread(ctx context.Context, tenantID, threadTS string) (*domain.TicketSyncRecord, error) {
	if threadTS == "" {
		return nil, ErrNotFound
	}
	items, err := r.store.Query(ctx, tenantID, ticketSortPrefix)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if item.Field(fieldThreadTS) == threadTS {
			return recordFromItem(item), nil
		}
	}
	return nil, ErrNotFound
}

func replyKey(tenantID, messageTS string) syncstate.Key {
	return syncstate.Key{Partition: tenantID, Sort: replySortPrefix + messageTS}
}

func (r *syncRecordRepository) ClaimReply(ctx context.Context, tenantID, messageTS, ticketID string) (bool, error) {
	return r.store.CreateIfAbsent(ctx, syncstate.Item{
		Key:    replyKey(tenantID, messageTS),
		Fields: map[string]string{fieldTicketID: ticketID},
	})
}

func (r *syncRecordRepository) ReleaseReply(ctx context.Context, tenantID, messageTS string) error {
	return r.store.Delete(ctx, replyKey(tenantID, messageTS))
}

func recordFromItem(item syncstate.Item) *domain.TicketSyncRecord {
	ticketID := item.Field(fieldTicketID)
	if ticketID == "" {
		ticketID = item.Key.Sort[len(ticketSortPrefix):]
	}
	return &domain.TicketSyncRecord{
		TenantID:       item.Key.Partition,
		TicketID:       ticketID,
		ThreadTS:       item.Field(fieldThreadTS),
		Channel:        item.Field(fieldChannel),
		PostedEntryIDs: append([]string(nil), item.List(listEntryIDs)...),
	}
}

// IsNotFound reports whether err means a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
