package syncstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DefaultTableName is created by migrations/0001_create_sync_items.sql.
const DefaultTableName = "sync_items"

// pgExecutor is satisfied by *pgxpool.Pool and pgx.Tx.
type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pinger interface {
	Ping(ctx context.Context) error
}

// PostgresStore implements Store on one jsonb table. Conditional writes are
// single UPDATE/INSERT statements, so row locking provides the atomicity.
type PostgresStore struct {
	db    pgExecutor
	table string
}

// NewPostgresStore uses db for all statements against table.
func NewPostgresStore(db pgExecutor, table string) *PostgresStore {
	if table == "" {
		table = DefaultTableName
	}
	return &PostgresStore{db: db, table: pgx.Identifier{table}.Sanitize()}
}

// EnsureSchema creates the table when it is missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			partition_key TEXT NOT NULL,
			sort_key TEXT NOT NULL,
			fields JSONB NOT NULL DEFAULT '{}'::jsonb,
			lists JSONB NOT NULL DEFAULT '{}'::jsonb,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (partition_key, sort_key)
		)`, s.table)
	if _, err := s.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("ensure %s: %w", s.table, err)
	}
	return nil
}

func (s *PostgresStore) CreateIfAbsent(ctx context.Context, item Item) (bool, error) {
	if err := item.validate(); err != nil {
		return false, err
	}
	fields, lists, err := marshalItem(item)
	if err != nil {
		return false, err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (partition_key, sort_key, fields, lists, updated_at)
		VALUES ($1, $2, $3::jsonb, $4::jsonb, NOW())
		ON CONFLICT (partition_key, sort_key) DO NOTHING`, s.table)
	tag, err := s.db.Exec(ctx, query, item.Key.Partition, item.Key.Sort, fields, lists)
	if err != nil {
		return false, fmt.Errorf("failed to create item %s: %w", item.Key, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) UpdateIf(ctx context.Context, key Key, set map[string]string, cond Condition) (bool, error) {
	if err := key.validate(); err != nil {
		return false, err
	}
	for name := range set {
		if err := validateName(name); err != nil {
			return false, err
		}
	}
	patch, err := json.Marshal(set)
	if err != nil {
		return false, err
	}
	allowed := cond.Allowed
	if allowed == nil {
		allowed = []string{}
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET fields = fields || $3::jsonb, updated_at = NOW()
		WHERE partition_key = $1 AND sort_key = $2
		  AND COALESCE(fields ->> $4::text, '') = ANY($5::text[])`, s.table)
	tag, err := s.db.Exec(ctx, query, key.Partition, key.Sort, string(patch), cond.Field, allowed)
	if err != nil {
		return false, fmt.Errorf("failed to update item %s: %w", key, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) AppendIfAbsent(ctx context.Context, key Key, list, value string) (bool, error) {
	if err := key.validate(); err != nil {
		return false, err
	}
	if err := validateName(list); err != nil {
		return false, err
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET lists = jsonb_set(lists, ARRAY[$3::text], COALESCE(lists -> $3::text, '[]'::jsonb) || jsonb_build_array($4::text), true),
		    updated_at = NOW()
		WHERE partition_key = $1 AND sort_key = $2
		  AND NOT (COALESCE(lists -> $3::text, '[]'::jsonb) @> jsonb_build_array($4::text))`, s.table)
	tag, err := s.db.Exec(ctx, query, key.Partition, key.Sort, list, value)
	if err != nil {
		return false, fmt.Errorf("failed to append to %s.%s: %w", key, list, err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	existsQuery := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE partition_key = $1 AND sort_key = $2)`, s.table)
	if err := s.db.QueryRow(ctx, existsQuery, key.Partition, key.Sort).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check item %s: %w", key, err)
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

func (s *PostgresStore) Get(ctx context.Context, key Key) (Item, bool, error) {
	if err := key.validate(); err != nil {
		return Item{}, false, err
	}
	query := fmt.Sprintf(`SELECT fields, lists FROM %s WHERE partition_key = $1 AND sort_key = $2`, s.table)

	var fields, lists []byte
	err := s.db.QueryRow(ctx, query, key.Partition, key.Sort).Scan(&fields, &lists)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, false, nil
	}
	if err != nil {
		return Item{}, false, fmt.Errorf("failed to get item %s: %w", key, err)
	}
	item, err := unmarshalItem(key, fields, lists)
	if err != nil {
		return Item{}, false, err
	}
	return item, true, nil
}

func (s *PostgresStore) Put(ctx context.Context, item Item) error {
	if err := item.validate(); err != nil {
		return err
	}
	fields, lists, err := marshalItem(item)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (partition_key, sort_key, fields, lists, updated_at)
		VALUES ($1, $2, $3::jsonb, $4::jsonb, NOW())
		ON CONFLICT (partition_key, sort_key)
		DO UPDATE SET fields = EXCLUDED.fields, lists = EXCLUDED.lists, updated_at = NOW()`, s.table)
	if _, err := s.db.Exec(ctx, query, item.Key.Partition, item.Key.Sort, fields, lists); err != nil {
		return fmt.Errorf("failed to put item %s: %w", item.Key, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key Key) error {
	if err := key.validate(); err != nil {
		return err
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE partition_key = $1 AND sort_key = $2`, s.table)
	if _, err := s.db.Exec(ctx, query, key.Partition, key.Sort); err != nil {
		return fmt.Errorf("failed to delete item %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Query(ctx context.Context, partition, sortPrefix string) ([]Item, error) {
	query := fmt.Sprintf(`
		SELECT sort_key, fields, lists FROM %s
		WHERE partition_key = $1 AND starts_with(sort_key, $2)
		ORDER BY sort_key`, s.table)
	rows, err := s.db.Query(ctx, query, partition, sortPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to query partition %s: %w", partition, err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var (
			sortKey       string
			fields, lists []byte
		)
		if err := rows.Scan(&sortKey, &fields, &lists); err != nil {
			return nil, err
		}
		item, err := unmarshalItem(Key{Partition: partition, Sort: sortKey}, fields, lists)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if p, ok := s.db.(pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close is a no-op; the pool belongs to the persistence layer.
func (s *PostgresStore) Close() error {
	return nil
}

func marshalItem(item Item) (string, string, error) {
	fields := item.Fields
	if fields == nil {
		fields = map[string]string{}
	}
	lists := item.Lists
	if lists == nil {
		lists = map[string][]string{}
	}
	f, err := json.Marshal(fields)
	if err != nil {
		return "", "", err
	}
	l, err := json.Marshal(lists)
	if err != nil {
		return "", "", err
	}
	return string(f), string(l), nil
}

func unmarshalItem(key Key, fields, lists []byte) (Item, error) {
	item := Item{Key: key, Fields: map[string]string{}, Lists: map[string][]string{}}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &item.Fields); err != nil {
			return Item{}, fmt.Errorf("decode fields of %s: %w", key, err)
		}
	}
	if len(lists) > 0 {
		if err := json.Unmarshal(lists, &item.Lists); err != nil {
			return Item{}, fmt.Errorf("decode lists of %s: %w", key, err)
		}
	}
	return item, nil
}
