package syncstate

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unsafe"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ticketKey(id string) Key {
	return Key{Partition: "T1", Sort: "TICKET#" + id}
}

func newMiniredisStore(t *testing.T) Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "test")
}

var postgresTableCounter uint64

func newPostgresStore(t *testing.T) Store {
	t.Helper()
	dsn := os.Getenv("SYNC_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SYNC_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)

	table := fmt.Sprintf("sync_items_it_%d_%d", time.Now().UnixNano(), atomic.AddUint64(&postgresTableCounter, 1))
	store := NewPostgresStore(pool, table)
	require.NoError(t, store.EnsureSchema(ctx))
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), "DROP TABLE IF EXISTS "+store.table)
		pool.Close()
	})
	return store
}

func TestStoreContract(t *testing.T) {
	backends := map[string]func(t *testing.T) Store{
		"memory":   func(*testing.T) Store { return NewMemoryStore() },
		"redis":    newMiniredisStore,
		"postgres": newPostgresStore,
	}
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			t.Run("create if absent", func(t *testing.T) { testCreateIfAbsent(t, open(t)) })
			t.Run("update if", func(t *testing.T) { testUpdateIf(t, open(t)) })
			t.Run("append if absent", func(t *testing.T) { testAppendIfAbsent(t, open(t)) })
			t.Run("put query delete", func(t *testing.T) { testPutQueryDelete(t, open(t)) })
			t.Run("concurrent create has one winner", func(t *testing.T) { testConcurrentCreate(t, open(t)) })
			t.Run("concurrent claim has one winner", func(t *testing.T) { testConcurrentClaim(t, open(t)) })
		})
	}
}

func testCreateIfAbsent(t *testing.T, store Store) {
	ctx := context.Background()
	item := Item{Key: ticketKey("1001"), Fields: map[string]string{"ticket_id": "1001"}}

	created, err := store.CreateIfAbsent(ctx, item)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.CreateIfAbsent(ctx, Item{Key: ticketKey("1001"), Fields: map[string]string{"ticket_id": "other"}})
	require.NoError(t, err)
	assert.False(t, created)

	got, ok, err := store.Get(ctx, ticketKey("1001"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1001", got.Field("ticket_id"))

	_, ok, err = store.Get(ctx, ticketKey("missing"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func testUpdateIf(t *testing.T, store Store) {
	ctx := context.Background()
	key := ticketKey("2002")

	updated, err := store.UpdateIf(ctx, key, map[string]string{"thread_ts": "1.1"}, FieldEmpty("thread_ts"))
	require.NoError(t, err)
	assert.False(t, updated, "missing item must not be updated")

	_, err = store.CreateIfAbsent(ctx, Item{Key: key})
	require.NoError(t, err)

	updated, err = store.UpdateIf(ctx, key, map[string]string{"thread_ts": "1.1", "channel": "C1"}, FieldEmpty("thread_ts"))
	require.NoError(t, err)
	assert.True(t, updated)

	updated, err = store.UpdateIf(ctx, key, map[string]string{"thread_ts": "2.2"}, FieldEmpty("thread_ts"))
	require.NoError(t, err)
	assert.False(t, updated)

	updated, err = store.UpdateIf(ctx, key, map[string]string{"thread_ts": "1.1"}, FieldIn("thread_ts", "", "1.1"))
	require.NoError(t, err)
	assert.True(t, updated, "re-asserting the current value must hold")

	got, _, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "1.1", got.Field("thread_ts"))
	assert.Equal(t, "C1", got.Field("channel"))
}

func testAppendIfAbsent(t *testing.T, store Store) {
	ctx := context.Background()
	key := ticketKey("3003")

	_, err := store.AppendIfAbsent(ctx, key, "notes", "n1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.CreateIfAbsent(ctx, Item{Key: key})
	require.NoError(t, err)

	for _, id := range []string{"n1", "n2", "n1"} {
		_, err := store.AppendIfAbsent(ctx, key, "notes", id)
		require.NoError(t, err)
	}
	appended, err := store.AppendIfAbsent(ctx, key, "notes", "n2")
	require.NoError(t, err)
	assert.False(t, appended)

	got, _, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []string{"n1", "n2"}, got.List("notes"))
}

func testPutQueryDelete(t *testing.T, store Store) {
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, Item{
		Key:    Key{Partition: "T1", Sort: "CONFIG"},
		Fields: map[string]string{"default_channel": "C1"},
		Lists:  map[string][]string{"companies": {"19300", "250"}},
	}))
	require.NoError(t, store.Put(ctx, Item{Key: Key{Partition: "T1", Sort: "RULE#0002#b"}}))
	require.NoError(t, store.Put(ctx, Item{Key: Key{Partition: "T1", Sort: "RULE#0001#a"}}))
	require.NoError(t, store.Put(ctx, Item{Key: Key{Partition: "T2", Sort: "RULE#0001#x"}}))

	rules, err := store.Query(ctx, "T1", "RULE#")
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "RULE#0001#a", rules[0].Key.Sort)
	assert.Equal(t, "RULE#0002#b", rules[1].Key.Sort)

	require.NoError(t, store.Put(ctx, Item{
		Key:   Key{Partition: "T1", Sort: "CONFIG"},
		Lists: map[string][]string{"companies": {"19300"}},
	}))
	cfg, ok, err := store.Get(ctx, Key{Partition: "T1", Sort: "CONFIG"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, cfg.Field("default_channel"), "put replaces the whole item")
	assert.Equal(t, []string{"19300"}, cfg.List("companies"))

	require.NoError(t, store.Delete(ctx, Key{Partition: "T1", Sort: "RULE#0001#a"}))
	require.NoError(t, store.Delete(ctx, Key{Partition: "T1", Sort: "RULE#9999#none"}))
	rules, err = store.Query(ctx, "T1", "RULE#")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "RULE#0002#b", rules[0].Key.Sort)
}

func testConcurrentCreate(t *testing.T, store Store) {
	ctx := context.Background()
	var wins int64
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := store.CreateIfAbsent(ctx, Item{Key: ticketKey("race")})
			if err == nil && created {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1), wins)
}

func testConcurrentClaim(t *testing.T, store Store) {
	ctx := context.Background()
	key := ticketKey("claim")
	_, err := store.CreateIfAbsent(ctx, Item{Key: key})
	require.NoError(t, err)

	var wins int64
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ts := fmt.Sprintf("17000000%02d.000100", i)
			ok, err := store.UpdateIf(ctx, key, map[string]string{"thread_ts": ts}, FieldEmpty("thread_ts"))
			if err == nil && ok {
				atomic.AddInt64(&wins, 1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int64(1), wins)
}

func TestInvalidNamesRejected(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.CreateIfAbsent(context.Background(), Item{Key: Key{Partition: "", Sort: "CONFIG"}})
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = store.CreateIfAbsent(context.Background(), Item{Key: ticketKey("1"), Fields: map[string]string{"__sk": "x"}})
	assert.ErrorIs(t, err, ErrInvalidKey)
}

// borrowed returns a string that aliases buf, like the request-scoped strings
// handed out by fasthttp.
func borrowed(buf []byte) string {
	return unsafe.String(&buf[0], len(buf))
}

func TestMemoryStoreOwnsStrings(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	partition := []byte("AA")
	value := []byte("C-ONE")
	require.NoError(t, store.Put(ctx, Item{
		Key:    Key{Partition: borrowed(partition), Sort: "CONFIG"},
		Fields: map[string]string{"channel": borrowed(value)},
	}))
	created, err := store.CreateIfAbsent(ctx, Item{Key: Key{Partition: borrowed(partition), Sort: "TICKET#1"}})
	require.NoError(t, err)
	require.True(t, created)

	copy(partition, "BB")
	copy(value, "C-TWO")

	item, ok, err := store.Get(ctx, Key{Partition: "AA", Sort: "CONFIG"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "C-ONE", item.Field("channel"))

	created, err = store.CreateIfAbsent(ctx, Item{Key: Key{Partition: "AA", Sort: "TICKET#1"}})
	require.NoError(t, err)
	assert.False(t, created, "existing record must stay reachable")

	items, err := store.Query(ctx, "BB", "")
	require.NoError(t, err)
	assert.Empty(t, items)
}
