package syncstate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Layout per item:
//
//	{prefix}:{partition}:item:{sort}          HASH of fields plus __sk and __lists
//	{prefix}:{partition}:item:{sort}#{list}   LIST per list field
//	{prefix}:{partition}:index                ZSET of sort keys, queried by lex range
//
// The partition is wrapped in a hash tag so one tenant's keys share a cluster slot.
const (
	sortKeyField   = "__sk"
	listNamesField = "__lists"
)

// writeItemLua is shared by the create and put scripts. ARGV layout from pos:
// nFields, field/value pairs, nLists, then per list: name, count, values.
const writeItemLua = `
local function write_item(key, pos)
  local nf = tonumber(ARGV[pos]); pos = pos + 1
  for i = 1, nf do
    redis.call('HSET', key, ARGV[pos], ARGV[pos + 1])
    pos = pos + 2
  end
  local nl = tonumber(ARGV[pos]); pos = pos + 1
  local names = {}
  for i = 1, nl do
    local name = ARGV[pos]
    local count = tonumber(ARGV[pos + 1])
    pos = pos + 2
    local lk = key .. '#' .. name
    redis.call('DEL', lk)
    for j = 1, count do
      redis.call('RPUSH', lk, ARGV[pos])
      pos = pos + 1
    end
    table.insert(names, name)
  end
  redis.call('HSET', key, '__lists', table.concat(names, ','))
end

local function drop_item(key)
  local names = redis.call('HGET', key, '__lists')
  if names then
    for name in string.gmatch(names, '[^,]+') do
      redis.call('DEL', key .. '#' .. name)
    end
  end
  redis.call('DEL', key)
end
`

var createScript = redis.NewScript(writeItemLua + `
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], '__sk', ARGV[1])
write_item(KEYS[1], 2)
redis.call('ZADD', KEYS[2], 0, ARGV[1])
return 1
`)

var putScript = redis.NewScript(writeItemLua + `
drop_item(KEYS[1])
redis.call('HSET', KEYS[1], '__sk', ARGV[1])
write_item(KEYS[1], 2)
redis.call('ZADD', KEYS[2], 0, ARGV[1])
return 1
`)

var deleteScript = redis.NewScript(writeItemLua + `
drop_item(KEYS[1])
redis.call('ZREM', KEYS[2], ARGV[1])
return 1
`)

// ARGV: condition field, nAllowed, allowed values, nFields, field/value pairs.
var updateIfScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
local current = redis.call('HGET', KEYS[1], ARGV[1])
if not current then
  current = ''
end
local n = tonumber(ARGV[2])
local ok = false
for i = 1, n do
  if ARGV[2 + i] == current then
    ok = true
  end
end
if not ok then
  return 0
end
local pos = 3 + n
local nf = tonumber(ARGV[pos]); pos = pos + 1
for i = 1, nf do
  redis.call('HSET', KEYS[1], ARGV[pos], ARGV[pos + 1])
  pos = pos + 2
end
return 1
`)

// ARGV: list name, value. Returns -1 for a missing item.
var appendIfAbsentScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
local lk = KEYS[1] .. '#' .. ARGV[1]
local values = redis.call('LRANGE', lk, 0, -1)
for _, v in ipairs(values) do
  if v == ARGV[2] then
    return 0
  end
end
redis.call('RPUSH', lk, ARGV[2])
local names = redis.call('HGET', KEYS[1], '__lists')
if not names or names == '' then
  redis.call('HSET', KEYS[1], '__lists', ARGV[1])
  return 1
end
for name in string.gmatch(names, '[^,]+') do
  if name == ARGV[1] then
    return 1
  end
end
redis.call('HSET', KEYS[1], '__lists', names .. ',' .. ARGV[1])
return 1
`)

// RedisStore implements Store on Redis using Lua scripts for the conditional writes.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore wraps an existing client. The store does not own the client.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "bridge"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) itemKey(key Key) string {
	return fmt.Sprintf("%s:{%s}:item:%s", s.prefix, key.Partition, key.Sort)
}

func (s *RedisStore) indexKey(partition string) string {
	return fmt.Sprintf("%s:{%s}:index", s.prefix, partition)
}

func (s *RedisStore) CreateIfAbsent(ctx context.Context, item Item) (bool, error) {
	if err := item.validate(); err != nil {
		return false, err
	}
	args := append([]interface{}{item.Key.Sort}, encodeItemArgs(item)...)
	res, err := createScript.Run(ctx, s.client, []string{s.itemKey(item.Key), s.indexKey(item.Key.Partition)}, args...).Int()
	if err != nil {
		return false, fmt.Errorf("failed to create item %s: %w", item.Key, err)
	}
	return res == 1, nil
}

func (s *RedisStore) UpdateIf(ctx context.Context, key Key, set map[string]string, cond Condition) (bool, error) {
	if err := key.validate(); err != nil {
		return false, err
	}
	args := []interface{}{cond.Field, len(cond.Allowed)}
	for _, v := range cond.Allowed {
		args = append(args, v)
	}
	fields, err := encodeFields(set)
	if err != nil {
		return false, err
	}
	args = append(args, fields...)

	res, err := updateIfScript.Run(ctx, s.client, []string{s.itemKey(key)}, args...).Int()
	if err != nil {
		return false, fmt.Errorf("failed to update item %s: %w", key, err)
	}
	return res == 1, nil
}

func (s *RedisStore) AppendIfAbsent(ctx context.Context, key Key, list, value string) (bool, error) {
	if err := key.validate(); err != nil {
		return false, err
	}
	if err := validateName(list); err != nil {
		return false, err
	}
	res, err := appendIfAbsentScript.Run(ctx, s.client, []string{s.itemKey(key)}, list, value).Int()
	if err != nil {
		return false, fmt.Errorf("failed to append to %s.%s: %w", key, list, err)
	}
	if res < 0 {
		return false, ErrNotFound
	}
	return res == 1, nil
}

func (s *RedisStore) Get(ctx context.Context, key Key) (Item, bool, error) {
	if err := key.validate(); err != nil {
		return Item{}, false, err
	}
	hash := s.itemKey(key)
	raw, err := s.client.HGetAll(ctx, hash).Result()
	if err != nil {
		return Item{}, false, fmt.Errorf("failed to get item %s: %w", key, err)
	}
	if len(raw) == 0 {
		return Item{}, false, nil
	}

	item := Item{Key: key, Fields: make(map[string]string, len(raw)), Lists: map[string][]string{}}
	for field, value := range raw {
		if strings.HasPrefix(field, "__") {
			continue
		}
		item.Fields[field] = value
	}

	names := splitListNames(raw[listNamesField])
	if len(names) == 0 {
		return item, true, nil
	}
	pipe := s.client.Pipeline()
	cmds := make(map[string]*redis.StringSliceCmd, len(names))
	for _, name := range names {
		cmds[name] = pipe.LRange(ctx, hash+"#"+name, 0, -1)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return Item{}, false, fmt.Errorf("failed to read lists of %s: %w", key, err)
	}
	for name, cmd := range cmds {
		values, err := cmd.Result()
		if err != nil && err != redis.Nil {
			return Item{}, false, fmt.Errorf("failed to read list %s.%s: %w", key, name, err)
		}
		item.Lists[name] = values
	}
	return item, true, nil
}

func (s *RedisStore) Put(ctx context.Context, item Item) error {
	if err := item.validate(); err != nil {
		return err
	}
	args := append([]interface{}{item.Key.Sort}, encodeItemArgs(item)...)
	if err := putScript.Run(ctx, s.client, []string{s.itemKey(item.Key), s.indexKey(item.Key.Partition)}, args...).Err(); err != nil {
		return fmt.Errorf("failed to put item %s: %w", item.Key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key Key) error {
	if err := key.validate(); err != nil {
		return err
	}
	if err := deleteScript.Run(ctx, s.client, []string{s.itemKey(key), s.indexKey(key.Partition)}, key.Sort).Err(); err != nil {
		return fmt.Errorf("failed to delete item %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Query(ctx context.Context, partition, sortPrefix string) ([]Item, error) {
	rangeBy := &redis.ZRangeBy{Min: "[" + sortPrefix, Max: "[" + sortPrefix + "\xff"}
	if sortPrefix == "" {
		rangeBy = &redis.ZRangeBy{Min: "-", Max: "+"}
	}
	sortKeys, err := s.client.ZRangeByLex(ctx, s.indexKey(partition), rangeBy).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query partition %s: %w", partition, err)
	}

	items := make([]Item, 0, len(sortKeys))
	for _, sk := range sortKeys {
		item, ok, err := s.Get(ctx, Key{Partition: partition, Sort: sk})
		if err != nil {
			return nil, err
		}
		if ok {
			items = append(items, item)
		}
	}
	return items, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op; the client belongs to the persistence layer.
func (s *RedisStore) Close() error {
	return nil
}

func encodeFields(fields map[string]string) ([]interface{}, error) {
	names := make([]string, 0, len(fields))
	for name := range fields {
		if err := validateName(name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	sort.Strings(names)
	args := []interface{}{len(names)}
	for _, name := range names {
		args = append(args, name, fields[name])
	}
	return args, nil
}

func encodeItemArgs(item Item) []interface{} {
	// names were validated by the caller
	args, _ := encodeFields(item.Fields)

	names := make([]string, 0, len(item.Lists))
	for name := range item.Lists {
		names = append(names, name)
	}
	sort.Strings(names)
	args = append(args, len(names))
	for _, name := range names {
		values := item.Lists[name]
		args = append(args, name, len(values))
		for _, v := range values {
			args = append(args, v)
		}
	}
	return args
}

func splitListNames(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}
