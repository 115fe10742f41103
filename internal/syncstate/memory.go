package syncstate

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore keeps items in process memory. It honors the conditional-write
// contract within one process and backs tests and single-instance deployments.
// Stored keys and values are copies, never the caller's strings.
type MemoryStore struct {
	mu    sync.Mutex
	items map[Key]Item
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[Key]Item)}
}

func (s *MemoryStore) CreateIfAbsent(_ context.Context, item Item) (bool, error) {
	if err := item.validate(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[item.Key]; exists {
		return false, nil
	}
	owned := item.clone()
	s.items[owned.Key] = owned
	return true, nil
}

func (s *MemoryStore) UpdateIf(_ context.Context, key Key, set map[string]string, cond Condition) (bool, error) {
	if err := key.validate(); err != nil {
		return false, err
	}
	for name := range set {
		if err := validateName(name); err != nil {
			return false, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, exists := s.items[key]
	if !exists {
		return false, nil
	}
	if !cond.satisfiedBy(current.Field(cond.Field)) {
		return false, nil
	}
	updated := current.clone()
	for k, v := range set {
		updated.Fields[strings.Clone(k)] = strings.Clone(v)
	}
	s.items[updated.Key] = updated
	return true, nil
}

func (s *MemoryStore) AppendIfAbsent(_ context.Context, key Key, list, value string) (bool, error) {
	if err := key.validate(); err != nil {
		return false, err
	}
	if err := validateName(list); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, exists := s.items[key]
	if !exists {
		return false, ErrNotFound
	}
	for _, v := range current.List(list) {
		if v == value {
			return false, nil
		}
	}
	updated := current.clone()
	name := strings.Clone(list)
	updated.Lists[name] = append(updated.Lists[name], strings.Clone(value))
	s.items[updated.Key] = updated
	return true, nil
}

func (s *MemoryStore) Get(_ context.Context, key Key) (Item, bool, error) {
	if err := key.validate(); err != nil {
		return Item{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	item, exists := s.items[key]
	if !exists {
		return Item{}, false, nil
	}
	return item.clone(), true, nil
}

func (s *MemoryStore) Put(_ context.Context, item Item) error {
	if err := item.validate(); err != nil {
		return err
	}
	owned := item.clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[owned.Key] = owned
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key Key) error {
	if err := key.validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

func (s *MemoryStore) Query(_ context.Context, partition, sortPrefix string) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []Item
	for key, item := range s.items {
		if key.Partition == partition && strings.HasPrefix(key.Sort, sortPrefix) {
			result = append(result, item.clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Key.Sort < result[j].Key.Sort
	})
	return result, nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
