// Package syncstate is the key-value persistence layer shared by all bridge
// instances. Every cross-process coordination decision goes through the
// single-item conditional operations declared by Store.
package syncstate

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when an operation requires an existing item.
var ErrNotFound = errors.New("syncstate: item not found")

// ErrInvalidKey is returned for empty partitions/sort keys or reserved names.
var ErrInvalidKey = errors.New("syncstate: invalid key")

// Key addresses one item: the partition is the tenant, the sort key the item kind plus id.
type Key struct {
	Partition string
	Sort      string
}

func (k Key) String() string {
	return k.Partition + "/" + k.Sort
}

func (k Key) validate() error {
	if strings.TrimSpace(k.Partition) == "" || strings.TrimSpace(k.Sort) == "" {
		return fmt.Errorf("%w: %q", ErrInvalidKey, k.String())
	}
	return nil
}

// Item is a stored record: scalar string fields plus append-only string lists.
type Item struct {
	Key    Key
	Fields map[string]string
	Lists  map[string][]string
}

// Field returns a scalar field, empty when absent.
func (i Item) Field(name string) string {
	if i.Fields == nil {
		return ""
	}
	return i.Fields[name]
}

// List returns a list field, nil when absent.
func (i Item) List(name string) []string {
	if i.Lists == nil {
		return nil
	}
	return i.Lists[name]
}

func (k Key) clone() Key {
	return Key{Partition: strings.Clone(k.Partition), Sort: strings.Clone(k.Sort)}
}

// clone deep-copies the item including its strings, so a stored item never
// shares memory with caller buffers.
func (i Item) clone() Item {
	out := Item{Key: i.Key.clone(), Fields: make(map[string]string, len(i.Fields)), Lists: make(map[string][]string, len(i.Lists))}
	for k, v := range i.Fields {
		out.Fields[strings.Clone(k)] = strings.Clone(v)
	}
	for k, v := range i.Lists {
		values := make([]string, len(v))
		for j := range v {
			values[j] = strings.Clone(v[j])
		}
		out.Lists[strings.Clone(k)] = values
	}
	return out
}

func (i Item) validate() error {
	if err := i.Key.validate(); err != nil {
		return err
	}
	for name := range i.Fields {
		if err := validateName(name); err != nil {
			return err
		}
	}
	for name := range i.Lists {
		if err := validateName(name); err != nil {
			return err
		}
	}
	return nil
}

// Condition holds when the current value of Field is one of Allowed.
// An absent field compares as the empty string.
type Condition struct {
	Field   string
	Allowed []string
}

// FieldEmpty holds while field is absent or empty.
func FieldEmpty(field string) Condition {
	return Condition{Field: field, Allowed: []string{""}}
}

// FieldIn holds while field equals one of values.
func FieldIn(field string, values ...string) Condition {
	return Condition{Field: field, Allowed: values}
}

func (c Condition) satisfiedBy(current string) bool {
	for _, allowed := range c.Allowed {
		if allowed == current {
			return true
		}
	}
	return false
}

// Store is a partitioned key-value store with single-item conditional writes.
//
// CreateIfAbsent, UpdateIf and AppendIfAbsent are atomic per item on every
// backend. Put and Delete are last-writer-wins and are meant for read-mostly
// configuration items only.
type Store interface {
	// CreateIfAbsent writes item only if its key does not exist. It reports whether it wrote.
	CreateIfAbsent(ctx context.Context, item Item) (bool, error)
	// UpdateIf sets fields on an existing item only if cond holds. A missing item reports false.
	UpdateIf(ctx context.Context, key Key, set map[string]string, cond Condition) (bool, error)
	// AppendIfAbsent appends value to the named list unless already present.
	// It reports whether it appended and returns ErrNotFound for a missing item.
	AppendIfAbsent(ctx context.Context, key Key, list, value string) (bool, error)
	// Get returns the item and whether it exists.
	Get(ctx context.Context, key Key) (Item, bool, error)
	// Put overwrites the whole item.
	Put(ctx context.Context, item Item) error
	// Delete removes the item; deleting a missing item is not an error.
	Delete(ctx context.Context, key Key) error
	// Query returns the partition's items whose sort key starts with prefix, ordered by sort key.
	Query(ctx context.Context, partition, sortPrefix string) ([]Item, error)
	Ping(ctx context.Context) error
	Close() error
}

func validateName(name string) error {
	if name == "" || strings.HasPrefix(name, "__") || strings.ContainsAny(name, ",#") {
		return fmt.Errorf("%w: attribute name %q", ErrInvalidKey, name)
	}
	return nil
}
