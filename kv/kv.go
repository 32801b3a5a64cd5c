// Package kv is a small key-value store with hierarchical keys. The model
// registry keeps its activation state here. Keys are string segments joined
// with ':' for storage.
package kv

import (
	"context"
	"errors"
	"iter"
	"strings"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("kv: not found")

const separator = ":"

// Key is a hierarchical path such as Key{"registry", "active"}. Segments
// must not contain ':'.
type Key []string

func (k Key) String() string {
	return strings.Join(k, separator)
}

func (k Key) encode() []byte {
	return []byte(k.String())
}

// prefixBytes returns the encoded prefix with a trailing separator so that
// "a:b" does not match "a:bc". An empty key matches everything.
func (k Key) prefixBytes() []byte {
	if len(k) == 0 {
		return nil
	}
	return []byte(k.String() + separator)
}

func decodeKey(b []byte) Key {
	return Key(strings.Split(string(b), separator))
}

// Entry is a key-value pair returned by List and written by BatchSet.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is a key-value store. Implementations are safe for concurrent use.
type Store interface {
	// Get returns ErrNotFound for missing keys.
	Get(ctx context.Context, key Key) ([]byte, error)

	Set(ctx context.Context, key Key, value []byte) error

	// Delete does not fail on missing keys.
	Delete(ctx context.Context, key Key) error

	// List yields entries under prefix in lexicographic key order.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]

	// BatchSet writes all entries atomically.
	BatchSet(ctx context.Context, entries []Entry) error

	Close() error
}
