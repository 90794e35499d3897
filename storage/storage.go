// Package storage defines the state store contract consumed by query
// execution and streaming ingestion: point reads, epoch-tagged batch
// ingestion, and prefix iteration in either key order.
package storage

import (
	"context"

	"github.com/cockroachdb/errors"
)

// ErrKeyNotFound is returned by Get when a key was never written or its
// newest visible version is a tombstone.
var ErrKeyNotFound = errors.New("storage: key not found")

// Mutation is one entry of a write batch. A nil Value deletes Key; a nil Key
// is the empty key.
type Mutation struct {
	Key   []byte
	Value []byte
}

// Put returns a mutation writing value under key. A nil value is stored as
// an empty payload, not as a delete.
func Put(key, value []byte) Mutation {
	if value == nil {
		value = []byte{}
	}
	return Mutation{Key: key, Value: value}
}

// Delete returns a mutation recording a tombstone for key.
func Delete(key []byte) Mutation {
	return Mutation{Key: key}
}

// IsDelete reports whether m records a tombstone.
func (m Mutation) IsDelete() bool { return m.Value == nil }

// KeyValue is an owned key/value pair produced by an Iter.
type KeyValue struct {
	Key   []byte
	Value []byte
}

// StateStore is safe for concurrent use by multiple goroutines.
type StateStore interface {
	// Get returns the newest visible value of key or ErrKeyNotFound.
	Get(ctx context.Context, key []byte) ([]byte, error)

	// IngestBatch atomically applies kvs under epoch. The batch is sorted
	// by key before it reaches the engine; callers may pass it in any
	// order. Writing the same key twice in one epoch, or writing to an
	// archived epoch, is a protocol violation and panics when conflict
	// detection is enabled.
	IngestBatch(ctx context.Context, kvs []Mutation, epoch uint64) error

	// Iter returns an ascending iterator over every key starting with
	// prefix.
	Iter(ctx context.Context, prefix []byte) (Iter, error)

	// ReverseIter returns a descending iterator over every key starting
	// with prefix.
	ReverseIter(ctx context.Context, prefix []byte) (Iter, error)
}

// Iter is a one-shot cursor owned by a single goroutine.
type Iter interface {
	// Next returns the current pair and advances. ok is false once the
	// iterator is exhausted, and stays false on every later call.
	Next(ctx context.Context) (kv KeyValue, ok bool, err error)

	// Close releases the underlying snapshot.
	Close() error
}

// Collect drains it into a slice. It does not close it.
func Collect(ctx context.Context, it Iter) ([]KeyValue, error) {
	var out []KeyValue
	for {
		kv, ok, err := it.Next(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, kv)
	}
}
