package hummock

import (
	"bytes"
	"context"
	"slices"

	"github.com/beyondbrewing/hummock/hummock/iterator"
	"github.com/beyondbrewing/hummock/hummock/key"
	"github.com/beyondbrewing/hummock/storage"
	"github.com/prometheus/client_golang/prometheus"
)

var _ storage.StateStore = (*StateStore)(nil)

// StateStore adapts a Storage to the storage.StateStore contract.
type StateStore struct {
	storage *Storage
}

// NewStateStore wraps s.
func NewStateStore(s *Storage) *StateStore {
	return &StateStore{storage: s}
}

// Storage returns the wrapped engine.
func (s *StateStore) Storage() *Storage { return s.storage }

func (s *StateStore) Get(ctx context.Context, userKey []byte) ([]byte, error) {
	return s.storage.Get(ctx, userKey)
}

// IngestBatch sorts a copy of kvs by key and hands it to the engine. Entries
// with equal keys keep their relative order.
func (s *StateStore) IngestBatch(ctx context.Context, kvs []storage.Mutation, epoch uint64) error {
	sorted := slices.Clone(kvs)
	slices.SortStableFunc(sorted, func(a, b storage.Mutation) int {
		return bytes.Compare(a.Key, b.Key)
	})
	return s.storage.WriteBatch(ctx, sorted, epoch)
}

// Iter returns every key in [prefix, key.NextKey(prefix)) in ascending order.
func (s *StateStore) Iter(ctx context.Context, prefix []byte) (storage.Iter, error) {
	return s.iter(ctx, prefix, s.storage.RangeScan)
}

// ReverseIter returns every key in [prefix, key.NextKey(prefix)) in
// descending order.
func (s *StateStore) ReverseIter(ctx context.Context, prefix []byte) (storage.Iter, error) {
	return s.iter(ctx, prefix, s.storage.ReverseRangeScan)
}

type scanFunc func(ctx context.Context, lower, upper []byte) (*iterator.DirectedUserIterator, error)

func (s *StateStore) iter(ctx context.Context, prefix []byte, scan scanFunc) (*StateStoreIter, error) {
	stats := s.storage.Stats()
	timer := prometheus.NewTimer(stats.IterSeekLatency)

	inner, err := scan(ctx, prefix, key.NextKey(prefix))
	if err != nil {
		return nil, err
	}
	if err := inner.Rewind(ctx); err != nil {
		_ = inner.Close()
		return nil, err
	}

	timer.ObserveDuration()
	stats.IterCounts.Inc()
	return &StateStoreIter{inner: inner}, nil
}

// StateStoreIter yields owned copies of the pairs under a DirectedUserIterator.
type StateStoreIter struct {
	inner *iterator.DirectedUserIterator
	done  bool
}

// Direction reports which way the iterator walks.
func (it *StateStoreIter) Direction() iterator.Direction { return it.inner.Direction() }

func (it *StateStoreIter) Next(ctx context.Context) (storage.KeyValue, bool, error) {
	if it.done || !it.inner.Valid() {
		it.done = true
		return storage.KeyValue{}, false, nil
	}
	kv := storage.KeyValue{
		Key:   bytes.Clone(it.inner.Key()),
		Value: append([]byte{}, it.inner.Value()...),
	}
	if err := it.inner.Next(ctx); err != nil {
		return storage.KeyValue{}, false, err
	}
	return kv, true, nil
}

func (it *StateStoreIter) Close() error {
	it.done = true
	return it.inner.Close()
}
