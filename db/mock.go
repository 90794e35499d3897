package db

import (
	"bytes"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/google/btree"
)

// Compile-time interface check.
var _ Store = (*MockStore)(nil)

const mockDegree = 32

// MockStore is a thread-safe, in-memory implementation of [Store] built on
// copy-on-write B-trees, one per column family. It requires no disk and is
// used by unit tests and the in-memory hummock engine.
//
//	store := db.NewMockStore("version", "meta")
//	defer store.Close()
type MockStore struct {
	mu     sync.RWMutex
	trees  map[string]*btree.BTreeG[mockEntry]
	closed atomic.Bool
}

type mockEntry struct {
	key   []byte
	value []byte
}

func lessEntry(a, b mockEntry) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// NewMockStore creates a MockStore with the given column families.
// The [DefaultColumnFamily] ("default") is always included.
func NewMockStore(cfs ...string) *MockStore {
	m := &MockStore{
		trees: make(map[string]*btree.BTreeG[mockEntry], 1+len(cfs)),
	}
	m.trees[DefaultColumnFamily] = btree.NewG(mockDegree, lessEntry)
	for _, cf := range cfs {
		if cf != DefaultColumnFamily {
			m.trees[cf] = btree.NewG(mockDegree, lessEntry)
		}
	}
	return m
}

func (m *MockStore) tree(cf string) (*btree.BTreeG[mockEntry], error) {
	t, ok := m.trees[cf]
	if !ok {
		return nil, errors.Wrapf(ErrColumnFamilyNotFound, "%q", cf)
	}
	return t, nil
}

// ---------------------------------------------------------------------------
// Store implementation
// ---------------------------------------------------------------------------

func (m *MockStore) Get(cf string, key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed.Load() {
		return nil, ErrClosed
	}
	if key == nil {
		return nil, ErrNilKey
	}

	t, err := m.tree(cf)
	if err != nil {
		return nil, err
	}

	e, ok := t.Get(mockEntry{key: key})
	if !ok {
		return nil, ErrKeyNotFound
	}
	return cloneBytes(e.value), nil
}

func (m *MockStore) Put(cf string, key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed.Load() {
		return ErrClosed
	}
	if key == nil {
		return ErrNilKey
	}

	t, err := m.tree(cf)
	if err != nil {
		return err
	}
	t.ReplaceOrInsert(mockEntry{key: cloneBytes(key), value: cloneBytes(value)})
	return nil
}

func (m *MockStore) Delete(cf string, key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed.Load() {
		return ErrClosed
	}
	if key == nil {
		return ErrNilKey
	}

	t, err := m.tree(cf)
	if err != nil {
		return err
	}
	t.Delete(mockEntry{key: key})
	return nil
}

func (m *MockStore) Has(cf string, key []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed.Load() {
		return false, ErrClosed
	}
	if key == nil {
		return false, ErrNilKey
	}

	t, err := m.tree(cf)
	if err != nil {
		return false, err
	}
	return t.Has(mockEntry{key: key}), nil
}

func (m *MockStore) NewBatch() Batch {
	return &mockBatch{store: m}
}

func (m *MockStore) NewIterator(cf string, opts *IterOptions) (Iterator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed.Load() {
		return nil, ErrClosed
	}

	t, err := m.tree(cf)
	if err != nil {
		return nil, err
	}

	var lower, upper []byte
	if opts != nil {
		lower, upper = opts.LowerBound, opts.UpperBound
	}

	// Snapshot: copy the bounded range while holding the read lock.
	var entries []mockEntry
	t.AscendGreaterOrEqual(mockEntry{key: lower}, func(e mockEntry) bool {
		if len(upper) > 0 && bytes.Compare(e.key, upper) >= 0 {
			return false
		}
		entries = append(entries, mockEntry{key: cloneBytes(e.key), value: cloneBytes(e.value)})
		return true
	})

	return &mockIterator{entries: entries, pos: -1}, nil
}

func (m *MockStore) Flush() error {
	if m.closed.Load() {
		return ErrClosed
	}
	return nil // in-memory, nothing to flush
}

func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed.Load() {
		return ErrClosed
	}
	m.closed.Store(true)
	m.trees = nil
	return nil
}

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// Len returns the number of keys in the given column family. Returns -1 if
// the column family does not exist or the store is closed.
func (m *MockStore) Len(cf string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed.Load() {
		return -1
	}
	t, ok := m.trees[cf]
	if !ok {
		return -1
	}
	return t.Len()
}

// Reset clears all data in every column family without closing the store.
func (m *MockStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.trees {
		t.Clear(false)
	}
}

// ---------------------------------------------------------------------------
// Batch implementation
// ---------------------------------------------------------------------------

type mockOp struct {
	del   bool
	cf    string
	key   []byte
	value []byte
}

type mockBatch struct {
	store  *MockStore
	ops    []mockOp
	closed bool
}

func (b *mockBatch) stage(op mockOp) error {
	if b.closed {
		return ErrBatchClosed
	}
	if op.key == nil {
		return ErrNilKey
	}
	// CF map keys are immutable after construction, safe without lock.
	if _, ok := b.store.trees[op.cf]; !ok {
		return errors.Wrapf(ErrColumnFamilyNotFound, "%q", op.cf)
	}
	op.key = cloneBytes(op.key)
	op.value = cloneBytes(op.value)
	b.ops = append(b.ops, op)
	return nil
}

func (b *mockBatch) Put(cf string, key, value []byte) error {
	return b.stage(mockOp{cf: cf, key: key, value: value})
}

func (b *mockBatch) Delete(cf string, key []byte) error {
	return b.stage(mockOp{del: true, cf: cf, key: key})
}

func (b *mockBatch) Count() int {
	return len(b.ops)
}

func (b *mockBatch) Commit() error {
	if b.closed {
		return ErrBatchClosed
	}

	b.store.mu.Lock()
	defer b.store.mu.Unlock()

	if b.store.closed.Load() {
		return ErrClosed
	}

	for _, op := range b.ops {
		t := b.store.trees[op.cf]
		if op.del {
			t.Delete(mockEntry{key: op.key})
		} else {
			t.ReplaceOrInsert(mockEntry{key: op.key, value: op.value})
		}
	}
	return nil
}

func (b *mockBatch) Close() {
	b.closed = true
	b.ops = nil
}

// ---------------------------------------------------------------------------
// Iterator implementation
// ---------------------------------------------------------------------------

type mockIterator struct {
	entries []mockEntry
	pos     int
}

func (it *mockIterator) Seek(target []byte) {
	it.pos = sort.Search(len(it.entries), func(i int) bool {
		return bytes.Compare(it.entries[i].key, target) >= 0
	})
}

func (it *mockIterator) SeekToFirst() { it.pos = 0 }

func (it *mockIterator) SeekToLast() {
	it.pos = len(it.entries) - 1
}

func (it *mockIterator) Next() { it.pos++ }
func (it *mockIterator) Prev() { it.pos-- }

func (it *mockIterator) Valid() bool {
	return it.pos >= 0 && it.pos < len(it.entries)
}

func (it *mockIterator) Key() []byte {
	if !it.Valid() {
		return nil
	}
	return cloneBytes(it.entries[it.pos].key)
}

func (it *mockIterator) Value() []byte {
	if !it.Valid() {
		return nil
	}
	return cloneBytes(it.entries[it.pos].value)
}

func (it *mockIterator) Err() error { return nil }
func (it *mockIterator) Close() error {
	it.entries = nil
	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
