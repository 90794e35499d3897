// Package hummock is the epoch-versioned storage engine behind the state
// store. Every write lands under an epoch; readers see the newest version at
// or below their read epoch. Data lives in a db.Store (Pebble in production,
// the in-memory MockStore in tests) under a versioned key layout, see
// package key.
package hummock

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/beyondbrewing/hummock/db"
	"github.com/beyondbrewing/hummock/hummock/conflict"
	"github.com/beyondbrewing/hummock/hummock/iterator"
	"github.com/beyondbrewing/hummock/hummock/key"
	"github.com/beyondbrewing/hummock/hummock/value"
	"github.com/beyondbrewing/hummock/pkg/logger"
	"github.com/beyondbrewing/hummock/storage"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

// Column families used by the engine.
const (
	VersionColumnFamily = "version"
	MetaColumnFamily    = "meta"
)

// ColumnFamilies must be registered on any db.Store handed to NewStorage.
var ColumnFamilies = []string{VersionColumnFamily, MetaColumnFamily}

var maxCommittedEpochKey = []byte("max_committed_epoch")

// Storage is safe for concurrent use. It owns the db.Store it was built
// with and closes it on Close.
type Storage struct {
	id       uuid.UUID
	store    db.Store
	detector *conflict.Detector
	stats    *Stats
	logger   logger.Logger

	maxCommitted *atomic.Uint64
	// advanceMu orders batches that raise the max committed epoch so the
	// persisted value never goes backwards.
	advanceMu sync.Mutex
}

// NewStorage builds an engine over store, which must have every family in
// ColumnFamilies registered.
func NewStorage(store db.Store, opts ...Option) (*Storage, error) {
	cfg := &Config{}
	for _, o := range opts {
		o(cfg)
	}

	id := uuid.New()
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}
	log = log.With("component", "hummock", "instance", id.String())

	maxCommitted, err := loadMaxCommittedEpoch(store)
	if err != nil {
		return nil, err
	}

	s := &Storage{
		id:           id,
		store:        store,
		detector:     conflict.NewFromConfig(cfg.WriteConflictDetectionEnabled, conflict.WithLogger(log)),
		stats:        NewStats(cfg.Registerer),
		logger:       log,
		maxCommitted: atomic.NewUint64(maxCommitted),
	}

	log.Info("storage ready",
		"write_conflict_detection", s.detector != nil,
		"max_committed_epoch", maxCommitted,
	)
	return s, nil
}

// Open opens (or creates) a Pebble database at path and builds an engine
// over it.
func Open(path string, opts ...Option) (*Storage, error) {
	cfg := &Config{}
	for _, o := range opts {
		o(cfg)
	}
	dbOpts := append([]db.Option{db.WithColumnFamilies(ColumnFamilies...)}, cfg.DBOptions...)
	if cfg.Logger != nil {
		dbOpts = append(dbOpts, db.WithLogger(cfg.Logger))
	}

	store, err := db.Open(path, dbOpts...)
	if err != nil {
		return nil, err
	}
	s, err := NewStorage(store, opts...)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return s, nil
}

// NewMemoryStorage builds an engine over an in-memory MockStore.
func NewMemoryStorage(opts ...Option) *Storage {
	s, err := NewStorage(db.NewMockStore(ColumnFamilies...), opts...)
	if err != nil {
		// An empty MockStore has no meta to load.
		panic(err)
	}
	return s
}

func loadMaxCommittedEpoch(store db.Store) (key.Epoch, error) {
	raw, err := store.Get(MetaColumnFamily, maxCommittedEpochKey)
	switch {
	case errors.Is(err, db.ErrKeyNotFound):
		return key.MinEpoch, nil
	case err != nil:
		return 0, errors.Wrap(err, "hummock: load max committed epoch")
	case len(raw) != 8:
		return 0, errors.Newf("hummock: max committed epoch has %d bytes", len(raw))
	}
	return binary.BigEndian.Uint64(raw), nil
}

// Get returns the newest version of userKey.
func (s *Storage) Get(ctx context.Context, userKey []byte) ([]byte, error) {
	return s.GetAt(ctx, userKey, key.MaxEpoch)
}

// GetAt returns the newest version of userKey written at or below epoch, or
// storage.ErrKeyNotFound if there is none or it is a tombstone.
func (s *Storage) GetAt(ctx context.Context, userKey []byte, epoch key.Epoch) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	timer := prometheus.NewTimer(s.stats.GetLatency)
	defer timer.ObserveDuration()
	s.stats.GetCounts.Inc()

	lower, upper := key.VersionRange(userKey, epoch)
	it, err := s.store.NewIterator(VersionColumnFamily, &db.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, errors.Wrap(err, "hummock: get")
	}
	defer it.Close()

	it.SeekToFirst()
	if !it.Valid() {
		if err := it.Err(); err != nil {
			return nil, errors.Wrap(err, "hummock: get")
		}
		return nil, storage.ErrKeyNotFound
	}
	v, err := value.Decode(it.Value())
	if err != nil {
		return nil, errors.Wrapf(err, "hummock: get %q", userKey)
	}
	if v.IsDelete() {
		return nil, storage.ErrKeyNotFound
	}
	return v.Payload(), nil
}

// WriteBatch atomically applies kvs under epoch. kvs should be sorted by key;
// the StateStore facade guarantees it. A nil key is the empty key. With
// conflict detection enabled a protocol violation panics before anything is
// written, and a batch that fails with an error is forgotten by the detector
// so it can be retried at the same epoch. An empty batch is a no-op and does
// not advance the max committed epoch.
func (s *Storage) WriteBatch(ctx context.Context, kvs []storage.Mutation, epoch key.Epoch) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(kvs) == 0 {
		return nil
	}
	if s.detector != nil {
		s.detector.CheckConflictAndTrackWriteBatch(kvs, epoch)
		defer func() {
			if err != nil {
				s.detector.Untrack(kvs, epoch)
			}
		}()
	}

	timer := prometheus.NewTimer(s.stats.WriteBatchLatency)
	defer timer.ObserveDuration()

	batch := s.store.NewBatch()
	defer batch.Close()

	for _, kv := range kvs {
		err := batch.Put(VersionColumnFamily, key.EncodeKey(kv.Key, epoch), value.FromOptional(kv.Value).Encode())
		if err != nil {
			return errors.Wrapf(err, "hummock: stage %q", kv.Key)
		}
	}

	advance := epoch > s.maxCommitted.Load()
	if advance {
		s.advanceMu.Lock()
		defer s.advanceMu.Unlock()
		if advance = epoch > s.maxCommitted.Load(); advance {
			var raw [8]byte
			binary.BigEndian.PutUint64(raw[:], epoch)
			if err := batch.Put(MetaColumnFamily, maxCommittedEpochKey, raw[:]); err != nil {
				return errors.Wrap(err, "hummock: stage max committed epoch")
			}
		}
	}

	if err := batch.Commit(); err != nil {
		return errors.Wrapf(err, "hummock: commit batch at epoch %d", epoch)
	}
	if advance {
		s.maxCommitted.Store(epoch)
	}

	s.stats.WriteBatchCounts.Inc()
	s.stats.WriteBatchSize.Observe(float64(len(kvs)))
	return nil
}

// RangeScan returns an unpositioned forward iterator over [lower, upper) at
// the newest epoch. An empty upper leaves the range open. Call Rewind before
// reading.
func (s *Storage) RangeScan(ctx context.Context, lower, upper []byte) (*iterator.DirectedUserIterator, error) {
	return s.RangeScanAt(ctx, lower, upper, key.MaxEpoch)
}

// RangeScanAt is RangeScan reading at epoch.
func (s *Storage) RangeScanAt(ctx context.Context, lower, upper []byte, epoch key.Epoch) (*iterator.DirectedUserIterator, error) {
	inner, err := s.newInner(ctx, lower, upper)
	if err != nil {
		return nil, err
	}
	return iterator.NewForward(iterator.NewUserIterator(inner, epoch)), nil
}

// ReverseRangeScan returns an unpositioned backward iterator over the keys
// in [lower, upper), largest first. Call Rewind before reading.
func (s *Storage) ReverseRangeScan(ctx context.Context, lower, upper []byte) (*iterator.DirectedUserIterator, error) {
	return s.ReverseRangeScanAt(ctx, lower, upper, key.MaxEpoch)
}

// ReverseRangeScanAt is ReverseRangeScan reading at epoch.
func (s *Storage) ReverseRangeScanAt(ctx context.Context, lower, upper []byte, epoch key.Epoch) (*iterator.DirectedUserIterator, error) {
	inner, err := s.newInner(ctx, lower, upper)
	if err != nil {
		return nil, err
	}
	return iterator.NewBackward(iterator.NewBackwardUserIterator(inner, epoch)), nil
}

func (s *Storage) newInner(ctx context.Context, lower, upper []byte) (db.Iterator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	encLower, encUpper := key.EncodeRange(lower, upper)
	inner, err := s.store.NewIterator(VersionColumnFamily, &db.IterOptions{
		LowerBound: encLower,
		UpperBound: encUpper,
	})
	if err != nil {
		return nil, errors.Wrap(err, "hummock: range scan")
	}
	return inner, nil
}

// ArchiveEpoch closes epoch for writing. firstEpoch, when set, is the first
// epoch of the generation being archived, which lets the conflict detector
// raise its watermark. Without conflict detection this only logs.
func (s *Storage) ArchiveEpoch(epoch key.Epoch, firstEpoch *key.Epoch) {
	if s.detector != nil {
		s.detector.ArchiveEpoch(epoch, firstEpoch)
	}
	s.logger.Debug("epoch archived", "epoch", epoch)
}

// Detector returns the conflict detector, nil when detection is disabled.
func (s *Storage) Detector() *conflict.Detector { return s.detector }

// Stats returns the engine metrics.
func (s *Storage) Stats() *Stats { return s.stats }

// MaxCommittedEpoch returns the highest epoch any committed batch used.
func (s *Storage) MaxCommittedEpoch() key.Epoch { return s.maxCommitted.Load() }

// Flush persists buffered writes.
func (s *Storage) Flush() error {
	if err := s.store.Flush(); err != nil {
		return errors.Wrap(err, "hummock: flush")
	}
	return nil
}

// Close closes the underlying store.
func (s *Storage) Close() error {
	s.logger.Info("closing storage", "max_committed_epoch", s.MaxCommittedEpoch())
	return s.store.Close()
}
