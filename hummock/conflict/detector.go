// Package conflict implements the write conflict detector: an optional
// safety net for the single-writer-per-epoch protocol. It tracks which keys
// every open epoch has written, which epochs are archived, and the epoch
// watermark below which no write is accepted.
//
// Violations are not errors. They mean the upstream coordination protocol is
// broken, so the detector logs and panics with an assertion failure (see
// IsViolation). Callers must not recover and continue.
package conflict

import (
	"github.com/beyondbrewing/hummock/hummock/key"
	"github.com/beyondbrewing/hummock/hummock/value"
	"github.com/beyondbrewing/hummock/pkg/logger"
	"github.com/beyondbrewing/hummock/storage"
	"github.com/cockroachdb/errors"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/atomic"
)

// keySet holds the keys written in one epoch. It is only touched inside
// history.Compute, which holds the epoch's bucket lock.
type keySet map[string]struct{}

// Detector is safe for concurrent use. Writers to different epochs do not
// contend; writers to the same epoch serialise on that epoch's entry.
type Detector struct {
	// epoch -> keys written so far; entries exist only for open epochs.
	history *xsync.MapOf[key.Epoch, keySet]
	// archived epochs above the watermark.
	archived  *xsync.MapOf[key.Epoch, struct{}]
	watermark *atomic.Uint64

	logger logger.Logger
}

// Option configures a Detector.
type Option func(*Detector)

// WithLogger sets the logger used to report violations.
func WithLogger(l logger.Logger) Option {
	return func(d *Detector) { d.logger = l }
}

// New returns a detector whose watermark is key.MinEpoch.
func New(opts ...Option) *Detector {
	d := &Detector{
		history:   xsync.NewMapOf[key.Epoch, keySet](),
		archived:  xsync.NewMapOf[key.Epoch, struct{}](),
		watermark: atomic.NewUint64(key.MinEpoch),
	}
	for _, o := range opts {
		o(d)
	}
	if d.logger == nil {
		d.logger = logger.Default()
	}
	d.logger = d.logger.With("component", "conflict_detector")
	return d
}

// NewFromConfig returns nil when detection is disabled, so callers can skip
// all bookkeeping with a nil check.
func NewFromConfig(enabled bool, opts ...Option) *Detector {
	if !enabled {
		return nil
	}
	return New(opts...)
}

// EpochWatermark returns the current watermark.
func (d *Detector) EpochWatermark() key.Epoch {
	return d.watermark.Load()
}

// SetWatermark advances the watermark to epoch with a CAS loop. epoch must
// be strictly greater than the watermark observed on every attempt.
func (d *Detector) SetWatermark(epoch key.Epoch) {
	for {
		current := d.EpochWatermark()
		if epoch <= current {
			d.violation("not allowed to set epoch watermark to equal to or lower than current watermark: current is %d, epoch to set %d",
				current, epoch)
		}
		if d.watermark.CompareAndSwap(current, epoch) {
			d.logger.Debug("epoch watermark advanced", "from", current, "to", epoch)
			return
		}
	}
}

// CheckConflictAndTrackWriteBatch records every key of kvs as written in
// epoch. It panics if epoch is at or below the watermark, if epoch is
// archived, or if any key was already written in epoch, whether by an
// earlier batch or earlier in kvs.
func (d *Detector) CheckConflictAndTrackWriteBatch(kvs []storage.Mutation, epoch key.Epoch) {
	if wm := d.EpochWatermark(); epoch <= wm {
		d.violation("write to an archived epoch: %d, watermark %d", epoch, wm)
	}
	if _, ok := d.archived.Load(epoch); ok {
		d.violation("write to an archived epoch: %d", epoch)
	}

	var dup *storage.Mutation
	d.history.Compute(epoch, func(written keySet, loaded bool) (keySet, bool) {
		if !loaded {
			written = make(keySet, len(kvs))
		}
		for i := range kvs {
			k := string(kvs[i].Key)
			if _, ok := written[k]; ok {
				if dup == nil {
					dup = &kvs[i]
				}
				continue
			}
			written[k] = struct{}{}
		}
		return written, false
	})

	// Panic outside Compute so the bucket lock is released.
	if dup != nil {
		d.violation("key %q is written again after previously written in epoch %d, value is %s",
			dup.Key, epoch, value.FromOptional(dup.Value))
	}
}

// Untrack forgets the keys of kvs in epoch. It undoes a successful
// CheckConflictAndTrackWriteBatch whose batch then failed to commit.
func (d *Detector) Untrack(kvs []storage.Mutation, epoch key.Epoch) {
	d.history.Compute(epoch, func(written keySet, loaded bool) (keySet, bool) {
		if !loaded {
			return written, true
		}
		for i := range kvs {
			delete(written, string(kvs[i].Key))
		}
		return written, len(written) == 0
	})
}

// ArchiveEpoch closes epoch for writing and drops its tracked keys. When
// firstEpoch is given, every epoch before it is known to be archived and
// the watermark moves to firstEpoch-1; archived epochs at or below the new
// watermark are forgotten.
func (d *Detector) ArchiveEpoch(epoch key.Epoch, firstEpoch *key.Epoch) {
	if wm := d.EpochWatermark(); epoch <= wm {
		d.violation("write to an archived epoch: %d, current watermark: %d", epoch, wm)
	}
	if _, loaded := d.archived.LoadOrStore(epoch, struct{}{}); loaded {
		d.violation("epoch has been archived: epoch is %d", epoch)
	}
	d.history.Delete(epoch)

	if firstEpoch == nil {
		d.logger.Debug("epoch archived", "epoch", epoch)
		return
	}
	if *firstEpoch == key.MinEpoch {
		d.violation("first epoch of a generation must be above %d", key.MinEpoch)
	}
	wm := *firstEpoch - 1
	if wm != d.EpochWatermark() {
		d.SetWatermark(wm)
		d.archived.Range(func(e key.Epoch, _ struct{}) bool {
			if e <= wm {
				d.archived.Delete(e)
			}
			return true
		})
	}
	d.logger.Debug("epoch archived", "epoch", epoch, "watermark", wm)
}

// TrackedKeys returns how many keys epoch has written and whether the
// epoch is tracked at all.
func (d *Detector) TrackedKeys(epoch key.Epoch) (n int, ok bool) {
	d.history.Compute(epoch, func(written keySet, loaded bool) (keySet, bool) {
		n, ok = len(written), loaded
		// Deleting an absent entry is a no-op; it keeps Compute from
		// storing a nil set.
		return written, !loaded
	})
	return n, ok
}

// IsArchived reports whether epoch is archived: either explicitly above the
// watermark, or implicitly at or below it.
func (d *Detector) IsArchived(epoch key.Epoch) bool {
	if epoch <= d.EpochWatermark() {
		return true
	}
	_, ok := d.archived.Load(epoch)
	return ok
}

// ArchivedEpochs returns how many archived epochs are tracked individually
// above the watermark.
func (d *Detector) ArchivedEpochs() int {
	return d.archived.Size()
}

func (d *Detector) violation(format string, args ...any) {
	err := errors.AssertionFailedf(format, args...)
	d.logger.Error("write protocol violated", "error", err.Error())
	panic(err)
}

// IsViolation reports whether a recovered panic value came from the
// detector.
func IsViolation(recovered any) bool {
	err, ok := recovered.(error)
	return ok && errors.HasAssertionFailure(err)
}
