// Package iterator provides user-facing cursors over the versioned key space.
// A user iterator reads at a fixed epoch: it hides versions newer than that
// epoch, yields only the newest visible version of each key, and skips keys
// whose newest visible version is a tombstone.
package iterator

import (
	"context"

	"github.com/beyondbrewing/hummock/db"
	"github.com/beyondbrewing/hummock/hummock/key"
	"github.com/beyondbrewing/hummock/hummock/value"
	"github.com/cockroachdb/errors"
)

// Iterator is a cursor over user keys. Key and Value may only be called
// while Valid is true; the returned slices are owned by the iterator and
// stay unchanged until the next call to Next or Rewind. Iterators are not
// safe for concurrent use.
type Iterator interface {
	Valid() bool
	Key() []byte
	Value() []byte

	// Next moves to the following key in the iterator's direction.
	Next(ctx context.Context) error
	// Rewind positions the iterator at the first key of its range.
	Rewind(ctx context.Context) error
	Close() error
}

// Direction is the key order an iterator walks.
type Direction int

const (
	Forward Direction = iota
	Backward
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	default:
		return "unknown"
	}
}

// cursor holds the state shared by both directions.
type cursor struct {
	inner     db.Iterator
	readEpoch key.Epoch

	key   []byte
	value []byte
	valid bool
}

func (c *cursor) Valid() bool   { return c.valid }
func (c *cursor) Key() []byte   { return c.key }
func (c *cursor) Value() []byte { return c.value }

func (c *cursor) Close() error {
	c.valid = false
	if err := c.inner.Close(); err != nil {
		return errors.Wrap(err, "iterator: close")
	}
	return nil
}

func (c *cursor) set(userKey []byte, v value.Value) {
	c.key, c.value, c.valid = userKey, v.Payload(), true
}

func (c *cursor) invalidate() error {
	c.key, c.value, c.valid = nil, nil, false
	if err := c.inner.Err(); err != nil {
		return errors.Wrap(err, "iterator: read failed")
	}
	return nil
}

// entry decodes the substrate's current position.
func (c *cursor) entry() ([]byte, key.Epoch, error) {
	userKey, epoch, err := key.Split(c.inner.Key())
	if err != nil {
		return nil, 0, errors.Wrap(err, "iterator: decode key")
	}
	return userKey, epoch, nil
}

func (c *cursor) currentValue() (value.Value, error) {
	v, err := value.Decode(c.inner.Value())
	if err != nil {
		return value.Value{}, errors.Wrap(err, "iterator: decode value")
	}
	return v, nil
}

// ---------------------------------------------------------------------------
// Forward
// ---------------------------------------------------------------------------

// UserIterator walks user keys in ascending order. The substrate iterator it
// wraps must be bounded to the stored-key encoding of the user range (see
// key.EncodeRange).
type UserIterator struct {
	cursor
}

// NewUserIterator wraps inner. The result is not positioned; call Rewind.
func NewUserIterator(inner db.Iterator, readEpoch key.Epoch) *UserIterator {
	return &UserIterator{cursor{inner: inner, readEpoch: readEpoch}}
}

func (it *UserIterator) Rewind(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	it.inner.SeekToFirst()
	return it.settle(nil)
}

func (it *UserIterator) Next(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !it.valid {
		return nil
	}
	last := it.key
	it.inner.Next()
	return it.settle(last)
}

// settle advances the substrate to the newest visible, non-deleted version
// of the first user key after last (or the first key at all if last is
// nil). Versions of one key arrive newest first.
func (it *UserIterator) settle(last []byte) error {
	for ; it.inner.Valid(); it.inner.Next() {
		userKey, epoch, err := it.entry()
		if err != nil {
			it.valid = false
			return err
		}
		if epoch > it.readEpoch {
			continue
		}
		if last != nil && string(userKey) == string(last) {
			continue
		}
		last = userKey

		v, err := it.currentValue()
		if err != nil {
			it.valid = false
			return err
		}
		if v.IsDelete() {
			continue
		}
		it.set(userKey, v)
		return nil
	}
	return it.invalidate()
}

// ---------------------------------------------------------------------------
// Backward
// ---------------------------------------------------------------------------

// BackwardUserIterator walks user keys in descending order over the same
// kind of bounded substrate iterator as UserIterator.
type BackwardUserIterator struct {
	cursor
}

// NewBackwardUserIterator wraps inner. The result is not positioned; call
// Rewind.
func NewBackwardUserIterator(inner db.Iterator, readEpoch key.Epoch) *BackwardUserIterator {
	return &BackwardUserIterator{cursor{inner: inner, readEpoch: readEpoch}}
}

func (it *BackwardUserIterator) Rewind(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	it.inner.SeekToLast()
	return it.settle()
}

func (it *BackwardUserIterator) Next(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !it.valid {
		return nil
	}
	// settle already left the substrate on the previous user key.
	return it.settle()
}

// settle consumes every version of the user key under the substrate cursor,
// walking towards older keys. Versions of one key arrive oldest first, so
// the last version at or below the read epoch is the visible one. Keys with
// no visible version or a visible tombstone are skipped.
func (it *BackwardUserIterator) settle() error {
	for it.inner.Valid() {
		userKey, _, err := it.entry()
		if err != nil {
			it.valid = false
			return err
		}

		var (
			visible value.Value
			found   bool
		)
		for it.inner.Valid() {
			k, epoch, err := it.entry()
			if err != nil {
				it.valid = false
				return err
			}
			if string(k) != string(userKey) {
				break
			}
			if epoch <= it.readEpoch {
				if visible, err = it.currentValue(); err != nil {
					it.valid = false
					return err
				}
				found = true
			}
			it.inner.Prev()
		}

		if found && !visible.IsDelete() {
			it.set(userKey, visible)
			return nil
		}
	}
	return it.invalidate()
}

// ---------------------------------------------------------------------------
// Directed
// ---------------------------------------------------------------------------

// DirectedUserIterator is a user iterator tagged with its direction, so
// callers can hold either variant behind one type.
type DirectedUserIterator struct {
	Iterator
	direction Direction
}

// NewForward wraps a forward iterator.
func NewForward(it *UserIterator) *DirectedUserIterator {
	return &DirectedUserIterator{Iterator: it, direction: Forward}
}

// NewBackward wraps a backward iterator.
func NewBackward(it *BackwardUserIterator) *DirectedUserIterator {
	return &DirectedUserIterator{Iterator: it, direction: Backward}
}

// Direction reports which way the iterator walks.
func (d *DirectedUserIterator) Direction() Direction { return d.direction }
