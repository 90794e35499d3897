package iterator

import (
	"context"
	"testing"

	"github.com/beyondbrewing/hummock/db"
	"github.com/beyondbrewing/hummock/hummock/key"
	"github.com/beyondbrewing/hummock/hummock/value"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cf = "version"

type version struct {
	key   string
	epoch key.Epoch
	val   value.Value
}

func put(k string, e key.Epoch, v string) version {
	return version{key: k, epoch: e, val: value.Put([]byte(v))}
}

func del(k string, e key.Epoch) version {
	return version{key: k, epoch: e, val: value.Delete()}
}

func newStore(t *testing.T, versions ...version) *db.MockStore {
	t.Helper()
	store := db.NewMockStore(cf)
	t.Cleanup(func() { _ = store.Close() })

	batch := store.NewBatch()
	defer batch.Close()
	for _, v := range versions {
		require.NoError(t, batch.Put(cf, key.EncodeKey([]byte(v.key), v.epoch), v.val.Encode()))
	}
	require.NoError(t, batch.Commit())
	return store
}

func substrate(t *testing.T, store db.Store, lower, upper string) db.Iterator {
	t.Helper()
	var up []byte
	if upper != "" {
		up = []byte(upper)
	}
	encLower, encUpper := key.EncodeRange([]byte(lower), up)
	inner, err := store.NewIterator(cf, &db.IterOptions{LowerBound: encLower, UpperBound: encUpper})
	require.NoError(t, err)
	return inner
}

// drain rewinds it and returns "key=value" for every visible entry.
func drain(t *testing.T, it Iterator) []string {
	t.Helper()
	ctx := context.Background()
	var out []string
	require.NoError(t, it.Rewind(ctx))
	for it.Valid() {
		out = append(out, string(it.Key())+"="+string(it.Value()))
		require.NoError(t, it.Next(ctx))
	}
	return out
}

var history = []version{
	put("a", 1, "a1"),
	put("b", 1, "b1"),
	put("b", 3, "b3"),
	del("c", 2),
	put("c", 1, "c1"),
	put("d", 4, "d4"),
	del("e", 1),
	put("e", 3, "e3"),
	put("f", 2, "f2"),
}

func TestUserIteratorReadEpochs(t *testing.T) {
	tests := []struct {
		name  string
		epoch key.Epoch
		want  []string
	}{
		{name: "latest", epoch: key.MaxEpoch, want: []string{"a=a1", "b=b3", "d=d4", "e=e3", "f=f2"}},
		{name: "epoch_1", epoch: 1, want: []string{"a=a1", "b=b1", "c=c1"}},
		{name: "epoch_2", epoch: 2, want: []string{"a=a1", "b=b1", "f=f2"}},
		{name: "epoch_3", epoch: 3, want: []string{"a=a1", "b=b3", "e=e3", "f=f2"}},
		{name: "before_everything", epoch: 0, want: nil},
	}
	store := newStore(t, history...)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fwd := NewUserIterator(substrate(t, store, "", ""), tc.epoch)
			defer fwd.Close()
			assert.Equal(t, tc.want, drain(t, fwd))

			bwd := NewBackwardUserIterator(substrate(t, store, "", ""), tc.epoch)
			defer bwd.Close()
			assert.Equal(t, reversed(tc.want), drain(t, bwd))
		})
	}
}

func TestUserIteratorRange(t *testing.T) {
	store := newStore(t, history...)

	fwd := NewUserIterator(substrate(t, store, "b", "e"), key.MaxEpoch)
	defer fwd.Close()
	assert.Equal(t, []string{"b=b3", "d=d4"}, drain(t, fwd))

	bwd := NewBackwardUserIterator(substrate(t, store, "b", "e"), key.MaxEpoch)
	defer bwd.Close()
	assert.Equal(t, []string{"d=d4", "b=b3"}, drain(t, bwd))
}

func TestUserIteratorKeysSharingPrefix(t *testing.T) {
	// "k" and "k\x00" must not interleave their versions.
	store := newStore(t,
		put("k", 1, "old"), put("k", 5, "new"),
		put("k\x00", 3, "zero"),
		put("k\x00\x00", 2, "zz"), del("k\x00\x00", 4),
	)

	fwd := NewUserIterator(substrate(t, store, "k", ""), key.MaxEpoch)
	defer fwd.Close()
	assert.Equal(t, []string{"k=new", "k\x00=zero"}, drain(t, fwd))

	bwd := NewBackwardUserIterator(substrate(t, store, "k", ""), 3)
	defer bwd.Close()
	assert.Equal(t, []string{"k\x00\x00=zz", "k\x00=zero", "k=old"}, drain(t, bwd))
}

func TestUserIteratorEmptyPut(t *testing.T) {
	store := newStore(t, version{key: "empty", epoch: 1, val: value.Put(nil)})

	it := NewUserIterator(substrate(t, store, "", ""), key.MaxEpoch)
	defer it.Close()
	require.NoError(t, it.Rewind(context.Background()))
	require.True(t, it.Valid())
	assert.Equal(t, []byte("empty"), it.Key())
	assert.NotNil(t, it.Value())
	assert.Empty(t, it.Value())
}

func TestUserIteratorRewindIsRepeatable(t *testing.T) {
	store := newStore(t, history...)
	it := NewUserIterator(substrate(t, store, "", ""), key.MaxEpoch)
	defer it.Close()

	first := drain(t, it)
	assert.Equal(t, first, drain(t, it))
}

func TestNextOnExhaustedIteratorIsNoop(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, put("a", 1, "a1"))

	for _, it := range []Iterator{
		NewUserIterator(substrate(t, store, "", ""), key.MaxEpoch),
		NewBackwardUserIterator(substrate(t, store, "", ""), key.MaxEpoch),
	} {
		require.NoError(t, it.Rewind(ctx))
		require.True(t, it.Valid())
		require.NoError(t, it.Next(ctx))
		require.False(t, it.Valid())
		require.NoError(t, it.Next(ctx))
		assert.False(t, it.Valid())
		require.NoError(t, it.Close())
	}
}

func TestCancelledContext(t *testing.T) {
	store := newStore(t, history...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	it := NewUserIterator(substrate(t, store, "", ""), key.MaxEpoch)
	defer it.Close()
	assert.ErrorIs(t, it.Rewind(ctx), context.Canceled)
	assert.False(t, it.Valid())
}

func TestCorruptKeyIsReported(t *testing.T) {
	store := db.NewMockStore(cf)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Put(cf, []byte("not-a-versioned-key"), value.Put([]byte("v")).Encode()))

	inner, err := store.NewIterator(cf, nil)
	require.NoError(t, err)
	it := NewUserIterator(inner, key.MaxEpoch)
	defer it.Close()

	err = it.Rewind(context.Background())
	assert.ErrorIs(t, err, key.ErrCorruptKey)
	assert.False(t, it.Valid())
}

var errRelease = errors.New("release failed")

type failingClose struct{ db.Iterator }

func (f failingClose) Close() error {
	_ = f.Iterator.Close()
	return errRelease
}

func TestCloseReportsSubstrateError(t *testing.T) {
	store := newStore(t, history...)

	fwd := NewForward(NewUserIterator(failingClose{substrate(t, store, "", "")}, key.MaxEpoch))
	assert.ErrorIs(t, fwd.Close(), errRelease)
	assert.False(t, fwd.Valid())

	bwd := NewBackwardUserIterator(failingClose{substrate(t, store, "", "")}, key.MaxEpoch)
	assert.ErrorIs(t, bwd.Close(), errRelease)
}

func TestDirectedUserIterator(t *testing.T) {
	store := newStore(t, history...)

	fwd := NewForward(NewUserIterator(substrate(t, store, "", ""), key.MaxEpoch))
	defer fwd.Close()
	assert.Equal(t, Forward, fwd.Direction())
	assert.Equal(t, "forward", fwd.Direction().String())

	bwd := NewBackward(NewBackwardUserIterator(substrate(t, store, "", ""), key.MaxEpoch))
	defer bwd.Close()
	assert.Equal(t, Backward, bwd.Direction())

	assert.Equal(t, reversed(drain(t, fwd)), drain(t, bwd))
}

func reversed(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[len(in)-1-i] = s
	}
	return out
}
