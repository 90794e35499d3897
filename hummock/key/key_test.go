package key

import (
	"bytes"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextKey(t *testing.T) {
	tests := []struct {
		name   string
		prefix []byte
		want   []byte
	}{
		{name: "plain", prefix: []byte("abc"), want: []byte("abd")},
		{name: "trailing_ff", prefix: []byte{0x01, 0xFF, 0xFF}, want: []byte{0x02}},
		{name: "inner_ff", prefix: []byte{0xFF, 0x01}, want: []byte{0xFF, 0x02}},
		{name: "all_ff", prefix: []byte{0xFF, 0xFF}, want: []byte{}},
		{name: "empty", prefix: []byte{}, want: []byte{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NextKey(tc.prefix))
		})
	}
}

func TestPrevKey(t *testing.T) {
	tests := []struct {
		name   string
		prefix []byte
		want   []byte
	}{
		{name: "plain", prefix: []byte("abc"), want: []byte("abb")},
		{name: "trailing_zero", prefix: []byte{0x05, 0x00, 0x00}, want: []byte{0x04}},
		{name: "all_zero", prefix: []byte{0x00, 0x00}, want: []byte{0xFF, 0xFF}},
		{name: "empty", prefix: []byte{}, want: []byte{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, PrevKey(tc.prefix))
		})
	}
}

func TestBoundsDoNotAliasInput(t *testing.T) {
	prefix := []byte("ab")
	next := NextKey(prefix)
	prev := PrevKey(prefix)
	next[0], prev[0] = 'z', 'z'
	assert.Equal(t, []byte("ab"), prefix)
}

// Every key in [p, NextKey(p)) starts with p and every key starting with p
// lies in that range.
func TestNextKeyCoversPrefixFamily(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	alphabet := []byte{0x00, 0x01, 0x7F, 0xFE, 0xFF}
	randKey := func(n int) []byte {
		b := make([]byte, n)
		for i := range b {
			b[i] = alphabet[rnd.Intn(len(alphabet))]
		}
		return b
	}

	for i := 0; i < 2000; i++ {
		p := randKey(rnd.Intn(4))
		k := randKey(rnd.Intn(6))
		upper := NextKey(p)
		inRange := bytes.Compare(k, p) >= 0 && (len(upper) == 0 || bytes.Compare(k, upper) < 0)
		require.Equal(t, bytes.HasPrefix(k, p), inRange, "prefix %x key %x upper %x", p, k, upper)
	}
}

func TestEncodeBytesPreservesOrder(t *testing.T) {
	keys := [][]byte{
		{}, {0x00}, {0x00, 0x00}, []byte("a"), []byte("a\x00"),
		[]byte("abcdefgh"), []byte("abcdefgh\x00"), []byte("abcdefghi"), []byte("a\xff"), {0xFF},
		{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
	}
	encoded := make([][]byte, len(keys))
	for i, k := range keys {
		encoded[i] = EncodeBytes(k)
	}
	sorted := sort.SliceIsSorted(encoded, func(i, j int) bool {
		return bytes.Compare(encoded[i], encoded[j]) < 0
	})
	assert.True(t, sorted)

	for _, k := range keys {
		rest, got, err := DecodeBytes(EncodeBytes(k))
		require.NoError(t, err)
		assert.Empty(t, rest)
		assert.Equal(t, len(k), len(got))
		assert.True(t, bytes.Equal(k, got))
	}
}

func TestEncodeKeyOrdersEpochDescending(t *testing.T) {
	newer := EncodeKey([]byte("k"), 234)
	older := EncodeKey([]byte("k"), 233)
	nextKey := EncodeKey([]byte("k\x00"), MaxEpoch)

	assert.Equal(t, -1, bytes.Compare(newer, older))
	assert.Equal(t, -1, bytes.Compare(older, nextKey))

	userKey, epoch, err := Split(older)
	require.NoError(t, err)
	assert.Equal(t, []byte("k"), userKey)
	assert.Equal(t, Epoch(233), epoch)
}

func TestSplitRejectsCorruptKeys(t *testing.T) {
	_, _, err := Split([]byte("short"))
	assert.ErrorIs(t, err, ErrCorruptKey)

	// Valid group, missing epoch suffix.
	_, _, err = Split(EncodeBytes([]byte("k")))
	assert.ErrorIs(t, err, ErrCorruptKey)

	bad := EncodeBytes([]byte("k"))
	bad[len(bad)-1] = 0x10
	_, _, err = Split(AppendEpoch(bad, 1))
	assert.ErrorIs(t, err, ErrCorruptKey)
}

func TestVersionRange(t *testing.T) {
	lower, upper := VersionRange([]byte("k"), 10)

	visible := EncodeKey([]byte("k"), 10)
	older := EncodeKey([]byte("k"), 3)
	newer := EncodeKey([]byte("k"), 11)
	other := EncodeKey([]byte("k\x00"), 1)

	in := func(k []byte) bool {
		return bytes.Compare(k, lower) >= 0 && bytes.Compare(k, upper) < 0
	}
	assert.True(t, in(visible))
	assert.True(t, in(older))
	assert.False(t, in(newer))
	assert.False(t, in(other))
}
