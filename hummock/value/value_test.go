package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	tests := []struct {
		name string
		in   Value
	}{
		{name: "put", in: Put([]byte("payload"))},
		{name: "empty_put", in: Put(nil)},
		{name: "delete", in: Delete()},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Decode(tc.in.Encode())
			require.NoError(t, err)
			assert.Equal(t, tc.in.IsDelete(), got.IsDelete())
			assert.Equal(t, tc.in.Payload(), got.Payload())
		})
	}
}

func TestEmptyPutIsNotDelete(t *testing.T) {
	v := Put(nil)
	assert.False(t, v.IsDelete())
	assert.NotNil(t, v.Payload())

	assert.True(t, FromOptional(nil).IsDelete())
	assert.False(t, FromOptional([]byte{}).IsDelete())
	assert.True(t, Value{}.IsDelete())
}

func TestDecodeRejectsCorruptValues(t *testing.T) {
	for _, b := range [][]byte{nil, {0x07}, {tagDelete, 'x'}} {
		_, err := Decode(b)
		assert.ErrorIs(t, err, ErrCorruptValue)
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "Delete", Delete().String())
	assert.Equal(t, `Put("v")`, Put([]byte("v")).String())
}
