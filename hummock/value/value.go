// Package value defines the versioned value stored for each key and epoch:
// either a payload (Put) or a tombstone (Delete).
package value

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

const (
	tagDelete byte = 0x00
	tagPut    byte = 0x01
)

// ErrCorruptValue is returned when a stored value carries an unknown tag.
var ErrCorruptValue = errors.New("value: corrupt encoded value")

// Value is a Put payload or a Delete marker. The zero Value is a Delete.
type Value struct {
	payload []byte
	put     bool
}

// Put returns a value carrying payload. A nil payload is stored as empty.
func Put(payload []byte) Value {
	if payload == nil {
		payload = []byte{}
	}
	return Value{payload: payload, put: true}
}

// Delete returns a tombstone.
func Delete() Value {
	return Value{}
}

// FromOptional maps a nil payload to Delete and anything else to Put.
func FromOptional(payload []byte) Value {
	if payload == nil {
		return Delete()
	}
	return Put(payload)
}

// IsDelete reports whether v is a tombstone.
func (v Value) IsDelete() bool { return !v.put }

// Payload returns the Put payload, nil for a tombstone.
func (v Value) Payload() []byte {
	if !v.put {
		return nil
	}
	return v.payload
}

// Encode returns the stored form: a tag byte followed by the payload.
func (v Value) Encode() []byte {
	if !v.put {
		return []byte{tagDelete}
	}
	out := make([]byte, 1+len(v.payload))
	out[0] = tagPut
	copy(out[1:], v.payload)
	return out
}

// Decode parses a stored value. The returned payload aliases b.
func Decode(b []byte) (Value, error) {
	if len(b) == 0 {
		return Value{}, errors.Wrap(ErrCorruptValue, "empty")
	}
	switch b[0] {
	case tagDelete:
		if len(b) != 1 {
			return Value{}, errors.Wrapf(ErrCorruptValue, "tombstone with %d payload bytes", len(b)-1)
		}
		return Delete(), nil
	case tagPut:
		return Put(b[1:]), nil
	default:
		return Value{}, errors.Wrapf(ErrCorruptValue, "unknown tag %#x", b[0])
	}
}

func (v Value) String() string {
	if !v.put {
		return "Delete"
	}
	return fmt.Sprintf("Put(%q)", v.payload)
}
