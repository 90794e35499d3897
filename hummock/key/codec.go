package key

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

const (
	encGroupSize = 8
	encMarker    = byte(0xFF)
	encPad       = byte(0x0)

	epochLen = 8
)

var pads = make([]byte, encGroupSize)

// ErrCorruptKey is returned when a stored key does not follow the versioned
// layout.
var ErrCorruptKey = errors.New("key: corrupt versioned key")

// EncodeKey builds the stored form of userKey at epoch. Stored keys sort by
// user key ascending, then epoch descending, so the first version met by a
// forward scan is the newest.
func EncodeKey(userKey []byte, epoch Epoch) []byte {
	return AppendEpoch(EncodeBytes(userKey), epoch)
}

// EncodeBytes applies the memcomparable group encoding:
//
//	[group1][marker1]...[groupN][markerN]
//
// Each group is 8 bytes padded with 0, and its marker is 0xFF minus the
// number of pad bytes. The result preserves byte order and no encoding is a
// prefix of another, so an epoch suffix can be appended without disturbing
// the order of user keys.
//
//	[]        -> [0 0 0 0 0 0 0 0 247]
//	[1 2 3]   -> [1 2 3 0 0 0 0 0 250]
//	[1 2 3 0] -> [1 2 3 0 0 0 0 0 251]
func EncodeBytes(data []byte) []byte {
	dLen := len(data)
	result := make([]byte, 0, (dLen/encGroupSize+1)*(encGroupSize+1)+epochLen)
	for idx := 0; idx <= dLen; idx += encGroupSize {
		remain := dLen - idx
		padCount := 0
		if remain >= encGroupSize {
			result = append(result, data[idx:idx+encGroupSize]...)
		} else {
			padCount = encGroupSize - remain
			result = append(result, data[idx:]...)
			result = append(result, pads[:padCount]...)
		}
		result = append(result, encMarker-byte(padCount))
	}
	return result
}

// AppendEpoch appends the inverted big-endian epoch so newer epochs sort
// first.
func AppendEpoch(encoded []byte, epoch Epoch) []byte {
	out := append(encoded, make([]byte, epochLen)...)
	binary.BigEndian.PutUint64(out[len(out)-epochLen:], ^epoch)
	return out
}

// DecodeBytes reverses EncodeBytes and returns the remaining bytes.
func DecodeBytes(b []byte) (rest []byte, data []byte, err error) {
	data = make([]byte, 0, len(b))
	for {
		if len(b) < encGroupSize+1 {
			return nil, nil, errors.Wrap(ErrCorruptKey, "insufficient bytes to decode group")
		}

		group := b[:encGroupSize]
		marker := b[encGroupSize]

		padCount := encMarker - marker
		if padCount > encGroupSize {
			return nil, nil, errors.Wrapf(ErrCorruptKey, "invalid marker byte %#x", marker)
		}

		realGroupSize := encGroupSize - padCount
		data = append(data, group[:realGroupSize]...)
		b = b[encGroupSize+1:]

		if padCount != 0 {
			for _, v := range group[realGroupSize:] {
				if v != encPad {
					return nil, nil, errors.Wrapf(ErrCorruptKey, "invalid padding in group %q", group)
				}
			}
			return b, data, nil
		}
	}
}

// Split separates a stored key into its user key and epoch.
func Split(stored []byte) ([]byte, Epoch, error) {
	rest, userKey, err := DecodeBytes(stored)
	if err != nil {
		return nil, 0, err
	}
	if len(rest) != epochLen {
		return nil, 0, errors.Wrapf(ErrCorruptKey, "epoch suffix has %d bytes", len(rest))
	}
	return userKey, ^binary.BigEndian.Uint64(rest), nil
}

// UserKey returns the user key part of a stored key.
func UserKey(stored []byte) ([]byte, error) {
	userKey, _, err := Split(stored)
	return userKey, err
}

// EpochOf returns the epoch part of a stored key.
func EpochOf(stored []byte) (Epoch, error) {
	_, epoch, err := Split(stored)
	return epoch, err
}

// EncodeRange converts the user key range [lower, upper) into bounds over
// stored keys covering every version of every key in the range. A nil or
// empty upper leaves the range open; the returned upper is then nil.
func EncodeRange(lower, upper []byte) (encLower, encUpper []byte) {
	encLower = EncodeBytes(lower)
	if len(upper) > 0 {
		encUpper = EncodeBytes(upper)
	}
	return encLower, encUpper
}

// VersionRange returns stored-key bounds covering the versions of userKey
// visible at epoch, newest first.
func VersionRange(userKey []byte, epoch Epoch) (lower, upper []byte) {
	prefix := EncodeBytes(userKey)
	upper = NextKey(prefix)
	lower = AppendEpoch(prefix, epoch)
	return lower, upper
}
