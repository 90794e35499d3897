// Package key holds the epoch type, prefix scan boundaries and the versioned
// key layout shared by the hummock engine.
package key

import "math"

// Epoch is a monotonically increasing logical write generation.
type Epoch = uint64

const (
	// MinEpoch is the smallest epoch and the detector's initial watermark.
	MinEpoch Epoch = 0
	// MaxEpoch reads the newest version of every key.
	MaxEpoch Epoch = math.MaxUint64
)

// NextKey returns the exclusive upper bound of a forward scan over every key
// starting with prefix: the last byte that is not 0xFF is incremented and
// everything after it dropped. An empty result means the scan is unbounded,
// which happens when prefix is empty or consists only of 0xFF bytes.
func NextKey(prefix []byte) []byte {
	for i := len(prefix) - 1; i >= 0; i-- {
		if prefix[i] != 0xFF {
			out := make([]byte, i+1)
			copy(out, prefix[:i+1])
			out[i]++
			return out
		}
	}
	return []byte{}
}

// PrevKey is the mirror of NextKey for backward scans: the last byte that is
// not 0x00 is decremented and everything after it dropped. A prefix made only
// of 0x00 bytes has no such byte; the result is then 0xFF repeated
// len(prefix) times.
func PrevKey(prefix []byte) []byte {
	for i := len(prefix) - 1; i >= 0; i-- {
		if prefix[i] != 0x00 {
			out := make([]byte, i+1)
			copy(out, prefix[:i+1])
			out[i]--
			return out
		}
	}
	out := make([]byte, len(prefix))
	for i := range out {
		out[i] = 0xFF
	}
	return out
}
