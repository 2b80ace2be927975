// Package key defines the content-addressed Key type and the hex path
// layout used to lay keys out on a filesystem.
package key

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// Key is the raw digest of a stored blob under a storage graph's fixed
// hash algorithm. Keys from different algorithms must never be mixed
// within one composed storage graph (enforced at construction time by
// the packages that compose Locations).
type Key []byte

// ErrEmptyKey is returned by operations that require a non-empty key.
var ErrEmptyKey = errors.New("key: key must be non-empty")

// Hex returns the lowercase hex encoding of k.
func (k Key) Hex() string {
	return hex.EncodeToString(k)
}

// String implements fmt.Stringer.
func (k Key) String() string {
	return k.Hex()
}

// Equal reports whether k and other encode the same digest.
func (k Key) Equal(other Key) bool {
	if len(k) != len(other) {
		return false
	}
	for i := range k {
		if k[i] != other[i] {
			return false
		}
	}
	return true
}

// FromHex decodes a lowercase hex string into a Key.
func FromHex(s string) (Key, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("key: decoding hex: %w", err)
	}
	return Key(b), nil
}

// Levels describes how a key's hex digest is split into nested path
// segments. Each element is the number of raw bytes (not hex characters)
// consumed by that segment, except that the last element may be -1,
// meaning "all remaining bytes".
type Levels []int

// Validate checks the invariant that sum(levels \ {-1}) <= digestSize and
// that -1, if present, is the last element.
func (l Levels) Validate(digestSize int) error {
	sum := 0
	for i, v := range l {
		if v == -1 {
			if i != len(l)-1 {
				return fmt.Errorf("key: level -1 (remainder) must be last, got it at index %d of %d", i, len(l))
			}
			continue
		}
		if v <= 0 {
			return fmt.Errorf("key: level sizes must be positive (or -1 for remainder), got %d at index %d", v, i)
		}
		sum += v
	}
	if sum > digestSize {
		return fmt.Errorf("key: sum of fixed levels (%d) exceeds digest size (%d)", sum, digestSize)
	}
	return nil
}

// Default returns the conventional default layout for a digest of the
// given size: a single one-byte directory and the remainder as the
// filename, e.g. [1, 31] for a 32-byte digest.
func Default(digestSize int) Levels {
	return Levels{1, digestSize - 1}
}

// ToSegments splits key's hex encoding into path segments according to
// levels. Each element of levels is a byte count; the corresponding
// segment consumes levels[i]*2 hex characters (or all remaining
// characters, for a trailing -1).
func ToSegments(k Key, levels Levels) ([]string, error) {
	if len(k) == 0 {
		return nil, ErrEmptyKey
	}

	hexKey := k.Hex()
	segments := make([]string, 0, len(levels))
	start := 0

	for i, lvl := range levels {
		if lvl == -1 {
			if i != len(levels)-1 {
				return nil, fmt.Errorf("key: level -1 (remainder) must be last")
			}
			segments = append(segments, hexKey[start:])
			start = len(hexKey)
			continue
		}

		stop := start + lvl*2
		if stop > len(hexKey) {
			return nil, fmt.Errorf("key: levels %v consume more hex characters than key %q has", levels, hexKey)
		}
		segments = append(segments, hexKey[start:stop])
		start = stop
	}

	return segments, nil
}
