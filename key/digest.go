package key

import (
	"fmt"
	"hash"
	"io"

	"github.com/tarnstore/tarn/value"
)

// blockSize is the chunk size used when streaming a Value through a
// hash.Hash. 1 MiB matches the reference implementation's default.
const blockSize = 1 << 20

// Digest streams v through newHash() and returns the resulting digest as
// a Key. It never materializes the whole Value in memory.
func Digest(v value.Value, newHash func() hash.Hash) (Key, error) {
	r, err := v.Open()
	if err != nil {
		return nil, fmt.Errorf("key: opening value to digest: %w", err)
	}
	defer r.Close()

	h := newHash()
	buf := make([]byte, blockSize)

	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			if _, err := h.Write(buf[:n]); err != nil {
				return nil, fmt.Errorf("key: hashing: %w", err)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, fmt.Errorf("key: reading value to digest: %w", readErr)
		}
	}

	return Key(h.Sum(nil)), nil
}
