// Package smalllocation implements SmallLocation: a Writable wrapper
// that refuses to store a value larger than a configured threshold,
// useful for keeping an expensive or size-limited tier (e.g. Redis)
// reserved for small blobs and letting larger ones fall through to the
// next tier in a Levels/Fanout composition.
package smalllocation

import (
	"context"
	"fmt"
	"hash"
	"io"

	"github.com/tarnstore/tarn/key"
	"github.com/tarnstore/tarn/location"
	"github.com/tarnstore/tarn/value"
)

// SmallLocation wraps a Writable location, passing Read/ReadBatch/
// Delete/Touch/Contents straight through and refusing Write for any
// value at or above maxSize bytes.
type SmallLocation struct {
	location location.Writable
	maxSize  int64
}

// New wraps location, refusing writes at or above maxSize bytes.
func New(loc location.Writable, maxSize int64) *SmallLocation {
	return &SmallLocation{location: loc, maxSize: maxSize}
}

// Hash implements location.Location.
func (s *SmallLocation) Hash() func() hash.Hash { return s.location.Hash() }

// Read implements location.Location.
func (s *SmallLocation) Read(ctx context.Context, k key.Key, withLabels bool) (*location.ReadHandle, error) {
	return s.location.Read(ctx, k, withLabels)
}

// ReadBatch implements location.Location.
func (s *SmallLocation) ReadBatch(ctx context.Context, keys []key.Key) ([]location.BatchResult, error) {
	return s.location.ReadBatch(ctx, keys)
}

// Write implements location.Writable. It reads up to maxSize+1 bytes
// from v to decide, without necessarily buffering the whole value,
// whether it's small enough; if v is over the limit the write is
// refused (a nil-Value WriteHandle, not an error) so a composing Fanout/
// Levels can try the next tier.
func (s *SmallLocation) Write(ctx context.Context, k key.Key, v value.Value, labels location.Labels) (*location.WriteHandle, error) {
	r, err := v.Open()
	if err != nil {
		return nil, fmt.Errorf("smalllocation: opening value for %s: %w", k.Hex(), err)
	}

	limited := io.LimitReader(r, s.maxSize+1)
	content, err := io.ReadAll(limited)
	closeErr := r.Close()
	if err != nil {
		return nil, fmt.Errorf("smalllocation: reading value for %s: %w", k.Hex(), err)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("smalllocation: closing value for %s: %w", k.Hex(), closeErr)
	}

	if int64(len(content)) >= s.maxSize {
		return location.Refused(), nil
	}

	return s.location.Write(ctx, k, value.FromBytes(content), labels)
}

// Delete implements location.Writable.
func (s *SmallLocation) Delete(ctx context.Context, k key.Key) (bool, error) {
	return s.location.Delete(ctx, k)
}

// Touch implements location.Writable.
func (s *SmallLocation) Touch(ctx context.Context, k key.Key) (bool, error) {
	return s.location.Touch(ctx, k)
}

// Contents implements location.Location.
func (s *SmallLocation) Contents(ctx context.Context, fn func(location.Entry) error) error {
	return s.location.Contents(ctx, fn)
}
