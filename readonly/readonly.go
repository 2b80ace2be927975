// Package readonly implements a generic read-only remote Location:
// content is fetched through an injected function rather than a concrete
// HTTP/SSH/SCP client, since network transports are an explicit
// Non-goal. Grounded on the shape of the reference implementation's
// Nginx/HTTP remote (fetch by relative path, no labels, no enumeration),
// generalized so any transport can be plugged in.
package readonly

import (
	"context"
	"fmt"
	"hash"
	"io"

	"github.com/tarnstore/tarn/key"
	"github.com/tarnstore/tarn/location"
	"github.com/tarnstore/tarn/value"
)

// Fetch retrieves the content stored under k. It must translate its own
// transport failures (connection refused, 404, timeout) into
// found=false, err=nil -- per this module's Location boundary contract,
// composers (Fanout, Levels) never see a remote's transport errors, only
// hits and misses. A non-nil error here is reserved for bugs in the
// Fetch implementation itself (e.g. a malformed URL it built), not for
// ordinary "not there" outcomes.
type Fetch func(ctx context.Context, k key.Key) (io.ReadCloser, bool, error)

// Location is a read-only remote backed by Fetch. It never reports
// labels (remote transports in the reference corpus don't carry any)
// and never enumerates (Contents is a no-op, matching the original
// Nginx location's TODO).
type Location struct {
	fetch Fetch
	hash  func() hash.Hash
}

// Option configures a Location at construction.
type Option func(*Location)

// WithHash pins the hash algorithm this remote's keys are understood
// under, so it can be composed with hash-checked siblings (Fanout,
// Levels, HashKeyStorage).
func WithHash(newHash func() hash.Hash) Option {
	return func(l *Location) { l.hash = newHash }
}

// New builds a Location around fetch.
func New(fetch Fetch, opts ...Option) *Location {
	l := &Location{fetch: fetch}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Hash implements location.Location.
func (l *Location) Hash() func() hash.Hash { return l.hash }

// Read implements location.Location. withLabels is accepted for
// interface compatibility but always yields a nil Labels, since a
// read-only remote transport carries none.
func (l *Location) Read(ctx context.Context, k key.Key, _ bool) (*location.ReadHandle, error) {
	r, found, err := l.fetch(ctx, k)
	if err != nil {
		return nil, fmt.Errorf("readonly: fetching %s: %w", k.Hex(), err)
	}
	if !found {
		return location.Miss(), nil
	}

	data, err := io.ReadAll(r)
	closeErr := r.Close()
	if err != nil {
		return nil, fmt.Errorf("readonly: reading %s: %w", k.Hex(), err)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("readonly: closing fetch stream for %s: %w", k.Hex(), closeErr)
	}

	return location.NewReadHandle(value.FromBytes(data), nil, func(error) error { return nil }), nil
}

// ReadBatch implements location.Location as a naive per-key loop, same
// as the reference implementation (which issues one HTTP request per
// key in read_batch too).
func (l *Location) ReadBatch(ctx context.Context, keys []key.Key) ([]location.BatchResult, error) {
	out := make([]location.BatchResult, 0, len(keys))
	for _, k := range keys {
		h, err := l.Read(ctx, k, false)
		if err != nil {
			return nil, err
		}
		out = append(out, location.BatchResult{Key: k, Handle: h})
	}
	return out, nil
}

// Contents implements location.Location as a no-op: enumerating a remote
// transport isn't supported, matching the original Nginx location's
// unimplemented contents().
func (l *Location) Contents(context.Context, func(location.Entry) error) error {
	return nil
}
