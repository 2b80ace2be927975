// Package hashkey implements HashKeyStorage, the content-addressed front
// door to a storage graph: Write computes a key by hashing the value
// itself (so the caller never picks a key), and Read resolves a caller-
// supplied key against a local tier first, falling back to a remote tier
// only when asked to fetch.
package hashkey

import (
	"context"
	"fmt"
	"hash"

	"github.com/tarnstore/tarn/errs"
	"github.com/tarnstore/tarn/key"
	"github.com/tarnstore/tarn/levels"
	"github.com/tarnstore/tarn/location"
	"github.com/tarnstore/tarn/value"
)

// Storage is the content-addressed entry point: local is always tried
// first (for both read and write), remote participates in reads (when
// fetch is requested) but never in writes -- a new blob is only ever
// written locally, and nothing here copies it out to remote. Copying
// goes the other way: a remote hit found by Read (with Fetch) or by
// Fetch is replicated into local via Levels.
type Storage struct {
	local  location.Writable
	remote location.Location
	full   *levels.Levels
	hash   func() hash.Hash
}

// Option configures a Storage at construction.
type Option func(*options)

type options struct {
	hash func() hash.Hash
}

// WithHash pins the hash algorithm explicitly, overriding whatever local/
// remote themselves report. Required when neither reports one.
func WithHash(newHash func() hash.Hash) Option {
	return func(o *options) { o.hash = newHash }
}

// New builds a Storage over local and remote. remote may be nil (local-
// only). All of local, remote that report a hash algorithm must agree,
// unless WithHash is supplied to force one.
func New(local location.Writable, remote location.Location, opts ...Option) (*Storage, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	resolvedHash, err := agreeHash(local, remote, o.hash)
	if err != nil {
		return nil, err
	}

	tiers := []levels.Tier{{Location: local, Write: true, Replicate: true, Name: "local"}}
	if remote != nil {
		tiers = append(tiers, levels.Tier{Location: remote, Write: false, Replicate: false, Name: "remote"})
	}

	full, err := levels.New(tiers...)
	if err != nil {
		return nil, err
	}

	return &Storage{local: local, remote: remote, full: full, hash: resolvedHash}, nil
}

func agreeHash(local location.Writable, remote location.Location, forced func() hash.Hash) (func() hash.Hash, error) {
	reported := forced
	for _, l := range []location.Location{local, remote} {
		if l == nil {
			continue
		}
		h := l.Hash()
		if h == nil {
			continue
		}
		if reported == nil {
			reported = h
			continue
		}
		if reported().Size() != h().Size() {
			return nil, fmt.Errorf("hashkey: tiers disagree on hash algorithm (digest sizes %d vs %d)", reported().Size(), h().Size())
		}
	}
	if reported == nil {
		return nil, fmt.Errorf("hashkey: no tier reports a hash algorithm and none was forced via WithHash")
	}
	return reported, nil
}

// Hash returns the storage graph's hash algorithm constructor.
func (s *Storage) Hash() func() hash.Hash { return s.hash }

// Fetch reports, for each key, whether it is present anywhere in the
// storage graph (local or remote). A key found only in remote is
// replicated into local along the way (the same Levels read path Read
// uses with Fetch), so a Fetch pass also pulls remote-only blobs into
// local.
func (s *Storage) Fetch(ctx context.Context, keys []key.Key) (map[string]bool, error) {
	results, err := s.full.ReadBatch(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(results))
	for _, r := range results {
		found := r.Handle.Found()
		out[r.Key.Hex()] = found
		if err := r.Handle.Close(nil); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ReadOptions controls Read's fallback and error behavior.
type ReadOptions struct {
	// Fetch, if true, allows falling back to the remote tier (and
	// replicating the hit back to local) when the key isn't found
	// locally. If false, only the local tier is consulted.
	Fetch bool

	// MissIsError, if true, makes Read return an error wrapping
	// errs.ErrRead when the key is not found anywhere consulted,
	// instead of returning a not-found ReadHandle.
	MissIsError bool
}

// Read resolves k against local (and, if opts.Fetch, remote too),
// returning the handle for the caller to consume and Close. Close must
// always be called; if the caller discovers the content is corrupt it
// should report that via Close(err) wrapping errs.ErrStorageCorruption,
// which a DiskDict-backed tier will use to quarantine the bad entry.
func (s *Storage) Read(ctx context.Context, k key.Key, opts ReadOptions) (*location.ReadHandle, error) {
	var (
		h   *location.ReadHandle
		err error
	)
	if opts.Fetch {
		h, err = s.full.Read(ctx, k, false)
	} else {
		h, err = s.local.Read(ctx, k, false)
	}
	if err != nil {
		return nil, err
	}

	if !h.Found() && opts.MissIsError {
		return nil, fmt.Errorf("hashkey: key %s not found: %w", k.Hex(), errs.Read("key not found"))
	}
	return h, nil
}

// Write computes value's digest under the storage's hash algorithm and
// writes it to the local tier under that key, returning the resulting
// key. If the local tier refuses the write (quota, collision on a
// mismatched existing entry), Write returns an error wrapping
// errs.ErrWrite.
func (s *Storage) Write(ctx context.Context, v value.Value, labels location.Labels) (key.Key, error) {
	digest, err := key.Digest(v, s.hash)
	if err != nil {
		return nil, fmt.Errorf("hashkey: digesting value: %w", err)
	}

	h, err := s.local.Write(ctx, digest, v, labels)
	if err != nil {
		return nil, err
	}
	if !h.Written() {
		return nil, fmt.Errorf("hashkey: local tier refused write of %s: %w", digest.Hex(), errs.Write("write refused"))
	}
	if err := h.Close(nil); err != nil {
		return nil, err
	}

	return digest, nil
}
