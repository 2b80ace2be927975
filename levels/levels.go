// Package levels implements Levels: a Writable Location composed of
// tiers ordered by priority (typically fast/local first, slow/remote
// last). Unlike fanout.Fanout, a hit in a lower tier is opportunistically
// replicated into the first higher tier configured to receive it that
// accepts the write, so it becomes cheap to fetch next time.
package levels

import (
	"context"
	"fmt"
	"hash"
	"log/slog"

	"github.com/tarnstore/tarn/key"
	"github.com/tarnstore/tarn/location"
	"github.com/tarnstore/tarn/value"
)

// Tier describes one level's participation in writes, read-time
// replication, and diagnostics.
type Tier struct {
	Location location.Location

	// Write is whether an ordinary Write call may land here.
	Write bool

	// Replicate is whether a read-time hit discovered at a lower tier
	// may be mirrored up into this one.
	Replicate bool

	// Name labels this tier in diagnostics (logging); optional.
	Name string
}

// FromLocation builds a Tier with both Write and Replicate enabled, for
// passing a bare Location to New.
func FromLocation(l location.Location) Tier {
	return Tier{Location: l, Write: true, Replicate: true}
}

// Levels composes tiers in priority order.
type Levels struct {
	tiers []Tier
	hash  func() hash.Hash
}

// New composes tiers into a Levels. It takes Tier values only;
// FromLocation builds one from a bare Location. All tiers that report a
// hash algorithm must agree.
func New(tiers ...Tier) (*Levels, error) {
	newHash, err := agreeHash(tiers)
	if err != nil {
		return nil, err
	}
	return &Levels{tiers: tiers, hash: newHash}, nil
}

func agreeHash(tiers []Tier) (func() hash.Hash, error) {
	var chosen func() hash.Hash
	for _, t := range tiers {
		h := t.Location.Hash()
		if h == nil {
			continue
		}
		if chosen == nil {
			chosen = h
			continue
		}
		if chosen().Size() != h().Size() {
			return nil, fmt.Errorf("levels: tiers disagree on hash algorithm (digest sizes %d vs %d)", chosen().Size(), h().Size())
		}
	}
	return chosen, nil
}

// Hash implements location.Location.
func (l *Levels) Hash() func() hash.Hash { return l.hash }

// Read implements location.Location. The first tier reporting a hit
// wins; before returning, the hit is opportunistically replicated into
// the first higher-priority (lower-indexed) tier configured to receive
// it that accepts the write; tiers above that one are not written.
// If replication succeeds, the caller is handed the replica's handle
// instead of the original -- and closing it (reporting whether the
// caller's use of the value failed) is forwarded to the replica's
// WriteHandle.Close, mirroring the reference implementation's
// exception-propagation contract. The write handles of the Locations in
// this module ignore that error, so a corruption reported on a replica
// does not quarantine it.
func (l *Levels) Read(ctx context.Context, k key.Key, withLabels bool) (*location.ReadHandle, error) {
	for index, tier := range l.tiers {
		h, err := tier.Location.Read(ctx, k, withLabels)
		if err != nil {
			return nil, err
		}
		if !h.Found() {
			continue
		}

		mirrored, err := l.replicate(ctx, k, *h.Value, index)
		if err != nil {
			_ = h.Close(nil)
			return nil, err
		}
		if mirrored == nil {
			return h, nil
		}

		// The original handle's resources (e.g. its read lock) are
		// released now; only the replica's write handle needs to stay
		// open until the caller reports back via Close.
		if err := h.Close(nil); err != nil {
			_ = mirrored.Close(nil)
			return nil, err
		}

		return location.NewReadHandle(mirrored.Value, h.Labels, func(bodyErr error) error {
			return mirrored.Close(bodyErr)
		}), nil
	}

	return location.Miss(), nil
}

// replicate tries to write v into the first tier (among those with
// lower index than index, i.e. higher priority) configured to replicate
// and currently willing to accept the write. Returns nil if none
// accepted it (the caller keeps using the original value).
func (l *Levels) replicate(ctx context.Context, k key.Key, v value.Value, index int) (*location.WriteHandle, error) {
	for _, tier := range l.tiers[:index] {
		if !tier.Replicate {
			continue
		}
		writable, ok := tier.Location.(location.Writable)
		if !ok {
			continue
		}

		h, err := writable.Write(ctx, k, v, nil)
		if err != nil {
			return nil, fmt.Errorf("levels: replicating %s into tier %q: %w", k.Hex(), tier.Name, err)
		}
		if h.Written() {
			slog.Debug("levels: replicated hit into higher-priority tier", "key", k.Hex(), "tier", tier.Name)
			return h, nil
		}
	}
	return nil, nil
}

// ReadBatch implements location.Location. Each tier is asked only about
// keys unresolved by higher-priority tiers; hits are replicated exactly
// as in Read.
func (l *Levels) ReadBatch(ctx context.Context, keys []key.Key) ([]location.BatchResult, error) {
	results := make(map[string]location.BatchResult, len(keys))
	remaining := keys

	for index, tier := range l.tiers {
		if len(remaining) == 0 {
			break
		}

		hits, err := tier.Location.ReadBatch(ctx, remaining)
		if err != nil {
			return nil, err
		}

		next := make([]key.Key, 0, len(remaining))
		for _, hit := range hits {
			if !hit.Handle.Found() {
				next = append(next, hit.Key)
				continue
			}

			mirrored, err := l.replicate(ctx, hit.Key, *hit.Handle.Value, index)
			if err != nil {
				return nil, err
			}
			if mirrored == nil {
				results[hit.Key.Hex()] = hit
				continue
			}

			if err := hit.Handle.Close(nil); err != nil {
				return nil, err
			}
			results[hit.Key.Hex()] = location.BatchResult{
				Key: hit.Key,
				Handle: location.NewReadHandle(mirrored.Value, hit.Handle.Labels, func(bodyErr error) error {
					return mirrored.Close(bodyErr)
				}),
			}
		}
		remaining = next
	}

	out := make([]location.BatchResult, 0, len(keys))
	for _, k := range keys {
		if hit, ok := results[k.Hex()]; ok {
			out = append(out, hit)
		} else {
			out = append(out, location.BatchResult{Key: k, Handle: location.Miss()})
		}
	}
	return out, nil
}

// Write implements location.Writable: the value is written to the
// first tier with Write enabled that accepts it.
func (l *Levels) Write(ctx context.Context, k key.Key, v value.Value, labels location.Labels) (*location.WriteHandle, error) {
	pos, err := v.Pos()
	if err != nil {
		return nil, fmt.Errorf("levels: snapshotting value position: %w", err)
	}

	for _, tier := range l.tiers {
		if !tier.Write {
			continue
		}
		writable, ok := tier.Location.(location.Writable)
		if !ok {
			continue
		}

		h, err := writable.Write(ctx, k, v, labels)
		if err != nil {
			return nil, err
		}
		if h.Written() {
			return h, nil
		}

		if err := v.Restore(pos); err != nil {
			return nil, fmt.Errorf("levels: restoring value position after refused write: %w", err)
		}
	}

	return location.Refused(), nil
}

// Delete implements location.Writable: every writable tier is asked to
// delete k; Delete reports true if any of them had it.
func (l *Levels) Delete(ctx context.Context, k key.Key) (bool, error) {
	deleted := false
	for _, tier := range l.tiers {
		if !tier.Write {
			continue
		}
		writable, ok := tier.Location.(location.Writable)
		if !ok {
			continue
		}
		ok2, err := writable.Delete(ctx, k)
		if err != nil {
			return false, err
		}
		if ok2 {
			deleted = true
		}
	}
	return deleted, nil
}

// Touch implements location.Writable: the first writable tier that has
// k wins.
func (l *Levels) Touch(ctx context.Context, k key.Key) (bool, error) {
	for _, tier := range l.tiers {
		if !tier.Write {
			continue
		}
		writable, ok := tier.Location.(location.Writable)
		if !ok {
			continue
		}
		ok2, err := writable.Touch(ctx, k)
		if err != nil {
			return false, err
		}
		if ok2 {
			return true, nil
		}
	}
	return false, nil
}

// Contents implements location.Location: every tier is enumerated in
// order. A key present at multiple tiers (having been replicated) is
// yielded once per tier it's stored at, same as the reference
// implementation.
func (l *Levels) Contents(ctx context.Context, fn func(location.Entry) error) error {
	for _, tier := range l.tiers {
		if err := tier.Location.Contents(ctx, fn); err != nil {
			return err
		}
	}
	return nil
}
