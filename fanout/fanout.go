// Package fanout implements Fanout: a Writable Location composed of
// several Locations treated as horizontal shards. Reads and writes
// resolve against the first child that has (or accepts) the key;
// deletes and enumeration touch every child.
package fanout

import (
	"context"
	"fmt"
	"hash"

	"github.com/tarnstore/tarn/key"
	"github.com/tarnstore/tarn/location"
	"github.com/tarnstore/tarn/value"
)

// Fanout composes Locations in priority order. A read or write resolves
// against the first child willing to serve it; a key therefore lives in
// exactly one child at a time (unlike levels.Levels, which treats its
// tiers as a replication hierarchy).
type Fanout struct {
	children []location.Location
	hash     func() hash.Hash
}

// New composes children into a Fanout. All children that report a hash
// algorithm must agree; New returns an error if they don't.
func New(children ...location.Location) (*Fanout, error) {
	newHash, err := agreeHash(children)
	if err != nil {
		return nil, err
	}
	return &Fanout{children: children, hash: newHash}, nil
}

func agreeHash(children []location.Location) (func() hash.Hash, error) {
	var chosen func() hash.Hash
	for _, c := range children {
		h := c.Hash()
		if h == nil {
			continue
		}
		if chosen == nil {
			chosen = h
			continue
		}
		if chosen().Size() != h().Size() {
			return nil, fmt.Errorf("fanout: children disagree on hash algorithm (digest sizes %d vs %d)", chosen().Size(), h().Size())
		}
	}
	return chosen, nil
}

// Hash implements location.Location.
func (f *Fanout) Hash() func() hash.Hash { return f.hash }

// Read implements location.Location: the first child reporting a hit
// wins; its handle is returned as-is (Fanout does no replication).
func (f *Fanout) Read(ctx context.Context, k key.Key, withLabels bool) (*location.ReadHandle, error) {
	for _, child := range f.children {
		h, err := child.Read(ctx, k, withLabels)
		if err != nil {
			return nil, err
		}
		if h.Found() {
			return h, nil
		}
	}
	return location.Miss(), nil
}

// ReadBatch implements location.Location. Each child is asked only
// about the keys still unresolved after the previous children, so no
// child is queried about a key another child already answered for.
func (f *Fanout) ReadBatch(ctx context.Context, keys []key.Key) ([]location.BatchResult, error) {
	results := make(map[string]location.BatchResult, len(keys))
	remaining := keys

	for _, child := range f.children {
		if len(remaining) == 0 {
			break
		}

		hits, err := child.ReadBatch(ctx, remaining)
		if err != nil {
			return nil, err
		}

		next := make([]key.Key, 0, len(remaining))
		for _, hit := range hits {
			if hit.Handle.Found() {
				results[hit.Key.Hex()] = hit
			} else {
				next = append(next, hit.Key)
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
// first Writable child that accepts it. Children backed by a seekable
// value.Value reader have their stream position restored before each
// retry, so a refusal by one child never corrupts the attempt at the
// next.
func (f *Fanout) Write(ctx context.Context, k key.Key, v value.Value, labels location.Labels) (*location.WriteHandle, error) {
	pos, err := v.Pos()
	if err != nil {
		return nil, fmt.Errorf("fanout: snapshotting value position: %w", err)
	}

	for _, child := range f.children {
		writable, ok := child.(location.Writable)
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
			return nil, fmt.Errorf("fanout: restoring value position after refused write: %w", err)
		}
	}

	return location.Refused(), nil
}

// Delete implements location.Writable: every Writable child is asked to
// delete k; Delete reports true if any of them had it.
func (f *Fanout) Delete(ctx context.Context, k key.Key) (bool, error) {
	deleted := false
	for _, child := range f.children {
		writable, ok := child.(location.Writable)
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

// Touch implements location.Writable: the first Writable child that has
// k wins, mirroring Read's first-hit-wins resolution.
func (f *Fanout) Touch(ctx context.Context, k key.Key) (bool, error) {
	for _, child := range f.children {
		writable, ok := child.(location.Writable)
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

// Contents implements location.Location: every child is enumerated in
// order. A key sharded across children by construction appears at most
// once, since Fanout's own Write never duplicates it.
func (f *Fanout) Contents(ctx context.Context, fn func(location.Entry) error) error {
	for _, child := range f.children {
		if err := child.Contents(ctx, fn); err != nil {
			return err
		}
	}
	return nil
}
