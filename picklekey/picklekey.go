// Package picklekey implements PickleKeyStorage: a cache layer keyed by
// an arbitrary fingerprint of a caller-supplied "proxy key" rather than
// by a blob digest. Values are serialized into one or more named blobs
// (offloaded into content-addressed storage), and a small JSON index
// entry mapping file name to content key is committed under the
// fingerprint digest.
package picklekey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/tarnstore/tarn/errs"
	"github.com/tarnstore/tarn/key"
	"github.com/tarnstore/tarn/location"
	"github.com/tarnstore/tarn/serializer"
	"github.com/tarnstore/tarn/value"
)

// Store is the blob-level storage a Storage offloads serialized payloads
// into, abstracted down to content bytes in, content key out. Satisfied
// by an adapter over hashkey.Storage.
type Store = serializer.Store

// Fingerprinter turns an arbitrary proxy key into a stable digest.
// version selects which fingerprinting scheme produced it: CurrentVersion
// for the live scheme, or one of the caller's PreviousVersions when
// probing for an entry written by an older scheme.
type Fingerprinter interface {
	Fingerprint(proxyKey any, version int) ([]byte, error)
}

// CurrentVersion is the Fingerprint version meaning "use the live
// fingerprinting scheme", as opposed to a specific entry in
// PreviousVersions.
const CurrentVersion = 0

// Storage is the fingerprint-keyed cache: index holds small JSON mapping
// documents keyed by fingerprint digest, store holds the actual blobs
// those mappings reference, and serializer defines how a Go value is
// split across named blobs and reassembled.
type Storage struct {
	index            location.Writable
	store            Store
	serializer       serializer.Serializer
	fingerprinter    Fingerprinter
	previousVersions []int
}

// New builds a Storage. previousVersions is consulted, most recent
// first, when the fingerprint computed under the current scheme misses
// -- mirroring the reference implementation's PREVIOUS_VERSIONS fallback,
// but as an explicit field rather than shared package state (see
// DESIGN.md's Open Question decision on global fingerprint-version
// state).
func New(index location.Writable, store Store, ser serializer.Serializer, fp Fingerprinter, previousVersions []int) *Storage {
	return &Storage{index: index, store: store, serializer: ser, fingerprinter: fp, previousVersions: previousVersions}
}

// Write serializes value through the configured Serializer (each named
// blob it produces is written to store by content), then commits the
// resulting name -> content-key mapping into the index under proxyKey's
// current-scheme fingerprint.
func (s *Storage) Write(ctx context.Context, proxyKey any, val any, labels location.Labels) (key.Key, error) {
	digest, err := s.fingerprinter.Fingerprint(proxyKey, CurrentVersion)
	if err != nil {
		return nil, fmt.Errorf("picklekey: fingerprinting key: %w", err)
	}

	dir := newStageDir()
	if err := s.serializer.Save(ctx, val, dir); err != nil {
		return nil, fmt.Errorf("picklekey: serializing value for %x: %w", digest, err)
	}

	mapping, err := dir.commit(ctx, s.store)
	if err != nil {
		return nil, fmt.Errorf("picklekey: committing blobs for %x: %w", digest, err)
	}

	encoded, err := json.Marshal(mapping)
	if err != nil {
		return nil, fmt.Errorf("picklekey: encoding index mapping for %x: %w", digest, err)
	}

	h, err := s.index.Write(ctx, key.Key(digest), value.FromBytes(encoded), labels)
	if err != nil {
		if errors.Is(err, errs.ErrCollision) {
			return nil, s.collisionError(ctx, digest, encoded, err)
		}
		return nil, err
	}
	if !h.Written() {
		return nil, fmt.Errorf("picklekey: index refused write of %x: %w", digest, errs.Write("index write refused"))
	}
	if err := h.Close(nil); err != nil {
		return nil, err
	}

	return key.Key(digest), nil
}

func (s *Storage) collisionError(ctx context.Context, digest []byte, newMapping []byte, cause error) error {
	h, readErr := s.index.Read(ctx, key.Key(digest), false)
	if readErr != nil {
		return fmt.Errorf("picklekey: reading existing index entry after collision on %x: %w", digest, readErr)
	}
	defer func() { _ = h.Close(nil) }()

	existing := "<unreadable>"
	if h.Found() {
		if data, err := readAll(*h.Value); err == nil {
			existing = string(data)
		}
	}

	return fmt.Errorf("picklekey: index collision on %x: existing mapping %s, new mapping %s: %w",
		digest, existing, string(newMapping), cause)
}

// Read fingerprints proxyKey under the current scheme and looks it up in
// the index; on a miss it retries under each of previousVersions, most
// recent first, and -- on a hit there -- rewrites the value under the
// current fingerprint so the next Read is fast. Returns found=false
// (with a nil error) if no version of the fingerprint resolves.
func (s *Storage) Read(ctx context.Context, proxyKey any) (value any, found bool, err error) {
	digest, err := s.fingerprinter.Fingerprint(proxyKey, CurrentVersion)
	if err != nil {
		return nil, false, fmt.Errorf("picklekey: fingerprinting key: %w", err)
	}

	val, found, err := s.readForDigest(ctx, digest)
	if err != nil {
		return nil, false, err
	}
	if found {
		return val, true, nil
	}

	for i := len(s.previousVersions) - 1; i >= 0; i-- {
		version := s.previousVersions[i]
		oldDigest, fpErr := s.fingerprinter.Fingerprint(proxyKey, version)
		if fpErr != nil {
			return nil, false, fmt.Errorf("picklekey: fingerprinting key at version %d: %w", version, fpErr)
		}

		val, found, err = s.readForDigest(ctx, oldDigest)
		if err != nil {
			return nil, false, err
		}
		if found {
			slog.Info("picklekey: migrating entry forward to current fingerprint version", "digest", fmt.Sprintf("%x", digest), "from_version", version)
			if _, writeErr := s.Write(ctx, proxyKey, val, nil); writeErr != nil {
				return nil, false, fmt.Errorf("picklekey: migrating %x forward from version %d: %w", digest, version, writeErr)
			}
			return val, true, nil
		}
	}

	return nil, false, nil
}

// readForDigest resolves one concrete digest against the index. A
// corrupt index entry or a deserialization failure quarantines that
// entry (via ReadHandle.Close(errs.ErrStorageCorruption-wrapped error))
// and is surfaced as an error rather than silently treated as a miss,
// so Read returns it without trying any previous fingerprint version.
func (s *Storage) readForDigest(ctx context.Context, digest []byte) (any, bool, error) {
	h, err := s.index.Read(ctx, key.Key(digest), false)
	if err != nil {
		return nil, false, err
	}

	if !h.Found() {
		_ = h.Close(nil)
		return nil, false, nil
	}

	data, readErr := readAll(*h.Value)
	if readErr != nil {
		_ = h.Close(fmt.Errorf("%w: %w", errs.ErrStorageCorruption, readErr))
		return nil, false, fmt.Errorf("picklekey: reading index entry %x: %w", digest, readErr)
	}

	mapping, unmarshalErr := unmarshalMapping(data)
	if unmarshalErr != nil {
		_ = h.Close(fmt.Errorf("%w: %w", errs.ErrStorageCorruption, unmarshalErr))
		return nil, false, fmt.Errorf("picklekey: decoding index entry %x: %w", digest, errs.Deserialization(unmarshalErr.Error()))
	}

	dir := newFetchDir(ctx, mapping, s.store)
	val, loadErr := s.serializer.Load(ctx, dir, s.store)
	if loadErr != nil {
		_ = h.Close(fmt.Errorf("%w: %w", errs.ErrStorageCorruption, loadErr))
		return nil, false, fmt.Errorf("picklekey: loading value for %x: %w", digest, loadErr)
	}

	if err := h.Close(nil); err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func unmarshalMapping(data []byte) (map[string]string, error) {
	var mapping map[string]string
	if err := json.Unmarshal(data, &mapping); err != nil {
		return nil, err
	}
	return mapping, nil
}

func readAll(v value.Value) ([]byte, error) {
	r, err := v.Open()
	if err != nil {
		return nil, fmt.Errorf("picklekey: opening value: %w", err)
	}
	defer r.Close()
	return io.ReadAll(r)
}
