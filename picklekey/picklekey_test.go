package picklekey_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarnstore/tarn/location"
	"github.com/tarnstore/tarn/picklekey"
	"github.com/tarnstore/tarn/serializer"
)

// memStore is a minimal in-memory picklekey.Store (content bytes in,
// content key out), standing in for a hashkey.BlobStore in tests.
type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }

func (s *memStore) Write(_ context.Context, data []byte) ([]byte, error) {
	sum := sha256.Sum256(data)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[hex.EncodeToString(sum[:])] = append([]byte(nil), data...)
	return sum[:], nil
}

func (s *memStore) Read(_ context.Context, key []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.data[hex.EncodeToString(key)]
	if !ok {
		return nil, fmt.Errorf("memstore: no such key: %x", key)
	}
	return data, nil
}

// stringFingerprinter fingerprints a proxy key by hashing its string
// representation together with the version, so different versions of
// the "same" key produce different digests (simulating a fingerprinting
// scheme migration).
type stringFingerprinter struct{}

func (stringFingerprinter) Fingerprint(proxyKey any, version int) ([]byte, error) {
	sum := sha256.Sum256([]byte(fmt.Sprintf("v%d:%v", version, proxyKey)))
	return sum[:], nil
}

func TestWriteThenRead_RoundTrips(t *testing.T) {
	t.Parallel()

	index := location.NewMem(sha256.New)
	store := newMemStore()
	s := picklekey.New(index, store, serializer.NewJSON(), stringFingerprinter{}, nil)

	_, err := s.Write(context.Background(), "proxy-key-1", map[string]any{"n": 1.0}, nil)
	require.NoError(t, err)

	val, found, err := s.Read(context.Background(), "proxy-key-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, map[string]any{"n": 1.0}, val)
}

func TestRead_MissReturnsFalseNotError(t *testing.T) {
	t.Parallel()

	index := location.NewMem(sha256.New)
	store := newMemStore()
	s := picklekey.New(index, store, serializer.NewJSON(), stringFingerprinter{}, nil)

	_, found, err := s.Read(context.Background(), "never-written")
	require.NoError(t, err)
	assert.False(t, found)
}

// versionPinnedFingerprinter always fingerprints under a fixed version,
// regardless of what's asked for, letting a test write an entry "as it
// would have been written" by an older fingerprinting scheme.
type versionPinnedFingerprinter struct {
	fp      picklekey.Fingerprinter
	version int
}

func (f versionPinnedFingerprinter) Fingerprint(proxyKey any, int) ([]byte, error) {
	return f.fp.Fingerprint(proxyKey, f.version)
}

func TestRead_FallsBackToPreviousVersionAndMigrates(t *testing.T) {
	t.Parallel()

	index := location.NewMem(sha256.New)
	store := newMemStore()
	fp := stringFingerprinter{}

	// Simulate a legacy write under fingerprinting version 1 while the
	// live scheme is CurrentVersion (0).
	legacy := picklekey.New(index, store, serializer.NewJSON(), versionPinnedFingerprinter{fp: fp, version: 1}, nil)
	_, err := legacy.Write(context.Background(), "proxy-key-1", map[string]any{"n": 2.0}, nil)
	require.NoError(t, err)

	s := picklekey.New(index, store, serializer.NewJSON(), fp, []int{1})

	val, found, err := s.Read(context.Background(), "proxy-key-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, map[string]any{"n": 2.0}, val)

	currentDigest, err := fp.Fingerprint("proxy-key-1", picklekey.CurrentVersion)
	require.NoError(t, err)
	h, err := index.Read(context.Background(), currentDigest, false)
	require.NoError(t, err)
	assert.True(t, h.Found(), "a hit on a previous version must be migrated forward under the current fingerprint")
	require.NoError(t, h.Close(nil))
}

func TestWrite_CollisionOnMismatchedMappingErrors(t *testing.T) {
	t.Parallel()

	index := location.NewMem(sha256.New)
	store := newMemStore()
	fp := stringFingerprinter{}
	s := picklekey.New(index, store, serializer.NewJSON(), fp, nil)

	_, err := s.Write(context.Background(), "proxy-key-1", map[string]any{"n": 1.0}, nil)
	require.NoError(t, err)

	// Same proxy key (same fingerprint), different value -> the index
	// entry, keyed by fingerprint, collides on commit.
	_, err = s.Write(context.Background(), "proxy-key-1", map[string]any{"n": 999.0}, nil)
	assert.Error(t, err)
}
