package hashkey_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarnstore/tarn/hashkey"
	"github.com/tarnstore/tarn/key"
	"github.com/tarnstore/tarn/location"
	"github.com/tarnstore/tarn/value"
)

func TestWrite_ComputesKeyFromContent(t *testing.T) {
	t.Parallel()

	local := location.NewMem(sha256.New)
	s, err := hashkey.New(local, nil)
	require.NoError(t, err)

	k, err := s.Write(context.Background(), value.FromBytes([]byte("hello world")), nil)
	require.NoError(t, err)

	sum := sha256.Sum256([]byte("hello world"))
	assert.Equal(t, hex.EncodeToString(sum[:]), k.Hex())
	assert.True(t, local.Has(k))
}

func TestWrite_NeverTargetsRemote(t *testing.T) {
	t.Parallel()

	local := location.NewMem(sha256.New)
	remote := location.NewMem(sha256.New)
	s, err := hashkey.New(local, remote)
	require.NoError(t, err)

	k, err := s.Write(context.Background(), value.FromBytes([]byte("payload")), nil)
	require.NoError(t, err)

	assert.True(t, local.Has(k))
	assert.False(t, remote.Has(k))
}

func TestRead_WithoutFetchNeverConsultsRemote(t *testing.T) {
	t.Parallel()

	local := location.NewMem(sha256.New)
	remote := location.NewMem(sha256.New)
	s, err := hashkey.New(local, remote)
	require.NoError(t, err)

	k, err := s.Write(context.Background(), value.FromBytes([]byte("remote-only")), nil)
	require.NoError(t, err)

	_, err = local.Delete(context.Background(), k)
	require.NoError(t, err)
	_, err = remote.Write(context.Background(), k, value.FromBytes([]byte("remote-only")), nil)
	require.NoError(t, err)

	h, err := s.Read(context.Background(), k, hashkey.ReadOptions{Fetch: false})
	require.NoError(t, err)
	assert.False(t, h.Found())
}

func TestRead_WithFetchFallsBackToRemoteAndReplicates(t *testing.T) {
	t.Parallel()

	local := location.NewMem(sha256.New)
	remote := location.NewMem(sha256.New)
	s, err := hashkey.New(local, remote)
	require.NoError(t, err)

	k, err := s.Write(context.Background(), value.FromBytes([]byte("remote-only")), nil)
	require.NoError(t, err)
	_, err = local.Delete(context.Background(), k)
	require.NoError(t, err)
	_, err = remote.Write(context.Background(), k, value.FromBytes([]byte("remote-only")), nil)
	require.NoError(t, err)

	h, err := s.Read(context.Background(), k, hashkey.ReadOptions{Fetch: true})
	require.NoError(t, err)
	require.True(t, h.Found())
	require.NoError(t, h.Close(nil))

	assert.True(t, local.Has(k), "a fetched remote hit should be replicated back to local")
}

func TestRead_MissIsErrorWhenRequested(t *testing.T) {
	t.Parallel()

	local := location.NewMem(sha256.New)
	s, err := hashkey.New(local, nil)
	require.NoError(t, err)

	_, err = s.Read(context.Background(), mustMissingKey(t), hashkey.ReadOptions{MissIsError: true})
	assert.Error(t, err)
}

func TestFetch_ReportsPresenceOfEachKey(t *testing.T) {
	t.Parallel()

	local := location.NewMem(sha256.New)
	s, err := hashkey.New(local, nil)
	require.NoError(t, err)

	k, err := s.Write(context.Background(), value.FromBytes([]byte("payload")), nil)
	require.NoError(t, err)

	missing := mustMissingKey(t)

	present, err := s.Fetch(context.Background(), []key.Key{k, missing})
	require.NoError(t, err)

	assert.True(t, present[k.Hex()])
	assert.False(t, present[missing.Hex()])
}

func TestNew_ForcesHashViaOption(t *testing.T) {
	t.Parallel()

	agnostic := location.NewMem(nil)
	_, err := hashkey.New(agnostic, nil)
	assert.Error(t, err, "New must fail when nothing reports a hash and none was forced")

	s, err := hashkey.New(agnostic, nil, hashkey.WithHash(sha256.New))
	require.NoError(t, err)
	assert.NotNil(t, s.Hash())
}

func mustMissingKey(t *testing.T) key.Key {
	t.Helper()
	k, err := key.Digest(value.FromBytes([]byte("this-key-was-never-written")), sha256.New)
	require.NoError(t, err)
	return k
}
