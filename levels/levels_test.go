package levels_test

import (
	"context"
	"crypto/sha256"
	"hash"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarnstore/tarn/key"
	"github.com/tarnstore/tarn/levels"
	"github.com/tarnstore/tarn/location"
	"github.com/tarnstore/tarn/value"
)

func mustKey(t *testing.T, content string) key.Key {
	t.Helper()
	k, err := key.Digest(value.FromBytes([]byte(content)), sha256.New)
	require.NoError(t, err)
	return k
}

func TestRead_ReplicatesIntoHigherPriorityTiers(t *testing.T) {
	t.Parallel()

	fast := location.NewMem(sha256.New)
	slow := location.NewMem(sha256.New)

	k := mustKey(t, "hello")
	_, err := slow.Write(context.Background(), k, value.FromBytes([]byte("hello")), nil)
	require.NoError(t, err)

	l, err := levels.New(
		levels.Tier{Location: fast, Write: true, Replicate: true, Name: "fast"},
		levels.Tier{Location: slow, Write: true, Replicate: true, Name: "slow"},
	)
	require.NoError(t, err)

	assert.False(t, fast.Has(k))

	h, err := l.Read(context.Background(), k, false)
	require.NoError(t, err)
	require.True(t, h.Found())
	require.NoError(t, h.Close(nil))

	assert.True(t, fast.Has(k), "hit in the lower-priority tier should be replicated into the higher-priority one")
}

func TestRead_DoesNotReplicateIntoNonReplicatingTier(t *testing.T) {
	t.Parallel()

	fast := location.NewMem(sha256.New)
	slow := location.NewMem(sha256.New)

	k := mustKey(t, "hello")
	_, err := slow.Write(context.Background(), k, value.FromBytes([]byte("hello")), nil)
	require.NoError(t, err)

	l, err := levels.New(
		levels.Tier{Location: fast, Write: true, Replicate: false, Name: "fast"},
		levels.Tier{Location: slow, Write: true, Replicate: true, Name: "slow"},
	)
	require.NoError(t, err)

	h, err := l.Read(context.Background(), k, false)
	require.NoError(t, err)
	require.True(t, h.Found())
	require.NoError(t, h.Close(nil))

	assert.False(t, fast.Has(k), "a tier with Replicate=false must never receive a replica")
}

func TestWrite_SkipsTiersNotConfiguredToWrite(t *testing.T) {
	t.Parallel()

	local := location.NewMem(sha256.New)
	remote := location.NewMem(sha256.New)

	l, err := levels.New(
		levels.Tier{Location: local, Write: true, Replicate: true, Name: "local"},
		levels.Tier{Location: remote, Write: false, Replicate: false, Name: "remote"},
	)
	require.NoError(t, err)

	k := mustKey(t, "payload")
	h, err := l.Write(context.Background(), k, value.FromBytes([]byte("payload")), nil)
	require.NoError(t, err)
	require.True(t, h.Written())

	assert.True(t, local.Has(k))
	assert.False(t, remote.Has(k))
}

func TestWrite_FallsThroughOnRefusal(t *testing.T) {
	t.Parallel()

	full := location.NewMem(sha256.New)
	full.Refuse(true)
	backup := location.NewMem(sha256.New)

	l, err := levels.New(
		levels.Tier{Location: full, Write: true, Replicate: true, Name: "full"},
		levels.Tier{Location: backup, Write: true, Replicate: true, Name: "backup"},
	)
	require.NoError(t, err)

	k := mustKey(t, "payload")
	h, err := l.Write(context.Background(), k, value.FromBytes([]byte("payload")), nil)
	require.NoError(t, err)
	require.True(t, h.Written())

	assert.True(t, backup.Has(k))
}

func TestRead_MissWhenNoTierHasKey(t *testing.T) {
	t.Parallel()

	l, err := levels.New(levels.FromLocation(location.NewMem(sha256.New)))
	require.NoError(t, err)

	h, err := l.Read(context.Background(), mustKey(t, "missing"), false)
	require.NoError(t, err)
	assert.False(t, h.Found())
}

func TestNew_RejectsDisagreeingHashAlgorithms(t *testing.T) {
	t.Parallel()

	sha := location.NewMem(sha256.New)
	other := location.NewMem(func() hash.Hash { return fixedSizeHash{size: 16} })

	_, err := levels.New(
		levels.FromLocation(sha),
		levels.FromLocation(other),
	)
	assert.Error(t, err)
}

// fixedSizeHash is a minimal hash.Hash reporting an arbitrary Size(), used
// only to exercise New's digest-size-agreement check.
type fixedSizeHash struct{ size int }

func (fixedSizeHash) Write(p []byte) (int, error) { return len(p), nil }
func (fixedSizeHash) Sum(b []byte) []byte         { return b }
func (fixedSizeHash) Reset()                      {}
func (f fixedSizeHash) Size() int                 { return f.size }
func (fixedSizeHash) BlockSize() int              { return 64 }
