package config_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarnstore/tarn/config"
	"github.com/tarnstore/tarn/key"
)

func TestDefault_UsesSHA256AndDummyTools(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	assert.Equal(t, "sha256", cfg.Hash)
	assert.Nil(t, cfg.Locker)
	assert.Nil(t, cfg.Size)
	assert.Nil(t, cfg.Usage)
	assert.Nil(t, cfg.Labels)

	newHash, err := cfg.BuildHash()
	require.NoError(t, err)
	assert.Equal(t, 32, newHash().Size())
}

func TestInitThenLoad_RoundTrips(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "store")
	cfg := config.Default()
	cfg.Levels = []int{2, -1}
	cfg.FreeDiskSize = 1024

	require.NoError(t, config.Init(root, cfg, false))

	loaded, err := config.Load(root)
	require.NoError(t, err)
	assert.Equal(t, cfg.Hash, loaded.Hash)
	assert.Equal(t, cfg.Levels, loaded.Levels)
	assert.Equal(t, cfg.FreeDiskSize, loaded.FreeDiskSize)
}

func TestInit_RefusesToOverwriteExistingConfig(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, config.Init(root, config.Default(), false))

	err := config.Init(root, config.Default(), false)
	assert.Error(t, err)

	assert.NoError(t, config.Init(root, config.Default(), true))
}

func TestBuildHash_UnknownAlgorithmErrors(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Hash = "blake2b"

	_, err := cfg.BuildHash()
	assert.Error(t, err)
}

func TestResolvedLevels_DefaultsFromDigestSize(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	assert.Equal(t, key.Levels{1, 31}, cfg.ResolvedLevels())
}

func TestResolvedLevels_HonorsExplicitLevels(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Levels = []int{2, 2, -1}
	assert.Equal(t, key.Levels{2, 2, -1}, cfg.ResolvedLevels())
}

func TestMakeLocker_DefaultsToDummy(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	lkr, err := cfg.MakeLocker()
	require.NoError(t, err)

	unlock, err := lkr.Read(context.Background(), key.Key{})
	require.NoError(t, err)
	require.NoError(t, unlock())
}
