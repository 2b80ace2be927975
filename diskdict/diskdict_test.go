package diskdict_test

import (
	"context"
	"crypto/sha256"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarnstore/tarn/config"
	"github.com/tarnstore/tarn/diskdict"
	"github.com/tarnstore/tarn/key"
	"github.com/tarnstore/tarn/location"
	"github.com/tarnstore/tarn/value"
)

func mustKey(t *testing.T, content []byte) key.Key {
	t.Helper()
	k, err := key.Digest(value.FromBytes(content), sha256.New)
	require.NoError(t, err)
	return k
}

func trackedConfig() config.StorageConfig {
	cfg := config.Default()
	cfg.Usage = &config.ToolConfig{Name: "file"}
	cfg.Labels = &config.ToolConfig{Name: "json"}
	return cfg
}

func TestInit_CreatesConfigAndOpens(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	d, err := diskdict.Init(root, config.Default())
	require.NoError(t, err)
	assert.NotNil(t, d.Hash())

	reopened, err := diskdict.Open(root)
	require.NoError(t, err)
	assert.NotNil(t, reopened)
}

func TestInit_RefusesWhenConfigAlreadyExists(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	_, err := diskdict.Init(root, config.Default())
	require.NoError(t, err)

	_, err = diskdict.Init(root, config.Default())
	assert.Error(t, err)
}

func TestWriteThenRead_RoundTrips(t *testing.T) {
	t.Parallel()

	d, err := diskdict.Init(t.TempDir(), trackedConfig())
	require.NoError(t, err)

	content := []byte("hello, disk")
	k := mustKey(t, content)

	wh, err := d.Write(context.Background(), k, value.FromBytes(content), location.Labels{"a"})
	require.NoError(t, err)
	require.True(t, wh.Written())
	require.NoError(t, wh.Close(nil))

	rh, err := d.Read(context.Background(), k, true)
	require.NoError(t, err)
	require.True(t, rh.Found())
	assert.Equal(t, location.Labels{"a"}, rh.Labels)

	r, err := rh.Value.Open()
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, content, got)
	require.NoError(t, rh.Close(nil))
}

func TestRead_MissReportsNotFound(t *testing.T) {
	t.Parallel()

	d, err := diskdict.Init(t.TempDir(), config.Default())
	require.NoError(t, err)

	rh, err := d.Read(context.Background(), mustKey(t, []byte("never written")), false)
	require.NoError(t, err)
	assert.False(t, rh.Found())
}

func TestWrite_SecondWriteOfIdenticalContentMergesLabels(t *testing.T) {
	t.Parallel()

	d, err := diskdict.Init(t.TempDir(), trackedConfig())
	require.NoError(t, err)

	content := []byte("same bytes")
	k := mustKey(t, content)

	wh1, err := d.Write(context.Background(), k, value.FromBytes(content), location.Labels{"a"})
	require.NoError(t, err)
	require.NoError(t, wh1.Close(nil))

	wh2, err := d.Write(context.Background(), k, value.FromBytes(content), location.Labels{"b"})
	require.NoError(t, err)
	require.True(t, wh2.Written())
	require.NoError(t, wh2.Close(nil))

	rh, err := d.Read(context.Background(), k, true)
	require.NoError(t, err)
	require.True(t, rh.Found())
	assert.ElementsMatch(t, location.Labels{"a", "b"}, rh.Labels)
	require.NoError(t, rh.Close(nil))
}

func TestWrite_CollisionOnMismatchedContentErrors(t *testing.T) {
	t.Parallel()

	d, err := diskdict.Init(t.TempDir(), config.Default())
	require.NoError(t, err)

	content := []byte("original")
	k := mustKey(t, content)

	wh, err := d.Write(context.Background(), k, value.FromBytes(content), nil)
	require.NoError(t, err)
	require.NoError(t, wh.Close(nil))

	// Force a key collision: ask DiskDict to store different bytes
	// under the same digest, simulating a corrupted caller or a hash
	// collision.
	_, err = d.Write(context.Background(), k, value.FromBytes([]byte("different")), nil)
	assert.Error(t, err)
}

func TestDelete_RemovesEntryAndReportsWhetherItExisted(t *testing.T) {
	t.Parallel()

	d, err := diskdict.Init(t.TempDir(), trackedConfig())
	require.NoError(t, err)

	content := []byte("to be deleted")
	k := mustKey(t, content)

	wh, err := d.Write(context.Background(), k, value.FromBytes(content), nil)
	require.NoError(t, err)
	require.NoError(t, wh.Close(nil))

	existed, err := d.Delete(context.Background(), k)
	require.NoError(t, err)
	assert.True(t, existed)

	rh, err := d.Read(context.Background(), k, false)
	require.NoError(t, err)
	assert.False(t, rh.Found())

	existedAgain, err := d.Delete(context.Background(), k)
	require.NoError(t, err)
	assert.False(t, existedAgain)
}

func TestTouch_UpdatesUsageWithoutReturningPayload(t *testing.T) {
	t.Parallel()

	d, err := diskdict.Init(t.TempDir(), trackedConfig())
	require.NoError(t, err)

	content := []byte("touchable")
	k := mustKey(t, content)

	wh, err := d.Write(context.Background(), k, value.FromBytes(content), nil)
	require.NoError(t, err)
	require.NoError(t, wh.Close(nil))

	ok, err := d.Touch(context.Background(), k)
	require.NoError(t, err)
	assert.True(t, ok)

	missing, err := d.Touch(context.Background(), mustKey(t, []byte("absent")))
	require.NoError(t, err)
	assert.False(t, missing)
}

func TestContents_EnumeratesEveryWrittenKey(t *testing.T) {
	t.Parallel()

	d, err := diskdict.Init(t.TempDir(), trackedConfig())
	require.NoError(t, err)

	want := map[string]bool{}
	for _, s := range []string{"one", "two", "three"} {
		content := []byte(s)
		k := mustKey(t, content)
		wh, err := d.Write(context.Background(), k, value.FromBytes(content), location.Labels{s})
		require.NoError(t, err)
		require.NoError(t, wh.Close(nil))
		want[k.Hex()] = true
	}

	got := map[string]bool{}
	err = d.Contents(context.Background(), func(e location.Entry) error {
		got[e.Key.Hex()] = true
		lbls, err := e.Meta.Labels()
		require.NoError(t, err)
		assert.NotEmpty(t, lbls)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestWrite_RefusedWhenMaxSizeExceeded(t *testing.T) {
	t.Parallel()

	cfg := trackedConfig()
	cfg.Size = &config.ToolConfig{Name: "atomic"}
	zero := int64(1)
	cfg.MaxSize = &zero

	d, err := diskdict.Init(t.TempDir(), cfg)
	require.NoError(t, err)

	content := []byte("first blob pushes the tracker past its quota")
	k1 := mustKey(t, content)
	wh, err := d.Write(context.Background(), k1, value.FromBytes(content), nil)
	require.NoError(t, err)
	require.True(t, wh.Written())
	require.NoError(t, wh.Close(nil))

	other := []byte("second blob should now be refused")
	k2 := mustKey(t, other)
	wh2, err := d.Write(context.Background(), k2, value.FromBytes(other), nil)
	require.NoError(t, err)
	assert.False(t, wh2.Written())
}
