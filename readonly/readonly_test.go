package readonly_test

import (
	"context"
	"crypto/sha256"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarnstore/tarn/key"
	"github.com/tarnstore/tarn/location"
	"github.com/tarnstore/tarn/readonly"
	"github.com/tarnstore/tarn/value"
)

func mustKey(t *testing.T, content string) key.Key {
	t.Helper()
	k, err := key.Digest(value.FromBytes([]byte(content)), sha256.New)
	require.NoError(t, err)
	return k
}

func TestRead_ReturnsContentOnHit(t *testing.T) {
	t.Parallel()

	k := mustKey(t, "hello")
	loc := readonly.New(func(_ context.Context, got key.Key) (io.ReadCloser, bool, error) {
		if !got.Equal(k) {
			return nil, false, nil
		}
		return io.NopCloser(&nopReader{data: []byte("hello")}), true, nil
	})

	h, err := loc.Read(context.Background(), k, true)
	require.NoError(t, err)
	require.True(t, h.Found())
	assert.Nil(t, h.Labels, "a read-only remote never reports labels")
	require.NoError(t, h.Close(nil))
}

func TestRead_TranslatesNotFoundToMiss(t *testing.T) {
	t.Parallel()

	loc := readonly.New(func(context.Context, key.Key) (io.ReadCloser, bool, error) {
		return nil, false, nil
	})

	h, err := loc.Read(context.Background(), mustKey(t, "anything"), false)
	require.NoError(t, err)
	assert.False(t, h.Found())
}

func TestRead_FetchErrorPropagates(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	loc := readonly.New(func(context.Context, key.Key) (io.ReadCloser, bool, error) {
		return nil, false, boom
	})

	_, err := loc.Read(context.Background(), mustKey(t, "anything"), false)
	assert.ErrorIs(t, err, boom)
}

func TestContents_IsANoOp(t *testing.T) {
	t.Parallel()

	loc := readonly.New(func(context.Context, key.Key) (io.ReadCloser, bool, error) {
		return nil, false, nil
	})

	called := false
	err := loc.Contents(context.Background(), func(location.Entry) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, called)
}

type nopReader struct {
	data []byte
	pos  int
}

func (r *nopReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}
