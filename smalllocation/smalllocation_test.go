package smalllocation_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarnstore/tarn/key"
	"github.com/tarnstore/tarn/location"
	"github.com/tarnstore/tarn/smalllocation"
	"github.com/tarnstore/tarn/value"
)

func mustKey(t *testing.T, content []byte) key.Key {
	t.Helper()
	k, err := key.Digest(value.FromBytes(content), sha256.New)
	require.NoError(t, err)
	return k
}

func TestWrite_AcceptsValueUnderMaxSize(t *testing.T) {
	t.Parallel()

	inner := location.NewMem(sha256.New)
	s := smalllocation.New(inner, 10)

	content := []byte("small")
	k := mustKey(t, content)

	h, err := s.Write(context.Background(), k, value.FromBytes(content), nil)
	require.NoError(t, err)
	assert.True(t, h.Written())
	assert.True(t, inner.Has(k))
}

func TestWrite_RefusesValueAtExactlyMaxSize(t *testing.T) {
	t.Parallel()

	inner := location.NewMem(sha256.New)
	s := smalllocation.New(inner, 5)

	content := bytes.Repeat([]byte("a"), 5)
	k := mustKey(t, content)

	h, err := s.Write(context.Background(), k, value.FromBytes(content), nil)
	require.NoError(t, err)
	assert.False(t, h.Written(), "a value of exactly maxSize bytes must be refused, not accepted")
	assert.False(t, inner.Has(k))
}

func TestWrite_RefusesValueOverMaxSize(t *testing.T) {
	t.Parallel()

	inner := location.NewMem(sha256.New)
	s := smalllocation.New(inner, 5)

	content := bytes.Repeat([]byte("a"), 6)
	k := mustKey(t, content)

	h, err := s.Write(context.Background(), k, value.FromBytes(content), nil)
	require.NoError(t, err)
	assert.False(t, h.Written())
}

func TestRead_PassesThroughToWrapped(t *testing.T) {
	t.Parallel()

	inner := location.NewMem(sha256.New)
	s := smalllocation.New(inner, 100)

	content := []byte("payload")
	k := mustKey(t, content)
	_, err := inner.Write(context.Background(), k, value.FromBytes(content), nil)
	require.NoError(t, err)

	h, err := s.Read(context.Background(), k, false)
	require.NoError(t, err)
	require.True(t, h.Found())
	require.NoError(t, h.Close(nil))
}
