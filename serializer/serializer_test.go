package serializer_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarnstore/tarn/serializer"
)

// memDir is a minimal in-memory serializer.Dir for tests.
type memDir struct {
	files map[string][]byte
}

func newMemDir() *memDir { return &memDir{files: make(map[string][]byte)} }

func (d *memDir) WriteFile(name string, data []byte) error {
	d.files[name] = append([]byte(nil), data...)
	return nil
}

func (d *memDir) ReadFile(name string) ([]byte, error) {
	data, ok := d.files[name]
	if !ok {
		return nil, &fileNotFoundError{name: name}
	}
	return data, nil
}

func (d *memDir) Names() ([]string, error) {
	names := make([]string, 0, len(d.files))
	for name := range d.files {
		names = append(names, name)
	}
	return names, nil
}

type fileNotFoundError struct{ name string }

func (e *fileNotFoundError) Error() string { return "memdir: no such file: " + e.name }

func TestJSON_SaveThenLoadRoundTrips(t *testing.T) {
	t.Parallel()

	s := serializer.NewJSON()
	dir := newMemDir()

	in := map[string]any{"hello": "world", "n": float64(3)}
	require.NoError(t, s.Save(context.Background(), in, dir))

	out, err := s.Load(context.Background(), dir, nil)
	require.NoError(t, err)
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("round-tripped value differs (-saved +loaded):\n%s", diff)
	}
}

func TestBytes_SaveRejectsNonByteSlice(t *testing.T) {
	t.Parallel()

	s := serializer.NewBytes()
	dir := newMemDir()

	err := s.Save(context.Background(), "not bytes", dir)
	assert.Error(t, err)
}

func TestBytes_SaveThenLoadRoundTrips(t *testing.T) {
	t.Parallel()

	s := serializer.NewBytes()
	dir := newMemDir()

	require.NoError(t, s.Save(context.Background(), []byte("raw payload"), dir))

	out, err := s.Load(context.Background(), dir, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("raw payload"), out)
}

func TestChain_TriesEachSerializerInOrder(t *testing.T) {
	t.Parallel()

	chain := serializer.Chain(serializer.NewBytes(), serializer.NewJSON())

	dir := newMemDir()
	require.NoError(t, chain.Save(context.Background(), map[string]any{"a": 1.0}, dir))

	out, err := chain.Load(context.Background(), dir, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1.0}, out)
}

func TestChain_LoadFailsWhenNoSerializerAccepts(t *testing.T) {
	t.Parallel()

	chain := serializer.Chain(serializer.NewBytes())
	dir := newMemDir()
	require.NoError(t, dir.WriteFile("value.json", []byte(`{"a":1}`)))

	_, err := chain.Load(context.Background(), dir, nil)
	assert.Error(t, err)
}
