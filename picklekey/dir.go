package picklekey

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"
)

// stageDir collects named files during Save; commit then writes each one
// to the blob store by content, producing the name -> content-key
// mapping that becomes the index entry.
type stageDir struct {
	files map[string][]byte
	order []string
}

func newStageDir() *stageDir {
	return &stageDir{files: make(map[string][]byte)}
}

// WriteFile implements serializer.Dir.
func (d *stageDir) WriteFile(name string, data []byte) error {
	if _, exists := d.files[name]; !exists {
		d.order = append(d.order, name)
	}
	d.files[name] = data
	return nil
}

// ReadFile implements serializer.Dir, letting a Serializer read back a
// file it (or an earlier stage in a ChainSerializer) already staged.
func (d *stageDir) ReadFile(name string) ([]byte, error) {
	data, ok := d.files[name]
	if !ok {
		return nil, fmt.Errorf("picklekey: %q was never staged", name)
	}
	return data, nil
}

// Names implements serializer.Dir.
func (d *stageDir) Names() ([]string, error) {
	names := make([]string, len(d.order))
	copy(names, d.order)
	return names, nil
}

func (d *stageDir) commit(ctx context.Context, store Store) (map[string]string, error) {
	mapping := make(map[string]string, len(d.order))
	for _, name := range d.order {
		contentKey, err := store.Write(ctx, d.files[name])
		if err != nil {
			return nil, fmt.Errorf("writing blob %q: %w", name, err)
		}
		mapping[name] = hex.EncodeToString(contentKey)
	}
	return mapping, nil
}

// fetchDir serves Load's file reads out of an index mapping (name ->
// hex content key), fetching each blob from store lazily and at most
// once per name.
type fetchDir struct {
	ctx     context.Context
	mapping map[string]string
	names   []string
	store   Store
}

func newFetchDir(ctx context.Context, mapping map[string]string, store Store) *fetchDir {
	names := make([]string, 0, len(mapping))
	for name := range mapping {
		names = append(names, name)
	}
	sort.Strings(names)
	return &fetchDir{ctx: ctx, mapping: mapping, names: names, store: store}
}

// Names implements serializer.Dir.
func (d *fetchDir) Names() ([]string, error) {
	names := make([]string, len(d.names))
	copy(names, d.names)
	return names, nil
}

// ReadFile implements serializer.Dir.
func (d *fetchDir) ReadFile(name string) ([]byte, error) {
	hexKey, ok := d.mapping[name]
	if !ok {
		return nil, fmt.Errorf("picklekey: %q not present in index mapping", name)
	}
	contentKey, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("picklekey: decoding content key for %q: %w", name, err)
	}
	return d.store.Read(d.ctx, contentKey)
}

// WriteFile implements serializer.Dir; Load never writes, so this always
// errors if called.
func (d *fetchDir) WriteFile(string, []byte) error {
	return fmt.Errorf("picklekey: fetchDir is read-only")
}
