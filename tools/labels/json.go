package labels

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/natefinch/atomic"

	"github.com/tarnstore/tarn/errs"
	"github.com/tarnstore/tarn/key"
	"github.com/tarnstore/tarn/location"
)

// JSON is a filesystem-backed Storage: one JSON array file per key,
// holding its label set. Updates always compute a fresh union of the
// existing and incoming sets before rewriting -- labels never shrink
// except via Delete.
type JSON struct {
	root   string
	levels key.Levels
}

// NewJSON constructs a JSON label store rooted at root (conventionally a
// DiskDict's "tools/labels" subdirectory).
func NewJSON(root string, levels key.Levels) *JSON {
	return &JSON{root: root, levels: levels}
}

func (j *JSON) path(k key.Key) (string, error) {
	segments, err := key.ToSegments(k, j.levels)
	if err != nil {
		return "", fmt.Errorf("labels: %w", err)
	}
	parts := append([]string{j.root}, segments...)
	return filepath.Join(parts...) + ".json", nil
}

func (j *JSON) Update(k key.Key, newLabels location.Labels) error {
	if newLabels == nil {
		return nil
	}

	path, err := j.path(k)
	if err != nil {
		return err
	}

	existing, err := readLabelsFile(path)
	if err != nil {
		return err
	}

	merged := location.Union(existing, newLabels)

	if err := os.MkdirAll(filepath.Dir(path), 0o777); err != nil {
		return fmt.Errorf("labels: creating directory: %w", err)
	}

	encoded, err := json.Marshal([]string(merged))
	if err != nil {
		return fmt.Errorf("labels: encoding labels for %s: %w", k.Hex(), err)
	}

	if err := atomic.WriteFile(path, bytes.NewReader(encoded)); err != nil {
		return fmt.Errorf("labels: writing labels for %s: %w", k.Hex(), err)
	}

	return nil
}

func (j *JSON) Get(k key.Key) (location.Labels, error) {
	path, err := j.path(k)
	if err != nil {
		return nil, err
	}
	return readLabelsFile(path)
}

func (j *JSON) Delete(k key.Key) error {
	path, err := j.path(k)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("labels: removing labels for %s: %w", k.Hex(), err)
	}

	return nil
}

func readLabelsFile(path string) (location.Labels, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("labels: reading %q: %w", path, err)
	}

	var out []string
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: labels file %q is not a JSON array: %v", errs.ErrStorageCorruption, path, err)
	}

	sort.Strings(out)
	return out, nil
}
