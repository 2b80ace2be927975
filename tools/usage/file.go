package usage

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"

	"github.com/tarnstore/tarn/key"
)

// File is a filesystem-backed Tracker: one empty marker file per key,
// under root, whose mtime is the key's last-used time. This mirrors the
// reference implementation's StatUsage, which touches a ".time" file
// rather than the stored blob itself (so usage can be tracked without
// rewriting -- and therefore without re-digesting -- the blob).
type File struct {
	root   string
	levels key.Levels
}

// NewFile constructs a File tracker rooted at root (conventionally a
// DiskDict's "tools/usage" subdirectory). levels controls how a key is
// split into marker-file path segments, same as a DiskDict's own layout.
func NewFile(root string, levels key.Levels) *File {
	return &File{root: root, levels: levels}
}

func (f *File) markerPath(k key.Key) (string, error) {
	segments, err := key.ToSegments(k, f.levels)
	if err != nil {
		return "", fmt.Errorf("usage: %w", err)
	}
	parts := append([]string{f.root}, segments...)
	return filepath.Join(parts...) + ".time", nil
}

func (f *File) Update(k key.Key) error {
	path, err := f.markerPath(k)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o777); err != nil {
		return fmt.Errorf("usage: creating marker directory: %w", err)
	}

	if err := atomic.WriteFile(path, bytes.NewReader(nil)); err != nil {
		return fmt.Errorf("usage: writing marker for %s: %w", k.Hex(), err)
	}

	now := time.Now()
	if err := os.Chtimes(path, now, now); err != nil {
		return fmt.Errorf("usage: setting marker mtime for %s: %w", k.Hex(), err)
	}

	return nil
}

func (f *File) Delete(k key.Key) error {
	path, err := f.markerPath(k)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("usage: removing marker for %s: %w", k.Hex(), err)
	}

	return nil
}

func (f *File) Get(k key.Key) (time.Time, bool, error) {
	path, err := f.markerPath(k)
	if err != nil {
		return time.Time{}, false, err
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("usage: statting marker for %s: %w", k.Hex(), err)
	}

	return info.ModTime(), true, nil
}
