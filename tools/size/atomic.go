package size

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"

	fileatomic "github.com/natefinch/atomic"
)

// AtomicSize is an in-process Tracker backed by an atomic.Int64, seeded
// from (and persisted on every change to) a counter file on disk so the
// volume survives a process restart. AtomicSize only serializes access
// within one process; this package has no cross-process tracker.
type AtomicSize struct {
	path string
	n    atomic.Int64
}

// OpenAtomicSize loads (or initializes, if absent) the counter file at
// path and returns an AtomicSize tracking it.
func OpenAtomicSize(path string) (*AtomicSize, error) {
	s := &AtomicSize{path: path}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("size: reading counter file %q: %w", path, err)
	}

	n, err := strconv.ParseInt(string(bytes.TrimSpace(data)), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("size: counter file %q is corrupt: %w", path, err)
	}
	s.n.Store(n)

	return s, nil
}

func (s *AtomicSize) Get() (int64, error) {
	return s.n.Load(), nil
}

func (s *AtomicSize) Set(n int64) error {
	s.n.Store(n)
	return s.persist()
}

func (s *AtomicSize) Inc(n int64) error {
	s.n.Add(n)
	return s.persist()
}

func (s *AtomicSize) Dec(n int64) error {
	s.n.Add(-n)
	return s.persist()
}

func (s *AtomicSize) persist() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o777); err != nil {
		return fmt.Errorf("size: creating counter directory: %w", err)
	}

	encoded := strconv.FormatInt(s.n.Load(), 10)
	if err := fileatomic.WriteFile(s.path, bytes.NewReader([]byte(encoded))); err != nil {
		return fmt.Errorf("size: persisting counter file %q: %w", s.path, err)
	}

	return nil
}
