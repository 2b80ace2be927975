// Package value models the Value abstraction: an opaque byte stream that
// is either a path to a readable file, a seekable in-memory buffer, or a
// raw byte slice. Writes treat a Value as a single immutable blob.
package value

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// Value is a byte stream to be written under a content-addressed key, or
// read back out. Exactly one of Path/Reader/Bytes is set.
type Value struct {
	// Path, if non-empty, names a file on disk holding the content.
	Path string

	// Reader, if non-nil, is a seekable stream holding the content. The
	// composer reading it is responsible for restoring its position if
	// it is passed to more than one candidate (see Fanout's snapshot
	// requirement).
	Reader io.ReadSeeker

	// Bytes, if non-nil, is the content itself.
	Bytes []byte
}

// FromPath wraps a filesystem path.
func FromPath(path string) Value { return Value{Path: path} }

// FromReader wraps a seekable reader.
func FromReader(r io.ReadSeeker) Value { return Value{Reader: r} }

// FromBytes wraps a byte slice.
func FromBytes(b []byte) Value { return Value{Bytes: b} }

// IsPath reports whether this Value names a filesystem path.
func (v Value) IsPath() bool { return v.Path != "" }

// Open returns a fresh io.ReadCloser over the value's content. For a Path
// value this opens the file; for a Reader value it seeks to the start and
// wraps it in a no-op closer; for Bytes it wraps a bytes.Reader.
//
// Open must not be called concurrently on the same Value if it wraps a
// Reader, since seeking mutates shared state.
func (v Value) Open() (io.ReadCloser, error) {
	switch {
	case v.Path != "":
		f, err := os.Open(v.Path)
		if err != nil {
			return nil, fmt.Errorf("value: opening %q: %w", v.Path, err)
		}
		return f, nil
	case v.Reader != nil:
		if _, err := v.Reader.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("value: seeking to start: %w", err)
		}
		return io.NopCloser(v.Reader), nil
	default:
		return io.NopCloser(bytes.NewReader(v.Bytes)), nil
	}
}

// Pos returns the current offset of a Reader-backed Value, for snapshot/
// restore around a refused write. Returns 0 for Path/Bytes values, which
// are always read from the start.
func (v Value) Pos() (int64, error) {
	if v.Reader == nil {
		return 0, nil
	}
	return v.Reader.Seek(0, io.SeekCurrent)
}

// Restore seeks a Reader-backed Value back to pos. No-op for Path/Bytes
// values.
func (v Value) Restore(pos int64) error {
	if v.Reader == nil {
		return nil
	}
	_, err := v.Reader.Seek(pos, io.SeekStart)
	return err
}
