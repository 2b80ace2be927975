// Package locker provides per-key read/write locking for Location
// implementations: a process-local coarse lock and a Redis-backed
// distributed lock, both implementing the Locker interface.
package locker

import (
	"context"

	"github.com/tarnstore/tarn/key"
)

// Unlock releases a previously acquired lock. It is safe to call exactly
// once; callers should defer it immediately after a successful
// acquisition. A non-nil error means the release observed the lock in an
// unexpected state (errs.ErrLockWrongState) -- by the time Unlock runs,
// the caller's critical section has already completed, so this is
// reported for diagnostics/logging rather than to undo any work.
type Unlock func() error

// Locker grants per-key read/write access. Multiple readers may hold a
// read guard on the same key concurrently; a write guard excludes every
// other guard (read or write) on that key. Acquisition blocks; on
// timeout it fails with errs.ErrPotentialDeadlock.
type Locker interface {
	Read(ctx context.Context, k key.Key) (Unlock, error)
	Write(ctx context.Context, k key.Key) (Unlock, error)
}

// Dummy provides no protection at all: every acquisition succeeds
// immediately. Suitable only for single-writer use (e.g. a DiskDict only
// ever touched by one process/goroutine).
type Dummy struct{}

// NewDummy constructs a Dummy locker.
func NewDummy() Dummy { return Dummy{} }

func (Dummy) Read(context.Context, key.Key) (Unlock, error) {
	return func() error { return nil }, nil
}

func (Dummy) Write(context.Context, key.Key) (Unlock, error) {
	return func() error { return nil }, nil
}
