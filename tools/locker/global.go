package locker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tarnstore/tarn/errs"
	"github.com/tarnstore/tarn/key"
)

// GlobalThreadLocker is a single coarse lock shared by every key in a
// process. It trades away per-key concurrency for simplicity: DiskDict
// operations are short, so serializing all of them behind one mutex is
// correctness-first and cheap in practice. Both Read and Write acquire
// the same exclusive section -- there is no separate reader path, unlike
// RedisLocker.
type GlobalThreadLocker struct {
	sem     chan struct{}
	timeout time.Duration
}

// NewGlobalThreadLocker constructs a GlobalThreadLocker. timeout <= 0
// means "block indefinitely" (still subject to ctx cancellation).
func NewGlobalThreadLocker(timeout time.Duration) *GlobalThreadLocker {
	return &GlobalThreadLocker{sem: make(chan struct{}, 1), timeout: timeout}
}

func (l *GlobalThreadLocker) Read(ctx context.Context, k key.Key) (Unlock, error) {
	return l.acquire(ctx, k)
}

func (l *GlobalThreadLocker) Write(ctx context.Context, k key.Key) (Unlock, error) {
	return l.acquire(ctx, k)
}

func (l *GlobalThreadLocker) acquire(ctx context.Context, k key.Key) (Unlock, error) {
	if l.timeout <= 0 {
		select {
		case l.sem <- struct{}{}:
			return l.release, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case l.sem <- struct{}{}:
		return l.release, nil
	case <-timer.C:
		slog.Warn("locker: global lock acquisition timed out", "key", k.Hex(), "timeout", l.timeout)
		return nil, fmt.Errorf("%w: timed out acquiring global lock for key %s after %s", errs.ErrPotentialDeadlock, k.Hex(), l.timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *GlobalThreadLocker) release() error {
	<-l.sem
	return nil
}
