package locker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tarnstore/tarn/errs"
	"github.com/tarnstore/tarn/key"
)

// RedisLocker coordinates readers and writers across processes/hosts
// through a Redis server: one integer-valued key per lock, namespaced by
// prefix. The value encodes state: -1 means "a writer holds this", a
// positive N means "N readers hold this", absent means "free". Every
// acquisition (re)sets the key's TTL to expire (a release leaves the TTL
// as it is), which is also the upper
// bound on how long a holder may keep the lock -- exceeding it is a
// correctness bug, surfaced as errs.ErrLockWrongState on release.
type RedisLocker struct {
	client redis.Cmdable
	prefix string
	expire time.Duration

	pollInterval time.Duration

	startWriting *redis.Script
	startReading *redis.Script
	stopReading  *redis.Script
	stopWriting  *redis.Script
}

// NewRedisLocker constructs a RedisLocker. prefix namespaces every lock
// key this locker touches; expire is both the lock TTL and (combined
// with the internal poll interval) the bound on how long Read/Write will
// wait before failing with errs.ErrPotentialDeadlock.
func NewRedisLocker(client redis.Cmdable, prefix string, expire time.Duration) *RedisLocker {
	expireSeconds := int(expire.Round(time.Second) / time.Second)
	if expireSeconds < 1 {
		expireSeconds = 1
	}

	return &RedisLocker{
		client:       client,
		prefix:       prefix + ":",
		expire:       expire,
		pollInterval: 100 * time.Millisecond,

		startWriting: redis.NewScript(fmt.Sprintf(`
if redis.call('exists', KEYS[1]) == 1 then
	return 0
end
redis.call('set', KEYS[1], -1, 'EX', %d)
return 1
`, expireSeconds)),

		startReading: redis.NewScript(fmt.Sprintf(`
local lock = redis.call('get', KEYS[1])
if lock == '-1' then
	return 0
elseif lock == false then
	redis.call('set', KEYS[1], 1, 'EX', %d)
	return 1
else
	redis.call('set', KEYS[1], lock + 1, 'EX', %d)
	return 1
end
`, expireSeconds, expireSeconds)),

		stopReading: redis.NewScript(`
local lock = redis.call('get', KEYS[1])
if lock == false then
	return redis.error_reply('wrong-state: lock already gone')
elseif lock == '1' then
	redis.call('del', KEYS[1])
	return 1
elseif tonumber(lock) < 1 then
	return redis.error_reply('wrong-state: non-positive reader count')
else
	redis.call('decrby', KEYS[1], 1)
	return 1
end
`),

		stopWriting: redis.NewScript(`
local lock = redis.call('get', KEYS[1])
if lock == '-1' then
	redis.call('del', KEYS[1])
	return 1
end
return redis.error_reply('wrong-state: writer lock not held')
`),
	}
}

func (l *RedisLocker) lockKey(k key.Key) string {
	return l.prefix + k.Hex()
}

func (l *RedisLocker) Write(ctx context.Context, k key.Key) (Unlock, error) {
	redisKey := l.lockKey(k)

	if err := l.poll(ctx, k, func() (bool, error) {
		n, err := l.startWriting.Run(ctx, l.client, []string{redisKey}).Int()
		if err != nil {
			return false, err
		}
		return n == 1, nil
	}); err != nil {
		return nil, err
	}

	return func() error {
		if err := l.stopWriting.Run(ctx, l.client, []string{redisKey}).Err(); err != nil {
			return wrongState(err)
		}
		return nil
	}, nil
}

func (l *RedisLocker) Read(ctx context.Context, k key.Key) (Unlock, error) {
	redisKey := l.lockKey(k)

	if err := l.poll(ctx, k, func() (bool, error) {
		n, err := l.startReading.Run(ctx, l.client, []string{redisKey}).Int()
		if err != nil {
			return false, err
		}
		return n == 1, nil
	}); err != nil {
		return nil, err
	}

	return func() error {
		if err := l.stopReading.Run(ctx, l.client, []string{redisKey}).Err(); err != nil {
			return wrongState(err)
		}
		return nil
	}, nil
}

// poll retries attempt at l.pollInterval until it returns true, the
// bound on iterations (expire/pollInterval) is exceeded, or ctx is
// cancelled.
func (l *RedisLocker) poll(ctx context.Context, k key.Key, attempt func() (bool, error)) error {
	maxIterations := int(l.expire / l.pollInterval)
	if maxIterations < 1 {
		maxIterations = 1
	}

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for i := 0; ; i++ {
		ok, err := attempt()
		if err != nil {
			return fmt.Errorf("locker: redis script failed for key %s: %w", k.Hex(), err)
		}
		if ok {
			return nil
		}

		if i >= maxIterations {
			slog.Warn("locker: redis lock acquisition exceeded poll budget", "key", k.Hex(), "iterations", maxIterations)
			return fmt.Errorf("%w: exceeded %d poll iterations for key %s", errs.ErrPotentialDeadlock, maxIterations, k.Hex())
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// wrongState wraps a Redis script error_reply into errs.ErrLockWrongState
// for callers that want to distinguish it from a plain connectivity
// failure.
func wrongState(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", errs.ErrLockWrongState, err)
}
