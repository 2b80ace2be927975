// Package redislocation implements RedisLocation: a Writable Location
// that stores both blob content and labels directly in Redis, for
// deployments that want a shared remote tier without standing up a
// filesystem.
package redislocation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tarnstore/tarn/errs"
	"github.com/tarnstore/tarn/key"
	"github.com/tarnstore/tarn/location"
	"github.com/tarnstore/tarn/value"
)

// RedisLocation stores blobs under prefix+hex(key) and their labels
// under "labels"+prefix+hex(key), both as plain Redis strings (labels
// JSON-encoded). It reports no fixed hash algorithm -- callers compose
// it behind hashkey.Storage or fanout/levels, which resolve the
// algorithm from whichever sibling tier does have an opinion.
type RedisLocation struct {
	client redis.Cmdable
	prefix string
}

// New wraps client. prefix namespaces every key this location touches,
// letting one Redis instance host several unrelated locations.
func New(client redis.Cmdable, prefix string) *RedisLocation {
	return &RedisLocation{client: client, prefix: prefix}
}

func (r *RedisLocation) contentKey(k key.Key) string {
	return r.prefix + k.Hex()
}

func (r *RedisLocation) labelsKey(k key.Key) string {
	return "labels" + r.prefix + k.Hex()
}

// Hash implements location.Location: RedisLocation is hash-agnostic.
func (r *RedisLocation) Hash() func() hash.Hash { return nil }

// Read implements location.Location.
func (r *RedisLocation) Read(ctx context.Context, k key.Key, withLabels bool) (*location.ReadHandle, error) {
	content, err := r.client.Get(ctx, r.contentKey(k)).Bytes()
	if errors.Is(err, redis.Nil) {
		return location.Miss(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("redislocation: reading %s: %w", k.Hex(), err)
	}

	var labels location.Labels
	if withLabels {
		labels, err = r.getLabels(ctx, k)
		if err != nil {
			return nil, err
		}
	}

	return location.NewReadHandle(value.FromBytes(content), labels, func(bodyErr error) error {
		if errors.Is(bodyErr, errs.ErrStorageCorruption) {
			slog.Warn("redislocation: quarantining corrupt entry", "key", k.Hex(), "reason", bodyErr)
			return r.delete(ctx, k)
		}
		return nil
	}), nil
}

// ReadBatch implements location.Location.
func (r *RedisLocation) ReadBatch(ctx context.Context, keys []key.Key) ([]location.BatchResult, error) {
	out := make([]location.BatchResult, 0, len(keys))
	for _, k := range keys {
		h, err := r.Read(ctx, k, true)
		if err != nil {
			return nil, err
		}
		out = append(out, location.BatchResult{Key: k, Handle: h})
	}
	return out, nil
}

// Write implements location.Writable. A write to an already-present key
// with different content is a collision (errs.ErrCollision); labels are
// unioned with whatever is already stored, exactly as in DiskDict.
func (r *RedisLocation) Write(ctx context.Context, k key.Key, v value.Value, labels location.Labels) (*location.WriteHandle, error) {
	rdr, err := v.Open()
	if err != nil {
		return nil, fmt.Errorf("redislocation: opening value for %s: %w", k.Hex(), err)
	}
	defer rdr.Close()

	data, err := io.ReadAll(rdr)
	if err != nil {
		return nil, fmt.Errorf("redislocation: reading value for %s: %w", k.Hex(), err)
	}

	contentKey := r.contentKey(k)
	existing, err := r.client.Get(ctx, contentKey).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		if err := r.client.Set(ctx, contentKey, data, 0).Err(); err != nil {
			return nil, fmt.Errorf("redislocation: writing %s: %w", k.Hex(), err)
		}
	case err != nil:
		return nil, fmt.Errorf("redislocation: reading existing content for %s: %w", k.Hex(), err)
	default:
		if !bytes.Equal(existing, data) {
			return nil, fmt.Errorf("redislocation: %s: %w", k.Hex(), errs.Collision("written value does not match existing content"))
		}
	}

	if err := r.setLabels(ctx, k, labels); err != nil {
		return nil, err
	}

	return location.NewWriteHandle(value.FromBytes(data), func(error) error { return nil }), nil
}

func (r *RedisLocation) getLabels(ctx context.Context, k key.Key) (location.Labels, error) {
	data, err := r.client.Get(ctx, r.labelsKey(k)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redislocation: reading labels for %s: %w", k.Hex(), err)
	}

	var labels location.Labels
	if err := json.Unmarshal(data, &labels); err != nil {
		return nil, fmt.Errorf("redislocation: decoding labels for %s: %w", k.Hex(), errs.Deserialization(err.Error()))
	}
	sort.Strings(labels)
	return labels, nil
}

func (r *RedisLocation) setLabels(ctx context.Context, k key.Key, labels location.Labels) error {
	if labels == nil {
		return nil
	}

	existing, err := r.getLabels(ctx, k)
	if err != nil {
		return err
	}

	merged := location.Union(existing, labels)
	encoded, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("redislocation: encoding labels for %s: %w", k.Hex(), err)
	}
	if err := r.client.Set(ctx, r.labelsKey(k), encoded, 0).Err(); err != nil {
		return fmt.Errorf("redislocation: writing labels for %s: %w", k.Hex(), err)
	}
	return nil
}

// Delete implements location.Writable.
func (r *RedisLocation) Delete(ctx context.Context, k key.Key) (bool, error) {
	n, err := r.client.Exists(ctx, r.contentKey(k)).Result()
	if err != nil {
		return false, fmt.Errorf("redislocation: checking existence of %s: %w", k.Hex(), err)
	}
	if err := r.delete(ctx, k); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisLocation) delete(ctx context.Context, k key.Key) error {
	if err := r.client.Del(ctx, r.contentKey(k), r.labelsKey(k)).Err(); err != nil {
		return fmt.Errorf("redislocation: deleting %s: %w", k.Hex(), err)
	}
	return nil
}

// Touch implements location.Writable. RedisLocation keeps no usage
// tracker (the reference implementation doesn't either), so Touch is
// just an existence probe.
func (r *RedisLocation) Touch(ctx context.Context, k key.Key) (bool, error) {
	n, err := r.client.Exists(ctx, r.contentKey(k)).Result()
	if err != nil {
		return false, fmt.Errorf("redislocation: checking existence of %s: %w", k.Hex(), err)
	}
	return n > 0, nil
}

// Contents implements location.Location via Redis's cursor-based SCAN,
// matching keys under prefix.
func (r *RedisLocation) Contents(ctx context.Context, fn func(location.Entry) error) error {
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		full := iter.Val()
		hexKey := full[len(r.prefix):]
		k, err := key.FromHex(hexKey)
		if err != nil {
			continue
		}

		if err := fn(location.Entry{Key: k, Location: r, Meta: redisMeta{location: r, key: k}}); err != nil {
			return err
		}
	}
	return iter.Err()
}

type redisMeta struct {
	location *RedisLocation
	key      key.Key
}

// LastUsed implements location.Meta: RedisLocation tracks no usage
// timestamps, matching the reference implementation's RedisMeta.
func (m redisMeta) LastUsed() (time.Time, bool, error) { return time.Time{}, false, nil }

func (m redisMeta) Labels() (location.Labels, error) {
	return m.location.getLabels(context.Background(), m.key)
}
