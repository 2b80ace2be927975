package location

import (
	"bytes"
	"context"
	"fmt"
	"hash"
	"sync"
	"time"

	"github.com/tarnstore/tarn/errs"
	"github.com/tarnstore/tarn/key"
	"github.com/tarnstore/tarn/value"
)

// Mem is an in-memory Writable Location used by this module's own
// tests to compose Fanout/Levels/HashKeyStorage without touching a
// filesystem or a real Redis instance.
type Mem struct {
	mu       sync.Mutex
	hash     func() hash.Hash
	refuse   bool
	contents map[string]memEntry
	order    []string
	reads    int
}

type memEntry struct {
	key      key.Key
	data     []byte
	labels   Labels
	lastUsed time.Time
}

// NewMem builds a Mem reporting newHash as its fixed algorithm (nil for
// hash-agnostic, as RedisLocation reports).
func NewMem(newHash func() hash.Hash) *Mem {
	return &Mem{hash: newHash, contents: make(map[string]memEntry)}
}

// Refuse makes every subsequent Write return Refused(), simulating a
// read-only or over-capacity tier.
func (m *Mem) Refuse(refuse bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refuse = refuse
}

// Reads returns how many times Read has been called, for asserting
// replication/caching behavior in tests.
func (m *Mem) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// Has reports whether k is currently stored.
func (m *Mem) Has(k key.Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.contents[k.Hex()]
	return ok
}

func (m *Mem) Hash() func() hash.Hash { return m.hash }

func (m *Mem) Read(ctx context.Context, k key.Key, withLabels bool) (*ReadHandle, error) {
	m.mu.Lock()
	m.reads++
	e, ok := m.contents[k.Hex()]
	m.mu.Unlock()

	if !ok {
		return Miss(), nil
	}

	var labels Labels
	if withLabels {
		labels = e.labels
	}
	return NewReadHandle(value.FromBytes(e.data), labels, func(error) error { return nil }), nil
}

func (m *Mem) ReadBatch(ctx context.Context, keys []key.Key) ([]BatchResult, error) {
	out := make([]BatchResult, 0, len(keys))
	for _, k := range keys {
		h, err := m.Read(ctx, k, true)
		if err != nil {
			return nil, err
		}
		out = append(out, BatchResult{Key: k, Handle: h})
	}
	return out, nil
}

func (m *Mem) Write(ctx context.Context, k key.Key, v value.Value, labels Labels) (*WriteHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.refuse {
		return Refused(), nil
	}

	r, err := v.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var buf []byte
	tmp := make([]byte, 4096)
	for {
		n, readErr := r.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
		}
		if readErr != nil {
			break
		}
	}

	hexKey := k.Hex()
	if existing, ok := m.contents[hexKey]; ok {
		if !bytes.Equal(existing.data, buf) {
			return nil, fmt.Errorf("location: %s: %w", k.Hex(), errs.Collision("written value does not match existing content"))
		}
		existing.labels = Union(existing.labels, labels)
		m.contents[hexKey] = existing
		return NewWriteHandle(value.FromBytes(existing.data), func(error) error { return nil }), nil
	}

	m.contents[hexKey] = memEntry{key: k, data: buf, labels: labels, lastUsed: time.Now()}
	m.order = append(m.order, hexKey)

	return NewWriteHandle(value.FromBytes(buf), func(error) error { return nil }), nil
}

func (m *Mem) Delete(ctx context.Context, k key.Key) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hexKey := k.Hex()
	_, ok := m.contents[hexKey]
	delete(m.contents, hexKey)
	return ok, nil
}

func (m *Mem) Touch(ctx context.Context, k key.Key) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.contents[k.Hex()]
	if !ok {
		return false, nil
	}
	e.lastUsed = time.Now()
	m.contents[k.Hex()] = e
	return true, nil
}

func (m *Mem) Contents(ctx context.Context, fn func(Entry) error) error {
	m.mu.Lock()
	order := append([]string(nil), m.order...)
	m.mu.Unlock()

	for _, hexKey := range order {
		m.mu.Lock()
		e, ok := m.contents[hexKey]
		m.mu.Unlock()
		if !ok {
			continue
		}
		if err := fn(Entry{Key: e.key, Location: m, Meta: memMeta{e}}); err != nil {
			return err
		}
	}
	return nil
}

type memMeta struct{ e memEntry }

func (m memMeta) LastUsed() (time.Time, bool, error) { return m.e.lastUsed, true, nil }
func (m memMeta) Labels() (Labels, error)            { return m.e.labels, nil }
