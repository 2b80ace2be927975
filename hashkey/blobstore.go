package hashkey

import (
	"context"
	"fmt"
	"io"

	"github.com/tarnstore/tarn/key"
	"github.com/tarnstore/tarn/location"
	"github.com/tarnstore/tarn/value"
)

// BlobStore adapts a Storage down to the bytes-in/key-out shape
// picklekey.Storage and serializer.Serializer implementations need,
// fixing the labels applied to every blob it offloads.
type BlobStore struct {
	storage *Storage
	labels  location.Labels
}

// NewBlobStore wraps storage for use as a picklekey.Store / serializer.Store.
func NewBlobStore(storage *Storage, labels location.Labels) BlobStore {
	return BlobStore{storage: storage, labels: labels}
}

// Write implements picklekey.Store / serializer.Store.
func (b BlobStore) Write(ctx context.Context, data []byte) ([]byte, error) {
	k, err := b.storage.Write(ctx, value.FromBytes(data), b.labels)
	if err != nil {
		return nil, err
	}
	return []byte(k), nil
}

// Read implements picklekey.Store / serializer.Store.
func (b BlobStore) Read(ctx context.Context, k []byte) ([]byte, error) {
	h, err := b.storage.Read(ctx, key.Key(k), ReadOptions{Fetch: true, MissIsError: true})
	if err != nil {
		return nil, err
	}

	r, err := h.Value.Open()
	if err != nil {
		_ = h.Close(err)
		return nil, fmt.Errorf("hashkey: opening blob %s: %w", key.Key(k).Hex(), err)
	}
	data, readErr := io.ReadAll(r)
	_ = r.Close()
	if readErr != nil {
		_ = h.Close(readErr)
		return nil, fmt.Errorf("hashkey: reading blob %s: %w", key.Key(k).Hex(), readErr)
	}

	if err := h.Close(nil); err != nil {
		return nil, err
	}
	return data, nil
}
