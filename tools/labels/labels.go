// Package labels stores the monotonically-growing label set attached to
// a key.
package labels

import (
	"github.com/tarnstore/tarn/key"
	"github.com/tarnstore/tarn/location"
)

// Storage stores and merges label sets per key.
type Storage interface {
	// Update merges newLabels into whatever is already stored for k
	// (set union). A nil newLabels is a no-op.
	Update(k key.Key, newLabels location.Labels) error

	// Get returns the labels stored for k, or (nil, nil) if none.
	Get(k key.Key) (location.Labels, error)

	// Delete removes all labels stored for k.
	Delete(k key.Key) error
}

// Dummy is a no-op Storage, for storage graphs that don't need labels.
type Dummy struct{}

// NewDummy constructs a Dummy label store.
func NewDummy() Dummy { return Dummy{} }

func (Dummy) Update(key.Key, location.Labels) error { return nil }
func (Dummy) Get(key.Key) (location.Labels, error)  { return nil, nil }
func (Dummy) Delete(key.Key) error                  { return nil }
