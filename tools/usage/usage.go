// Package usage tracks the last-used timestamp of a key.
package usage

import (
	"time"

	"github.com/tarnstore/tarn/key"
)

// Tracker records and reports last-used timestamps per key.
type Tracker interface {
	Update(k key.Key) error
	Delete(k key.Key) error
	Get(k key.Key) (time.Time, bool, error)
}

// Dummy is a no-op Tracker, for storage graphs that don't need usage
// tracking.
type Dummy struct{}

// NewDummy constructs a Dummy tracker.
func NewDummy() Dummy { return Dummy{} }

func (Dummy) Update(key.Key) error { return nil }
func (Dummy) Delete(key.Key) error { return nil }
func (Dummy) Get(key.Key) (time.Time, bool, error) {
	return time.Time{}, false, nil
}
