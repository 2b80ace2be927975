package serializer

import (
	"context"
	"fmt"

	"github.com/tarnstore/tarn/errs"
)

const bytesFileName = "value.bin"

// Bytes serializes a raw []byte value as a single opaque file, the Go
// stand-in for the original's PickleSerializer (which pickled arbitrary
// Python objects; Go has no equivalent, so this handles the one payload
// shape every language can agree on).
type Bytes struct{}

// NewBytes returns a BytesSerializer.
func NewBytes() Bytes { return Bytes{} }

// Save implements Serializer.
func (Bytes) Save(_ context.Context, value any, dir Dir) error {
	data, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("serializer: value is not []byte: %w", errs.ErrSerializer)
	}
	if err := dir.WriteFile(bytesFileName, data); err != nil {
		return fmt.Errorf("serializer: writing %s: %w", bytesFileName, err)
	}
	return nil
}

// Load implements Serializer.
func (Bytes) Load(_ context.Context, dir Dir, _ Store) (any, error) {
	names, err := dir.Names()
	if err != nil {
		return nil, fmt.Errorf("serializer: listing folder: %w", err)
	}
	if len(names) != 1 || names[0] != bytesFileName {
		return nil, fmt.Errorf("serializer: folder does not hold exactly one %s file: %w", bytesFileName, errs.ErrSerializer)
	}

	data, err := dir.ReadFile(bytesFileName)
	if err != nil {
		return nil, fmt.Errorf("serializer: reading %s: %w", bytesFileName, err)
	}
	return data, nil
}
