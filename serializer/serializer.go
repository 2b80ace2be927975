// Package serializer defines the Serializer contract used by picklekey:
// turning an arbitrary Go value into files under a folder on write, and
// reconstructing it from that folder (plus a blob store for any large
// payloads it chose to offload) on read.
package serializer

import (
	"context"
	"errors"
	"fmt"

	"github.com/tarnstore/tarn/errs"
)

// Store is the minimal blob-storage surface a Serializer needs to offload
// large payloads by content-addressed key instead of inlining them into
// the folder, satisfied by hashkey.BlobStore.
type Store interface {
	Write(ctx context.Context, data []byte) ([]byte, error)
	Read(ctx context.Context, key []byte) ([]byte, error)
}

// Serializer saves a value into a folder (a set of named files) and
// reconstructs it later. A Serializer that cannot handle a given value
// must return an error wrapping errs.ErrSerializer so ChainSerializer can
// try the next one.
type Serializer interface {
	Save(ctx context.Context, value any, dir Dir) error
	Load(ctx context.Context, dir Dir, store Store) (any, error)
}

// Dir is the minimal folder surface a Serializer writes to and reads
// from: named files, listed by name. PickleKeyStorage supplies a concrete
// implementation backed by a staging directory during Save and the
// committed index during Load.
type Dir interface {
	WriteFile(name string, data []byte) error
	ReadFile(name string) ([]byte, error)
	Names() ([]string, error)
}

// ChainSerializer tries each serializer in order, using the first one
// that doesn't refuse (an error wrapping errs.ErrSerializer) the value.
type ChainSerializer struct {
	serializers []Serializer
}

// Chain composes serializers into a ChainSerializer.
func Chain(serializers ...Serializer) *ChainSerializer {
	return &ChainSerializer{serializers: serializers}
}

// Save implements Serializer.
func (c *ChainSerializer) Save(ctx context.Context, value any, dir Dir) error {
	for _, s := range c.serializers {
		err := s.Save(ctx, value, dir)
		if err == nil {
			return nil
		}
		if !errIsSerializer(err) {
			return err
		}
	}
	return fmt.Errorf("serializer: no serializer in the chain accepted this value: %w", errs.ErrSerializer)
}

// Load implements Serializer.
func (c *ChainSerializer) Load(ctx context.Context, dir Dir, store Store) (any, error) {
	for _, s := range c.serializers {
		v, err := s.Load(ctx, dir, store)
		if err == nil {
			return v, nil
		}
		if !errIsSerializer(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("serializer: no serializer in the chain could load this folder: %w", errs.ErrSerializer)
}

func errIsSerializer(err error) bool {
	return errors.Is(err, errs.ErrSerializer)
}
