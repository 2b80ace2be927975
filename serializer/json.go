package serializer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tarnstore/tarn/errs"
)

const jsonFileName = "value.json"

// JSON serializes a value through encoding/json into a single file,
// mirroring the original's JsonSerializer.
type JSON struct{}

// NewJSON returns a JSONSerializer.
func NewJSON() JSON { return JSON{} }

// Save implements Serializer.
func (JSON) Save(_ context.Context, value any, dir Dir) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("serializer: marshaling value to json: %w: %w", errs.ErrSerializer, err)
	}
	if err := dir.WriteFile(jsonFileName, data); err != nil {
		return fmt.Errorf("serializer: writing %s: %w", jsonFileName, err)
	}
	return nil
}

// Load implements Serializer.
func (JSON) Load(_ context.Context, dir Dir, _ Store) (any, error) {
	names, err := dir.Names()
	if err != nil {
		return nil, fmt.Errorf("serializer: listing folder: %w", err)
	}
	if len(names) != 1 || names[0] != jsonFileName {
		return nil, fmt.Errorf("serializer: folder does not hold exactly one %s file: %w", jsonFileName, errs.ErrSerializer)
	}

	data, err := dir.ReadFile(jsonFileName)
	if err != nil {
		return nil, fmt.Errorf("serializer: reading %s: %w", jsonFileName, err)
	}

	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("serializer: unmarshaling %s: %w", jsonFileName, errs.Deserialization(err.Error()))
	}
	return value, nil
}
