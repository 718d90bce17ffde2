package batchrun

import (
	"encoding/json"
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/solarbatch/internal/domain/model"
)

// LoadCoordinates reads a batch file of the form
//
//	key: optional-api-key
//	parameters:
//	  - latitude: 37.4449
//	    longitude: -122.139
//	    requiredQuality: HIGH
//
// The key is returned as found. Coordinates go through the same decoding
// as HTTP request bodies, so missing, null or quoted values are rejected
// instead of becoming 0.
func LoadCoordinates(path string) (model.BatchRequest, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return model.BatchRequest{}, fmt.Errorf("%w: %s: %w", ErrCoordinates, path, err)
	}
	if !k.Exists("parameters") {
		return model.BatchRequest{}, fmt.Errorf("%w: %s: missing parameters", ErrCoordinates, path)
	}

	raw, err := json.Marshal(k.Get("parameters"))
	if err != nil {
		return model.BatchRequest{}, fmt.Errorf("%w: %s: %w", ErrCoordinates, path, err)
	}
	params, err := model.DecodeCoordinates(raw)
	if err != nil {
		return model.BatchRequest{}, fmt.Errorf("%w: %s: %w", ErrCoordinates, path, err)
	}
	return model.BatchRequest{Key: k.String("key"), Parameters: params}, nil
}
