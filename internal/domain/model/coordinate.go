// Package model contains the batch request types passed between layers.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Quality is the minimum imagery quality accepted for a lookup.
type Quality string

// Imagery quality tiers. QualityUnset omits the requiredQuality parameter.
const (
	QualityUnset  Quality = ""
	QualityHigh   Quality = "HIGH"
	QualityMedium Quality = "MEDIUM"
	QualityLow    Quality = "LOW"
)

// Valid reports whether q is unset or a known tier.
func (q Quality) Valid() bool {
	switch q {
	case QualityUnset, QualityHigh, QualityMedium, QualityLow:
		return true
	}
	return false
}

// CoordinateRequest is one batch item.
type CoordinateRequest struct {
	Latitude        float64 `json:"latitude" yaml:"latitude" koanf:"latitude"`
	Longitude       float64 `json:"longitude" yaml:"longitude" koanf:"longitude"`
	RequiredQuality Quality `json:"requiredQuality,omitempty" yaml:"requiredQuality" koanf:"requiredQuality"`
}

// BatchRequest is the inbound shape of POST /solar/buildingInsights.
type BatchRequest struct {
	Key        string              `json:"key"`
	Parameters []CoordinateRequest `json:"parameters"`
}

// rawCoordinate keeps coordinates undecoded so missing and non-numeric
// values can be told apart from 0.
type rawCoordinate struct {
	Latitude        json.RawMessage `json:"latitude"`
	Longitude       json.RawMessage `json:"longitude"`
	RequiredQuality *string         `json:"requiredQuality"`
}

type rawBatch struct {
	Key        *string          `json:"key"`
	Parameters *[]rawCoordinate `json:"parameters"`
}

// DecodeBatchRequest parses and validates a JSON batch request body.
// maxItems <= 0 disables the size check.
func DecodeBatchRequest(data []byte, maxItems int) (BatchRequest, error) {
	var raw rawBatch
	if err := json.Unmarshal(data, &raw); err != nil {
		return BatchRequest{}, &ValidationError{Field: "body", Reason: err.Error()}
	}

	if raw.Key == nil {
		return BatchRequest{}, &ValidationError{Field: "key", Reason: "key must be a string"}
	}
	if raw.Parameters == nil {
		return BatchRequest{}, &ValidationError{Field: "parameters", Reason: "parameters must be an array"}
	}

	params, err := parseCoordinates(*raw.Parameters)
	if err != nil {
		return BatchRequest{}, err
	}

	req := BatchRequest{Key: *raw.Key, Parameters: params}
	if err := req.Validate(maxItems); err != nil {
		return BatchRequest{}, err
	}
	return req, nil
}

// DecodeCoordinates parses and validates a JSON array of coordinates with
// the same rules DecodeBatchRequest applies to its parameters. Errors name
// the offending item as parameters[i].
func DecodeCoordinates(data []byte) ([]CoordinateRequest, error) {
	var raw *[]rawCoordinate
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &ValidationError{Field: "parameters", Reason: err.Error()}
	}
	if raw == nil {
		return nil, &ValidationError{Field: "parameters", Reason: "parameters must be an array"}
	}

	params, err := parseCoordinates(*raw)
	if err != nil {
		return nil, err
	}
	if err := validateCoordinates(params); err != nil {
		return nil, err
	}
	return params, nil
}

func parseCoordinates(raw []rawCoordinate) ([]CoordinateRequest, error) {
	params := make([]CoordinateRequest, 0, len(raw))
	for i, p := range raw {
		c, err := p.coordinate(i)
		if err != nil {
			return nil, err
		}
		params = append(params, c)
	}
	return params, nil
}

func (p rawCoordinate) coordinate(i int) (CoordinateRequest, error) {
	field := func(name string) string { return fmt.Sprintf("parameters[%d].%s", i, name) }

	lat, ok := number(p.Latitude)
	if !ok {
		return CoordinateRequest{}, &ValidationError{Field: field("latitude"), Reason: "latitude must be a number"}
	}
	lng, ok := number(p.Longitude)
	if !ok {
		return CoordinateRequest{}, &ValidationError{Field: field("longitude"), Reason: "longitude must be a number"}
	}

	c := CoordinateRequest{Latitude: lat, Longitude: lng}
	if p.RequiredQuality != nil {
		c.RequiredQuality = Quality(*p.RequiredQuality)
	}
	return c, nil
}

// number decodes a JSON number literal. Absent, null and quoted values are rejected.
func number(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || raw[0] == '"' || string(raw) == "null" {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	return f, true
}

// Validate checks the batch the way the HTTP edge expects it. The pipeline
// itself assumes validated input.
func (b BatchRequest) Validate(maxItems int) error {
	if strings.TrimSpace(b.Key) == "" {
		return &ValidationError{Field: "key", Reason: "key must not be empty"}
	}
	if maxItems > 0 && len(b.Parameters) > maxItems {
		return &ValidationError{Field: "parameters", Reason: fmt.Sprintf("at most %d parameters allowed, got %d", maxItems, len(b.Parameters))}
	}
	return validateCoordinates(b.Parameters)
}

func validateCoordinates(params []CoordinateRequest) error {
	for i, c := range params {
		if err := c.Validate(); err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				ve.Field = fmt.Sprintf("parameters[%d].%s", i, ve.Field)
			}
			return err
		}
	}
	return nil
}

// Validate checks coordinate ranges and the quality tier.
func (c CoordinateRequest) Validate() error {
	switch {
	case c.Latitude < -90 || c.Latitude > 90:
		return &ValidationError{Field: "latitude", Reason: "latitude must be within [-90, 90]"}
	case c.Longitude < -180 || c.Longitude > 180:
		return &ValidationError{Field: "longitude", Reason: "longitude must be within [-180, 180]"}
	case !c.RequiredQuality.Valid():
		return &ValidationError{Field: "requiredQuality", Reason: "requiredQuality must be one of HIGH, MEDIUM, LOW"}
	}
	return nil
}
