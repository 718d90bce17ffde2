package batchrun

import "errors"

// Sentinel kinds for CLI failures.
var (
	ErrCoordinates = errors.New("invalid coordinates file")
	ErrMissingKey  = errors.New("missing API key")
)
