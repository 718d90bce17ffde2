package model

import (
	"errors"
	"fmt"
)

// ErrValidation is the kind shared by every ValidationError.
var ErrValidation = errors.New("validation failed")

// ValidationError reports a malformed batch request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Is reports ErrValidation as this error's kind.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
