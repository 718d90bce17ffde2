package solarapi

import (
	"errors"
	"fmt"
)

// ErrExternalAPI is the kind of every fetch failure.
var ErrExternalAPI = errors.New("external api error")

// ExternalAPIError describes one failed building insights lookup.
// StatusCode is 0 when no HTTP response was received.
type ExternalAPIError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *ExternalAPIError) Error() string {
	return e.Message
}

// Unwrap returns the transport or decode cause, if any.
func (e *ExternalAPIError) Unwrap() error { return e.Err }

// Is reports ErrExternalAPI as this error's kind.
func (e *ExternalAPIError) Is(target error) bool {
	return target == ErrExternalAPI
}

func statusError(code int, apiMessage string) *ExternalAPIError {
	msg := apiMessage
	if msg == "" {
		msg = fmt.Sprintf("Request failed with status code %d", code)
	}
	return &ExternalAPIError{StatusCode: code, Message: msg}
}
