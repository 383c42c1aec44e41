package stream

import (
	"errors"
	"fmt"
)

// ErrEmptyResult reports a stream that completed normally without producing
// any content. The decoder never returns it; callers that require output do.
var ErrEmptyResult = errors.New("empty response from model")

// ConnectionError is reported when a streaming request could not be
// established: a failed round trip, a non-success status or a missing body.
type ConnectionError struct {
	StatusCode int
	Status     string
	Body       string
	Err        error
}

func (e *ConnectionError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("connection failed: %v", e.Err)
	default:
		return "connection failed"
	}
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// TransportError is reported when reading an established stream fails.
// Content delivered before the failure stays delivered.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("stream read failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
