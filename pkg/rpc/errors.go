package rpc

import "fmt"

// Error is a protocol-level error returned by the node itself. The
// harness surfaces it to the scenario and never retries on its own.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// TransportError means the node process could not be reached at all.
// It is fatal to the run; there is no retry policy for it.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("node unreachable at %s: %s", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
