package desmo

import (
	"fmt"

	"github.com/kubocreate/desmo-go-sdk/internal/transport"
)

// InvalidApiKey is returned at construction time when the configured API
// key does not carry the expected "pk_" prefix.
type InvalidApiKey struct {
	Reason string
}

func (e *InvalidApiKey) Error() string {
	return fmt.Sprintf("invalid api key: %s", e.Reason)
}

// InvalidState is the session-controller guard error: a public entry point
// was invoked while the state machine was not in the state it requires.
type InvalidState struct {
	Expected string
	Actual   string
}

func (e *InvalidState) Error() string {
	return fmt.Sprintf("invalid state: expected %q, actual %q", e.Expected, e.Actual)
}

// NoActiveSession is returned by stop/flush-style operations when no
// session_id is currently held.
type NoActiveSession struct{}

func (e *NoActiveSession) Error() string { return "no active session" }

// StatusCodeError wraps a non-2xx HTTP response.
type StatusCodeError struct {
	Code        int
	URL         string
	BodyPreview string
}

func (e *StatusCodeError) Error() string {
	return fmt.Sprintf("transport: unexpected status %d from %s: %s", e.Code, e.URL, e.BodyPreview)
}

// NetworkError wraps a transport-level I/O failure (DNS, timeout, reset, TLS).
type NetworkError struct {
	Cause error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("transport: network error: %v", e.Cause)
}

func (e *NetworkError) Unwrap() error { return e.Cause }

// DecodingError wraps a malformed/undecodable response body.
type DecodingError struct {
	Cause error
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("transport: decoding error: %v", e.Cause)
}

func (e *DecodingError) Unwrap() error { return e.Cause }

// TransportError is the umbrella public error type surfaced by Result
// values whenever a remote call fails. It always wraps one of
// StatusCodeError, NetworkError or DecodingError.
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// wrapTransportErr translates the internal transport package's error
// taxonomy into the public one documented in spec §7, so a host never has
// to import an internal package to pattern-match on a failure cause.
func wrapTransportErr(err error) *TransportError {
	switch e := err.(type) {
	case *transport.StatusError:
		return &TransportError{Cause: &StatusCodeError{Code: e.Code, URL: e.URL, BodyPreview: e.BodyPreview}}
	case *transport.NetworkError:
		return &TransportError{Cause: &NetworkError{Cause: e.Cause}}
	case *transport.DecodeError:
		return &TransportError{Cause: &DecodingError{Cause: e.Cause}}
	default:
		return &TransportError{Cause: err}
	}
}
