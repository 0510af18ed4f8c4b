package domain

import (
	"context"
	"errors"
)

// Error taxonomy shared by the event source, resolver and poller.
var (
	// ErrNetwork is returned when the node or an upstream API is unreachable,
	// times out, or answers with a transport-level failure.
	ErrNetwork = errors.New("network failure")

	// ErrDecode is returned when a log, call result or response body
	// does not match the expected ABI or JSON shape.
	ErrDecode = errors.New("decode failure")

	// ErrNotFound is returned when no pool could be resolved.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned for missing or malformed addresses and parameters.
	ErrInvalidInput = errors.New("invalid input")
)

// ErrorKind is a short label for an error class, used in logs and metrics.
type ErrorKind string

const (
	KindNetwork      ErrorKind = "network"
	KindDecode       ErrorKind = "decode"
	KindNotFound     ErrorKind = "not_found"
	KindInvalidInput ErrorKind = "invalid_input"
	KindCanceled     ErrorKind = "canceled"
	KindUnknown      ErrorKind = "unknown"
)

// KindOf classifies err. A nil error has an empty kind.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, ErrNetwork), errors.Is(err, context.DeadlineExceeded):
		return KindNetwork
	case errors.Is(err, ErrDecode):
		return KindDecode
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	default:
		return KindUnknown
	}
}
