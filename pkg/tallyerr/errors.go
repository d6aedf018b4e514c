// Package tallyerr classifies failures raised by the counter engine into
// the kinds described by the counter-operation error contract: arguments
// rejected before reaching the backing store, infrastructure failures
// surfaced by the store, and construction-time configuration errors.
package tallyerr

import (
	"errors"
	"fmt"
)

// Kind classifies a counter-engine error.
type Kind string

const (
	// InvalidArgument marks a request rejected at the entry point: a
	// blank namespace/counter name, a malformed token, a negative
	// timeout. It never reaches the backing store.
	InvalidArgument Kind = "invalid_argument"

	// BackingStoreUnavailable marks pool exhaustion, connection
	// failure, or an open circuit breaker.
	BackingStoreUnavailable Kind = "backing_store_unavailable"

	// BackingStoreCommandFailure marks a command error returned by the
	// backing store itself, after the configured retries are exhausted.
	BackingStoreCommandFailure Kind = "backing_store_command_failure"

	// IdempotencyConflict is reserved: the current design never
	// constructs it because every strategy treats a pre-existing
	// marker as "already applied" rather than validating the payload
	// that produced it.
	IdempotencyConflict Kind = "idempotency_conflict"

	// ConfigError marks a construction-time failure: a missing nodeId
	// where one is required, or an unsupported consistency value.
	ConfigError Kind = "config_error"
)

// Code is a short machine-readable identifier attached to infrastructure
// errors, e.g. "REDIS_ERROR".
type Code string

const (
	// CodeRedisError is attached to both BackingStoreUnavailable and
	// BackingStoreCommandFailure errors, per spec.
	CodeRedisError Code = "REDIS_ERROR"
)

// Error is the error type returned by every exported counter-engine
// operation that can fail.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("tally: %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("tally: %s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a *Error with the same Kind, so callers
// can match on kind alone, e.g.
// errors.Is(err, &tallyerr.Error{Kind: tallyerr.InvalidArgument}).
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return te.Kind == e.Kind
	}
	return false
}

// NewInvalidArgument builds an InvalidArgument error.
func NewInvalidArgument(message string) *Error {
	return &Error{Kind: InvalidArgument, Message: message}
}

// NewConfigError builds a ConfigError.
func NewConfigError(message string) *Error {
	return &Error{Kind: ConfigError, Message: message}
}

// NewBackingStoreUnavailable wraps a connection/pool/circuit failure.
func NewBackingStoreUnavailable(message string, cause error) *Error {
	return &Error{Kind: BackingStoreUnavailable, Code: CodeRedisError, Message: message, Cause: cause}
}

// NewBackingStoreCommandFailure wraps a command error from the backing
// store after retries are exhausted.
func NewBackingStoreCommandFailure(message string, cause error) *Error {
	return &Error{Kind: BackingStoreCommandFailure, Code: CodeRedisError, Message: message, Cause: cause}
}

// KindOf returns the Kind of err if it is (or wraps) a *Error, and false
// otherwise.
func KindOf(err error) (Kind, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind, true
	}
	return "", false
}
