// Package errors defines the closed set of error kinds the service
// discriminates on. Retry logic and HTTP status mapping both key off these
// sentinels rather than inspecting error messages.
package errors

import "errors"

var (
	// ErrNotFound marks a missing node, edge, or prompt. Never retried.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument marks malformed client input. Never retried.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrTransientStore marks a connectivity/session failure in the graph
	// store. Retried locally up to a bound, then surfaced.
	ErrTransientStore = errors.New("transient store failure")
	// ErrModelOutput marks unparsable or schema-invalid generator output.
	// Swallowed into an empty expansion result at the orchestrator.
	ErrModelOutput = errors.New("invalid model output")
	// ErrLockUnavailable marks an unreachable idempotency store. The gate
	// fails closed with this rather than running a handler unprotected.
	ErrLockUnavailable = errors.New("idempotency store unavailable")
	// ErrDuplicateInFlight marks a request whose idempotency key is held by
	// a still-running first attempt.
	ErrDuplicateInFlight = errors.New("request already processing")
)

func IsNotFound(err error) bool        { return errors.Is(err, ErrNotFound) }
func IsInvalidArgument(err error) bool { return errors.Is(err, ErrInvalidArgument) }
func IsTransientStore(err error) bool  { return errors.Is(err, ErrTransientStore) }
func IsModelOutput(err error) bool     { return errors.Is(err, ErrModelOutput) }
func IsLockUnavailable(err error) bool { return errors.Is(err, ErrLockUnavailable) }

func IsDuplicateInFlight(err error) bool { return errors.Is(err, ErrDuplicateInFlight) }
