package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for comparison with errors.Is(). Each corresponds to a
// category in the error taxonomy (spec section 7).
var (
	// Configuration: missing or malformed configuration, fatal at startup.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingConfiguration = errors.New("missing required configuration")

	// Registry not ready: transient, dispatcher retries next round.
	ErrNotReady        = errors.New("service registry not ready")
	ErrServiceNotFound = errors.New("service not found")

	// Provider / capability.
	ErrProviderNotFound  = errors.New("no provider registered for capability")
	ErrCircuitOpen       = errors.New("circuit breaker open")
	ErrAlreadyRegistered = errors.New("provider already registered")

	// DMA failure: timeout or evaluator error.
	ErrDMAFailure = errors.New("dma evaluation failed")
	ErrDMATimeout = errors.New("dma evaluation timed out")

	// Conscience veto: non-proceed verdict.
	ErrConscienceVeto = errors.New("conscience check vetoed action")

	// Handler / dispatch.
	ErrNoHandler      = errors.New("no handler registered for action type")
	ErrHandlerFailure = errors.New("action handler failed")

	// Persistence.
	ErrPersistenceFailure = errors.New("persistence operation failed")

	// Shutdown.
	ErrShutdownMaintenanceFailure = errors.New("shutdown maintenance failed")
	ErrAlreadyShutdown            = errors.New("processor already in terminal shutdown state")

	// State machine.
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrAlreadyStarted    = errors.New("already started")
	ErrNotInitialized    = errors.New("not initialized")
	ErrTimeout           = errors.New("operation timeout")

	// Aliases kept for the resilience package's circuit breaker, which
	// predates the taxonomy above and classifies errors by these names.
	ErrCircuitBreakerOpen = ErrCircuitOpen
	ErrMaxRetriesExceeded = errors.New("maximum retry attempts exceeded")
	ErrContextCanceled    = errors.New("context canceled")
)

// Error is a structured, wrappable error carrying the operation, taxonomy
// kind, and optional entity id involved. It implements Unwrap so callers
// can test against the sentinel values above with errors.Is/As.
type Error struct {
	Op      string // operation that failed, e.g. "dispatch.Dispatch"
	Kind    string // taxonomy kind, e.g. "registry", "dma", "conscience", "handler"
	ID      string // optional id of the entity involved (task, thought, correlation)
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil && e.ID != "":
		return fmt.Sprintf("%s [%s]: %v", e.Op, e.ID, e.Err)
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return fmt.Sprintf("%s error", e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a taxonomy error, wrapping the underlying cause.
func NewError(op, kind string, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// WithID attaches the entity id to a copy of the error.
func (e *Error) WithID(id string) *Error {
	cp := *e
	cp.ID = id
	return &cp
}

// IsRetryable reports whether the error represents a transient condition
// that a later round should retry rather than treat as terminal.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNotReady) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrServiceNotFound) ||
		errors.Is(err, ErrCircuitOpen)
}

// IsConfigurationError reports a fatal configuration problem.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) || errors.Is(err, ErrMissingConfiguration)
}

// IsNotFound reports a "not found" condition that a circuit breaker's
// error classifier should treat as a caller mistake, not a backend failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrServiceNotFound) || errors.Is(err, ErrProviderNotFound) || errors.Is(err, ErrNoHandler)
}

// IsStateError reports a programming error (invalid state transition, not
// yet initialized) that a circuit breaker should not count as a failure.
func IsStateError(err error) bool {
	return errors.Is(err, ErrAlreadyStarted) ||
		errors.Is(err, ErrNotInitialized) ||
		errors.Is(err, ErrAlreadyRegistered) ||
		errors.Is(err, ErrInvalidTransition)
}
