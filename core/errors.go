package core

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind is the stable, machine-readable tag carried by every surfaced
// failure. Kinds are mutually exclusive; consumers switch on the kind, never
// on message text.
type ErrorKind string

const (
	KindInvalidInput           ErrorKind = "InvalidInput"
	KindAccessDenied           ErrorKind = "AccessDenied"
	KindMissingPricingPack     ErrorKind = "MissingPricingPack"
	KindRequiredContextMissing ErrorKind = "RequiredContextMissing"
	KindUnknownCapability      ErrorKind = "UnknownCapability"
	KindUnknownPattern         ErrorKind = "UnknownPattern"
	KindUnresolvedIntent       ErrorKind = "UnresolvedIntent"
	KindCircuitOpen            ErrorKind = "CircuitOpen"
	KindAgentTransientFailure  ErrorKind = "AgentTransientFailure"
	KindAgentPermanentFailure  ErrorKind = "AgentPermanentFailure"
	KindDeadlineExceeded       ErrorKind = "DeadlineExceeded"
	KindExecutionCancelled     ErrorKind = "ExecutionCancelled"
	KindValidationFailure      ErrorKind = "ValidationFailure"
	KindBackpressure           ErrorKind = "Backpressure"
	KindNotFound               ErrorKind = "NotFound"
	KindInternal               ErrorKind = "Internal"
)

// Standard sentinel errors for comparison using errors.Is().
var (
	// Transport and upstream failures. These are the only errors that count
	// as transient for retry and circuit breaker accounting.
	ErrTimeout             = errors.New("operation timeout")
	ErrConnectionFailed    = errors.New("connection failed")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// Registry errors.
	ErrCapabilityNotFound = errors.New("capability not found")
	ErrDuplicateBinding   = errors.New("capability already registered")
	ErrAgentNotFound      = errors.New("agent not found")

	// Configuration errors.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingConfiguration = errors.New("missing required configuration")
)

// Error is the structured error surfaced at component boundaries. It wraps an
// underlying error and carries enough identity for an operator to correlate a
// failure with a request without a stack trace.
type Error struct {
	Kind          ErrorKind
	Op            string // operation that failed, e.g. "runtime.invoke"
	PatternID     string // offending pattern, when relevant
	Step          string // offending step, when relevant
	CorrelationID string
	Message       string
	Err           error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.PatternID != "" && e.Step != "":
		return fmt.Sprintf("%s: %s [pattern=%s step=%s]: %s", e.Kind, e.Op, e.PatternID, e.Step, msg)
	case e.PatternID != "":
		return fmt.Sprintf("%s: %s [pattern=%s]: %s", e.Kind, e.Op, e.PatternID, msg)
	case e.Op != "":
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, msg)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
}

// Unwrap returns the underlying error for use with errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a structured error with the given kind.
func NewError(kind ErrorKind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// WrapError wraps an underlying error with a kind and operation.
func WrapError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the error kind, defaulting to KindInternal for errors that
// did not originate at a component boundary.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindDeadlineExceeded
	case errors.Is(err, context.Canceled):
		return KindExecutionCancelled
	case errors.Is(err, ErrCapabilityNotFound):
		return KindUnknownCapability
	}
	return KindInternal
}

// transientError marks an error as transient without changing its message.
type transientError struct {
	err error
}

func (t *transientError) Error() string { return t.err.Error() }
func (t *transientError) Unwrap() error { return t.err }

// Transient marks err as a transient failure. Transient failures retry and
// feed the circuit breaker; everything else is permanent.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err is a retriable infrastructure failure:
// timeout, connection failure, upstream 5xx, or an error explicitly marked
// with Transient. Validation, auth, and not-found errors are permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var t *transientError
	if errors.As(err, &t) {
		return true
	}
	var e *Error
	if errors.As(err, &e) {
		switch e.Kind {
		case KindAgentTransientFailure:
			return true
		case KindInternal:
			// Fall through to sentinel checks on the wrapped error.
		default:
			return false
		}
	}
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConnectionFailed) ||
		errors.Is(err, ErrUpstreamUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}

// IsNotFound reports whether err represents a missing entity.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrCapabilityNotFound) || errors.Is(err, ErrAgentNotFound) {
		return true
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindNotFound || e.Kind == KindUnknownPattern || e.Kind == KindUnknownCapability
	}
	return false
}

// IsConfigurationError reports whether err is configuration-related.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) ||
		errors.Is(err, ErrMissingConfiguration)
}
