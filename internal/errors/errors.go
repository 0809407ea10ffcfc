// Package errors provides the single tagged error type used across the
// curator backend. Callers discriminate on Kind rather than on concrete
// error types, and attach structured context instead of formatting it into
// the message.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a failure for handling and recovery decisions.
type Kind string

const (
	// KindValidation rejects malformed input (paths, segments, vectors) at
	// the boundary. Never retryable; never reaches the decision engine.
	KindValidation Kind = "VALIDATION"

	// KindNotFound signals a missing folder, artifact or concept.
	KindNotFound Kind = "NOT_FOUND"

	// KindInfrastructure covers vector index and embedding call failures.
	// Recoverable: bounded retry, then degrade to an unsorted decision.
	KindInfrastructure Kind = "INFRASTRUCTURE"

	// KindTimeout is an infrastructure failure caused by a deadline.
	KindTimeout Kind = "TIMEOUT"

	// KindBudget signals quota or token exhaustion on an enrichment step.
	// Recoverable: skip the enrichment, continue rule-based.
	KindBudget Kind = "BUDGET"

	// KindConcurrency signals a folder aggregate update conflict.
	// Recoverable: reload folder state and retry the update.
	KindConcurrency Kind = "CONCURRENCY"

	// KindConfiguration signals an invalid threshold ordering or weight set.
	// Fatal at startup; never encountered mid-run.
	KindConfiguration Kind = "CONFIGURATION"

	// KindInternal is the fallback for unclassified failures.
	KindInternal Kind = "INTERNAL"
)

// Error is the unified error carried across all layers.
type Error struct {
	Kind      Kind           `json:"kind"`
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Operation string         `json:"operation,omitempty"`
	Retryable bool           `json:"retryable"`
	RetryAfter time.Duration `json:"retryAfter,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
	Cause     error          `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Kind, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Kind, e.Code, e.Message)
}

// Unwrap lets errors.Is and errors.As reach the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithOperation records the operation that failed.
func (e *Error) WithOperation(op string) *Error {
	e.Operation = op
	return e
}

// WithContext attaches a structured context value.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any, 4)
	}
	e.Context[key] = value
	return e
}

// WithCause attaches the underlying cause.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryAfter marks the error retryable after the given delay.
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	e.RetryAfter = d
	e.Retryable = true
	return e
}

// New creates an error of the given kind.
func New(kind Kind, code, message string) *Error {
	return &Error{
		Kind:      kind,
		Code:      code,
		Message:   message,
		Retryable: defaultRetryable(kind),
	}
}

func defaultRetryable(kind Kind) bool {
	switch kind {
	case KindInfrastructure, KindTimeout, KindConcurrency:
		return true
	default:
		return false
	}
}

// Validation creates a validation error.
func Validation(code, message string) *Error {
	return New(KindValidation, code, message)
}

// NotFound creates a not-found error.
func NotFound(code, message string) *Error {
	return New(KindNotFound, code, message)
}

// Infrastructure creates a recoverable infrastructure error.
func Infrastructure(code, message string) *Error {
	return New(KindInfrastructure, code, message)
}

// Timeout creates a timeout error.
func Timeout(code, message string) *Error {
	return New(KindTimeout, code, message)
}

// Budget creates a quota-exceeded error.
func Budget(code, message string) *Error {
	return New(KindBudget, code, message)
}

// Concurrency creates an aggregate update conflict error.
func Concurrency(code, message string) *Error {
	return New(KindConcurrency, code, message)
}

// Configuration creates a fatal configuration error.
func Configuration(code, message string) *Error {
	return New(KindConfiguration, code, message)
}

// Internal creates an unclassified internal error.
func Internal(code, message string) *Error {
	return New(KindInternal, code, message)
}

// Wrap adds operation context to an error while preserving its kind.
// Wrapping a non-unified error classifies it as INTERNAL.
func Wrap(err error, operation, message string) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{
			Kind:      existing.Kind,
			Code:      existing.Code,
			Message:   message,
			Operation: operation,
			Retryable: existing.Retryable,
			Context:   existing.Context,
			Cause:     err,
		}
	}
	return &Error{
		Kind:      KindInternal,
		Code:      "WRAPPED",
		Message:   message,
		Operation: operation,
		Cause:     err,
	}
}

// KindOf returns the kind of an error, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is checks whether an error carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return Is(err, KindValidation) }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return Is(err, KindNotFound) }

// IsInfrastructure reports whether err is an infrastructure failure,
// including timeouts.
func IsInfrastructure(err error) bool {
	return Is(err, KindInfrastructure) || Is(err, KindTimeout)
}

// IsTimeout reports whether err is a timeout.
func IsTimeout(err error) bool { return Is(err, KindTimeout) }

// IsBudget reports whether err is a quota-exceeded error.
func IsBudget(err error) bool { return Is(err, KindBudget) }

// IsConcurrency reports whether err is an update conflict.
func IsConcurrency(err error) bool { return Is(err, KindConcurrency) }

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool { return Is(err, KindConfiguration) }

// IsRetryable reports whether the operation that produced err may be retried.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}
