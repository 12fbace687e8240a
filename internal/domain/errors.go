// SPDX-License-Identifier: Apache-2.0

package domain

import "errors"

// ErrorKind classifies step failures for retry policy decisions.
type ErrorKind string

const (
	// ErrorTransient covers dependent-service throttling, unavailability and
	// timeouts. The activity executor retries these per policy.
	ErrorTransient ErrorKind = "TRANSIENT_DEPENDENCY"
	// ErrorPermanent covers malformed input and validation failures. Never
	// retried.
	ErrorPermanent ErrorKind = "PERMANENT_VALIDATION"
	// ErrorSchema covers agent output that does not validate against the
	// target schema. The agent call is retried once, then fails.
	ErrorSchema ErrorKind = "SCHEMA_VIOLATION"
)

// StepError is a classified step failure.
type StepError struct {
	Kind    ErrorKind
	Message string
	wrapped error
}

func (e *StepError) Error() string { return e.Message }

func (e *StepError) Unwrap() error { return e.wrapped }

// Transient wraps err as a retryable dependency failure.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &StepError{Kind: ErrorTransient, Message: err.Error(), wrapped: err}
}

// Permanent wraps err as a non-retryable validation failure.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &StepError{Kind: ErrorPermanent, Message: err.Error(), wrapped: err}
}

// SchemaViolation wraps err as an agent output schema failure.
func SchemaViolation(err error) error {
	if err == nil {
		return nil
	}
	return &StepError{Kind: ErrorSchema, Message: err.Error(), wrapped: err}
}

// KindOf returns the classification of err. Unclassified errors are treated
// as transient so that infrastructure hiccups stay retryable.
func KindOf(err error) ErrorKind {
	var se *StepError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ErrorTransient
}

var (
	// ErrUnknownInstance is returned for queries and events against an
	// instance id that does not exist. Surfaced to the caller, never fatal
	// to the engine.
	ErrUnknownInstance = errors.New("unknown orchestration instance")

	// ErrNotAwaitingEvent is returned when an event is raised against an
	// instance that is not currently suspended on that event name. Event
	// delivery is then a no-op.
	ErrNotAwaitingEvent = errors.New("instance is not awaiting this event")

	// ErrNonDeterministic is returned when replay encounters a history
	// record that does not match the step the workflow is about to run.
	ErrNonDeterministic = errors.New("workflow execution diverged from recorded history")
)
