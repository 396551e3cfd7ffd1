package domain

import (
	"errors"
	"fmt"
)

// ErrQueueFull is returned by Enqueue when the execution queue is at
// capacity. The run is never created.
var ErrQueueFull = errors.New("execution queue is full")

// NotFoundError indicates a referenced entity does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// ValidationError indicates bad input rejected synchronously.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ConflictError indicates an operation rejected because other records still
// reference the entity.
type ConflictError struct {
	Kind    string
	ID      string
	Message string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q: %s", e.Kind, e.ID, e.Message)
}

// InvalidStateError indicates a control operation against a run whose status
// does not permit it.
type InvalidStateError struct {
	RunID  string
	Status RunStatus
	Op     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s run %s in status %s", e.Op, e.RunID, e.Status)
}

// ConfigurationError indicates a non-retryable agent configuration problem
// (malformed prompt template, unresolvable placeholder). It fails the run
// immediately.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Message
}

// TransientError wraps a retryable failure from the chat model or a tool
// provider (network, timeout, rate-limit class).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
