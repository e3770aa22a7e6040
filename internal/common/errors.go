package common

import (
	"errors"
	"fmt"
)

// Error kinds used across the scheduler core. Callers classify failures
// with errors.Is; wrapping sites add context with fmt.Errorf and %w.
var (
	// ErrConfiguration marks malformed cron expressions, unknown enum
	// values, or malformed config store documents. Never applied.
	ErrConfiguration = errors.New("configuration error")

	// ErrStorage marks repository I/O failures. Retryable at the caller's
	// discretion; never auto-retried by the core.
	ErrStorage = errors.New("storage error")

	// ErrScheduler marks duplicate job adds or missing handles.
	ErrScheduler = errors.New("scheduler error")

	// ErrExecution marks failures raised from inside a job body.
	ErrExecution = errors.New("execution error")

	// ErrTransientRemote marks config store unavailability. Callers fall
	// back to cache/environment/defaults and retry on the next refresh.
	ErrTransientRemote = errors.New("transient remote error")

	// ErrInterrupted marks cooperative cancellation during a retry sleep
	// or shutdown. Terminates the run; not retried.
	ErrInterrupted = errors.New("execution interrupted")
)

// ConfigurationError wraps a message as a configuration error.
func ConfigurationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// StorageError wraps an underlying I/O failure as a storage error.
func StorageError(err error, context string) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, context, err)
}

// SchedulerError wraps a message as a scheduler error.
func SchedulerError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrScheduler, fmt.Sprintf(format, args...))
}

// ExecutionError wraps a job body failure as an execution error.
func ExecutionError(err error) error {
	return fmt.Errorf("%w: %w", ErrExecution, err)
}

// TransientRemoteError wraps a config store failure.
func TransientRemoteError(err error, context string) error {
	return fmt.Errorf("%w: %s: %w", ErrTransientRemote, context, err)
}
