// Package errors provides centralized error definitions for the application.
// Errors are organized by domain to avoid duplication and provide consistent naming.
//
// Naming conventions:
//   - Exported errors (Err*): Use for errors that callers need to check with errors.Is
//   - All sentinel errors should be defined as variables, not inline errors.New calls
//   - Use fmt.Errorf with %w to wrap sentinel errors with context
package errors

import "errors"

// Budget errors.
var (
	// ErrBudgetExhausted indicates the remaining monthly budget cannot cover
	// the estimated cost of the next operation. Not a failure: runs end early
	// with a structured outcome.
	ErrBudgetExhausted = errors.New("budget exhausted")
)

// Provider and parsing errors.
var (
	// ErrTransient indicates a retryable provider or store failure.
	ErrTransient = errors.New("transient failure")

	// ErrParse indicates the provider returned non-JSON or mis-shaped JSON.
	ErrParse = errors.New("response parse failure")

	// ErrEmptyResponse indicates an empty response body was received.
	ErrEmptyResponse = errors.New("empty response")

	// ErrCircuitBreakerOpen indicates the circuit breaker has tripped and requests are blocked.
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
)

// Store errors.
var (
	// ErrWriterConflict indicates the lead writer hit the uniqueness
	// constraint. Callers reclassify it as a successful dedup.
	ErrWriterConflict = errors.New("writer conflict")

	// ErrNotFound is a generic not found error.
	ErrNotFound = errors.New("not found")
)

// Scheduling errors.
var (
	// ErrRunGuardHeld indicates another orchestration already holds the
	// tenant's run guard; the run is skipped, not queued.
	ErrRunGuardHeld = errors.New("run guard held")

	// ErrInvalidConfig indicates missing or invalid tenant configuration.
	ErrInvalidConfig = errors.New("invalid tenant config")
)

// Fatal errors.
var (
	// ErrFatal indicates an invariant violation; the orchestration must
	// terminate immediately without producing partial lead rows.
	ErrFatal = errors.New("fatal pipeline error")
)

// Is is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is a convenience wrapper around errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
