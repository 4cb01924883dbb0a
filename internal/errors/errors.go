// Package errors defines application-specific error types and sentinel errors.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	ErrBufferClosed     = errors.New("buffer is closed")
	ErrCapacityExceeded = errors.New("buffer capacity exceeded")
	ErrAllocationFailed = errors.New("segment allocation failed")
	ErrInterrupted      = errors.New("wait interrupted")
	ErrEntryTooLarge    = errors.New("entry too large for buffer")
	ErrInvalidConfig    = errors.New("invalid buffer configuration")
)

// AllocationError represents a failure of the storage medium to produce
// segments, even though the buffer's own bounds allowed the request.
type AllocationError struct {
	Requested int
	Err       error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("allocation error: requested=%d segments: %v", e.Requested, e.Err)
}

func (e *AllocationError) Unwrap() error {
	return e.Err
}

// Is makes every AllocationError match ErrAllocationFailed.
func (e *AllocationError) Is(target error) bool {
	return target == ErrAllocationFailed
}

// InterruptedError represents a blocking call that was cancelled before its
// predicate became true.
type InterruptedError struct {
	Op  string
	Err error
}

func (e *InterruptedError) Error() string {
	return fmt.Sprintf("interrupted: operation=%s: %v", e.Op, e.Err)
}

func (e *InterruptedError) Unwrap() error {
	return e.Err
}

// Is makes every InterruptedError match ErrInterrupted.
func (e *InterruptedError) Is(target error) bool {
	return target == ErrInterrupted
}

// InvariantError describes corrupted internal bookkeeping. It is raised with
// panic and must never be retried.
type InvariantError struct {
	Op     string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation: operation=%s: %s", e.Op, e.Detail)
}

// Violation panics with an InvariantError. Callers test the invariant
// themselves so that the arguments are only built on failure.
func Violation(op, format string, args ...any) {
	panic(&InvariantError{Op: op, Detail: fmt.Sprintf(format, args...)})
}

// Retryable defines an interface for errors that can indicate if they are retryable.
type Retryable interface {
	error
	IsRetryable() bool
}

// IsRetryable checks if an error is retryable.
// Capacity exhaustion clears once a consumer drains the buffer; closed buffers,
// allocation failures and interruptions do not resolve by retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var retryable Retryable
	if errors.As(err, &retryable) {
		return retryable.IsRetryable()
	}

	return errors.Is(err, ErrCapacityExceeded)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}
