package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrBufferClosed", ErrBufferClosed},
		{"ErrCapacityExceeded", ErrCapacityExceeded},
		{"ErrAllocationFailed", ErrAllocationFailed},
		{"ErrInterrupted", ErrInterrupted},
		{"ErrEntryTooLarge", ErrEntryTooLarge},
		{"ErrInvalidConfig", ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err == nil {
				t.Errorf("%s should not be nil", tt.name)
			}
			if tt.err.Error() == "" {
				t.Errorf("%s should have an error message", tt.name)
			}
		})
	}
}

func TestAllocationError(t *testing.T) {
	baseErr := errors.New("out of memory")
	allocErr := &AllocationError{Requested: 3, Err: baseErr}

	if allocErr.Error() == "" {
		t.Error("AllocationError should have an error message")
	}
	if !errors.Is(allocErr, baseErr) {
		t.Error("AllocationError should wrap base error")
	}
	if !errors.Is(allocErr, ErrAllocationFailed) {
		t.Error("AllocationError should match ErrAllocationFailed")
	}
	if errors.Is(allocErr, ErrCapacityExceeded) {
		t.Error("AllocationError must be distinguishable from ErrCapacityExceeded")
	}

	wrapped := fmt.Errorf("append: %w", allocErr)
	var target *AllocationError
	if !errors.As(wrapped, &target) || target.Requested != 3 {
		t.Errorf("errors.As() = %v, want Requested 3", target)
	}
}

func TestInterruptedError(t *testing.T) {
	err := &InterruptedError{Op: "get_next_entry", Err: context.Canceled}

	if !errors.Is(err, ErrInterrupted) {
		t.Error("InterruptedError should match ErrInterrupted")
	}
	if !errors.Is(err, context.Canceled) {
		t.Error("InterruptedError should wrap the context error")
	}
}

func TestViolation(t *testing.T) {
	defer func() {
		r := recover()
		invErr, ok := r.(*InvariantError)
		if !ok {
			t.Fatalf("recover() = %v, want *InvariantError", r)
		}
		if invErr.Op != "chunked_write" {
			t.Errorf("Op = %q, want chunked_write", invErr.Op)
		}
		if invErr.Detail != "wrote 3 of 5" {
			t.Errorf("Detail = %q, want %q", invErr.Detail, "wrote 3 of 5")
		}
	}()
	Violation("chunked_write", "wrote %d of %d", 3, 5)
}

type retryableErr struct{ retry bool }

func (e retryableErr) Error() string     { return "custom" }
func (e retryableErr) IsRetryable() bool { return e.retry }

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
		{
			name: "capacity exceeded is retryable",
			err:  fmt.Errorf("append: %w", ErrCapacityExceeded),
			want: true,
		},
		{
			name: "closed buffer is not retryable",
			err:  ErrBufferClosed,
			want: false,
		},
		{
			name: "allocation failure is not retryable",
			err:  &AllocationError{Requested: 1, Err: errors.New("mmap failed")},
			want: false,
		},
		{
			name: "interruption is not retryable",
			err:  &InterruptedError{Op: "append", Err: context.DeadlineExceeded},
			want: false,
		},
		{
			name: "custom retryable",
			err:  retryableErr{retry: true},
			want: true,
		},
		{
			name: "generic error is not retryable",
			err:  errors.New("generic error"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}
