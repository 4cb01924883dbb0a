package buffer

import (
	"context"
	"time"

	"github.com/jittakal/membuf/internal/allocator"
	"github.com/jittakal/membuf/internal/errors"
	"github.com/jittakal/membuf/internal/segment"
	"github.com/jittakal/membuf/pkg/buffer"
)

// Ensure implementation satisfies interface at compile time.
var (
	_ buffer.StreamyBuffer[byte]  = (*StreamyBuffer[byte])(nil)
	_ buffer.StreamyBuffer[int64] = (*StreamyBuffer[int64])(nil)
)

// StreamyBuffer stores one unframed sequence of bytes or longs. Append
// boundaries are not preserved.
type StreamyBuffer[T segment.Value] struct {
	*core[T]
}

// NewStreamyBuffer creates a streamy buffer drawing segments from alloc.
func NewStreamyBuffer[T segment.Value](alloc allocator.Allocator[T], minSegments, maxSegments int, opts ...Option) (*StreamyBuffer[T], error) {
	c, err := newCore(alloc, minSegments, maxSegments, opts)
	if err != nil {
		return nil, err
	}
	return &StreamyBuffer[T]{core: c}, nil
}

// TryAppend appends all of data without blocking, or nothing.
func (b *StreamyBuffer[T]) TryAppend(data []T) bool {
	return b.tryAppend(len(data), false, data)
}

// Append appends all of data, waiting for space if needed.
func (b *StreamyBuffer[T]) Append(ctx context.Context, data []T) error {
	return b.append(ctx, "append", len(data), false, data)
}

// TryAppendValue appends a single value without blocking.
func (b *StreamyBuffer[T]) TryAppendValue(v T) bool {
	return b.TryAppend([]T{v})
}

// AppendValue appends a single value, waiting for space if needed.
func (b *StreamyBuffer[T]) AppendValue(ctx context.Context, v T) error {
	return b.append(ctx, "append_value", 1, false, []T{v})
}

// Read copies available values into dst, waiting until at least one is
// available or ctx is done.
func (b *StreamyBuffer[T]) Read(ctx context.Context, dst []T) (int, error) {
	return b.read(ctx, "read", time.Time{}, dst)
}

// ReadIfAvailable copies available values into dst without waiting.
func (b *StreamyBuffer[T]) ReadIfAvailable(dst []T) int {
	b.coord.lock()
	defer b.coord.unlock()

	if b.totalPayload == 0 || len(dst) == 0 {
		return 0
	}
	n := b.readLocked(dst)
	b.consumedLocked(n, 0)
	return n
}

// ReadTimeout is Read bounded by timeout. Expiry returns 0 and no error; a
// zero or negative timeout waits until ctx is done.
func (b *StreamyBuffer[T]) ReadTimeout(ctx context.Context, timeout time.Duration, dst []T) (int, error) {
	return b.read(ctx, "read_timeout", deadlineAfter(timeout), dst)
}

// ReadValue returns the next value, waiting for one to arrive.
func (b *StreamyBuffer[T]) ReadValue(ctx context.Context) (T, error) {
	var dst [1]T
	_, err := b.read(ctx, "read_value", time.Time{}, dst[:])
	return dst[0], err
}

func (b *StreamyBuffer[T]) read(ctx context.Context, op string, deadline time.Time, dst []T) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}

	b.coord.lock()
	defer b.coord.unlock()

	ok, err := b.waitReadable(ctx, op, deadline, func() bool { return b.totalPayload > 0 })
	if !ok {
		return 0, err
	}
	n := b.readLocked(dst)
	if n <= 0 {
		errors.Violation(op, "payload length %d but nothing to read", b.totalPayload)
	}
	b.consumedLocked(n, 0)
	return n, nil
}

// Skip discards up to n values and returns how many were skipped.
func (b *StreamyBuffer[T]) Skip(n int) int {
	b.coord.lock()
	defer b.coord.unlock()

	if n <= 0 || b.totalPayload == 0 {
		return 0
	}
	skipped := b.skipLocked(n)
	b.consumedLocked(skipped, 0)
	return skipped
}

// Available returns the number of unread values.
func (b *StreamyBuffer[T]) Available() int64 {
	return b.TotalPayloadLength()
}

// Clear discards all unread values.
func (b *StreamyBuffer[T]) Clear() {
	b.coord.lock()
	defer b.coord.unlock()
	b.clearLocked()
}
