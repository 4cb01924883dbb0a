// Package allocator provides the storage media that segments are carved from.
//
// An Allocator only creates and destroys segments; the bounds on how many
// segments a buffer may hold are enforced by the buffer itself. Allocators may
// be shared by several buffers and are safe for concurrent use.
package allocator

import (
	"fmt"

	"github.com/jittakal/membuf/internal/errors"
	"github.com/jittakal/membuf/internal/segment"
)

// Allocator creates and destroys segments backed by some storage medium.
type Allocator[T segment.Value] interface {
	// SegmentSize returns the capacity, in values, of every segment produced.
	SegmentSize() int

	// Allocate returns n free segments or none at all. A failure of the
	// underlying medium is reported as an *errors.AllocationError.
	Allocate(n int) ([]*segment.Segment[T], error)

	// Release hands a segment back to the medium. The caller must not use it
	// afterwards.
	Release(seg *segment.Segment[T])
}

// Tracker is implemented by allocators that count the segments they hold.
type Tracker interface {
	// Live returns the number of segments handed out and not yet released.
	Live() int
	// Pooled returns the number of released segments kept for reuse.
	Pooled() int
}

// Kind names an allocator implementation in configuration.
type Kind string

const (
	KindHeap Kind = "heap"
	KindMmap Kind = "mmap"
)

// Options holds settings shared by the allocator implementations.
type Options struct {
	// MaxSegments caps the segments live at once across every buffer sharing
	// the allocator. Zero means unlimited.
	MaxSegments int
	// RetainedSegments is how many released segments are pooled for reuse
	// instead of being returned to the medium.
	RetainedSegments int
}

// Option configures an allocator.
type Option func(*Options)

// WithMaxSegments limits the number of live segments.
func WithMaxSegments(n int) Option {
	return func(o *Options) {
		o.MaxSegments = n
	}
}

// WithRetainedSegments sets the size of the reuse pool.
func WithRetainedSegments(n int) Option {
	return func(o *Options) {
		o.RetainedSegments = n
	}
}

func buildOptions(opts []Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New builds an allocator of the given kind.
func New[T segment.Value](kind Kind, segmentSize int, opts ...Option) (Allocator[T], error) {
	switch kind {
	case KindHeap, "":
		h, err := NewHeap[T](segmentSize, opts...)
		if err != nil {
			return nil, err
		}
		return h, nil
	case KindMmap:
		m, err := NewMmap[T](segmentSize, opts...)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: unsupported allocator %q", errors.ErrInvalidConfig, kind)
	}
}

func validateSegmentSize(segmentSize int) error {
	if segmentSize < 1 {
		return fmt.Errorf("%w: segment size must be positive, got %d", errors.ErrInvalidConfig, segmentSize)
	}
	return nil
}

func exhausted(requested, live, limit int) error {
	return &errors.AllocationError{
		Requested: requested,
		Err:       fmt.Errorf("segment limit reached: live=%d limit=%d", live, limit),
	}
}
