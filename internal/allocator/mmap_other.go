//go:build !unix

package allocator

import (
	"fmt"
	"runtime"

	"github.com/jittakal/membuf/internal/errors"
	"github.com/jittakal/membuf/internal/segment"
)

// Mmap is unavailable on this platform.
type Mmap[T segment.Value] struct{}

// NewMmap reports that off-heap segments are not supported here.
func NewMmap[T segment.Value](int, ...Option) (*Mmap[T], error) {
	return nil, fmt.Errorf("%w: mmap allocator is not supported on %s", errors.ErrInvalidConfig, runtime.GOOS)
}

func (m *Mmap[T]) SegmentSize() int { return 0 }

func (m *Mmap[T]) Allocate(n int) ([]*segment.Segment[T], error) {
	return nil, &errors.AllocationError{Requested: n, Err: fmt.Errorf("mmap unsupported on %s", runtime.GOOS)}
}

func (m *Mmap[T]) Release(*segment.Segment[T]) {}

func (m *Mmap[T]) Close() error { return nil }

func (m *Mmap[T]) Live() int { return 0 }

func (m *Mmap[T]) Pooled() int { return 0 }
