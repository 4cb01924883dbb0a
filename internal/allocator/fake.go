package allocator

import (
	stderrors "errors"
	"sync"

	"github.com/jittakal/membuf/internal/errors"
	"github.com/jittakal/membuf/internal/segment"
)

// Ensure implementation satisfies interface at compile time.
var _ Allocator[byte] = (*Fake[byte])(nil)

// ErrInjected is the cause reported by allocation failures a Fake was told
// to produce.
var ErrInjected = stderrors.New("injected allocation failure")

// Fake is a deterministic heap-backed allocator for tests. It records every
// call and fails on demand.
type Fake[T segment.Value] struct {
	segmentSize int

	mu        sync.Mutex
	live      int
	allocated int
	released  int
	calls     []int
	failNext  int
	liveLimit int
}

// NewFake creates a fake allocator producing segments of segmentSize values.
func NewFake[T segment.Value](segmentSize int) *Fake[T] {
	return &Fake[T]{segmentSize: segmentSize}
}

// SegmentSize returns the capacity of every segment.
func (f *Fake[T]) SegmentSize() int {
	return f.segmentSize
}

// Allocate returns n fresh segments unless a failure is pending or the live
// limit would be exceeded.
func (f *Fake[T]) Allocate(n int) ([]*segment.Segment[T], error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, n)
	if f.failNext > 0 {
		f.failNext--
		return nil, &errors.AllocationError{Requested: n, Err: ErrInjected}
	}
	if f.liveLimit > 0 && f.live+n > f.liveLimit {
		return nil, exhausted(n, f.live, f.liveLimit)
	}

	segs := make([]*segment.Segment[T], n)
	for i := range segs {
		segs[i] = segment.New(make([]T, f.segmentSize))
	}
	f.live += n
	f.allocated += n
	return segs, nil
}

// Release records the release of seg.
func (f *Fake[T]) Release(seg *segment.Segment[T]) {
	seg.Reset()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.live--
	f.released++
}

// FailNext makes the next n Allocate calls fail.
func (f *Fake[T]) FailNext(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = n
}

// LimitLive makes Allocate fail once more than n segments would be live.
func (f *Fake[T]) LimitLive(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.liveLimit = n
}

// Live returns the number of segments handed out and not yet released.
func (f *Fake[T]) Live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live
}

// Allocated returns the total number of segments ever handed out.
func (f *Fake[T]) Allocated() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.allocated
}

// Released returns the total number of segments released.
func (f *Fake[T]) Released() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released
}

// Calls returns the n passed to every Allocate call, in order.
func (f *Fake[T]) Calls() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.calls...)
}
