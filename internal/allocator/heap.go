package allocator

import (
	"sync"

	"github.com/jittakal/membuf/internal/segment"
)

// Ensure implementation satisfies interface at compile time.
var (
	_ Allocator[byte] = (*Heap[byte])(nil)
	_ Tracker         = (*Heap[byte])(nil)
)

// Heap allocates segments on the Go heap. Released segments are pooled up to
// RetainedSegments; beyond that they are left to the garbage collector.
type Heap[T segment.Value] struct {
	segmentSize int
	opts        Options

	mu   sync.Mutex
	pool []*segment.Segment[T]
	live int
}

// NewHeap creates a heap allocator producing segments of segmentSize values.
func NewHeap[T segment.Value](segmentSize int, opts ...Option) (*Heap[T], error) {
	if err := validateSegmentSize(segmentSize); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &Heap[T]{
		segmentSize: segmentSize,
		opts:        o,
		pool:        make([]*segment.Segment[T], 0, o.RetainedSegments),
	}, nil
}

// SegmentSize returns the capacity of every segment.
func (h *Heap[T]) SegmentSize() int {
	return h.segmentSize
}

// Allocate returns n free segments, reusing pooled ones first.
func (h *Heap[T]) Allocate(n int) ([]*segment.Segment[T], error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.opts.MaxSegments > 0 && h.live+n > h.opts.MaxSegments {
		return nil, exhausted(n, h.live, h.opts.MaxSegments)
	}

	segs := make([]*segment.Segment[T], 0, n)
	for len(segs) < n && len(h.pool) > 0 {
		last := len(h.pool) - 1
		segs = append(segs, h.pool[last])
		h.pool[last] = nil
		h.pool = h.pool[:last]
	}
	for len(segs) < n {
		segs = append(segs, segment.New(make([]T, h.segmentSize)))
	}
	h.live += n

	return segs, nil
}

// Release returns seg to the pool or drops it.
func (h *Heap[T]) Release(seg *segment.Segment[T]) {
	seg.Reset()

	h.mu.Lock()
	defer h.mu.Unlock()

	h.live--
	if len(h.pool) < h.opts.RetainedSegments {
		h.pool = append(h.pool, seg)
	}
}

// Live returns the number of segments handed out and not yet released.
func (h *Heap[T]) Live() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.live
}

// Pooled returns the number of segments held for reuse.
func (h *Heap[T]) Pooled() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pool)
}
