//go:build unix

package allocator

import (
	stderrors "errors"
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/jittakal/membuf/internal/errors"
	"github.com/jittakal/membuf/internal/segment"
)

// Ensure implementation satisfies interface at compile time.
var (
	_ Allocator[int64] = (*Mmap[int64])(nil)
	_ Tracker          = (*Mmap[int64])(nil)
)

var errAllocatorClosed = stderrors.New("allocator is closed")

// Mmap allocates segments off the Go heap, one anonymous private mapping per
// segment. Release unmaps unless the segment is kept in the reuse pool.
type Mmap[T segment.Value] struct {
	segmentSize int
	opts        Options

	mu       sync.Mutex
	mapped   map[*segment.Segment[T]]struct{}
	pool     []*segment.Segment[T]
	live     int
	closed   bool
}

// NewMmap creates an off-heap allocator producing segments of segmentSize values.
func NewMmap[T segment.Value](segmentSize int, opts ...Option) (*Mmap[T], error) {
	if err := validateSegmentSize(segmentSize); err != nil {
		return nil, err
	}
	return &Mmap[T]{
		segmentSize: segmentSize,
		opts:        buildOptions(opts),
		mapped:      make(map[*segment.Segment[T]]struct{}),
	}, nil
}

// SegmentSize returns the capacity of every segment.
func (m *Mmap[T]) SegmentSize() int {
	return m.segmentSize
}

// Allocate returns n free segments, mapping new regions as needed. Either all
// n segments are returned or every region mapped by this call is unmapped.
func (m *Mmap[T]) Allocate(n int) ([]*segment.Segment[T], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, &errors.AllocationError{Requested: n, Err: errAllocatorClosed}
	}
	if m.opts.MaxSegments > 0 && m.live+n > m.opts.MaxSegments {
		return nil, exhausted(n, m.live, m.opts.MaxSegments)
	}

	fromPool := min(n, len(m.pool))
	segs := make([]*segment.Segment[T], 0, n)
	segs = append(segs, m.pool[len(m.pool)-fromPool:]...)

	for len(segs) < n {
		seg, err := m.mapSegment()
		if err != nil {
			for _, s := range segs[fromPool:] {
				_ = unix.Munmap(region(s))
				delete(m.mapped, s)
			}
			return nil, &errors.AllocationError{Requested: n, Err: fmt.Errorf("mmap: %w", err)}
		}
		m.mapped[seg] = struct{}{}
		segs = append(segs, seg)
	}

	clear(m.pool[len(m.pool)-fromPool:])
	m.pool = m.pool[:len(m.pool)-fromPool]
	m.live += n

	return segs, nil
}

func (m *Mmap[T]) mapSegment() (*segment.Segment[T], error) {
	var zero T
	length := m.segmentSize * int(unsafe.Sizeof(zero))

	mem, err := unix.Mmap(-1, 0, length,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, err
	}

	data := unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(mem))), m.segmentSize)
	return segment.New(data), nil
}

// region returns the mapped bytes behind seg.
func region[T segment.Value](seg *segment.Segment[T]) []byte {
	data := seg.Data()
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(data))), len(data)*int(unsafe.Sizeof(zero)))
}

// Release pools seg or unmaps its region.
func (m *Mmap[T]) Release(seg *segment.Segment[T]) {
	seg.Reset()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.mapped[seg]; !ok {
		// already unmapped by Close
		return
	}
	m.live--
	if !m.closed && len(m.pool) < m.opts.RetainedSegments {
		m.pool = append(m.pool, seg)
		return
	}
	_ = unix.Munmap(region(seg))
	delete(m.mapped, seg)
}

// Live returns the number of segments handed out and not yet released.
func (m *Mmap[T]) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live
}

// Pooled returns the number of mapped segments held for reuse.
func (m *Mmap[T]) Pooled() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pool)
}

// Close unmaps every region still tracked, including segments held by
// buffers. Buffers using this allocator must not be touched afterwards.
func (m *Mmap[T]) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	var errs []error
	for seg := range m.mapped {
		if err := unix.Munmap(region(seg)); err != nil {
			errs = append(errs, err)
		}
		delete(m.mapped, seg)
	}
	m.pool = nil
	m.live = 0

	return stderrors.Join(errs...)
}
