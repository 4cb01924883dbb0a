// Package membuf builds bounded in-process FIFO buffers.
//
// A Factory owns the allocators that segments are carved from and hands out
// entry buffers, streamy byte buffers and streamy int64 buffers that share
// them:
//
//	f, err := membuf.New(membuf.Config{SegmentSize: 4096, MinSegments: 2, MaxSegments: 12})
//	if err != nil {
//		return err
//	}
//	defer f.Close()
//
//	orders, err := f.NewEntryBuffer("orders")
package membuf

import (
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/jittakal/membuf/internal/allocator"
	internalbuffer "github.com/jittakal/membuf/internal/buffer"
	"github.com/jittakal/membuf/internal/errors"
	"github.com/jittakal/membuf/internal/segment"
	"github.com/jittakal/membuf/pkg/buffer"
)

// Errors returned by buffers, for use with errors.Is.
var (
	ErrBufferClosed     = errors.ErrBufferClosed
	ErrCapacityExceeded = errors.ErrCapacityExceeded
	ErrAllocationFailed = errors.ErrAllocationFailed
	ErrInterrupted      = errors.ErrInterrupted
	ErrEntryTooLarge    = errors.ErrEntryTooLarge
	ErrInvalidConfig    = errors.ErrInvalidConfig
)

// AllocatorKind selects where segment memory comes from.
type AllocatorKind string

const (
	// HeapAllocator keeps segments on the Go heap.
	HeapAllocator AllocatorKind = AllocatorKind(allocator.KindHeap)
	// MmapAllocator maps every segment off-heap. Unix only.
	MmapAllocator AllocatorKind = AllocatorKind(allocator.KindMmap)
)

// Config holds the settings shared by every buffer a Factory creates.
type Config struct {
	// SegmentSize is the capacity of one segment, in values.
	SegmentSize int
	// MinSegments is how many segments a buffer keeps allocated.
	MinSegments int
	// MaxSegments caps the segments a buffer may hold at once.
	MaxSegments int

	// Allocator defaults to HeapAllocator.
	Allocator AllocatorKind
	// AllocatorMaxSegments caps live segments per value type across all
	// buffers. Zero means unlimited.
	AllocatorMaxSegments int
	// AllocatorRetainedSegments is the size of the allocator's reuse pool.
	AllocatorRetainedSegments int

	Logger  *slog.Logger
	Metrics buffer.MetricsCollector
}

// Validate checks the segment bounds.
func (c Config) Validate() error {
	if c.SegmentSize < 1 {
		return fmt.Errorf("%w: segment size must be positive, got %d", ErrInvalidConfig, c.SegmentSize)
	}
	if c.MinSegments < 1 {
		return fmt.Errorf("%w: min segments must be at least 1, got %d", ErrInvalidConfig, c.MinSegments)
	}
	if c.MaxSegments < c.MinSegments {
		return fmt.Errorf("%w: max segments %d below min segments %d", ErrInvalidConfig, c.MaxSegments, c.MinSegments)
	}
	return nil
}

// BufferOption overrides factory settings for a single buffer.
type BufferOption func(*bufferSettings)

type bufferSettings struct {
	minSegments int
	maxSegments int
}

// WithSegments sets the segment bounds of one buffer.
func WithSegments(minSegments, maxSegments int) BufferOption {
	return func(s *bufferSettings) {
		s.minSegments = minSegments
		s.maxSegments = maxSegments
	}
}

// Factory creates buffers backed by shared allocators. It is safe for
// concurrent use.
type Factory struct {
	cfg Config

	mu     sync.Mutex
	bytes  allocator.Allocator[byte]
	longs  allocator.Allocator[int64]
	closed bool
}

// New validates cfg and creates the byte allocator. The int64 allocator is
// created with the first longs buffer.
func New(cfg Config) (*Factory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Allocator == "" {
		cfg.Allocator = HeapAllocator
	}

	bytes, err := newAllocator[byte](cfg)
	if err != nil {
		return nil, err
	}
	return &Factory{cfg: cfg, bytes: bytes}, nil
}

func newAllocator[T segment.Value](cfg Config) (allocator.Allocator[T], error) {
	alloc, err := allocator.New[T](
		allocator.Kind(cfg.Allocator),
		cfg.SegmentSize,
		allocator.WithMaxSegments(cfg.AllocatorMaxSegments),
		allocator.WithRetainedSegments(cfg.AllocatorRetainedSegments),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s allocator: %w", cfg.Allocator, err)
	}
	return alloc, nil
}

func (f *Factory) settings(opts []BufferOption) bufferSettings {
	s := bufferSettings{minSegments: f.cfg.MinSegments, maxSegments: f.cfg.MaxSegments}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func (f *Factory) bufferOptions(name string) []internalbuffer.Option {
	return []internalbuffer.Option{
		internalbuffer.WithName(name),
		internalbuffer.WithLogger(f.cfg.Logger),
		internalbuffer.WithMetrics(f.cfg.Metrics),
	}
}

func (f *Factory) checkOpen() error {
	if f.closed {
		return fmt.Errorf("factory is closed: %w", ErrBufferClosed)
	}
	return nil
}

// NewEntryBuffer creates a buffer of discrete byte entries.
func (f *Factory) NewEntryBuffer(name string, opts ...BufferOption) (buffer.EntryBuffer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.checkOpen(); err != nil {
		return nil, err
	}
	s := f.settings(opts)
	buf, err := internalbuffer.NewEntryBuffer(f.bytes, s.minSegments, s.maxSegments, f.bufferOptions(name)...)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// NewStreamyBytes creates a buffer holding one unframed byte stream.
func (f *Factory) NewStreamyBytes(name string, opts ...BufferOption) (buffer.StreamyBuffer[byte], error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.checkOpen(); err != nil {
		return nil, err
	}
	s := f.settings(opts)
	buf, err := internalbuffer.NewStreamyBuffer(f.bytes, s.minSegments, s.maxSegments, f.bufferOptions(name)...)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// NewStreamyLongs creates a buffer holding one unframed int64 stream.
func (f *Factory) NewStreamyLongs(name string, opts ...BufferOption) (buffer.StreamyBuffer[int64], error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.checkOpen(); err != nil {
		return nil, err
	}
	if f.longs == nil {
		longs, err := newAllocator[int64](f.cfg)
		if err != nil {
			return nil, err
		}
		f.longs = longs
	}
	s := f.settings(opts)
	buf, err := internalbuffer.NewStreamyBuffer(f.longs, s.minSegments, s.maxSegments, f.bufferOptions(name)...)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// NewManager creates a registry of named entry buffers that draw from the
// factory's byte allocator with the factory's segment bounds.
func (f *Factory) NewManager() *internalbuffer.Manager {
	return internalbuffer.NewManager(f.bytes, f.cfg.MinSegments, f.cfg.MaxSegments,
		internalbuffer.WithLogger(f.cfg.Logger),
		internalbuffer.WithMetrics(f.cfg.Metrics),
	)
}

// LiveSegments returns the segments currently handed out by the factory's
// allocators, or -1 if an allocator does not track them.
func (f *Factory) LiveSegments() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	live := 0
	for _, a := range []any{f.bytes, f.longs} {
		if a == nil {
			continue
		}
		t, ok := a.(allocator.Tracker)
		if !ok {
			return -1
		}
		live += t.Live()
	}
	return live
}

// Kind returns the allocator kind in use.
func (f *Factory) Kind() AllocatorKind {
	return f.cfg.Allocator
}

// Close releases allocator resources. With MmapAllocator every segment is
// unmapped, so buffers created by f must not be used afterwards.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true

	var errs []error
	for _, a := range []any{f.bytes, f.longs} {
		if c, ok := a.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return stderrors.Join(errs...)
}
