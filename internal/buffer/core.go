package buffer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jittakal/membuf/internal/allocator"
	"github.com/jittakal/membuf/internal/chain"
	"github.com/jittakal/membuf/internal/errors"
	"github.com/jittakal/membuf/internal/segment"
	"github.com/jittakal/membuf/pkg/buffer"
)

// core is the engine shared by entry and streamy buffers: the segment chain,
// payload accounting and the append and read algorithms. Every field is
// guarded by the coordinator's lock.
type core[T segment.Value] struct {
	coord   *coordinator
	chain   *chain.Chain[T]
	name    string
	logger  *slog.Logger
	metrics buffer.MetricsCollector

	totalPayload int64
	entries      int
	closed       bool
}

func newCore[T segment.Value](alloc allocator.Allocator[T], minSegments, maxSegments int, opts []Option) (*core[T], error) {
	if alloc == nil {
		return nil, fmt.Errorf("%w: allocator is required", errors.ErrInvalidConfig)
	}
	o := buildOptions(opts)

	ch, err := chain.New(alloc, minSegments, maxSegments)
	if err != nil {
		return nil, fmt.Errorf("failed to create buffer %q: %w", o.name, err)
	}

	c := &core[T]{
		coord:   newCoordinator(),
		chain:   ch,
		name:    o.name,
		logger:  o.logger.With("buffer", o.name),
		metrics: o.metrics,
	}
	c.logger.Debug("buffer created",
		"segment_size", ch.SegmentSize(),
		"min_segments", ch.MinSegments(),
		"max_segments", ch.MaxSegments(),
	)
	c.observeState()

	return c, nil
}

// Name returns the name used in logs and metrics.
func (c *core[T]) Name() string {
	return c.name
}

// appendLimit is the largest append that fits once the buffer is empty.
func (c *core[T]) appendLimit() int {
	return c.chain.MaxSegments() * c.chain.SegmentSize()
}

// appendLocked writes parts as one atomic unit carrying payload values of
// payload. Either every part is written or nothing is mutated.
func (c *core[T]) appendLocked(payload int, entry bool, parts ...[]T) error {
	if c.closed {
		return errors.ErrBufferClosed
	}

	total := 0
	for _, p := range parts {
		total += len(p)
	}

	if free := c.chain.Head().AvailableForAppend(); total > free {
		size := c.chain.SegmentSize()
		needed := (total - free + size - 1) / size
		if err := c.chain.Reserve(needed); err != nil {
			if errors.Is(err, errors.ErrAllocationFailed) {
				c.metrics.IncAllocationFailures(c.name)
				c.logger.Warn("segment allocation failed", "requested", needed, "error", err)
			}
			return err
		}
	}

	written := 0
	for _, p := range parts {
		written += c.writeLocked(p)
	}
	if written != total {
		errors.Violation("chunked_write", "wrote %d of %d", written, total)
	}
	c.reclaimLocked()

	wasEmpty := c.totalPayload == 0 && c.entries == 0
	c.totalPayload += int64(payload)
	if entry {
		c.entries++
	}
	if wasEmpty && (payload > 0 || entry) {
		c.coord.broadcast()
	}
	c.observeState()

	return nil
}

// writeLocked fills the head and advances it until src is written. Enough
// segments must have been reserved.
func (c *core[T]) writeLocked(src []T) int {
	seg := c.chain.Head()
	written := seg.TryAppend(src)
	for written < len(src) {
		seg = c.chain.AdvanceHead()
		written += seg.TryAppend(src[written:])
	}
	return written
}

func (c *core[T]) tryAppend(payload int, entry bool, parts ...[]T) bool {
	c.coord.lock()
	defer c.coord.unlock()

	err := c.appendLocked(payload, entry, parts...)
	c.metrics.ObserveAppend(c.name, payload, err == nil)
	return err == nil
}

// append retries appendLocked each time capacity may have changed. Only
// running out of capacity is waited on; a closed buffer or a failing
// allocator is returned at once.
func (c *core[T]) append(ctx context.Context, op string, payload int, entry bool, parts ...[]T) error {
	total := 0
	for _, p := range parts {
		total += len(p)
	}
	if limit := c.appendLimit(); total > limit {
		c.metrics.ObserveAppend(c.name, payload, false)
		return fmt.Errorf("%w: %d values, buffer holds at most %d", errors.ErrEntryTooLarge, total, limit)
	}

	c.coord.lock()
	defer c.coord.unlock()

	var start time.Time
	for {
		err := c.appendLocked(payload, entry, parts...)
		if !errors.Is(err, errors.ErrCapacityExceeded) {
			c.observeWait(op, start)
			c.metrics.ObserveAppend(c.name, payload, err == nil)
			return err
		}

		if start.IsZero() {
			start = time.Now()
		}
		if _, werr := c.coord.wait(ctx, time.Time{}); werr != nil {
			c.observeWait(op, start)
			c.metrics.ObserveAppend(c.name, payload, false)
			return &errors.InterruptedError{Op: op, Err: werr}
		}
	}
}

// readLocked copies unread values into dst, reclaiming every segment it
// drains, and returns the count copied. Accounting is left to the caller.
func (c *core[T]) readLocked(dst []T) int {
	total := 0
	for total < len(dst) {
		n := c.chain.Tail().Read(dst[total:])
		total += n
		if c.reclaimLocked() == 0 && n == 0 {
			break
		}
	}
	c.reclaimLocked()
	return total
}

// skipLocked discards up to n unread values.
func (c *core[T]) skipLocked(n int) int {
	total := 0
	for total < n {
		s := c.chain.Tail().Skip(n - total)
		total += s
		if c.reclaimLocked() == 0 && s == 0 {
			break
		}
	}
	c.reclaimLocked()
	return total
}

// reclaimLocked recycles drained tail segments and rewinds the last one
// once everything has been read. Writers are woken when space came back.
func (c *core[T]) reclaimLocked() int {
	n := c.chain.ReclaimDrained()
	rewound := c.chain.RewindIfEmpty()
	if n > 0 || rewound {
		if c.closed {
			c.chain.ReleaseFree()
		}
		c.coord.broadcast()
	}
	return n
}

// consumedLocked settles the accounting of a completed read.
func (c *core[T]) consumedLocked(values, entries int) {
	c.totalPayload -= int64(values)
	c.entries -= entries
	if c.totalPayload < 0 {
		errors.Violation("read_accounting", "payload length went negative: %d", c.totalPayload)
	}
	if c.entries < 0 {
		errors.Violation("read_accounting", "entry count went negative: %d", c.entries)
	}

	c.metrics.ObserveRead(c.name, values)
	c.observeState()
}

func (c *core[T]) clearLocked() {
	released := c.chain.Reset()
	if c.closed {
		released += c.chain.ReleaseFree()
	}
	c.totalPayload = 0
	c.entries = 0
	c.coord.broadcast()
	c.observeState()

	c.logger.Debug("buffer cleared", "released_segments", released)
}

// Close permanently rejects further appends, hands the free segments back
// to the allocator and wakes every waiter. Unread data stays readable.
func (c *core[T]) Close() {
	c.coord.lock()
	defer c.coord.unlock()

	if c.closed {
		return
	}
	c.closed = true
	released := c.chain.ReleaseFree()
	c.coord.broadcast()
	c.observeState()

	c.logger.Debug("buffer closed",
		"released_segments", released,
		"unread_payload", c.totalPayload,
	)
}

// IsClosed reports whether Close has been called.
func (c *core[T]) IsClosed() bool {
	c.coord.lock()
	defer c.coord.unlock()
	return c.closed
}

// IsEmpty reports whether nothing is left to read.
func (c *core[T]) IsEmpty() bool {
	c.coord.lock()
	defer c.coord.unlock()
	return c.totalPayload == 0 && c.entries == 0
}

// TotalPayloadLength returns the number of unread payload values.
func (c *core[T]) TotalPayloadLength() int64 {
	c.coord.lock()
	defer c.coord.unlock()
	return c.totalPayload
}

// SegmentCount returns the number of segments holding data.
func (c *core[T]) SegmentCount() int {
	c.coord.lock()
	defer c.coord.unlock()
	return c.chain.UsedCount()
}

// FreeSegmentCount returns the number of segments held in reserve.
func (c *core[T]) FreeSegmentCount() int {
	c.coord.lock()
	defer c.coord.unlock()
	return c.chain.FreeCount()
}

// MaximumAvailableSpace returns how many more values fit if the buffer
// grows to its maximum number of segments.
func (c *core[T]) MaximumAvailableSpace() int64 {
	c.coord.lock()
	defer c.coord.unlock()
	return c.chain.MaximumAvailableSpace()
}

// Stats returns a snapshot of the buffer.
func (c *core[T]) Stats() buffer.Stats {
	c.coord.lock()
	defer c.coord.unlock()

	return buffer.Stats{
		Name:                  c.name,
		EntryCount:            c.entries,
		TotalPayloadLength:    c.totalPayload,
		SegmentCount:          c.chain.UsedCount(),
		FreeSegmentCount:      c.chain.FreeCount(),
		MaximumAvailableSpace: c.chain.MaximumAvailableSpace(),
		Closed:                c.closed,
	}
}

func (c *core[T]) observeState() {
	c.metrics.SetBufferState(c.name, c.totalPayload, c.entries, c.chain.UsedCount())
}

func (c *core[T]) observeWait(op string, start time.Time) {
	if !start.IsZero() {
		c.metrics.ObserveWait(c.name, op, time.Since(start))
	}
}

// waitReadable waits until ready holds, the buffer is closed, the deadline
// passes or ctx is done. It reports whether ready held.
func (c *core[T]) waitReadable(ctx context.Context, op string, deadline time.Time, ready func() bool) (bool, error) {
	if ready() {
		return true, nil
	}

	start := time.Now()
	_, err := c.coord.waitFor(ctx, deadline, func() bool { return ready() || c.closed })
	c.observeWait(op, start)
	if err != nil {
		return false, &errors.InterruptedError{Op: op, Err: err}
	}
	if ready() {
		return true, nil
	}
	if c.closed {
		return false, errors.ErrBufferClosed
	}
	return false, nil
}
