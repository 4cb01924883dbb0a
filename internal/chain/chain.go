// Package chain implements the singly linked sequence of segments behind a
// buffer, together with its free-list of recycled segments.
//
// Segments live in an arena addressed by index. The head (current write
// target), the tail (current read source), the forward links and the
// free-list are indices into that arena, so no segment is ever referenced
// from two places.
package chain

import (
	"fmt"

	"github.com/jittakal/membuf/internal/allocator"
	"github.com/jittakal/membuf/internal/errors"
	"github.com/jittakal/membuf/internal/segment"
)

const none = -1

type slot[T segment.Value] struct {
	seg  *segment.Segment[T]
	next int
}

// Chain holds the used segments, oldest (tail) to newest (head), and the
// free-list. It is not safe for concurrent use; the owning buffer serializes
// access.
type Chain[T segment.Value] struct {
	alloc allocator.Allocator[T]
	size  int
	min   int
	max   int

	slots  []slot[T]
	vacant []int
	free   []int
	head   int
	tail   int
	used   int
}

// New allocates min segments: one becomes the single used segment, the rest
// start on the free-list.
func New[T segment.Value](alloc allocator.Allocator[T], minSegments, maxSegments int) (*Chain[T], error) {
	if minSegments < 1 {
		return nil, fmt.Errorf("%w: min segments must be at least 1, got %d", errors.ErrInvalidConfig, minSegments)
	}
	if maxSegments < minSegments {
		return nil, fmt.Errorf("%w: max segments %d below min segments %d", errors.ErrInvalidConfig, maxSegments, minSegments)
	}

	segs, err := alloc.Allocate(minSegments)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate initial segments: %w", err)
	}

	c := &Chain[T]{
		alloc: alloc,
		size:  alloc.SegmentSize(),
		min:   minSegments,
		max:   maxSegments,
		slots: make([]slot[T], 0, maxSegments),
		free:  make([]int, 0, minSegments),
	}
	first := c.place(segs[0].InitForWriting())
	c.head, c.tail, c.used = first, first, 1
	for _, s := range segs[1:] {
		c.free = append(c.free, c.place(s))
	}

	return c, nil
}

// place stores seg in a vacant arena slot and returns its index.
func (c *Chain[T]) place(seg *segment.Segment[T]) int {
	if n := len(c.vacant); n > 0 {
		idx := c.vacant[n-1]
		c.vacant = c.vacant[:n-1]
		c.slots[idx] = slot[T]{seg: seg, next: none}
		return idx
	}
	c.slots = append(c.slots, slot[T]{seg: seg, next: none})
	return len(c.slots) - 1
}

// SegmentSize returns the capacity of each segment.
func (c *Chain[T]) SegmentSize() int { return c.size }

// MinSegments returns the warm reserve size.
func (c *Chain[T]) MinSegments() int { return c.min }

// MaxSegments returns the hard cap on used plus free segments.
func (c *Chain[T]) MaxSegments() int { return c.max }

// UsedCount returns the number of segments holding data, at least 1.
func (c *Chain[T]) UsedCount() int { return c.used }

// FreeCount returns the number of recycled segments ready for reuse.
func (c *Chain[T]) FreeCount() int { return len(c.free) }

// Head returns the segment currently accepting appends.
func (c *Chain[T]) Head() *segment.Segment[T] { return c.slots[c.head].seg }

// Tail returns the segment currently being read.
func (c *Chain[T]) Tail() *segment.Segment[T] { return c.slots[c.tail].seg }

// Reserve makes sure at least n segments are on the free-list, allocating
// the deficit. It fails with ErrCapacityExceeded when that would exceed the
// max bound and with an allocation error when the medium fails; in both
// cases the chain is unchanged.
func (c *Chain[T]) Reserve(n int) error {
	deficit := n - len(c.free)
	if deficit <= 0 {
		return nil
	}
	if c.used+len(c.free)+deficit > c.max {
		return errors.ErrCapacityExceeded
	}

	segs, err := c.alloc.Allocate(deficit)
	if err != nil {
		return err
	}
	if len(segs) != deficit {
		errors.Violation("reserve", "allocator returned %d of %d segments", len(segs), deficit)
	}
	for _, s := range segs {
		c.free = append(c.free, c.place(s))
	}
	return nil
}

// AdvanceHead seals the head, links a recycled segment after it and makes
// that segment the new head. A segment must have been reserved.
func (c *Chain[T]) AdvanceHead() *segment.Segment[T] {
	n := len(c.free)
	if n <= 0 {
		errors.Violation("advance_head", "no free segment reserved")
	}

	idx := c.free[n-1]
	c.free = c.free[:n-1]

	c.slots[c.head].seg.FinishWriting()
	seg := c.slots[idx].seg.InitForWriting()
	c.relink(c.head, idx)
	c.head = idx
	c.used++

	return seg
}

func (c *Chain[T]) relink(from, to int) {
	c.slots[from].next = to
	c.slots[to].next = none
}

// ReclaimDrained unlinks every drained segment at the tail that has a
// successor and recycles it. It returns the number of segments reclaimed.
func (c *Chain[T]) ReclaimDrained() int {
	reclaimed := 0
	for c.tail != c.head && c.slots[c.tail].seg.IsDrained() {
		next := c.slots[c.tail].next
		if next == none {
			errors.Violation("reclaim", "sealed tail %d has no successor", c.tail)
		}
		c.recycle(c.tail)
		c.tail = next
		c.used--
		reclaimed++
	}
	return reclaimed
}

// RewindIfEmpty rewinds the single used segment once everything written to
// it has been read, so the whole segment is writable again. It reports
// whether a rewind happened.
func (c *Chain[T]) RewindIfEmpty() bool {
	if c.head != c.tail {
		return false
	}
	seg := c.slots[c.head].seg
	if seg.AvailableForReading() > 0 || seg.AvailableForAppend() == seg.Capacity() {
		return false
	}
	seg.Rewind()
	return true
}

// recycle moves the segment at idx to the free-list while it holds fewer
// than min segments, and releases it to the allocator otherwise.
func (c *Chain[T]) recycle(idx int) {
	seg := c.slots[idx].seg
	seg.Reset()
	c.slots[idx].next = none

	if len(c.free) < c.min {
		c.free = append(c.free, idx)
		return
	}
	c.releaseSlot(idx)
}

func (c *Chain[T]) releaseSlot(idx int) {
	seg := c.slots[idx].seg
	c.slots[idx] = slot[T]{next: none}
	c.vacant = append(c.vacant, idx)
	c.alloc.Release(seg)
}

// Reset discards all content. Afterwards exactly one used segment remains,
// and the free-list is trimmed to min-1 segments, the state of a freshly
// built chain. It returns the number of segments released to the allocator.
func (c *Chain[T]) Reset() int {
	keep := c.tail
	for idx := c.slots[keep].next; idx != none; {
		next := c.slots[idx].next
		c.slots[idx].seg.Reset()
		c.slots[idx].next = none
		c.free = append(c.free, idx)
		idx = next
	}

	c.slots[keep].seg.Reset()
	c.slots[keep].seg.InitForWriting()
	c.slots[keep].next = none
	c.head, c.tail, c.used = keep, keep, 1

	released := 0
	for len(c.free) > c.min-1 {
		last := len(c.free) - 1
		c.releaseSlot(c.free[last])
		c.free = c.free[:last]
		released++
	}
	return released
}

// ReleaseFree returns every free-list segment to the allocator.
func (c *Chain[T]) ReleaseFree() int {
	n := len(c.free)
	for _, idx := range c.free {
		c.releaseSlot(idx)
	}
	c.free = c.free[:0]
	return n
}

// UnreadCount returns the number of values written but not yet read.
func (c *Chain[T]) UnreadCount() int64 {
	var total int64
	for idx := c.tail; idx != none; idx = c.slots[idx].next {
		total += int64(c.slots[idx].seg.AvailableForReading())
	}
	return total
}

// MaximumAvailableSpace returns how many more values could be appended if
// every segment up to the max bound were allocated.
func (c *Chain[T]) MaximumAvailableSpace() int64 {
	space := int64(c.Head().AvailableForAppend())
	if canAllocate := c.max - c.used; canAllocate > 0 {
		space += int64(canAllocate) * int64(c.size)
	}
	return space
}
