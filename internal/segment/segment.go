// Package segment implements the fixed-capacity storage block that buffers
// chain together. A segment has independent write and read cursors; data is
// never moved once written and the read cursor only advances.
package segment

import (
	"fmt"

	"github.com/jittakal/membuf/internal/errors"
)

// Value is the element type a segment can hold: raw bytes or 64-bit longs.
type Value interface {
	~byte | ~int64
}

// State is the lifecycle state of a segment.
type State int

const (
	// StateFree is a pooled segment with reset cursors.
	StateFree State = iota
	// StateWriting is the head of a chain, accepting appends.
	StateWriting
	// StateSealed no longer accepts appends but may hold unread data.
	StateSealed
	// StateDrained has been fully consumed after being sealed.
	StateDrained
)

func (s State) String() string {
	switch s {
	case StateFree:
		return "free"
	case StateWriting:
		return "writing"
	case StateSealed:
		return "sealed"
	case StateDrained:
		return "drained"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Segment is a fixed-capacity block of values with write cursor w and read
// cursor r, 0 <= r <= w <= capacity.
type Segment[T Value] struct {
	data  []T
	w     int
	r     int
	state State
}

// New wraps storage as a free segment. The capacity is len(data).
func New[T Value](data []T) *Segment[T] {
	return &Segment[T]{data: data}
}

// Data returns the backing storage, for allocators that must release it.
func (s *Segment[T]) Data() []T {
	return s.data
}

// Capacity returns the number of values the segment can hold.
func (s *Segment[T]) Capacity() int {
	return len(s.data)
}

// State returns the lifecycle state.
func (s *Segment[T]) State() State {
	return s.state
}

// InitForWriting resets both cursors and makes the segment writable.
func (s *Segment[T]) InitForWriting() *Segment[T] {
	if s.state != StateFree {
		errors.Violation("init_for_writing", "segment is %s, want free", s.state)
	}
	s.w, s.r = 0, 0
	s.state = StateWriting
	return s
}

// FinishWriting seals the segment; no further appends are accepted even if
// space remains.
func (s *Segment[T]) FinishWriting() {
	if s.state != StateWriting {
		errors.Violation("finish_writing", "segment is %s, want writing", s.state)
	}
	s.state = StateSealed
}

// Reset returns the segment to the free state.
func (s *Segment[T]) Reset() {
	s.w, s.r = 0, 0
	s.state = StateFree
}

// Rewind moves both cursors back to the start of a writing segment whose
// content has been fully read.
func (s *Segment[T]) Rewind() {
	if s.state != StateWriting {
		errors.Violation("rewind", "segment is %s, want writing", s.state)
	}
	if s.r != s.w {
		errors.Violation("rewind", "%d values unread", s.w-s.r)
	}
	s.w, s.r = 0, 0
}

// AvailableForAppend returns capacity - w.
func (s *Segment[T]) AvailableForAppend() int {
	if s.state != StateWriting {
		return 0
	}
	return len(s.data) - s.w
}

// AvailableForReading returns w - r.
func (s *Segment[T]) AvailableForReading() int {
	return s.w - s.r
}

// TryAppend copies as much of src as fits and returns the number of values
// written.
func (s *Segment[T]) TryAppend(src []T) int {
	if s.state != StateWriting {
		errors.Violation("segment_append", "segment is %s, want writing", s.state)
	}
	n := copy(s.data[s.w:], src)
	s.w += n
	return n
}

// TryAppendValue appends a single value if there is room for it.
func (s *Segment[T]) TryAppendValue(v T) bool {
	if s.state != StateWriting {
		errors.Violation("segment_append", "segment is %s, want writing", s.state)
	}
	if s.w == len(s.data) {
		return false
	}
	s.data[s.w] = v
	s.w++
	return true
}

// Read copies unread values into dst and advances r.
func (s *Segment[T]) Read(dst []T) int {
	n := copy(dst, s.data[s.r:s.w])
	s.advance(n)
	return n
}

// ReadValue reads a single value, reporting false when nothing is unread.
func (s *Segment[T]) ReadValue() (T, bool) {
	if s.r == s.w {
		var zero T
		return zero, false
	}
	v := s.data[s.r]
	s.advance(1)
	return v, true
}

// Skip advances r by up to n values and returns how many were skipped.
func (s *Segment[T]) Skip(n int) int {
	if avail := s.w - s.r; n > avail {
		n = avail
	}
	s.advance(n)
	return n
}

func (s *Segment[T]) advance(n int) {
	s.r += n
	if s.r > s.w {
		errors.Violation("segment_read", "read cursor %d past write cursor %d", s.r, s.w)
	}
	if s.state == StateSealed && s.r == s.w {
		s.state = StateDrained
	}
}

// IsDrained reports whether every value written has been read and no more
// can be written.
func (s *Segment[T]) IsDrained() bool {
	return s.state == StateDrained || (s.state == StateSealed && s.r == s.w)
}
