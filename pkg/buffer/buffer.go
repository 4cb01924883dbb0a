// Package buffer defines the interfaces of bounded in-process FIFO buffers.
//
// Buffers decouple producer goroutines from consumer goroutines. Memory is
// held in fixed-size segments and capped by a maximum segment count, so a
// producer that outpaces its consumers is pushed back instead of growing
// memory without limit.
package buffer

import (
	"context"
	"time"
)

// Stats is a point-in-time snapshot of a buffer.
type Stats struct {
	Name                  string `json:"name"`
	EntryCount            int    `json:"entry_count"`
	TotalPayloadLength    int64  `json:"total_payload_length"`
	SegmentCount          int    `json:"segment_count"`
	FreeSegmentCount      int    `json:"free_segment_count"`
	MaximumAvailableSpace int64  `json:"maximum_available_space"`
	Closed                bool   `json:"closed"`
}

// Buffer holds the operations shared by both payload disciplines.
// All implementations must be thread-safe.
type Buffer interface {
	// Clear discards all unread content, leaving the state of a freshly
	// created buffer.
	Clear()

	// Close permanently rejects further appends and wakes every waiter.
	// Unread data stays readable.
	Close()

	// IsClosed reports whether Close has been called.
	IsClosed() bool

	// IsEmpty reports whether nothing is left to read.
	IsEmpty() bool

	// TotalPayloadLength returns the number of unread payload values,
	// excluding framing overhead.
	TotalPayloadLength() int64

	// SegmentCount returns the number of segments holding data, at least 1.
	SegmentCount() int

	// FreeSegmentCount returns the number of recycled segments held in reserve.
	FreeSegmentCount() int

	// MaximumAvailableSpace returns how many more values could be appended
	// if the buffer grew to its maximum size.
	MaximumAvailableSpace() int64

	// Stats returns current statistics without modifying the buffer.
	Stats() Stats
}

// EntryBuffer stores discrete, length-framed entries. An entry is either
// appended and returned whole or not at all.
type EntryBuffer interface {
	Buffer

	// TryAppendEntry appends data as one entry without blocking. It returns
	// false if the buffer is full, closed or cannot obtain memory; nothing is
	// appended in that case.
	TryAppendEntry(data []byte) bool

	// AppendEntry appends data as one entry, waiting for space if needed.
	AppendEntry(ctx context.Context, data []byte) error

	// GetNextEntry returns the oldest entry, waiting up to timeout for one to
	// arrive. A zero or negative timeout waits until ctx is done. It returns
	// ok=false without an error when the timeout expires.
	GetNextEntry(ctx context.Context, timeout time.Duration) (data []byte, ok bool, err error)

	// GetNextEntryIfAvailable returns the oldest entry if one is present.
	GetNextEntryIfAvailable() ([]byte, bool)

	// PeekNextEntry returns the oldest entry without consuming it.
	PeekNextEntry() ([]byte, bool)

	// SkipNextEntry discards the oldest entry and returns its length.
	SkipNextEntry() (int, bool)

	// NextEntryLength returns the payload length of the oldest entry.
	NextEntryLength() (int, bool)

	// EntryCount returns the number of unread entries.
	EntryCount() int
}

// StreamyBuffer stores one undifferentiated sequence of values. Readers may
// receive any prefix of what a single append wrote.
type StreamyBuffer[T any] interface {
	Buffer

	// TryAppend appends all of data without blocking, or nothing.
	TryAppend(data []T) bool

	// Append appends all of data, waiting for space if needed.
	Append(ctx context.Context, data []T) error

	// TryAppendValue appends a single value without blocking.
	TryAppendValue(v T) bool

	// AppendValue appends a single value, waiting for space if needed.
	AppendValue(ctx context.Context, v T) error

	// Read copies available values into dst, waiting until at least one is
	// available. It returns the number of values copied.
	Read(ctx context.Context, dst []T) (int, error)

	// ReadIfAvailable copies available values into dst without waiting.
	ReadIfAvailable(dst []T) int

	// ReadTimeout is Read bounded by timeout; expiry returns 0 and no error.
	ReadTimeout(ctx context.Context, timeout time.Duration, dst []T) (int, error)

	// ReadValue returns the next value, waiting for one to arrive.
	ReadValue(ctx context.Context) (T, error)

	// Skip discards up to n values and returns how many were skipped.
	Skip(n int) int

	// Available returns the number of unread values.
	Available() int64
}

// Manager creates and tracks named entry buffers.
type Manager interface {
	// GetOrCreate returns the buffer with the given name, creating one if it
	// doesn't exist.
	GetOrCreate(name string) (EntryBuffer, error)
}

// MetricsCollector receives buffer activity. Implementations must be safe
// for concurrent use.
type MetricsCollector interface {
	// ObserveAppend records an append attempt of values payload values.
	ObserveAppend(buffer string, values int, ok bool)

	// ObserveRead records values payload values handed to a consumer.
	ObserveRead(buffer string, values int)

	// SetBufferState records the buffer's current size.
	SetBufferState(buffer string, payload int64, entries, segments int)

	// IncAllocationFailures records a failure of the storage medium.
	IncAllocationFailures(buffer string)

	// ObserveWait records how long a blocking operation waited.
	ObserveWait(buffer, operation string, d time.Duration)
}
