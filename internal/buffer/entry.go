package buffer

import (
	"context"
	"fmt"
	"time"

	"github.com/jittakal/membuf/internal/allocator"
	"github.com/jittakal/membuf/internal/codec"
	"github.com/jittakal/membuf/internal/errors"
	"github.com/jittakal/membuf/pkg/buffer"
)

// Ensure implementation satisfies interface at compile time.
var _ buffer.EntryBuffer = (*EntryBuffer)(nil)

// EntryBuffer stores discrete entries, each framed as a varint length prefix
// followed by the payload. Frames may straddle segment boundaries.
type EntryBuffer struct {
	*core[byte]

	// peeked holds an entry already taken out of the chain by PeekNextEntry.
	// It still counts towards entries and totalPayload.
	peeked    []byte
	hasPeeked bool
}

// NewEntryBuffer creates an entry buffer drawing segments from alloc.
func NewEntryBuffer(alloc allocator.Allocator[byte], minSegments, maxSegments int, opts ...Option) (*EntryBuffer, error) {
	c, err := newCore(alloc, minSegments, maxSegments, opts)
	if err != nil {
		return nil, err
	}
	return &EntryBuffer{core: c}, nil
}

// TryAppendEntry appends data as one entry without blocking.
func (b *EntryBuffer) TryAppendEntry(data []byte) bool {
	if len(data) > codec.MaxLength {
		b.metrics.ObserveAppend(b.name, len(data), false)
		return false
	}
	var scratch [codec.MaxPrefixLength]byte
	prefix := codec.AppendLength(scratch[:0], len(data))
	return b.tryAppend(len(data), true, prefix, data)
}

// AppendEntry appends data as one entry, waiting for space if needed.
func (b *EntryBuffer) AppendEntry(ctx context.Context, data []byte) error {
	if len(data) > codec.MaxLength {
		b.metrics.ObserveAppend(b.name, len(data), false)
		return fmt.Errorf("%w: %d bytes exceeds frame limit %d", errors.ErrEntryTooLarge, len(data), codec.MaxLength)
	}
	var scratch [codec.MaxPrefixLength]byte
	prefix := codec.AppendLength(scratch[:0], len(data))
	return b.append(ctx, "append_entry", len(data), true, prefix, data)
}

// GetNextEntry returns the oldest entry, waiting up to timeout for one. A
// zero or negative timeout waits until ctx is done. Expiry yields ok=false
// and no error; a closed buffer with no entries left yields ErrBufferClosed.
func (b *EntryBuffer) GetNextEntry(ctx context.Context, timeout time.Duration) ([]byte, bool, error) {
	b.coord.lock()
	defer b.coord.unlock()

	ok, err := b.waitReadable(ctx, "get_next_entry", deadlineAfter(timeout), b.hasEntryLocked)
	if !ok {
		return nil, false, err
	}
	return b.takeLocked(), true, nil
}

// GetNextEntryIfAvailable returns the oldest entry if there is one.
func (b *EntryBuffer) GetNextEntryIfAvailable() ([]byte, bool) {
	b.coord.lock()
	defer b.coord.unlock()

	if !b.hasEntryLocked() {
		return nil, false
	}
	return b.takeLocked(), true
}

// PeekNextEntry returns the oldest entry without consuming it. The returned
// slice must not be modified.
func (b *EntryBuffer) PeekNextEntry() ([]byte, bool) {
	b.coord.lock()
	defer b.coord.unlock()

	if !b.hasEntryLocked() {
		return nil, false
	}
	return b.peekLocked(), true
}

// SkipNextEntry discards the oldest entry and returns its payload length.
func (b *EntryBuffer) SkipNextEntry() (int, bool) {
	b.coord.lock()
	defer b.coord.unlock()

	if !b.hasEntryLocked() {
		return 0, false
	}

	var n int
	if b.hasPeeked {
		n = len(b.peeked)
		b.dropPeekedLocked()
	} else {
		n = b.decodeLengthLocked()
		skipped := b.skipLocked(n)
		if skipped != n {
			errors.Violation("skip_entry", "skipped %d of %d payload bytes", skipped, n)
		}
	}
	b.consumedLocked(n, 1)

	return n, true
}

// NextEntryLength returns the payload length of the oldest entry.
func (b *EntryBuffer) NextEntryLength() (int, bool) {
	b.coord.lock()
	defer b.coord.unlock()

	if !b.hasEntryLocked() {
		return 0, false
	}
	return len(b.peekLocked()), true
}

// EntryCount returns the number of unread entries.
func (b *EntryBuffer) EntryCount() int {
	b.coord.lock()
	defer b.coord.unlock()
	return b.entries
}

// Clear discards every entry, including one that was peeked at.
func (b *EntryBuffer) Clear() {
	b.coord.lock()
	defer b.coord.unlock()

	b.dropPeekedLocked()
	b.clearLocked()
}

func (b *EntryBuffer) hasEntryLocked() bool {
	return b.entries > 0
}

func (b *EntryBuffer) takeLocked() []byte {
	var data []byte
	if b.hasPeeked {
		data = b.peeked
		b.dropPeekedLocked()
	} else {
		data = b.readEntryLocked()
	}
	b.consumedLocked(len(data), 1)
	return data
}

func (b *EntryBuffer) peekLocked() []byte {
	if !b.hasPeeked {
		b.peeked = b.readEntryLocked()
		b.hasPeeked = true
	}
	return b.peeked
}

func (b *EntryBuffer) dropPeekedLocked() {
	b.peeked = nil
	b.hasPeeked = false
}

// readEntryLocked pulls the next frame out of the chain.
func (b *EntryBuffer) readEntryLocked() []byte {
	n := b.decodeLengthLocked()
	data := make([]byte, n)
	read := b.readLocked(data)
	if read != n {
		errors.Violation("read_entry", "read %d of %d payload bytes", read, n)
	}
	return data
}

// decodeLengthLocked decodes the length prefix at the read position,
// crossing into the next segment whenever the tail runs dry.
func (b *EntryBuffer) decodeLengthLocked() int {
	var dec codec.Decoder
	for !dec.Done() {
		v, ok := b.chain.Tail().ReadValue()
		if !ok {
			if b.reclaimLocked() <= 0 {
				errors.Violation("decode_length", "frame header truncated after %d bytes", dec.Consumed())
			}
			continue
		}
		if _, err := dec.Feed(v); err != nil {
			errors.Violation("decode_length", "%v", err)
		}
	}
	return dec.Length()
}
