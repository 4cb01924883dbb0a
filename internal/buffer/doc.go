// Package buffer provides bounded, segment-chained FIFO buffers.
//
// Data is held in fixed-size segments drawn from an allocator. Segments are
// chained in append order; a drained segment is recycled onto a free-list or
// handed back to the allocator. The number of segments a buffer may hold is
// capped, and a producer that would exceed the cap is pushed back.
//
// # EntryBuffer
//
// EntryBuffer keeps append boundaries. Each entry is framed with a varint
// length prefix and is returned whole:
//
//	alloc, _ := allocator.NewHeap[byte](64 * 1024)
//	buf, err := buffer.NewEntryBuffer(alloc, 2, 16, buffer.WithName("events"))
//	if err != nil {
//	    return err
//	}
//
//	if !buf.TryAppendEntry(payload) {
//	    // Buffer is full, back off or use AppendEntry to wait
//	}
//
//	data, ok, err := buf.GetNextEntry(ctx, 100*time.Millisecond)
//
// # StreamyBuffer
//
// StreamyBuffer holds one unframed sequence of bytes or int64 values.
// Readers may get any prefix of what a single append wrote:
//
//	longs, err := buffer.NewStreamyBuffer[int64](alloc64, 1, 8)
//	longs.TryAppend([]int64{1, 2, 3})
//	n := longs.ReadIfAvailable(dst)
//
// # Blocking and Cancellation
//
// Append, AppendEntry, Read and GetNextEntry block. They return when their
// condition holds, when the buffer is closed or when ctx is done; a
// cancelled wait returns an error matching errors.ErrInterrupted. Timeouts
// are not errors: GetNextEntry reports ok=false and ReadTimeout returns 0.
//
// # Capacity
//
//   - TryAppend and TryAppendEntry are all-or-nothing
//   - a failing allocator is reported immediately and never waited on
//   - Clear leaves the state of a freshly created buffer
//   - Close rejects appends but unread data stays readable
//
// # Thread Safety
//
// Every operation runs under one mutex per buffer. Manager.GetOrCreate uses
// double-checked locking.
package buffer
