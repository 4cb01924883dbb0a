package server

import (
	"context"
	"fmt"

	"github.com/jittakal/membuf/pkg/buffer"
)

// StatsSource lists buffer snapshots and reports whether the owner has been
// shut down. The buffer manager satisfies it.
type StatsSource interface {
	Stats() []buffer.Stats
	IsClosed() bool
}

// BufferChecker derives health from a set of buffers. The process is alive
// while it runs; it is ready until the buffers are shut down.
type BufferChecker struct {
	source StatsSource
}

// NewBufferChecker creates a checker over source.
func NewBufferChecker(source StatsSource) *BufferChecker {
	return &BufferChecker{source: source}
}

// Liveness always reports true.
func (c *BufferChecker) Liveness() bool {
	return true
}

// Readiness reports whether the buffers still accept appends.
func (c *BufferChecker) Readiness(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	return !c.source.IsClosed()
}

// IsHealthy reports liveness and readiness together.
func (c *BufferChecker) IsHealthy() bool {
	return c.Liveness() && c.Readiness(context.Background())
}

// GetStatus returns one line per buffer.
func (c *BufferChecker) GetStatus() map[string]string {
	stats := c.source.Stats()
	status := make(map[string]string, len(stats))
	for _, s := range stats {
		state := "open"
		if s.Closed {
			state = "closed"
		}
		status[s.Name] = fmt.Sprintf("%s entries=%d payload=%d segments=%d",
			state, s.EntryCount, s.TotalPayloadLength, s.SegmentCount)
	}
	return status
}
