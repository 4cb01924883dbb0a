package buffer

import (
	"fmt"
	"sort"
	"sync"

	"github.com/jittakal/membuf/internal/allocator"
	"github.com/jittakal/membuf/internal/errors"
	"github.com/jittakal/membuf/pkg/buffer"
)

// Ensure implementation satisfies interface at compile time.
var _ buffer.Manager = (*Manager)(nil)

// Manager manages named entry buffers that share one allocator.
// It provides thread-safe access to the buffers, creating them on-demand.
// Uses double-checked locking for efficient concurrent access.
type Manager struct {
	alloc       allocator.Allocator[byte]
	minSegments int
	maxSegments int
	opts        []Option

	buffers map[string]*EntryBuffer
	closed  bool
	mu      sync.RWMutex
}

// NewManager creates a new buffer manager. Every buffer it creates gets the
// same segment bounds and options, plus its own name.
func NewManager(alloc allocator.Allocator[byte], minSegments, maxSegments int, opts ...Option) *Manager {
	return &Manager{
		alloc:       alloc,
		minSegments: minSegments,
		maxSegments: maxSegments,
		opts:        opts,
		buffers:     make(map[string]*EntryBuffer),
	}
}

// GetOrCreate returns the buffer with the given name, creating if needed.
func (m *Manager) GetOrCreate(name string) (buffer.EntryBuffer, error) {
	m.mu.RLock()
	buf, exists := m.buffers[name]
	m.mu.RUnlock()

	if exists {
		return buf, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if buf, exists := m.buffers[name]; exists {
		return buf, nil
	}
	if m.closed {
		return nil, fmt.Errorf("cannot create buffer %q: %w", name, errors.ErrBufferClosed)
	}

	opts := append(append([]Option(nil), m.opts...), WithName(name))
	buf, err := NewEntryBuffer(m.alloc, m.minSegments, m.maxSegments, opts...)
	if err != nil {
		return nil, err
	}
	m.buffers[name] = buf
	return buf, nil
}

// Get returns the buffer with the given name if it exists.
func (m *Manager) Get(name string) (buffer.EntryBuffer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	buf, exists := m.buffers[name]
	if !exists {
		return nil, false
	}
	return buf, true
}

// Names returns the names of all buffers, sorted.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.buffers))
	for name := range m.buffers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stats returns a snapshot of every buffer, sorted by name.
func (m *Manager) Stats() []buffer.Stats {
	names := m.Names()

	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make([]buffer.Stats, 0, len(names))
	for _, name := range names {
		stats = append(stats, m.buffers[name].Stats())
	}
	return stats
}

// CloseAll closes every buffer and refuses to create new ones.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	for _, buf := range m.buffers {
		buf.Close()
	}
}

// IsClosed reports whether CloseAll has been called.
func (m *Manager) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
