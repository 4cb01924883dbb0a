package membuf

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{SegmentSize: 16, MinSegments: 2, MaxSegments: 4}
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero segment size", mutate: func(c *Config) { c.SegmentSize = 0 }},
		{name: "zero min segments", mutate: func(c *Config) { c.MinSegments = 0 }},
		{name: "max below min", mutate: func(c *Config) { c.MaxSegments = 1 }},
		{name: "unknown allocator", mutate: func(c *Config) { c.Allocator = "disk" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)

			f, err := New(cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Nil(t, f)
		})
	}
}

func TestNew_DefaultsToHeap(t *testing.T) {
	f, err := New(testConfig())
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, HeapAllocator, f.Kind())
	assert.Equal(t, 0, f.LiveSegments())
}

func TestFactory_EntryBuffer(t *testing.T) {
	f, err := New(testConfig())
	require.NoError(t, err)
	defer f.Close()

	buf, err := f.NewEntryBuffer("orders")
	require.NoError(t, err)

	require.True(t, buf.TryAppendEntry([]byte("first")))
	require.NoError(t, buf.AppendEntry(context.Background(), []byte("second")))

	got, ok, err := buf.GetNextEntry(context.Background(), time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "first", string(got))

	got, ok = buf.GetNextEntryIfAvailable()
	require.True(t, ok)
	assert.Equal(t, "second", string(got))

	stats := buf.Stats()
	assert.Equal(t, "orders", stats.Name)
	assert.Equal(t, int64(64), stats.MaximumAvailableSpace)
}

func TestFactory_StreamyBytes(t *testing.T) {
	f, err := New(testConfig())
	require.NoError(t, err)
	defer f.Close()

	buf, err := f.NewStreamyBytes("raw")
	require.NoError(t, err)

	require.True(t, buf.TryAppend([]byte("hello ")))
	require.True(t, buf.TryAppend([]byte("world")))

	dst := make([]byte, 32)
	n := buf.ReadIfAvailable(dst)
	assert.Equal(t, "hello world", string(dst[:n]))
}

func TestFactory_StreamyLongs(t *testing.T) {
	f, err := New(testConfig())
	require.NoError(t, err)
	defer f.Close()

	buf, err := f.NewStreamyLongs("ticks")
	require.NoError(t, err)
	assert.Equal(t, 2, f.LiveSegments())

	values := make([]int64, 40)
	for i := range values {
		values[i] = int64(i) * 1000
	}
	require.NoError(t, buf.Append(context.Background(), values))
	assert.Equal(t, int64(40), buf.Available())

	dst := make([]int64, 64)
	n, err := buf.Read(context.Background(), dst)
	require.NoError(t, err)
	assert.Equal(t, values, dst[:n])
}

func TestFactory_WithSegments(t *testing.T) {
	f, err := New(testConfig())
	require.NoError(t, err)
	defer f.Close()

	buf, err := f.NewEntryBuffer("small", WithSegments(1, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(16), buf.MaximumAvailableSpace())
	assert.Equal(t, 1, f.LiveSegments())

	_, err = f.NewEntryBuffer("broken", WithSegments(3, 2))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestFactory_AllocatorLimit(t *testing.T) {
	cfg := testConfig()
	cfg.AllocatorMaxSegments = 3
	f, err := New(cfg)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.NewEntryBuffer("first")
	require.NoError(t, err)

	_, err = f.NewEntryBuffer("second")
	assert.ErrorIs(t, err, ErrAllocationFailed)
}

func TestFactory_Manager(t *testing.T) {
	f, err := New(testConfig())
	require.NoError(t, err)
	defer f.Close()

	m := f.NewManager()
	a, err := m.GetOrCreate("a")
	require.NoError(t, err)
	again, err := m.GetOrCreate("a")
	require.NoError(t, err)
	assert.Same(t, a, again)
	assert.Equal(t, 2, f.LiveSegments())

	m.CloseAll()
	assert.True(t, a.IsClosed())
}

func TestFactory_Close(t *testing.T) {
	f, err := New(testConfig())
	require.NoError(t, err)

	require.NoError(t, f.Close())
	require.NoError(t, f.Close())

	_, err = f.NewEntryBuffer("late")
	assert.ErrorIs(t, err, ErrBufferClosed)
	_, err = f.NewStreamyLongs("late")
	assert.ErrorIs(t, err, ErrBufferClosed)
}

func TestFactory_Mmap(t *testing.T) {
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		t.Skip("mmap allocator covered on linux and darwin only")
	}

	cfg := testConfig()
	cfg.Allocator = MmapAllocator
	f, err := New(cfg)
	require.NoError(t, err)

	buf, err := f.NewEntryBuffer("offheap")
	require.NoError(t, err)

	payload := make([]byte, 40)
	for i := range payload {
		payload[i] = byte(i)
	}
	require.True(t, buf.TryAppendEntry(payload))

	got, ok := buf.GetNextEntryIfAvailable()
	require.True(t, ok)
	assert.Equal(t, payload, got)

	buf.Close()
	require.NoError(t, f.Close())
}
