package dto

import (
	"fmt"
	"time"
)

// ApplicationConfig is the root configuration structure
type ApplicationConfig struct {
	Application   ApplicationInfo     `mapstructure:"application"`
	Buffer        BufferConfig        `mapstructure:"buffer"`
	Workload      WorkloadConfig      `mapstructure:"workload"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Shutdown      ShutdownConfig      `mapstructure:"shutdown"`
}

// ApplicationInfo contains application metadata
type ApplicationInfo struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// BufferConfig contains segment and allocator settings shared by every buffer
type BufferConfig struct {
	SegmentSize               int      `mapstructure:"segment_size"`
	MinSegments               int      `mapstructure:"min_segments"`
	MaxSegments               int      `mapstructure:"max_segments"`
	Allocator                 string   `mapstructure:"allocator"`
	AllocatorMaxSegments      int      `mapstructure:"allocator_max_segments"`
	AllocatorRetainedSegments int      `mapstructure:"allocator_retained_segments"`
	Buffers                   []string `mapstructure:"buffers"`
}

// WorkloadConfig contains producer and consumer settings for the pump
type WorkloadConfig struct {
	Mode          string `mapstructure:"mode"`
	Producers     int    `mapstructure:"producers"`
	Consumers     int    `mapstructure:"consumers"`
	EntrySizeMin  int    `mapstructure:"entry_size_min"`
	EntrySizeMax  int    `mapstructure:"entry_size_max"`
	SourceFile    string `mapstructure:"source_file"`
	PollTimeoutMS int    `mapstructure:"poll_timeout_ms"`
	RatePerSecond int    `mapstructure:"rate_per_second"`
}

// PollTimeout returns the consumer poll timeout.
func (c *WorkloadConfig) PollTimeout() time.Duration {
	return time.Duration(c.PollTimeoutMS) * time.Millisecond
}

// ObservabilityConfig contains observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Health  HealthConfig  `mapstructure:"health"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MetricsConfig contains metrics settings
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// HealthConfig contains health check settings
type HealthConfig struct {
	Port          int    `mapstructure:"port"`
	LivenessPath  string `mapstructure:"liveness_path"`
	ReadinessPath string `mapstructure:"readiness_path"`
}

// ShutdownConfig contains shutdown settings
type ShutdownConfig struct {
	GracePeriodSeconds  int `mapstructure:"grace_period_seconds"`
	ForceTimeoutSeconds int `mapstructure:"force_timeout_seconds"`
}

// GracePeriod returns the time allowed for draining buffers on shutdown.
func (c *ShutdownConfig) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodSeconds) * time.Second
}

// ForceTimeout returns the time after which shutdown is abandoned.
func (c *ShutdownConfig) ForceTimeout() time.Duration {
	return time.Duration(c.ForceTimeoutSeconds) * time.Second
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if c.Application.Name == "" {
		return fmt.Errorf("application name is required")
	}
	if err := c.Buffer.Validate(); err != nil {
		return err
	}
	return c.Workload.Validate()
}

// Validate validates buffer configuration.
func (c *BufferConfig) Validate() error {
	if c.SegmentSize < 1 {
		return fmt.Errorf("buffer segment size must be positive")
	}
	if c.MinSegments < 1 {
		return fmt.Errorf("buffer min segments must be at least 1")
	}
	if c.MaxSegments < c.MinSegments {
		return fmt.Errorf("buffer max segments (%d) must not be below min segments (%d)", c.MaxSegments, c.MinSegments)
	}
	if c.AllocatorMaxSegments < 0 || c.AllocatorRetainedSegments < 0 {
		return fmt.Errorf("allocator segment limits must not be negative")
	}
	if c.AllocatorMaxSegments > 0 && c.AllocatorMaxSegments < c.MinSegments*len(c.Buffers) {
		return fmt.Errorf("allocator max segments (%d) cannot cover min segments of %d buffers", c.AllocatorMaxSegments, len(c.Buffers))
	}
	if len(c.Buffers) == 0 {
		return fmt.Errorf("at least one buffer name is required")
	}
	return nil
}

// Validate validates workload configuration.
func (c *WorkloadConfig) Validate() error {
	if c.Producers < 0 || c.Consumers < 0 {
		return fmt.Errorf("workload producers and consumers must not be negative")
	}
	if c.EntrySizeMin < 0 || c.EntrySizeMax < c.EntrySizeMin {
		return fmt.Errorf("workload entry size range [%d, %d] is invalid", c.EntrySizeMin, c.EntrySizeMax)
	}
	if c.PollTimeoutMS < 1 {
		return fmt.Errorf("workload poll timeout must be positive")
	}
	if c.RatePerSecond < 0 {
		return fmt.Errorf("workload rate must not be negative")
	}
	return nil
}
