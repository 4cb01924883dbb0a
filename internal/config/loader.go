package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jittakal/membuf/internal/config/dto"
	"github.com/spf13/viper"
)

// Loader handles configuration loading and validation
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// Load loads configuration from file and environment variables
func (l *Loader) Load(path string) (*dto.ApplicationConfig, error) {
	// Set defaults
	l.setDefaults()

	// Load from file if provided
	if path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// Expand environment variables in config values
	// Only expand if the value contains ${...} pattern
	for _, key := range l.v.AllKeys() {
		value := l.v.GetString(key)
		if strings.Contains(value, "${") {
			l.v.Set(key, os.ExpandEnv(value))
		}
	}

	// Unmarshal configuration
	var config dto.ApplicationConfig
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := l.Validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func (l *Loader) setDefaults() {
	// Application defaults
	l.v.SetDefault("application.name", "membufd")
	l.v.SetDefault("application.version", "1.0.0")
	l.v.SetDefault("application.environment", "development")

	// Buffer defaults
	l.v.SetDefault("buffer.segment_size", 65536)
	l.v.SetDefault("buffer.min_segments", 2)
	l.v.SetDefault("buffer.max_segments", 64)
	l.v.SetDefault("buffer.allocator", "heap")
	l.v.SetDefault("buffer.allocator_max_segments", 0)
	l.v.SetDefault("buffer.allocator_retained_segments", 16)
	l.v.SetDefault("buffer.buffers", []string{"default"})

	// Workload defaults
	l.v.SetDefault("workload.mode", "entries")
	l.v.SetDefault("workload.producers", 2)
	l.v.SetDefault("workload.consumers", 2)
	l.v.SetDefault("workload.entry_size_min", 0)
	l.v.SetDefault("workload.entry_size_max", 4096)
	l.v.SetDefault("workload.source_file", "")
	l.v.SetDefault("workload.poll_timeout_ms", 500)
	l.v.SetDefault("workload.rate_per_second", 0)

	// Observability defaults
	l.v.SetDefault("observability.logging.level", "info")
	l.v.SetDefault("observability.logging.format", "json")
	l.v.SetDefault("observability.logging.output", "stdout")
	l.v.SetDefault("observability.metrics.enabled", true)
	l.v.SetDefault("observability.metrics.port", 9090)
	l.v.SetDefault("observability.metrics.path", "/metrics")
	l.v.SetDefault("observability.health.port", 8080)
	l.v.SetDefault("observability.health.liveness_path", "/health/live")
	l.v.SetDefault("observability.health.readiness_path", "/health/ready")

	// Shutdown defaults
	l.v.SetDefault("shutdown.grace_period_seconds", 30)
	l.v.SetDefault("shutdown.force_timeout_seconds", 60)
}

// Validate validates the configuration
func (l *Loader) Validate(config *dto.ApplicationConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}

	// Allocator validation
	switch config.Buffer.Allocator {
	case "heap", "mmap":
	default:
		return fmt.Errorf("unsupported allocator: %s", config.Buffer.Allocator)
	}

	// Workload validation
	switch config.Workload.Mode {
	case "entries", "bytes", "longs":
	default:
		return fmt.Errorf("unsupported workload mode: %s", config.Workload.Mode)
	}
	if config.Workload.SourceFile != "" && config.Workload.Mode != "entries" {
		return errors.New("workload.source_file requires entries mode")
	}

	// Port validation
	if config.Observability.Metrics.Port < 1 || config.Observability.Metrics.Port > 65535 {
		return fmt.Errorf("invalid metrics port: %d", config.Observability.Metrics.Port)
	}
	if config.Observability.Health.Port < 1 || config.Observability.Health.Port > 65535 {
		return fmt.Errorf("invalid health port: %d", config.Observability.Health.Port)
	}

	return nil
}
