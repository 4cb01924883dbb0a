package buffer

import (
	"log/slog"
	"time"

	"github.com/jittakal/membuf/pkg/buffer"
)

// Ensure implementation satisfies interface at compile time.
var _ buffer.MetricsCollector = noopMetrics{}

type options struct {
	name    string
	logger  *slog.Logger
	metrics buffer.MetricsCollector
}

// Option configures a buffer.
type Option func(*options)

// WithName sets the name used in logs and metric labels.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector. By default nothing is recorded.
func WithMetrics(m buffer.MetricsCollector) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		name:    "default",
		logger:  slog.Default(),
		metrics: noopMetrics{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type noopMetrics struct{}

func (noopMetrics) ObserveAppend(string, int, bool)           {}
func (noopMetrics) ObserveRead(string, int)                   {}
func (noopMetrics) SetBufferState(string, int64, int, int)    {}
func (noopMetrics) IncAllocationFailures(string)              {}
func (noopMetrics) ObserveWait(string, string, time.Duration) {}
