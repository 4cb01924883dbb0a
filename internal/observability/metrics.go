package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jittakal/membuf/pkg/buffer"
)

// Ensure implementation satisfies interface at compile time.
var _ buffer.MetricsCollector = (*Metrics)(nil)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Buffer metrics
	Appends            *prometheus.CounterVec
	AppendedValues     *prometheus.CounterVec
	Reads              *prometheus.CounterVec
	ReadValues         *prometheus.CounterVec
	PayloadValues      *prometheus.GaugeVec
	Entries            *prometheus.GaugeVec
	Segments           *prometheus.GaugeVec
	AllocationFailures *prometheus.CounterVec
	WaitDuration       *prometheus.HistogramVec

	// Allocator metrics
	AllocatorSegments *prometheus.GaugeVec

	// Pump metrics
	ProducedEntries *prometheus.CounterVec
	ConsumedEntries *prometheus.CounterVec
	ConsumedValues  *prometheus.CounterVec
	OrderViolations *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		// Buffer metrics
		Appends: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "membuf_appends_total",
				Help: "Total number of append attempts",
			},
			[]string{"buffer", "result"},
		),
		AppendedValues: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "membuf_appended_values_total",
				Help: "Total number of payload values appended",
			},
			[]string{"buffer"},
		),
		Reads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "membuf_reads_total",
				Help: "Total number of completed reads",
			},
			[]string{"buffer"},
		),
		ReadValues: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "membuf_read_values_total",
				Help: "Total number of payload values read",
			},
			[]string{"buffer"},
		),
		PayloadValues: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "membuf_payload_values",
				Help: "Current number of unread payload values",
			},
			[]string{"buffer"},
		),
		Entries: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "membuf_entries",
				Help: "Current number of unread entries",
			},
			[]string{"buffer"},
		),
		Segments: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "membuf_segments",
				Help: "Current number of segments holding data",
			},
			[]string{"buffer"},
		),
		AllocationFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "membuf_allocation_failures_total",
				Help: "Total number of failed segment allocations",
			},
			[]string{"buffer"},
		),
		WaitDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "membuf_wait_duration_seconds",
				Help:    "Time blocking operations spent waiting",
				Buckets: []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"buffer", "operation"},
		),

		// Allocator metrics
		AllocatorSegments: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "membuf_allocator_live_segments",
				Help: "Segments handed out by the allocator and not yet released",
			},
			[]string{"allocator"},
		),

		// Pump metrics
		ProducedEntries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "membuf_pump_produced_total",
				Help: "Total number of entries appended by pump producers",
			},
			[]string{"buffer"},
		),
		ConsumedEntries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "membuf_pump_consumed_total",
				Help: "Total number of entries received by pump consumers",
			},
			[]string{"buffer"},
		),
		ConsumedValues: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "membuf_pump_consumed_values_total",
				Help: "Total number of payload values received by pump consumers",
			},
			[]string{"buffer"},
		),
		OrderViolations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "membuf_pump_order_violations_total",
				Help: "Entries received out of producer order",
			},
			[]string{"buffer"},
		),
	}
}

// ObserveAppend counts an append attempt and, on success, its values.
func (m *Metrics) ObserveAppend(bufferName string, values int, ok bool) {
	if !ok {
		m.Appends.WithLabelValues(bufferName, "rejected").Inc()
		return
	}
	m.Appends.WithLabelValues(bufferName, "ok").Inc()
	m.AppendedValues.WithLabelValues(bufferName).Add(float64(values))
}

// ObserveRead counts a completed read.
func (m *Metrics) ObserveRead(bufferName string, values int) {
	m.Reads.WithLabelValues(bufferName).Inc()
	m.ReadValues.WithLabelValues(bufferName).Add(float64(values))
}

// SetBufferState sets the buffer gauges.
func (m *Metrics) SetBufferState(bufferName string, payload int64, entries, segments int) {
	m.PayloadValues.WithLabelValues(bufferName).Set(float64(payload))
	m.Entries.WithLabelValues(bufferName).Set(float64(entries))
	m.Segments.WithLabelValues(bufferName).Set(float64(segments))
}

// IncAllocationFailures increments allocation failures counter.
func (m *Metrics) IncAllocationFailures(bufferName string) {
	m.AllocationFailures.WithLabelValues(bufferName).Inc()
}

// ObserveWait observes wait duration.
func (m *Metrics) ObserveWait(bufferName, operation string, d time.Duration) {
	m.WaitDuration.WithLabelValues(bufferName, operation).Observe(d.Seconds())
}

// SetAllocatorSegments sets allocator live segments gauge.
func (m *Metrics) SetAllocatorSegments(kind string, live int) {
	m.AllocatorSegments.WithLabelValues(kind).Set(float64(live))
}

// IncProduced increments produced entries counter.
func (m *Metrics) IncProduced(bufferName string) {
	m.ProducedEntries.WithLabelValues(bufferName).Inc()
}

// ObserveConsumed counts an entry received by a consumer.
func (m *Metrics) ObserveConsumed(bufferName string, values int) {
	m.ConsumedEntries.WithLabelValues(bufferName).Inc()
	m.ConsumedValues.WithLabelValues(bufferName).Add(float64(values))
}

// IncOrderViolations increments order violations counter.
func (m *Metrics) IncOrderViolations(bufferName string) {
	m.OrderViolations.WithLabelValues(bufferName).Inc()
}
