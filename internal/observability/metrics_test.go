package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findFamily gathers registry and returns the named metric family.
func findFamily(t *testing.T, registry *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()

	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric %s not registered", name)
	return nil
}

// labelValue returns the value of label name on m.
func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func TestNewMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	if metrics == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestMetrics_ObserveAppend(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.ObserveAppend("orders", 10, true)
	metrics.ObserveAppend("orders", 20, true)
	metrics.ObserveAppend("orders", 30, false)

	results := map[string]float64{}
	for _, m := range findFamily(t, registry, "membuf_appends_total").GetMetric() {
		results[labelValue(m, "result")] = m.GetCounter().GetValue()
	}
	if results["ok"] != 2 || results["rejected"] != 1 {
		t.Errorf("appends = %v, want ok=2 rejected=1", results)
	}

	values := findFamily(t, registry, "membuf_appended_values_total").GetMetric()[0].GetCounter().GetValue()
	if values != 30 {
		t.Errorf("appended values = %v, want 30 (rejected appends are not counted)", values)
	}
}

func TestMetrics_ObserveRead(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.ObserveRead("orders", 5)
	metrics.ObserveRead("orders", 7)

	if got := findFamily(t, registry, "membuf_reads_total").GetMetric()[0].GetCounter().GetValue(); got != 2 {
		t.Errorf("reads = %v, want 2", got)
	}
	if got := findFamily(t, registry, "membuf_read_values_total").GetMetric()[0].GetCounter().GetValue(); got != 12 {
		t.Errorf("read values = %v, want 12", got)
	}
}

func TestMetrics_SetBufferState(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.SetBufferState("orders", 100, 4, 3)
	metrics.SetBufferState("orders", 50, 2, 1)

	tests := []struct {
		name string
		want float64
	}{
		{"membuf_payload_values", 50},
		{"membuf_entries", 2},
		{"membuf_segments", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := findFamily(t, registry, tt.name).GetMetric()[0].GetGauge().GetValue()
			if got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestMetrics_ObserveWait(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.ObserveWait("orders", "get_next_entry", 3*time.Millisecond)
	metrics.ObserveWait("orders", "append_entry", time.Second)

	mf := findFamily(t, registry, "membuf_wait_duration_seconds")
	if len(mf.GetMetric()) != 2 {
		t.Fatalf("expected one series per operation, got %d", len(mf.GetMetric()))
	}
	for _, m := range mf.GetMetric() {
		if m.GetHistogram().GetSampleCount() != 1 {
			t.Errorf("operation %s sample count = %d, want 1",
				labelValue(m, "operation"), m.GetHistogram().GetSampleCount())
		}
	}
}

func TestMetrics_Counters(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.IncAllocationFailures("orders")
	metrics.IncProduced("orders")
	metrics.IncProduced("orders")
	metrics.ObserveConsumed("orders", 9)
	metrics.IncOrderViolations("orders")
	metrics.SetAllocatorSegments("heap", 6)

	tests := []struct {
		name string
		want float64
	}{
		{"membuf_allocation_failures_total", 1},
		{"membuf_pump_produced_total", 2},
		{"membuf_pump_consumed_total", 1},
		{"membuf_pump_consumed_values_total", 9},
		{"membuf_pump_order_violations_total", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := findFamily(t, registry, tt.name).GetMetric()[0].GetCounter().GetValue()
			if got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
			}
		})
	}

	gauge := findFamily(t, registry, "membuf_allocator_live_segments").GetMetric()[0]
	if labelValue(gauge, "allocator") != "heap" || gauge.GetGauge().GetValue() != 6 {
		t.Errorf("allocator gauge = %v", gauge)
	}
}

func TestMetrics_MultipleBuffers(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	for _, name := range []string{"orders", "payments", "audit"} {
		metrics.ObserveAppend(name, 1, true)
		metrics.SetBufferState(name, 1, 1, 1)
	}

	if got := len(findFamily(t, registry, "membuf_appends_total").GetMetric()); got != 3 {
		t.Errorf("expected 3 series, got %d", got)
	}
}

func TestMetrics_HighVolume(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	for i := 0; i < 1000; i++ {
		metrics.ObserveAppend("high-volume", 64, i%10 != 0)
	}

	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	if len(metricFamilies) == 0 {
		t.Error("Metrics should be recorded")
	}
}
