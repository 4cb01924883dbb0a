package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/jittakal/membuf/internal/allocator"
	membuf "github.com/jittakal/membuf/internal/buffer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func TestServer_NewServer(t *testing.T) {
	registry := prometheus.NewRegistry()
	checker := &mockHealthChecker{liveness: true, readiness: true, healthy: true}
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	server := NewServer(Config{HealthPort: 8080, MetricsPort: 9090}, checker, &fakeStatsSource{}, registry, logger)

	if server == nil {
		t.Error("Server should not be nil")
	}
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{ReadinessPath: "/ready"}.withDefaults()

	if cfg.LivenessPath != "/health/live" {
		t.Errorf("LivenessPath = %s, want /health/live", cfg.LivenessPath)
	}
	if cfg.ReadinessPath != "/ready" {
		t.Errorf("ReadinessPath = %s, want /ready", cfg.ReadinessPath)
	}
	if cfg.StatsPath != "/buffers" {
		t.Errorf("StatsPath = %s, want /buffers", cfg.StatsPath)
	}
	if cfg.MetricsPath != "/metrics" {
		t.Errorf("MetricsPath = %s, want /metrics", cfg.MetricsPath)
	}
}

func TestServer_LivenessEndpoint(t *testing.T) {
	checker := &mockHealthChecker{liveness: true, readiness: true, healthy: true}
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	handler := LivenessHandler(checker, logger)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	w := httptest.NewRecorder()

	handler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Status code = %v, want %v", w.Code, http.StatusOK)
	}
}

func TestServer_ReadinessEndpoint(t *testing.T) {
	checker := &mockHealthChecker{liveness: true, readiness: true, healthy: true}
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	handler := ReadinessHandler(checker, logger)

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	w := httptest.NewRecorder()

	handler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Status code = %v, want %v", w.Code, http.StatusOK)
	}
}

func TestServer_MetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()

	// Register a test metric
	testCounter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_metric_total",
		Help: "Test metric",
	})
	registry.MustRegister(testCounter)
	testCounter.Inc()

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Status code = %v, want %v", w.Code, http.StatusOK)
	}

	body := w.Body.String()
	if body == "" {
		t.Error("Metrics response should not be empty")
	}
}

func TestServer_GracefulShutdown(t *testing.T) {
	server := &http.Server{
		Addr: ":0", // Use random port
	}

	// Start server in background
	go func() {
		server.ListenAndServe()
	}()

	// Give server time to start
	time.Sleep(10 * time.Millisecond)

	// Shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := server.Shutdown(ctx)
	if err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestServer_ConcurrentRequests(t *testing.T) {
	checker := &mockHealthChecker{liveness: true, readiness: true, healthy: true}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if checker.Liveness() {
			w.WriteHeader(http.StatusOK)
		}
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	// Send concurrent requests
	const requests = 10
	done := make(chan bool, requests)

	for i := 0; i < requests; i++ {
		go func() {
			resp, err := http.Get(server.URL)
			if err != nil {
				t.Errorf("Request failed: %v", err)
			}
			if resp != nil {
				resp.Body.Close()
			}
			done <- true
		}()
	}

	// Wait for all requests
	for i := 0; i < requests; i++ {
		<-done
	}
}

func TestServer_Start(t *testing.T) {
	registry := prometheus.NewRegistry()
	checker := &mockHealthChecker{liveness: true, readiness: true, healthy: true}
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	// Use high port numbers to avoid conflicts
	server := NewServer(Config{HealthPort: 58080, MetricsPort: 59090}, checker, &fakeStatsSource{}, registry, logger)

	err := server.Start()
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Give servers time to start
	time.Sleep(100 * time.Millisecond)

	// Test health endpoint is accessible
	resp, err := http.Get("http://localhost:58080/health/live")
	if err != nil {
		t.Errorf("Failed to connect to health server: %v", err)
	} else {
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("Health check returned status %d", resp.StatusCode)
		}
	}

	// Test stats endpoint is accessible
	resp, err = http.Get("http://localhost:58080/buffers")
	if err != nil {
		t.Errorf("Failed to connect to stats endpoint: %v", err)
	} else {
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("Stats endpoint returned status %d", resp.StatusCode)
		}
	}

	// Test metrics endpoint is accessible
	resp, err = http.Get("http://localhost:59090/metrics")
	if err != nil {
		t.Errorf("Failed to connect to metrics server: %v", err)
	} else {
		resp.Body.Close()
	}

	// Shutdown servers
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(ctx)
}

func TestServer_Shutdown(t *testing.T) {
	registry := prometheus.NewRegistry()
	checker := &mockHealthChecker{liveness: true, readiness: true, healthy: true}
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	server := NewServer(Config{HealthPort: 58081, MetricsPort: 59091}, checker, &fakeStatsSource{}, registry, logger)
	server.Start()

	// Give servers time to start
	time.Sleep(100 * time.Millisecond)

	// Shutdown servers
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := server.Shutdown(ctx)
	if err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}

	// Give servers time to shutdown
	time.Sleep(100 * time.Millisecond)

	// Verify servers are stopped
	_, err = http.Get("http://localhost:58081/health/live")
	if err == nil {
		t.Error("Expected error connecting to stopped health server")
	}
}

func TestServer_ReadinessFollowsManager(t *testing.T) {
	manager := membuf.NewManager(allocator.NewFake[byte](64), 1, 4)
	if _, err := manager.GetOrCreate("orders"); err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	checker := NewBufferChecker(manager)
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	mux := http.NewServeMux()
	mux.HandleFunc("/health/ready", ReadinessHandler(checker, logger))
	mux.HandleFunc("/buffers", StatsHandler(manager, logger))
	ts := httptest.NewServer(mux)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health/ready")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status code = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	manager.CloseAll()

	resp, err = http.Get(ts.URL + "/health/ready")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status code = %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}

	resp, err = http.Get(ts.URL + "/buffers")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var stats StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !stats.Closed || len(stats.Buffers) != 1 || !stats.Buffers[0].Closed {
		t.Errorf("stats = %+v, want one closed buffer", stats)
	}
}
