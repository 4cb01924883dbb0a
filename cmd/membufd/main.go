package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/jittakal/membuf/internal/config"
	"github.com/jittakal/membuf/internal/config/dto"
	"github.com/jittakal/membuf/internal/observability"
	"github.com/jittakal/membuf/internal/pump"
	"github.com/jittakal/membuf/internal/server"
	"github.com/jittakal/membuf/pkg/buffer"
	"github.com/jittakal/membuf/pkg/membuf"
)

// Ensure the metrics sink serves the pump too.
var _ pump.Recorder = (*observability.Metrics)(nil)

func main() {
	if err := run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}

func run() error {
	// Parse command-line flags
	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	// Load configuration
	// Priority: CLI flag > CONFIG_PATH env var > default path
	var cfgPath string
	if *configPath != "" {
		cfgPath = *configPath
	} else if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		cfgPath = envPath
	} else {
		cfgPath = "config/application.yaml"
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize observability
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
		Output: cfg.Observability.Logging.Output,
	})
	logger.Info("starting membufd",
		"version", cfg.Application.Version,
		"environment", cfg.Application.Environment,
		"mode", cfg.Workload.Mode,
	)

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	// Track cleanup functions, run in reverse order
	var cleanupFuncs []func() error
	addCleanup := func(name string, fn func() error) {
		cleanupFuncs = append(cleanupFuncs, func() error {
			if err := fn(); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
		logger.Debug("registered cleanup", "component", name)
	}
	defer func() {
		for i := len(cleanupFuncs) - 1; i >= 0; i-- {
			if err := cleanupFuncs[i](); err != nil {
				logger.Error("cleanup failed", "error", err)
			}
		}
	}()

	factory, err := membuf.New(membuf.Config{
		SegmentSize:               cfg.Buffer.SegmentSize,
		MinSegments:               cfg.Buffer.MinSegments,
		MaxSegments:               cfg.Buffer.MaxSegments,
		Allocator:                 membuf.AllocatorKind(cfg.Buffer.Allocator),
		AllocatorMaxSegments:      cfg.Buffer.AllocatorMaxSegments,
		AllocatorRetainedSegments: cfg.Buffer.AllocatorRetainedSegments,
		Logger:                    logger,
		Metrics:                   metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create buffer factory: %w", err)
	}
	addCleanup("buffer-factory", factory.Close)

	// Build one pump target per configured buffer
	targets, source, err := buildTargets(cfg, factory)
	if err != nil {
		return err
	}

	// Start HTTP server
	httpServer := server.NewServer(
		server.Config{
			HealthPort:    cfg.Observability.Health.Port,
			MetricsPort:   cfg.Observability.Metrics.Port,
			LivenessPath:  cfg.Observability.Health.LivenessPath,
			ReadinessPath: cfg.Observability.Health.ReadinessPath,
			MetricsPath:   cfg.Observability.Metrics.Path,
		},
		server.NewBufferChecker(source),
		source,
		registry,
		logger,
	)

	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	addCleanup("http-server", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.ForceTimeout())
		defer cancel()
		return httpServer.Shutdown(ctx)
	})

	// Stop on termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go reportAllocator(ctx, factory, metrics)

	logger.Info("application started successfully", "buffers", len(targets))

	var g errgroup.Group
	for _, target := range targets {
		g.Go(func() error {
			defer target.cleanup()

			p, err := pump.New(pumpConfig(cfg.Workload, target.source), logger, metrics)
			if err != nil {
				return err
			}
			res, err := target.run(ctx, p)
			if err != nil {
				return fmt.Errorf("pump for buffer %q: %w", target.name, err)
			}
			if res.OrderViolations > 0 {
				logger.Error("buffer delivered payloads out of order",
					"buffer", target.name,
					"violations", res.OrderViolations,
				)
			}
			return nil
		})
	}

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		logger.Info("received termination signal, draining buffers")
	}

	// Graceful shutdown: consumers keep draining until the grace period ends
	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-time.After(cfg.Shutdown.GracePeriod()):
		logger.Warn("grace period expired, discarding unread data")
		for _, target := range targets {
			target.clear()
		}
		if err := <-done; err != nil {
			return err
		}
	}

	logger.Info("application stopped successfully")
	return nil
}

// target is one buffer driven by its own pump.
type target struct {
	name    string
	source  *os.File
	run     func(ctx context.Context, p *pump.Pump) (pump.Result, error)
	clear   func()
	cleanup func()
}

func buildTargets(cfg *dto.ApplicationConfig, factory *membuf.Factory) ([]target, server.StatsSource, error) {
	mode := pump.Mode(cfg.Workload.Mode)
	targets := make([]target, 0, len(cfg.Buffer.Buffers))

	if mode == pump.ModeEntries {
		manager := factory.NewManager()
		for _, name := range cfg.Buffer.Buffers {
			buf, err := manager.GetOrCreate(name)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to create buffer %q: %w", name, err)
			}

			t := target{
				name:    name,
				run:     func(ctx context.Context, p *pump.Pump) (pump.Result, error) { return p.RunEntries(ctx, buf) },
				clear:   buf.Clear,
				cleanup: func() {},
			}
			if cfg.Workload.SourceFile != "" {
				f, err := os.Open(cfg.Workload.SourceFile)
				if err != nil {
					return nil, nil, fmt.Errorf("failed to open source file: %w", err)
				}
				t.source = f
				t.cleanup = func() { f.Close() }
			}
			targets = append(targets, t)
		}
		return targets, manager, nil
	}

	set := &bufferSet{}
	for _, name := range cfg.Buffer.Buffers {
		switch mode {
		case pump.ModeBytes:
			buf, err := factory.NewStreamyBytes(name)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to create buffer %q: %w", name, err)
			}
			set.add(buf)
			targets = append(targets, target{
				name:    name,
				run:     func(ctx context.Context, p *pump.Pump) (pump.Result, error) { return p.RunBytes(ctx, buf) },
				clear:   buf.Clear,
				cleanup: func() {},
			})
		case pump.ModeLongs:
			buf, err := factory.NewStreamyLongs(name)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to create buffer %q: %w", name, err)
			}
			set.add(buf)
			targets = append(targets, target{
				name:    name,
				run:     func(ctx context.Context, p *pump.Pump) (pump.Result, error) { return p.RunLongs(ctx, buf) },
				clear:   buf.Clear,
				cleanup: func() {},
			})
		default:
			return nil, nil, fmt.Errorf("unsupported workload mode: %s", mode)
		}
	}
	return targets, set, nil
}

func pumpConfig(w dto.WorkloadConfig, source *os.File) pump.Config {
	cfg := pump.Config{
		Producers:     w.Producers,
		Consumers:     w.Consumers,
		EntrySizeMin:  w.EntrySizeMin,
		EntrySizeMax:  w.EntrySizeMax,
		PollTimeout:   w.PollTimeout(),
		RatePerSecond: w.RatePerSecond,
		Seed:          uint64(time.Now().UnixNano()),
	}
	if source != nil {
		cfg.Source = source
	}
	return cfg
}

// reportAllocator publishes the factory's live segment count until ctx is done.
func reportAllocator(ctx context.Context, factory *membuf.Factory, metrics *observability.Metrics) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if live := factory.LiveSegments(); live >= 0 {
				metrics.SetAllocatorSegments(string(factory.Kind()), live)
			}
		}
	}
}

// bufferSet reports statistics for streamy buffers, which have no manager.
type bufferSet struct {
	buffers []buffer.Buffer
}

func (s *bufferSet) add(b buffer.Buffer) {
	s.buffers = append(s.buffers, b)
}

func (s *bufferSet) Stats() []buffer.Stats {
	stats := make([]buffer.Stats, 0, len(s.buffers))
	for _, b := range s.buffers {
		stats = append(stats, b.Stats())
	}
	return stats
}

// IsClosed reports true once every buffer has been closed.
func (s *bufferSet) IsClosed() bool {
	for _, b := range s.buffers {
		if !b.IsClosed() {
			return false
		}
	}
	return len(s.buffers) > 0
}

var _ server.StatsSource = (*bufferSet)(nil)
