// Package pump drives buffers with concurrent producers and consumers.
//
// Producers append generated payloads (or lines from a source) until their
// quota is met or the context is cancelled. The buffer is then closed and
// consumers drain whatever remains, checking that every producer's payloads
// arrive in the order they were appended.
package pump

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/jittakal/membuf/internal/errors"
)

// Mode selects the buffer discipline being driven.
type Mode string

const (
	ModeEntries Mode = "entries"
	ModeBytes   Mode = "bytes"
	ModeLongs   Mode = "longs"
)

// Recorder receives pump activity. *observability.Metrics implements it.
type Recorder interface {
	IncProduced(buffer string)
	ObserveConsumed(buffer string, values int)
	IncOrderViolations(buffer string)
}

type noopRecorder struct{}

func (noopRecorder) IncProduced(string)          {}
func (noopRecorder) ObserveConsumed(string, int) {}
func (noopRecorder) IncOrderViolations(string)   {}

// Config controls a pump run.
type Config struct {
	Producers int
	Consumers int
	// EntrySizeMin and EntrySizeMax bound the size of each append, in values.
	EntrySizeMin int
	EntrySizeMax int
	// Appends is the number of appends per producer. Zero runs until the
	// context is cancelled.
	Appends int
	// Source, when set, supplies entries line by line instead of generated
	// payloads. Entries mode only.
	Source io.Reader
	// PollTimeout bounds each consumer wait.
	PollTimeout time.Duration
	// RatePerSecond caps appends across all producers. Zero is unlimited.
	RatePerSecond int
	Seed          uint64
}

// Validate checks the worker counts and size range.
func (c Config) Validate() error {
	if c.Producers < 1 || c.Consumers < 1 {
		return fmt.Errorf("%w: pump needs at least one producer and one consumer", errors.ErrInvalidConfig)
	}
	if c.EntrySizeMin < 0 || c.EntrySizeMax < c.EntrySizeMin {
		return fmt.Errorf("%w: entry size range [%d, %d]", errors.ErrInvalidConfig, c.EntrySizeMin, c.EntrySizeMax)
	}
	if c.PollTimeout <= 0 {
		return fmt.Errorf("%w: poll timeout must be positive", errors.ErrInvalidConfig)
	}
	if c.RatePerSecond < 0 {
		return fmt.Errorf("%w: rate must not be negative", errors.ErrInvalidConfig)
	}
	return nil
}

// Result summarises a completed run.
type Result struct {
	Produced        int64
	ProducedValues  int64
	Consumed        int64
	ConsumedValues  int64
	OrderViolations int64
}

// Pump runs producer and consumer goroutines against one buffer.
type Pump struct {
	cfg     Config
	logger  *slog.Logger
	metrics Recorder
	limiter *rate.Limiter

	produced        atomic.Int64
	producedValues  atomic.Int64
	consumed        atomic.Int64
	consumedValues  atomic.Int64
	orderViolations atomic.Int64
}

// New creates a pump. A nil logger or recorder is replaced by a no-op.
func New(cfg Config, logger *slog.Logger, metrics Recorder) (*Pump, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if metrics == nil {
		metrics = noopRecorder{}
	}

	limit := rate.Inf
	burst := 1
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
		burst = max(1, cfg.RatePerSecond/10)
	}

	return &Pump{
		cfg:     cfg,
		logger:  logger.With("component", "pump"),
		metrics: metrics,
		limiter: rate.NewLimiter(limit, burst),
	}, nil
}

// Result returns the counters accumulated so far.
func (p *Pump) Result() Result {
	return Result{
		Produced:        p.produced.Load(),
		ProducedValues:  p.producedValues.Load(),
		Consumed:        p.consumed.Load(),
		ConsumedValues:  p.consumedValues.Load(),
		OrderViolations: p.orderViolations.Load(),
	}
}

type worker func(ctx context.Context, id int) error

// run starts the producers, closes the buffer once they are done and waits
// for the consumers to drain it. Consumers outlive ctx so that nothing
// appended is left behind; a failing consumer stops the producers.
func (p *Pump) run(ctx context.Context, name string, closeBuffer func(), produce, consume worker) (Result, error) {
	start := time.Now()
	logger := p.logger.With("run_id", uuid.NewString(), "buffer", name)
	logger.Info("pump started",
		"producers", p.cfg.Producers,
		"consumers", p.cfg.Consumers,
	)

	producerCtx, stopProducers := context.WithCancel(ctx)
	defer stopProducers()

	var consumers errgroup.Group
	drainCtx := context.WithoutCancel(ctx)
	for i := 0; i < p.cfg.Consumers; i++ {
		consumers.Go(func() error {
			err := consume(drainCtx, i)
			if err != nil {
				stopProducers()
				return fmt.Errorf("consumer %d: %w", i, err)
			}
			return nil
		})
	}

	producers, gctx := errgroup.WithContext(producerCtx)
	for i := 0; i < p.cfg.Producers; i++ {
		producers.Go(func() error {
			if err := produce(gctx, i); err != nil {
				return fmt.Errorf("producer %d: %w", i, err)
			}
			return nil
		})
	}

	perr := producers.Wait()
	closeBuffer()
	cerr := consumers.Wait()

	res := p.Result()
	logger.Info("pump stopped",
		"produced", res.Produced,
		"consumed", res.Consumed,
		"consumed_values", res.ConsumedValues,
		"order_violations", res.OrderViolations,
		"duration", time.Since(start),
	)

	return res, stderrors.Join(perr, cerr)
}

// wait blocks for the rate limiter. It reports false once ctx is done.
func (p *Pump) wait(ctx context.Context) bool {
	return p.limiter.Wait(ctx) == nil
}

// quotaReached reports whether a producer has made all its appends.
func (p *Pump) quotaReached(done int) bool {
	return p.cfg.Appends > 0 && done >= p.cfg.Appends
}

// stopped reports whether err ends a producer without failing the run.
func stopped(ctx context.Context, err error) bool {
	if errors.Is(err, errors.ErrBufferClosed) {
		return true
	}
	return errors.Is(err, errors.ErrInterrupted) && ctx.Err() != nil
}

func (p *Pump) rng(id int) *rand.Rand {
	return rand.New(rand.NewPCG(p.cfg.Seed, uint64(id)))
}

// size draws an append size within the configured range.
func (p *Pump) size(r *rand.Rand) int {
	return p.cfg.EntrySizeMin + r.IntN(p.cfg.EntrySizeMax-p.cfg.EntrySizeMin+1)
}

func (p *Pump) producedOne(name string, values int) {
	p.produced.Add(1)
	p.producedValues.Add(int64(values))
	p.metrics.IncProduced(name)
}

func (p *Pump) consumedOne(name string, values int) {
	p.consumed.Add(1)
	p.consumedValues.Add(int64(values))
	p.metrics.ObserveConsumed(name, values)
}

func (p *Pump) violation(name string, producer uint32, last, got uint64) {
	p.orderViolations.Add(1)
	p.metrics.IncOrderViolations(name)
	p.logger.Error("payload out of order",
		"buffer", name,
		"producer", producer,
		"last_sequence", last,
		"sequence", got,
	)
}
