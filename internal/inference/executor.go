// Package inference serializes model calls from every camera through a
// single goroutine, so GPU-backed providers are never entered concurrently.
package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
	"github.com/saturnino-fabrica-de-software/vigia/internal/metrics"
)

const (
	DefaultQueueSize   = 16
	DefaultCallTimeout = 30 * time.Second
)

type job struct {
	stage  string
	caller context.Context
	run    func(ctx context.Context)
}

type Config struct {
	// QueueSize bounds calls waiting for the executor.
	QueueSize int
	// CallTimeout bounds a single call once started, independent of the
	// caller's deadline.
	CallTimeout time.Duration
}

type Executor struct {
	cfg     Config
	jobs    chan *job
	stop    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New starts the executor goroutine. Close stops it.
func New(cfg Config, m *metrics.Metrics, logger *slog.Logger) *Executor {
	if cfg.QueueSize < 1 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}

	e := &Executor{
		cfg:     cfg,
		jobs:    make(chan *job, cfg.QueueSize),
		stop:    make(chan struct{}),
		metrics: m,
		logger:  logger.With("component", "inference"),
	}
	e.wg.Add(1)
	go e.loop()
	return e
}

func (e *Executor) loop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stop:
			return
		case j := <-e.jobs:
			if j.caller.Err() != nil {
				// caller gave up while queued
				continue
			}
			e.execute(j)
		}
	}
}

func (e *Executor) execute(j *job) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.CallTimeout)
	defer cancel()

	start := time.Now()
	j.run(ctx)
	e.metrics.InferenceLatency.WithLabelValues(j.stage).Observe(time.Since(start).Seconds())
}

// Close stops accepting calls and waits for the in-flight one to finish.
// Queued calls are abandoned and their callers receive ErrInferenceStopped.
func (e *Executor) Close() {
	e.once.Do(func() { close(e.stop) })
	e.wg.Wait()
}

func (e *Executor) submit(ctx context.Context, j *job) error {
	select {
	case <-e.stop:
		return domain.ErrInferenceStopped
	default:
	}

	select {
	case e.jobs <- j:
		return nil
	case <-ctx.Done():
		return callerErr(ctx)
	case <-e.stop:
		return domain.ErrInferenceStopped
	}
}

type outcome[T any] struct {
	value T
	err   error
}

// Run executes fn on the executor goroutine and waits for its result until
// ctx is done. A call that outlives ctx still runs to completion and its
// result is discarded.
func Run[T any](ctx context.Context, e *Executor, stage string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	out := make(chan outcome[T], 1)

	j := &job{
		stage:  stage,
		caller: ctx,
		run: func(callCtx context.Context) {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("inference call panicked",
						slog.String("stage", stage),
						slog.Any("panic", r),
					)
					out <- outcome[T]{err: fmt.Errorf("%s panicked: %v", stage, r)}
				}
			}()
			v, err := fn(callCtx)
			out <- outcome[T]{value: v, err: err}
		},
	}

	if err := e.submit(ctx, j); err != nil {
		return zero, err
	}

	select {
	case o := <-out:
		return o.value, o.err
	case <-ctx.Done():
		return zero, callerErr(ctx)
	case <-e.stop:
		return zero, domain.ErrInferenceStopped
	}
}

func callerErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.ErrInferenceTimeout.WithError(ctx.Err())
	}
	return ctx.Err()
}
