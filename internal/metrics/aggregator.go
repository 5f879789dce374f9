package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const DefaultSampleInterval = 15 * time.Second

// Snapshot is state that is polled rather than tracked on every change.
type Snapshot struct {
	Identities    int
	Embeddings    int
	IdleConsumers map[string]int
	Viewers       map[string]int
}

// SnapshotFunc takes one sample. It runs on the aggregator goroutine.
type SnapshotFunc func() Snapshot

// Aggregator periodically copies a Snapshot into gauges
type Aggregator struct {
	metrics  *Metrics
	snapshot SnapshotFunc
	logger   *slog.Logger
	interval time.Duration
	done     chan struct{}
	once     sync.Once
}

// NewAggregator creates a new metrics aggregator worker
func NewAggregator(m *Metrics, snapshot SnapshotFunc, logger *slog.Logger, interval time.Duration) *Aggregator {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}

	return &Aggregator{
		metrics:  m,
		snapshot: snapshot,
		logger:   logger,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start samples once, then on every tick until ctx is done or Stop is called.
func (a *Aggregator) Start(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.Debug("metrics aggregator started", slog.Duration("interval", a.interval))
	a.aggregate()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.done:
			return
		case <-ticker.C:
			a.aggregate()
		}
	}
}

func (a *Aggregator) Stop() {
	a.once.Do(func() { close(a.done) })
}

func (a *Aggregator) aggregate() {
	s := a.snapshot()

	a.metrics.EnrolledIdentities.Set(float64(s.Identities))
	a.metrics.EnrolledEmbeddings.Set(float64(s.Embeddings))

	// cameras that disappeared since the last sample must not linger
	a.metrics.IdleConsumers.Reset()
	for camera, n := range s.IdleConsumers {
		a.metrics.IdleConsumers.WithLabelValues(camera).Set(float64(n))
	}
	a.metrics.Viewers.Reset()
	for camera, n := range s.Viewers {
		a.metrics.Viewers.WithLabelValues(camera).Set(float64(n))
	}
}
