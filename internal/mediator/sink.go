package mediator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
	"github.com/saturnino-fabrica-de-software/vigia/internal/metrics"
)

// AttendanceSink accepts attendance events for downstream delivery.
type AttendanceSink interface {
	PublishAttendance(ctx context.Context, event domain.AttendanceEvent) error
}

// AlertSink accepts alerts for downstream delivery.
type AlertSink interface {
	PublishAlert(ctx context.Context, alert domain.Alert) error
}

// Sink receives both event streams.
type Sink interface {
	AttendanceSink
	AlertSink
}

const (
	defaultSinkQueue   = 256
	defaultSinkTimeout = 10 * time.Second
)

type envelope struct {
	attendance *domain.AttendanceEvent
	alert      *domain.Alert
}

type worker struct {
	name       string
	attendance AttendanceSink
	alerts     AlertSink
	queue      chan envelope
}

// Fanout delivers every event to all registered sinks. Each sink has its own
// bounded queue and goroutine so a slow or failing sink only affects itself.
type Fanout struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	size    int
	timeout time.Duration

	mu      sync.RWMutex
	workers []*worker
	closed  bool
	wg      sync.WaitGroup
}

type FanoutOption func(*Fanout)

func WithQueueSize(n int) FanoutOption {
	return func(f *Fanout) {
		if n > 0 {
			f.size = n
		}
	}
}

func WithDeliveryTimeout(d time.Duration) FanoutOption {
	return func(f *Fanout) {
		if d > 0 {
			f.timeout = d
		}
	}
}

func NewFanout(m *metrics.Metrics, logger *slog.Logger, opts ...FanoutOption) *Fanout {
	f := &Fanout{
		logger:  logger.With("component", "fanout"),
		metrics: m,
		size:    defaultSinkQueue,
		timeout: defaultSinkTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Add registers a sink for both streams.
func (f *Fanout) Add(name string, sink Sink) {
	f.register(&worker{name: name, attendance: sink, alerts: sink})
}

// AddAttendance registers a sink that only receives attendance events.
func (f *Fanout) AddAttendance(name string, sink AttendanceSink) {
	f.register(&worker{name: name, attendance: sink})
}

// AddAlerts registers a sink that only receives alerts.
func (f *Fanout) AddAlerts(name string, sink AlertSink) {
	f.register(&worker{name: name, alerts: sink})
}

func (f *Fanout) register(w *worker) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}

	w.queue = make(chan envelope, f.size)
	f.workers = append(f.workers, w)
	f.wg.Add(1)
	go f.run(w)
}

func (f *Fanout) run(w *worker) {
	defer f.wg.Done()
	for env := range w.queue {
		f.deliver(w, env)
	}
}

func (f *Fanout) deliver(w *worker, env envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	var err error
	switch {
	case env.attendance != nil:
		err = w.attendance.PublishAttendance(ctx, *env.attendance)
	case env.alert != nil:
		err = w.alerts.PublishAlert(ctx, *env.alert)
	}
	if err != nil {
		f.metrics.SinkErrors.WithLabelValues(w.name).Inc()
		f.logger.Error("sink delivery failed",
			slog.String("sink", w.name),
			slog.Any("error", err),
		)
	}
}

func (f *Fanout) PublishAttendance(ctx context.Context, event domain.AttendanceEvent) error {
	f.enqueue(envelope{attendance: &event}, func(w *worker) bool { return w.attendance != nil })
	return nil
}

func (f *Fanout) PublishAlert(ctx context.Context, alert domain.Alert) error {
	f.enqueue(envelope{alert: &alert}, func(w *worker) bool { return w.alerts != nil })
	return nil
}

func (f *Fanout) enqueue(env envelope, wants func(*worker) bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return
	}

	for _, w := range f.workers {
		if !wants(w) {
			continue
		}
		select {
		case w.queue <- env:
		default:
			f.metrics.SinkDrops.WithLabelValues(w.name).Inc()
			f.logger.Warn("sink queue full, event dropped", slog.String("sink", w.name))
		}
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
func (f *Fanout) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	for _, w := range f.workers {
		close(w.queue)
	}
	f.mu.Unlock()

	f.wg.Wait()
}
