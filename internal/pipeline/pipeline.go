// Package pipeline runs the ML worker: one goroutine per online camera pulls
// frames from the hub, runs face matching and person tracking, and feeds
// the mediator and the viewer overlay.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/saturnino-fabrica-de-software/vigia/internal/activity"
	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
	"github.com/saturnino-fabrica-de-software/vigia/internal/hub"
	"github.com/saturnino-fabrica-de-software/vigia/internal/metrics"
	"github.com/saturnino-fabrica-de-software/vigia/internal/provider"
	"github.com/saturnino-fabrica-de-software/vigia/internal/tracker"
)

// ConsumerName is the hub consumer used by camera workers.
const ConsumerName = "pipeline"

const (
	DefaultFrameDeadline = 2 * time.Second
	DefaultProcessEveryN = 5
	DefaultPruneInterval = time.Minute
)

type Config struct {
	// FrameDeadline bounds all inference for one frame. A frame that runs
	// out of time counts as having no detections.
	FrameDeadline time.Duration
	// ProcessEveryN samples frames per camera; 1 processes every frame.
	ProcessEveryN int
	// PruneInterval is how often the mediator drops stale dedup entries.
	PruneInterval time.Duration
	Tracker       tracker.Config
}

// FrameSource is the frame hub as seen by the workers.
type FrameSource interface {
	Subscribe(cameraID, consumer string) (*hub.Subscription, error)
	Online(cameraID string) bool
}

// Matcher resolves face embeddings to enrolled identities.
type Matcher interface {
	Match(vector []float64) (domain.FaceMatch, bool)
}

// Recorder is the attendance and alert mediator.
type Recorder interface {
	RecordMatch(ctx context.Context, cameraID string, match domain.FaceMatch) (domain.AttendanceEvent, bool)
	RecordActivity(ctx context.Context, v activity.Verdict) (domain.Alert, bool)
	ForgetTrack(cameraID string, trackID uint64)
	Prune()
}

// FrameBuffer keeps recent frames for evidence clips.
type FrameBuffer interface {
	Add(frame domain.Frame)
	Forget(cameraID string)
}

type OverlayPublisher interface {
	PublishOverlay(overlay domain.Overlay)
}

type NameResolver interface {
	Name(ctx context.Context, identityID string) string
}

// Deps are the collaborators of the pipeline. Faces, People, Evidence,
// Overlays and Names are optional.
type Deps struct {
	Frames     FrameSource
	Faces      provider.FaceAnalyzer
	People     provider.PersonDetector
	Matcher    Matcher
	Classifier *activity.Classifier
	Recorder   Recorder
	Evidence   FrameBuffer
	Overlays   OverlayPublisher
	Names      NameResolver
}

type Pipeline struct {
	cfg     Config
	deps    Deps
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	workers map[string]*worker
	stopped bool
	wg      sync.WaitGroup
}

type Option func(*Pipeline)

// WithClock replaces the wall clock used for tracking and classification.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

func New(cfg Config, deps Deps, m *metrics.Metrics, logger *slog.Logger, opts ...Option) *Pipeline {
	if cfg.FrameDeadline <= 0 {
		cfg.FrameDeadline = DefaultFrameDeadline
	}
	if cfg.ProcessEveryN < 1 {
		cfg.ProcessEveryN = DefaultProcessEveryN
	}
	if cfg.PruneInterval <= 0 {
		cfg.PruneInterval = DefaultPruneInterval
	}

	p := &Pipeline{
		cfg:     cfg,
		deps:    deps,
		metrics: m,
		logger:  logger.With("component", "pipeline"),
		now:     time.Now,
		workers: make(map[string]*worker),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start arms the pipeline. Workers are spawned by CameraStatus or Watch and
// run until ctx is done or Stop is called.
func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx != nil {
		return
	}
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.pruneLoop(p.ctx)
}

func (p *Pipeline) pruneLoop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.PruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.deps.Recorder.Prune()
		}
	}
}

// Stop cancels every worker and waits for them to release their state.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	p.stopped = true
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
}

// CameraStatus is registered as a hub status listener. An online camera
// gets a worker; offline cameras are left to the hub, whose release ends
// the worker after the grace period.
func (p *Pipeline) CameraStatus(cameraID string, status domain.CameraStatus) {
	if status == domain.CameraOnline {
		p.Watch(cameraID)
	}
}

// Watch starts a worker for cameraID unless one is already running.
func (p *Pipeline) Watch(cameraID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.watchLocked(cameraID)
}

func (p *Pipeline) watchLocked(cameraID string) {
	if p.ctx == nil || p.stopped {
		return
	}
	if w, ok := p.workers[cameraID]; ok && !w.exiting {
		return
	}

	sub, err := p.deps.Frames.Subscribe(cameraID, ConsumerName)
	if err != nil {
		p.logger.Error("pipeline subscribe failed",
			slog.String("camera_id", cameraID),
			slog.Any("error", err),
		)
		return
	}

	w := newWorker(p, cameraID, sub)
	p.workers[cameraID] = w
	p.wg.Add(1)
	go w.run(p.ctx)
}

// finished unregisters a worker. A camera that came back online while the
// worker was winding down is picked up again here.
func (p *Pipeline) finished(w *worker, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if current, ok := p.workers[w.cameraID]; ok && current == w {
		delete(p.workers, w.cameraID)
	}
	if errors.Is(err, domain.ErrCameraOffline) && p.deps.Frames.Online(w.cameraID) {
		p.watchLocked(w.cameraID)
	}
}

func (p *Pipeline) markExiting(w *worker) {
	p.mu.Lock()
	w.exiting = true
	p.mu.Unlock()
}

// Cameras returns the cameras that currently have a worker, including one
// that is still releasing its state.
func (p *Pipeline) Cameras() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.workers))
	for id := range p.workers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
