// Package hub fans camera frames out to any number of consumers. Each consumer
// owns a bounded queue; when it falls behind, the oldest undelivered frame is
// discarded so producers and other consumers never wait on it.
package hub

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
	"github.com/saturnino-fabrica-de-software/vigia/internal/metrics"
)

var (
	ErrHubClosed         = errors.New("hub closed")
	ErrDuplicateConsumer = errors.New("consumer already subscribed to camera")
	ErrEmptyCameraID     = errors.New("camera id is required")

	errDetached = errors.New("feed released")
)

type Config struct {
	// QueueSize is the per-consumer queue capacity.
	QueueSize int
	// OfflineGrace is how long a disconnected camera keeps its consumer
	// queues before they are released.
	OfflineGrace time.Duration
	// IdleThreshold marks a consumer idle in Stats when it has not
	// consumed for this long.
	IdleThreshold time.Duration
}

func DefaultConfig() Config {
	return Config{
		QueueSize:     8,
		OfflineGrace:  5 * time.Second,
		IdleThreshold: 30 * time.Second,
	}
}

// StatusListener is notified on camera status transitions. Listeners run on
// the publishing goroutine and must not block.
type StatusListener func(cameraID string, status domain.CameraStatus)

type Hub struct {
	cfg     Config
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	mu        sync.Mutex
	cameras   map[string]*cameraFeed
	lastSeq   map[string]uint64 // survives release so sequences stay monotonic
	listeners []StatusListener
	closed    bool
}

type cameraFeed struct {
	id string

	mu          sync.Mutex
	seq         uint64
	online      bool
	lastPublish time.Time
	subs        map[string]*Subscription
	releaseGen  uint64
	release     *time.Timer
	// detached is set once the feed left Hub.cameras; callers that raced
	// with the release must look the camera up again.
	detached bool
}

func New(cfg Config, m *metrics.Metrics, logger *slog.Logger) *Hub {
	if cfg.QueueSize < 1 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.IdleThreshold <= 0 {
		cfg.IdleThreshold = DefaultConfig().IdleThreshold
	}
	return &Hub{
		cfg:     cfg,
		metrics: m,
		logger:  logger.With(slog.String("component", "hub")),
		now:     time.Now,
		cameras: make(map[string]*cameraFeed),
		lastSeq: make(map[string]uint64),
	}
}

// OnStatusChange registers a listener for camera online/offline transitions.
func (h *Hub) OnStatusChange(fn StatusListener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
}

func (h *Hub) notify(cameraID string, status domain.CameraStatus) {
	h.mu.Lock()
	listeners := make([]StatusListener, len(h.listeners))
	copy(listeners, h.listeners)
	h.mu.Unlock()

	for _, fn := range listeners {
		fn(cameraID, status)
	}
}

func (h *Hub) feed(cameraID string) (*cameraFeed, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}

	feed, ok := h.cameras[cameraID]
	if !ok {
		feed = &cameraFeed{
			id:   cameraID,
			seq:  h.lastSeq[cameraID],
			subs: make(map[string]*Subscription),
		}
		h.cameras[cameraID] = feed
	}
	return feed, nil
}

// Publish assigns the next sequence number for the camera and enqueues the
// frame on every current subscriber. It never blocks on consumers.
func (h *Hub) Publish(cameraID string, data []byte, capturedAt time.Time) (domain.Frame, error) {
	if cameraID == "" {
		return domain.Frame{}, ErrEmptyCameraID
	}

	if capturedAt.IsZero() {
		capturedAt = h.now()
	}

	var (
		frame    domain.Frame
		cameBack bool
	)
	for {
		feed, err := h.feed(cameraID)
		if err != nil {
			return domain.Frame{}, err
		}
		var ok bool
		if frame, cameBack, ok = h.deliver(feed, data, capturedAt); ok {
			break
		}
	}

	h.metrics.FramesPublished.WithLabelValues(cameraID).Inc()

	if cameBack {
		h.metrics.CameraOnline.WithLabelValues(cameraID).Set(1)
		h.logger.Info("camera online", slog.String("camera_id", cameraID))
		h.notify(cameraID, domain.CameraOnline)
	}

	return frame, nil
}

// deliver stamps the next sequence number on a frame and pushes it to every
// subscriber of feed. It reports false, touching nothing, when the feed was
// released concurrently.
func (h *Hub) deliver(feed *cameraFeed, data []byte, capturedAt time.Time) (domain.Frame, bool, bool) {
	feed.mu.Lock()
	defer feed.mu.Unlock()
	if feed.detached {
		return domain.Frame{}, false, false
	}

	feed.seq++
	frame := domain.Frame{
		CameraID:   feed.id,
		Seq:        feed.seq,
		CapturedAt: capturedAt,
		Data:       data,
	}
	feed.lastPublish = h.now()

	cameBack := !feed.online
	feed.online = true
	if feed.release != nil {
		feed.release.Stop()
		feed.release = nil
		feed.releaseGen++
	}

	// distribution happens under the feed lock so concurrent publishers of
	// the same camera cannot interleave frames out of sequence order
	for _, sub := range feed.subs {
		sub.push(frame)
	}
	return frame, cameBack, true
}

// Subscribe registers a named consumer on a camera. Frames published after
// this call are delivered in order; earlier frames are never replayed.
func (h *Hub) Subscribe(cameraID, consumer string) (*Subscription, error) {
	if cameraID == "" {
		return nil, ErrEmptyCameraID
	}

	for {
		feed, err := h.feed(cameraID)
		if err != nil {
			return nil, err
		}
		sub, err := h.attach(feed, consumer)
		if errors.Is(err, errDetached) {
			continue
		}
		return sub, err
	}
}

func (h *Hub) attach(feed *cameraFeed, consumer string) (*Subscription, error) {
	feed.mu.Lock()
	defer feed.mu.Unlock()

	if feed.detached {
		return nil, errDetached
	}
	if _, exists := feed.subs[consumer]; exists {
		return nil, fmt.Errorf("camera %s consumer %s: %w", feed.id, consumer, ErrDuplicateConsumer)
	}

	sub := newSubscription(h, feed, consumer, h.cfg.QueueSize)
	feed.subs[consumer] = sub

	h.logger.Debug("consumer subscribed",
		slog.String("camera_id", feed.id),
		slog.String("consumer", consumer),
	)

	return sub, nil
}

func (h *Hub) unsubscribe(sub *Subscription) {
	feed := sub.feed

	feed.mu.Lock()
	if current, ok := feed.subs[sub.consumer]; ok && current == sub {
		delete(feed.subs, sub.consumer)
	}
	feed.mu.Unlock()

	h.forgetConsumer(feed.id, sub.consumer)
}

func (h *Hub) forgetConsumer(cameraID, consumer string) {
	h.metrics.ConsumerDrops.DeleteLabelValues(cameraID, consumer)
	h.metrics.ConsumerQueue.DeleteLabelValues(cameraID, consumer)
}

// MarkOffline records a producer disconnect. Consumers keep their queues for
// the configured grace period; a publish within that period cancels the
// release.
func (h *Hub) MarkOffline(cameraID string) {
	h.mu.Lock()
	feed, ok := h.cameras[cameraID]
	closed := h.closed
	h.mu.Unlock()
	if !ok || closed {
		return
	}

	feed.mu.Lock()
	if !feed.online && feed.release != nil {
		feed.mu.Unlock()
		return
	}
	feed.online = false
	feed.releaseGen++
	gen := feed.releaseGen
	feed.release = time.AfterFunc(h.cfg.OfflineGrace, func() {
		h.releaseFeed(feed, gen)
	})
	feed.mu.Unlock()

	h.metrics.CameraOnline.WithLabelValues(cameraID).Set(0)
	h.logger.Info("camera offline",
		slog.String("camera_id", cameraID),
		slog.Duration("grace", h.cfg.OfflineGrace),
	)
	h.notify(cameraID, domain.CameraOffline)
}

func (h *Hub) releaseFeed(feed *cameraFeed, gen uint64) {
	h.mu.Lock()
	feed.mu.Lock()
	if feed.online || feed.releaseGen != gen {
		feed.mu.Unlock()
		h.mu.Unlock()
		return
	}
	if current, ok := h.cameras[feed.id]; ok && current == feed {
		delete(h.cameras, feed.id)
		h.lastSeq[feed.id] = feed.seq
	}
	feed.detached = true
	subs := feed.subs
	feed.subs = make(map[string]*Subscription)
	feed.release = nil
	feed.mu.Unlock()
	h.mu.Unlock()

	for _, sub := range subs {
		sub.finish(domain.ErrCameraOffline)
		h.forgetConsumer(feed.id, sub.consumer)
	}

	h.logger.Info("camera released",
		slog.String("camera_id", feed.id),
		slog.Int("consumers", len(subs)),
	)
}

// Online reports whether the camera has a connected producer.
func (h *Hub) Online(cameraID string) bool {
	h.mu.Lock()
	feed, ok := h.cameras[cameraID]
	h.mu.Unlock()
	if !ok {
		return false
	}

	feed.mu.Lock()
	defer feed.mu.Unlock()
	return feed.online
}

// Close releases every subscription. Further publishes and subscribes fail
// with ErrHubClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	feeds := h.cameras
	h.cameras = make(map[string]*cameraFeed)
	h.mu.Unlock()

	for _, feed := range feeds {
		feed.mu.Lock()
		feed.detached = true
		if feed.release != nil {
			feed.release.Stop()
			feed.release = nil
		}
		subs := feed.subs
		feed.subs = make(map[string]*Subscription)
		feed.mu.Unlock()

		for _, sub := range subs {
			sub.finish(domain.ErrSubscriptionClosed)
			h.forgetConsumer(feed.id, sub.consumer)
		}
	}
}
