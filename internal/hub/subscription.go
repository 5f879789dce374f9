package hub

import (
	"context"
	"sync"
	"time"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

// Subscription is a consumer's view of one camera: a bounded ring of
// undelivered frames with drop-oldest overflow.
type Subscription struct {
	hub      *Hub
	feed     *cameraFeed
	consumer string

	mu               sync.Mutex
	buf              []domain.Frame
	head             int
	size             int
	err              error
	delivered        uint64
	totalDrops       uint64
	consecutiveDrops uint64
	lastConsumedSeq  uint64
	lastConsumedAt   time.Time

	wake chan struct{}
	once sync.Once
}

func newSubscription(h *Hub, feed *cameraFeed, consumer string, capacity int) *Subscription {
	return &Subscription{
		hub:            h,
		feed:           feed,
		consumer:       consumer,
		buf:            make([]domain.Frame, capacity),
		lastConsumedAt: h.now(),
		wake:           make(chan struct{}, 1),
	}
}

func (s *Subscription) CameraID() string { return s.feed.id }

func (s *Subscription) Consumer() string { return s.consumer }

func (s *Subscription) push(frame domain.Frame) {
	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return
	}

	dropped := false
	if s.size == len(s.buf) {
		s.buf[s.head] = domain.Frame{}
		s.head = (s.head + 1) % len(s.buf)
		s.size--
		s.totalDrops++
		s.consecutiveDrops++
		dropped = true
	}
	s.buf[(s.head+s.size)%len(s.buf)] = frame
	s.size++
	depth := s.size
	s.mu.Unlock()

	if dropped {
		s.hub.metrics.ConsumerDrops.WithLabelValues(s.feed.id, s.consumer).Inc()
	}
	s.hub.metrics.ConsumerQueue.WithLabelValues(s.feed.id, s.consumer).Set(float64(depth))

	s.signal()
}

func (s *Subscription) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Next blocks until a frame is available, the subscription ends or ctx is
// done. Queued frames are still delivered after the camera goes offline
// until the subscription is released.
func (s *Subscription) Next(ctx context.Context) (domain.Frame, error) {
	for {
		s.mu.Lock()
		if s.size > 0 {
			frame := s.buf[s.head]
			s.buf[s.head] = domain.Frame{}
			s.head = (s.head + 1) % len(s.buf)
			s.size--
			s.delivered++
			s.consecutiveDrops = 0
			s.lastConsumedSeq = frame.Seq
			s.lastConsumedAt = s.hub.now()
			s.mu.Unlock()
			return frame, nil
		}
		if s.err != nil {
			err := s.err
			s.mu.Unlock()
			return domain.Frame{}, err
		}
		s.mu.Unlock()

		select {
		case <-s.wake:
		case <-ctx.Done():
			return domain.Frame{}, ctx.Err()
		}
	}
}

// Close unsubscribes the consumer. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.finish(domain.ErrSubscriptionClosed)
		s.hub.unsubscribe(s)
	})
}

func (s *Subscription) finish(reason error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = reason
		clear(s.buf)
		s.size = 0
	}
	s.mu.Unlock()
	s.signal()
}
