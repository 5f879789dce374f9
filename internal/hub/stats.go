package hub

import "time"

// ConsumerStats is the lag view of one consumer queue.
type ConsumerStats struct {
	Delivered        uint64    `json:"delivered"`
	TotalDrops       uint64    `json:"total_drops"`
	ConsecutiveDrops uint64    `json:"consecutive_drops"`
	Queued           int       `json:"queued"`
	LastConsumedSeq  uint64    `json:"last_consumed_seq"`
	LastConsumedAt   time.Time `json:"last_consumed_at"`
	IsIdle           bool      `json:"is_idle"`
}

type CameraStats struct {
	Online        bool                     `json:"online"`
	LastSeq       uint64                   `json:"last_seq"`
	LastPublishAt time.Time                `json:"last_publish_at"`
	Consumers     map[string]ConsumerStats `json:"consumers"`
}

// Stats returns a snapshot of all cameras known to the hub.
func (h *Hub) Stats() map[string]CameraStats {
	h.mu.Lock()
	feeds := make([]*cameraFeed, 0, len(h.cameras))
	for _, feed := range h.cameras {
		feeds = append(feeds, feed)
	}
	h.mu.Unlock()

	out := make(map[string]CameraStats, len(feeds))
	for _, feed := range feeds {
		out[feed.id] = h.feedStats(feed)
	}
	return out
}

// CameraStats returns the snapshot for a single camera.
func (h *Hub) CameraStats(cameraID string) (CameraStats, bool) {
	h.mu.Lock()
	feed, ok := h.cameras[cameraID]
	h.mu.Unlock()
	if !ok {
		return CameraStats{}, false
	}
	return h.feedStats(feed), true
}

func (h *Hub) feedStats(feed *cameraFeed) CameraStats {
	feed.mu.Lock()
	stats := CameraStats{
		Online:        feed.online,
		LastSeq:       feed.seq,
		LastPublishAt: feed.lastPublish,
		Consumers:     make(map[string]ConsumerStats, len(feed.subs)),
	}
	subs := make([]*Subscription, 0, len(feed.subs))
	for _, sub := range feed.subs {
		subs = append(subs, sub)
	}
	feed.mu.Unlock()

	now := h.now()
	for _, sub := range subs {
		stats.Consumers[sub.consumer] = sub.stats(now, h.cfg.IdleThreshold)
	}
	return stats
}

func (s *Subscription) stats(now time.Time, idleThreshold time.Duration) ConsumerStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return ConsumerStats{
		Delivered:        s.delivered,
		TotalDrops:       s.totalDrops,
		ConsecutiveDrops: s.consecutiveDrops,
		Queued:           s.size,
		LastConsumedSeq:  s.lastConsumedSeq,
		LastConsumedAt:   s.lastConsumedAt,
		IsIdle:           now.Sub(s.lastConsumedAt) > idleThreshold,
	}
}

// Stats returns this consumer's counters.
func (s *Subscription) Stats() ConsumerStats {
	return s.stats(s.hub.now(), s.hub.cfg.IdleThreshold)
}
