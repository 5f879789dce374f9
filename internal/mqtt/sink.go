package mqtt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

// Publisher is satisfied by *Client
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Sink publishes events as JSON to <prefix>/attendance and <prefix>/alerts.
type Sink struct {
	publisher Publisher
	prefix    string
}

func NewSink(publisher Publisher, prefix string) *Sink {
	if prefix == "" {
		prefix = DefaultConfig().Topic
	}
	return &Sink{publisher: publisher, prefix: prefix}
}

func (s *Sink) PublishAttendance(ctx context.Context, event domain.AttendanceEvent) error {
	return s.publish(ctx, s.prefix+"/attendance", event)
}

func (s *Sink) PublishAlert(ctx context.Context, alert domain.Alert) error {
	return s.publish(ctx, s.prefix+"/alerts", alert)
}

func (s *Sink) publish(ctx context.Context, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", topic, err)
	}
	return s.publisher.Publish(ctx, topic, payload)
}
