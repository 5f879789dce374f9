package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

type published struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	messages []published
	err      error
}

func (f *fakePublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, published{topic: topic, payload: payload})
	return nil
}

func TestSink_PublishAttendance(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewSink(pub, "site-a")

	event := domain.AttendanceEvent{
		ID:         uuid.New(),
		IdentityID: "alice",
		CameraID:   "cam-1",
		Timestamp:  time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
		Confidence: 0.8,
	}

	require.NoError(t, sink.PublishAttendance(context.Background(), event))

	require.Len(t, pub.messages, 1)
	assert.Equal(t, "site-a/attendance", pub.messages[0].topic)

	var got domain.AttendanceEvent
	require.NoError(t, json.Unmarshal(pub.messages[0].payload, &got))
	assert.Equal(t, event, got)
}

func TestSink_PublishAlert(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewSink(pub, "")

	alert := domain.Alert{ID: uuid.New(), CameraID: "cam-2", TrackID: 4, Label: "falling", Severity: domain.SeverityHigh}

	require.NoError(t, sink.PublishAlert(context.Background(), alert))

	require.Len(t, pub.messages, 1)
	assert.Equal(t, "vigia/alerts", pub.messages[0].topic)
	assert.Contains(t, string(pub.messages[0].payload), `"severity":"high"`)
}

func TestSink_PublisherError(t *testing.T) {
	sink := NewSink(&fakePublisher{err: ErrNotConnected}, "vigia")

	err := sink.PublishAlert(context.Background(), domain.Alert{CameraID: "cam-1"})

	assert.True(t, errors.Is(err, ErrNotConnected))
}

func TestNewClient_Validation(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := NewClient(Config{}, logger)
	assert.Error(t, err)

	c, err := NewClient(Config{Broker: "tcp://localhost:1883"}, logger)
	require.NoError(t, err)
	assert.False(t, c.IsConnected())
	assert.ErrorIs(t, c.Publish(context.Background(), "t", nil), ErrNotConnected)
	c.Disconnect()
}
