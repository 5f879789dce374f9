package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

// EventType defines the type of auditable event
type EventType string

const (
	EventAttendanceRecorded EventType = "ATTENDANCE_RECORDED"
	EventAlertRaised        EventType = "ALERT_RAISED"
	EventCameraOnline       EventType = "CAMERA_ONLINE"
	EventCameraOffline      EventType = "CAMERA_OFFLINE"
	EventIdentitiesReloaded EventType = "IDENTITIES_RELOADED"
)

// Event is one line of the audit trail. Identity sightings are personal data,
// so every one of them is kept here independently of the other sinks.
type Event struct {
	ID         uuid.UUID         `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	EventType  EventType         `json:"event_type"`
	CameraID   string            `json:"camera_id,omitempty"`
	IdentityID string            `json:"identity_id,omitempty"`
	Label      string            `json:"label,omitempty"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Logger defines the interface for audit logging
type Logger interface {
	Log(ctx context.Context, event Event) error
}

// SlogLogger implements Logger using slog
type SlogLogger struct {
	logger *slog.Logger
}

func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	return &SlogLogger{
		logger: logger.With("component", "audit"),
	}
}

// Log records an audit event
func (l *SlogLogger) Log(ctx context.Context, event Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		l.logger.ErrorContext(ctx, "failed to marshal audit event",
			slog.String("error", err.Error()),
			slog.String("event_type", string(event.EventType)),
		)
		return err
	}

	l.logger.InfoContext(ctx, "audit_event",
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", string(event.EventType)),
		slog.String("camera_id", event.CameraID),
		slog.String("event_data", string(eventJSON)),
	)

	return nil
}

// NoOpLogger is a logger that does nothing (for testing or when audit is disabled)
type NoOpLogger struct{}

func (l *NoOpLogger) Log(_ context.Context, _ Event) error {
	return nil
}

// Sink turns attendance events and alerts into audit entries.
type Sink struct {
	logger Logger
}

func NewSink(logger Logger) *Sink {
	return &Sink{logger: logger}
}

func (s *Sink) PublishAttendance(ctx context.Context, event domain.AttendanceEvent) error {
	return s.logger.Log(ctx, Event{
		ID:         event.ID,
		Timestamp:  event.Timestamp,
		EventType:  EventAttendanceRecorded,
		CameraID:   event.CameraID,
		IdentityID: event.IdentityID,
		Metadata: map[string]string{
			"confidence": fmt.Sprintf("%.3f", event.Confidence),
		},
	})
}

func (s *Sink) PublishAlert(ctx context.Context, alert domain.Alert) error {
	meta := map[string]string{
		"severity":   string(alert.Severity),
		"track_id":   fmt.Sprintf("%d", alert.TrackID),
		"confidence": fmt.Sprintf("%.3f", alert.Confidence),
	}
	if alert.EvidenceRef != "" {
		meta["evidence_ref"] = alert.EvidenceRef
	}
	if alert.LowConfidence {
		meta["low_confidence"] = "true"
	}

	return s.logger.Log(ctx, Event{
		ID:         alert.ID,
		Timestamp:  alert.Timestamp,
		EventType:  EventAlertRaised,
		CameraID:   alert.CameraID,
		IdentityID: alert.IdentityID,
		Label:      alert.Label,
		Metadata:   meta,
	})
}

// CameraStatus audits an online/offline transition. It has the shape of a
// hub status listener and must not block.
func (s *Sink) CameraStatus(cameraID string, status domain.CameraStatus) {
	eventType := EventCameraOffline
	if status == domain.CameraOnline {
		eventType = EventCameraOnline
	}
	_ = s.logger.Log(context.Background(), Event{EventType: eventType, CameraID: cameraID})
}

// IdentitiesReloaded audits a full enrollment reload.
func (s *Sink) IdentitiesReloaded(ctx context.Context, identities int, err error) {
	event := Event{
		EventType: EventIdentitiesReloaded,
		Metadata:  map[string]string{"identities": fmt.Sprintf("%d", identities)},
	}
	if err != nil {
		event.Error = err.Error()
	}
	_ = s.logger.Log(ctx, event)
}
