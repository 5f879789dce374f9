package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

var ErrRejected = errors.New("webhook rejected the delivery")

// Sink POSTs signed events to a single endpoint, retrying transport errors,
// 429 and 5xx responses with exponential backoff.
type Sink struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

func NewSink(config Config, logger *slog.Logger) (*Sink, error) {
	if config.URL == "" {
		return nil, errors.New("webhook url is required")
	}
	defaults := DefaultConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = defaults.BaseDelay
	}

	return &Sink{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger.With("component", "webhook"),
	}, nil
}

func (s *Sink) PublishAttendance(ctx context.Context, event domain.AttendanceEvent) error {
	return s.Send(ctx, EventPayload{
		ID:        event.ID,
		Type:      EventAttendance,
		Data:      event,
		Timestamp: event.Timestamp,
	})
}

func (s *Sink) PublishAlert(ctx context.Context, alert domain.Alert) error {
	return s.Send(ctx, EventPayload{
		ID:        alert.ID,
		Type:      EventAlert,
		Data:      alert,
		Timestamp: alert.Timestamp,
	})
}

// Send delivers event, retrying until it is accepted, rejected, attempts run
// out or ctx is done.
func (s *Sink) Send(ctx context.Context, event EventPayload) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < s.config.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<(attempt-1)) * s.config.BaseDelay
			select {
			case <-ctx.Done():
				return fmt.Errorf("webhook %s: %w (last error: %v)", event.Type, ctx.Err(), lastErr)
			case <-time.After(delay):
			}
		}

		retry, err := s.post(ctx, event, payload)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			return err
		}

		s.logger.Warn("webhook delivery failed",
			slog.String("event_type", event.Type),
			slog.String("delivery_id", event.ID.String()),
			slog.Int("attempt", attempt+1),
			slog.Any("error", err),
		)
	}

	return fmt.Errorf("webhook %s: giving up after %d attempts: %w", event.Type, s.config.MaxAttempts, lastErr)
}

func (s *Sink) post(ctx context.Context, event EventPayload, payload []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.URL, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, Sign(s.config.Secret, payload))
	req.Header.Set(HeaderEvent, event.Type)
	req.Header.Set(HeaderDelivery, event.ID.String())
	req.Header.Set("User-Agent", "Vigia-Webhook/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return ctx.Err() == nil, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return true, fmt.Errorf("HTTP %d", resp.StatusCode)
	default:
		return false, fmt.Errorf("%w: HTTP %d", ErrRejected, resp.StatusCode)
	}
}
