// Package mediator turns identity matches and activity verdicts into
// deduplicated attendance events and cooled-down alerts.
package mediator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/vigia/internal/activity"
	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
	"github.com/saturnino-fabrica-de-software/vigia/internal/metrics"
)

const (
	DefaultAttendanceDedup = 10 * time.Second
	DefaultAlertCooldown   = 5 * time.Second
	DefaultCaptureTimeout  = 5 * time.Second
	DefaultMaxCaptures     = 4
)

type Config struct {
	AttendanceDedup time.Duration
	AlertCooldown   time.Duration
	// QuietLabels are classified labels that never raise alerts.
	QuietLabels []string
	// CaptureTimeout bounds writing one evidence clip.
	CaptureTimeout time.Duration
	// MaxCaptures caps clips being written at once. An alert raised while
	// all slots are busy is published without evidence.
	MaxCaptures int
}

// EvidenceRecorder persists footage around an alert and returns a reference
// to it.
type EvidenceRecorder interface {
	Capture(ctx context.Context, cameraID string, alertID uuid.UUID) (string, error)
}

type alertKey struct {
	cameraID string
	trackID  uint64
	label    string
}

type Mediator struct {
	cfg      Config
	sink     Sink
	evidence EvidenceRecorder
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
	quiet    map[string]bool

	attendanceMu sync.Mutex
	lastSeen     map[string]time.Time

	alertMu   sync.Mutex
	cooldowns map[alertKey]time.Time

	captures chan struct{}
	pending  sync.WaitGroup
}

type Option func(*Mediator)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(m *Mediator) { m.now = now }
}

func WithEvidence(rec EvidenceRecorder) Option {
	return func(m *Mediator) { m.evidence = rec }
}

func New(cfg Config, sink Sink, m *metrics.Metrics, logger *slog.Logger, opts ...Option) *Mediator {
	if cfg.AttendanceDedup <= 0 {
		cfg.AttendanceDedup = DefaultAttendanceDedup
	}
	if cfg.AlertCooldown <= 0 {
		cfg.AlertCooldown = DefaultAlertCooldown
	}
	if cfg.CaptureTimeout <= 0 {
		cfg.CaptureTimeout = DefaultCaptureTimeout
	}
	if cfg.MaxCaptures <= 0 {
		cfg.MaxCaptures = DefaultMaxCaptures
	}

	med := &Mediator{
		cfg:       cfg,
		sink:      sink,
		metrics:   m,
		logger:    logger.With("component", "mediator"),
		now:       time.Now,
		quiet:     make(map[string]bool, len(cfg.QuietLabels)),
		lastSeen:  make(map[string]time.Time),
		cooldowns: make(map[alertKey]time.Time),
		captures:  make(chan struct{}, cfg.MaxCaptures),
	}
	for _, l := range cfg.QuietLabels {
		med.quiet[l] = true
	}
	for _, opt := range opts {
		opt(med)
	}
	return med
}

// RecordMatch emits an attendance event unless the identity was already
// recorded on any camera within the dedup window.
func (m *Mediator) RecordMatch(ctx context.Context, cameraID string, match domain.FaceMatch) (domain.AttendanceEvent, bool) {
	now := m.now()

	m.attendanceMu.Lock()
	if last, ok := m.lastSeen[match.IdentityID]; ok && now.Sub(last) < m.cfg.AttendanceDedup {
		m.attendanceMu.Unlock()
		return domain.AttendanceEvent{}, false
	}
	m.lastSeen[match.IdentityID] = now
	m.attendanceMu.Unlock()

	event := domain.AttendanceEvent{
		ID:         uuid.New(),
		IdentityID: match.IdentityID,
		CameraID:   cameraID,
		Timestamp:  now,
		Confidence: match.Score,
	}

	m.metrics.AttendanceEvents.Inc()
	if err := m.sink.PublishAttendance(ctx, event); err != nil {
		m.logger.Error("publish attendance failed",
			slog.String("identity_id", event.IdentityID),
			slog.Any("error", err),
		)
	}
	return event, true
}

// RecordActivity emits an alert for a classified, non-normal verdict unless
// the same camera, track and label alerted within the cool-down. With an
// evidence recorder the alert is published asynchronously, after its clip
// is written; the returned copy carries no EvidenceRef.
func (m *Mediator) RecordActivity(ctx context.Context, v activity.Verdict) (domain.Alert, bool) {
	if v.State != activity.StateClassified || activity.IsNormal(v.Label) || m.quiet[v.Label] {
		return domain.Alert{}, false
	}

	now := m.now()
	key := alertKey{cameraID: v.CameraID, trackID: v.TrackID, label: v.Label}

	m.alertMu.Lock()
	if last, ok := m.cooldowns[key]; ok && now.Sub(last) < m.cfg.AlertCooldown {
		m.alertMu.Unlock()
		return domain.Alert{}, false
	}
	m.cooldowns[key] = now
	m.alertMu.Unlock()

	alert := domain.Alert{
		ID:            uuid.New(),
		CameraID:      v.CameraID,
		TrackID:       v.TrackID,
		IdentityID:    v.IdentityID,
		Label:         v.Label,
		Confidence:    v.Confidence,
		Severity:      v.Severity,
		LowConfidence: v.LowConfidence,
		Timestamp:     now,
	}

	m.metrics.Alerts.WithLabelValues(alert.Label, string(alert.Severity)).Inc()

	if m.evidence != nil {
		select {
		case m.captures <- struct{}{}:
			// published once the clip is on disk
			m.pending.Add(1)
			go m.captureAndPublish(context.WithoutCancel(ctx), alert)
			return alert, true
		default:
			m.logger.Warn("evidence capture busy, alert published without clip",
				slog.String("camera_id", alert.CameraID),
				slog.String("alert_id", alert.ID.String()),
			)
		}
	}

	m.publishAlert(ctx, alert)
	return alert, true
}

func (m *Mediator) captureAndPublish(ctx context.Context, alert domain.Alert) {
	defer m.pending.Done()
	defer func() { <-m.captures }()

	captureCtx, cancel := context.WithTimeout(ctx, m.cfg.CaptureTimeout)
	ref, err := m.evidence.Capture(captureCtx, alert.CameraID, alert.ID)
	cancel()
	if err != nil {
		m.logger.Warn("evidence capture failed",
			slog.String("camera_id", alert.CameraID),
			slog.Any("error", err),
		)
	}
	alert.EvidenceRef = ref

	m.publishAlert(ctx, alert)
}

func (m *Mediator) publishAlert(ctx context.Context, alert domain.Alert) {
	if err := m.sink.PublishAlert(ctx, alert); err != nil {
		m.logger.Error("publish alert failed",
			slog.String("alert_id", alert.ID.String()),
			slog.Any("error", err),
		)
	}
}

// Wait blocks until every in-flight evidence capture has published its
// alert. Call it after the producers have stopped and before closing the
// sinks.
func (m *Mediator) Wait() {
	m.pending.Wait()
}

// ForgetTrack drops cool-down state for a destroyed track.
func (m *Mediator) ForgetTrack(cameraID string, trackID uint64) {
	m.alertMu.Lock()
	defer m.alertMu.Unlock()
	for key := range m.cooldowns {
		if key.cameraID == cameraID && key.trackID == trackID {
			delete(m.cooldowns, key)
		}
	}
}

// Prune discards dedup entries older than the dedup window.
func (m *Mediator) Prune() {
	now := m.now()
	m.attendanceMu.Lock()
	defer m.attendanceMu.Unlock()
	for id, last := range m.lastSeen {
		if now.Sub(last) >= m.cfg.AttendanceDedup {
			delete(m.lastSeen, id)
		}
	}
}
