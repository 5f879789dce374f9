package repository

import (
	"context"
	"fmt"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

// AttendanceRepository persists attendance events. It is an event sink.
type AttendanceRepository struct {
	pool PgxPool
}

func NewAttendanceRepository(pool PgxPool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

func (r *AttendanceRepository) PublishAttendance(ctx context.Context, event domain.AttendanceEvent) error {
	query := `
		INSERT INTO attendance_events (id, identity_id, camera_id, confidence, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.pool.Exec(ctx, query,
		event.ID,
		event.IdentityID,
		event.CameraID,
		event.Confidence,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert attendance event: %w", err)
	}
	return nil
}

// Recent returns the latest attendance events of a camera, newest first
func (r *AttendanceRepository) Recent(ctx context.Context, cameraID string, limit int) ([]domain.AttendanceEvent, error) {
	query := `
		SELECT id, identity_id, camera_id, confidence, occurred_at
		FROM attendance_events
		WHERE camera_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, cameraID, limit)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	defer rows.Close()

	var events []domain.AttendanceEvent
	for rows.Next() {
		var e domain.AttendanceEvent
		if err := rows.Scan(&e.ID, &e.IdentityID, &e.CameraID, &e.Confidence, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance: %w", err)
	}
	return events, nil
}

// AlertRepository persists alerts. It is an event sink.
type AlertRepository struct {
	pool PgxPool
}

func NewAlertRepository(pool PgxPool) *AlertRepository {
	return &AlertRepository{pool: pool}
}

func (r *AlertRepository) PublishAlert(ctx context.Context, alert domain.Alert) error {
	query := `
		INSERT INTO alerts (id, camera_id, track_id, identity_id, label, confidence, severity, low_confidence, evidence_ref, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.pool.Exec(ctx, query,
		alert.ID,
		alert.CameraID,
		int64(alert.TrackID),
		nullable(alert.IdentityID),
		alert.Label,
		alert.Confidence,
		string(alert.Severity),
		alert.LowConfidence,
		nullable(alert.EvidenceRef),
		alert.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// Recent returns the latest alerts of a camera, newest first
func (r *AlertRepository) Recent(ctx context.Context, cameraID string, limit int) ([]domain.Alert, error) {
	query := `
		SELECT id, camera_id, track_id, COALESCE(identity_id, ''), label, confidence, severity, low_confidence, COALESCE(evidence_ref, ''), occurred_at
		FROM alerts
		WHERE camera_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, cameraID, limit)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []domain.Alert
	for rows.Next() {
		var (
			a        domain.Alert
			trackID  int64
			severity string
		)
		if err := rows.Scan(&a.ID, &a.CameraID, &trackID, &a.IdentityID, &a.Label, &a.Confidence,
			&severity, &a.LowConfidence, &a.EvidenceRef, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.TrackID = uint64(trackID)
		a.Severity = domain.Severity(severity)
		alerts = append(alerts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return alerts, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
