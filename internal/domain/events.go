package domain

import (
	"time"

	"github.com/google/uuid"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// AttendanceEvent records that an enrolled identity was seen on a camera.
type AttendanceEvent struct {
	ID         uuid.UUID `json:"id"`
	IdentityID string    `json:"identity_id"`
	CameraID   string    `json:"camera_id"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence"`
}

// Alert is an activity event that passed the cool-down policy.
type Alert struct {
	ID            uuid.UUID `json:"id"`
	CameraID      string    `json:"camera_id"`
	TrackID       uint64    `json:"track_id"`
	IdentityID    string    `json:"identity_id,omitempty"`
	Label         string    `json:"label"`
	Confidence    float64   `json:"confidence"`
	Severity      Severity  `json:"severity"`
	LowConfidence bool      `json:"low_confidence"`
	Timestamp     time.Time `json:"timestamp"`
	EvidenceRef   string    `json:"evidence_ref,omitempty"`
}
