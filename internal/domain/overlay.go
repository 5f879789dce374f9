package domain

import "time"

// UnknownIdentity is the display name of faces that matched nobody.
const UnknownIdentity = "Unknown"

// Overlay is the annotation published alongside a processed frame for
// viewers. Its JSON shape is stable.
type Overlay struct {
	CameraID   string          `json:"camera_id"`
	Seq        uint64          `json:"seq"`
	CapturedAt time.Time       `json:"captured_at"`
	Faces      []FaceOverlay   `json:"faces"`
	People     []PersonOverlay `json:"people"`
	TimedOut   bool            `json:"timed_out,omitempty"`
}

type FaceOverlay struct {
	Box           BoundingBox `json:"box"`
	IdentityID    string      `json:"identity_id,omitempty"`
	Name          string      `json:"name"`
	Score         float64     `json:"score"`
	LowConfidence bool        `json:"low_confidence"`
}

type PersonOverlay struct {
	Box           BoundingBox `json:"box"`
	TrackID       uint64      `json:"track_id"`
	Label         string      `json:"label"`
	State         string      `json:"state"`
	Confidence    float64     `json:"confidence"`
	Severity      Severity    `json:"severity"`
	LowConfidence bool        `json:"low_confidence"`
}
