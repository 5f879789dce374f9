package domain

import "time"

// Frame is a single image published by a camera producer. Data is opaque to
// the hub; decoding is left to the consumers that need pixels.
type Frame struct {
	CameraID   string    `json:"camera_id"`
	Seq        uint64    `json:"seq"`
	CapturedAt time.Time `json:"captured_at"`
	Data       []byte    `json:"-"`
}

type CameraStatus string

const (
	CameraOnline  CameraStatus = "online"
	CameraOffline CameraStatus = "offline"
)

// Camera is an entry of the camera registry.
type Camera struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Location  string       `json:"location,omitempty"`
	Source    string       `json:"source,omitempty"`
	Status    CameraStatus `json:"status"`
	UpdatedAt time.Time    `json:"updated_at"`
}
