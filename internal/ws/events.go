package ws

import (
	"time"
)

type EventType string

const (
	EventOverlay      EventType = "overlay"
	EventAlert        EventType = "alert.triggered"
	EventCameraStatus EventType = "camera.status"
)

// Event is the JSON text message sent to viewers. Binary messages on the same
// socket carry raw frames.
type Event struct {
	CameraID  string      `json:"camera_id"`
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}
