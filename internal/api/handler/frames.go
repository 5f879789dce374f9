package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
	"github.com/saturnino-fabrica-de-software/vigia/internal/hub"
)

// HeaderCapturedAt optionally carries the producer's capture time (RFC3339)
const HeaderCapturedAt = "X-Captured-At"

// FramePublisher accepts frames into the broadcast hub
type FramePublisher interface {
	Publish(cameraID string, data []byte, capturedAt time.Time) (domain.Frame, error)
}

type FrameHandler struct {
	frames  FramePublisher
	maxSize int
}

// NewFrameHandler builds the single frame ingest handler. Frames larger than
// maxSize bytes are rejected; zero disables the limit.
func NewFrameHandler(frames FramePublisher, maxSize int) *FrameHandler {
	return &FrameHandler{frames: frames, maxSize: maxSize}
}

type FrameResponse struct {
	CameraID   string    `json:"camera_id"`
	Seq        uint64    `json:"seq"`
	CapturedAt time.Time `json:"captured_at"`
}

// Publish handles POST /v1/cameras/:id/frames with the image as the body
func (h *FrameHandler) Publish(c *fiber.Ctx) error {
	body := c.Body()
	if len(body) == 0 {
		return domain.ErrInvalidImage
	}
	if h.maxSize > 0 && len(body) > h.maxSize {
		return fiber.ErrRequestEntityTooLarge
	}

	var capturedAt time.Time
	if raw := c.Get(HeaderCapturedAt); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return domain.ErrValidationFailed.WithError(err)
		}
		capturedAt = t
	}

	// fasthttp reuses the body buffer once the handler returns
	data := make([]byte, len(body))
	copy(data, body)

	frame, err := h.frames.Publish(c.Params("id"), data, capturedAt)
	if err != nil {
		if errors.Is(err, hub.ErrHubClosed) {
			return fiber.ErrServiceUnavailable
		}
		return err
	}

	return c.Status(fiber.StatusAccepted).JSON(FrameResponse{
		CameraID:   frame.CameraID,
		Seq:        frame.Seq,
		CapturedAt: frame.CapturedAt,
	})
}
