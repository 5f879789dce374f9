package handler

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
	"github.com/saturnino-fabrica-de-software/vigia/internal/hub"
)

// CameraRegistry is the camera table as seen by the API
type CameraRegistry interface {
	List() []domain.Camera
	Get(cameraID string) (domain.Camera, bool)
	Register(ctx context.Context, camera domain.Camera) (domain.Camera, error)
}

// FeedStats exposes the hub's per camera counters
type FeedStats interface {
	CameraStats(cameraID string) (hub.CameraStats, bool)
	Online(cameraID string) bool
}

// ViewerCounter reports websocket viewers per camera
type ViewerCounter interface {
	Viewers(cameraID string) int
}

type CameraHandler struct {
	cameras CameraRegistry
	feeds   FeedStats
	viewers ViewerCounter
}

func NewCameraHandler(cameras CameraRegistry, feeds FeedStats, viewers ViewerCounter) *CameraHandler {
	return &CameraHandler{cameras: cameras, feeds: feeds, viewers: viewers}
}

type CameraResponse struct {
	domain.Camera
	Online  bool `json:"online"`
	Viewers int  `json:"viewers"`
}

type CameraListResponse struct {
	Cameras []CameraResponse `json:"cameras"`
	Total   int              `json:"total"`
}

type RegisterCameraRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location"`
	Source   string `json:"source"`
}

// List handles GET /v1/cameras
func (h *CameraHandler) List(c *fiber.Ctx) error {
	cameras := h.cameras.List()
	out := make([]CameraResponse, 0, len(cameras))
	for _, camera := range cameras {
		out = append(out, h.view(camera))
	}
	return c.JSON(CameraListResponse{Cameras: out, Total: len(out)})
}

// Get handles GET /v1/cameras/:id
func (h *CameraHandler) Get(c *fiber.Ctx) error {
	camera, ok := h.cameras.Get(c.Params("id"))
	if !ok {
		return domain.ErrCameraNotFound
	}
	return c.JSON(h.view(camera))
}

// Register handles POST /v1/cameras
func (h *CameraHandler) Register(c *fiber.Ctx) error {
	var req RegisterCameraRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.ErrBadRequest.WithError(err)
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		return domain.ErrValidationFailed
	}
	if req.Name == "" {
		req.Name = req.ID
	}

	camera, err := h.cameras.Register(c.UserContext(), domain.Camera{
		ID:       req.ID,
		Name:     req.Name,
		Location: req.Location,
		Source:   req.Source,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(h.view(camera))
}

// Stats handles GET /v1/cameras/:id/stats. A known camera that never
// published returns an empty snapshot.
func (h *CameraHandler) Stats(c *fiber.Ctx) error {
	cameraID := c.Params("id")
	if _, ok := h.cameras.Get(cameraID); !ok {
		return domain.ErrCameraNotFound
	}
	stats, ok := h.feeds.CameraStats(cameraID)
	if !ok {
		stats = hub.CameraStats{Consumers: map[string]hub.ConsumerStats{}}
	}
	return c.JSON(stats)
}

func (h *CameraHandler) view(camera domain.Camera) CameraResponse {
	resp := CameraResponse{Camera: camera, Online: h.feeds.Online(camera.ID)}
	if h.viewers != nil {
		resp.Viewers = h.viewers.Viewers(camera.ID)
	}
	return resp
}
