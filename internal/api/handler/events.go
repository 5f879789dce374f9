package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

type AttendanceReader interface {
	Recent(ctx context.Context, cameraID string, limit int) ([]domain.AttendanceEvent, error)
}

type AlertReader interface {
	Recent(ctx context.Context, cameraID string, limit int) ([]domain.Alert, error)
}

// EventHandler serves the recent attendance and alert history of a camera
type EventHandler struct {
	attendance AttendanceReader
	alerts     AlertReader
}

func NewEventHandler(attendance AttendanceReader, alerts AlertReader) *EventHandler {
	return &EventHandler{attendance: attendance, alerts: alerts}
}

type AttendanceListResponse struct {
	Events []domain.AttendanceEvent `json:"events"`
	Total  int                      `json:"total"`
}

type AlertListResponse struct {
	Alerts []domain.Alert `json:"alerts"`
	Total  int            `json:"total"`
}

// Attendance handles GET /v1/cameras/:id/attendance?limit=
func (h *EventHandler) Attendance(c *fiber.Ctx) error {
	limit, err := parseLimit(c)
	if err != nil {
		return err
	}
	events, err := h.attendance.Recent(c.UserContext(), c.Params("id"), limit)
	if err != nil {
		return domain.ErrInternal.WithError(err)
	}
	if events == nil {
		events = []domain.AttendanceEvent{}
	}
	return c.JSON(AttendanceListResponse{Events: events, Total: len(events)})
}

// Alerts handles GET /v1/cameras/:id/alerts?limit=
func (h *EventHandler) Alerts(c *fiber.Ctx) error {
	limit, err := parseLimit(c)
	if err != nil {
		return err
	}
	alerts, err := h.alerts.Recent(c.UserContext(), c.Params("id"), limit)
	if err != nil {
		return domain.ErrInternal.WithError(err)
	}
	if alerts == nil {
		alerts = []domain.Alert{}
	}
	return c.JSON(AlertListResponse{Alerts: alerts, Total: len(alerts)})
}

func parseLimit(c *fiber.Ctx) (int, error) {
	limit := c.QueryInt("limit", defaultEventLimit)
	if limit < 1 || limit > maxEventLimit {
		return 0, domain.ErrValidationFailed
	}
	return limit, nil
}
