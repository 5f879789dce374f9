package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

// Reloader swaps the in-memory enrollment snapshot for the database's
type Reloader interface {
	Reload(ctx context.Context) (int, error)
}

// StoreStats reports the size of the identity store
type StoreStats interface {
	Identities() int
	Embeddings() int
	Threshold() float64
}

type IdentityHandler struct {
	reloader Reloader
	store    StoreStats
}

func NewIdentityHandler(reloader Reloader, store StoreStats) *IdentityHandler {
	return &IdentityHandler{reloader: reloader, store: store}
}

type IdentityStatsResponse struct {
	Identities int     `json:"identities"`
	Embeddings int     `json:"embeddings"`
	Threshold  float64 `json:"threshold"`
}

// Reload handles POST /v1/identities/reload
func (h *IdentityHandler) Reload(c *fiber.Ctx) error {
	if _, err := h.reloader.Reload(c.UserContext()); err != nil {
		return err
	}
	return c.JSON(h.stats())
}

// Stats handles GET /v1/identities/stats
func (h *IdentityHandler) Stats(c *fiber.Ctx) error {
	return c.JSON(h.stats())
}

func (h *IdentityHandler) stats() IdentityStatsResponse {
	return IdentityStatsResponse{
		Identities: h.store.Identities(),
		Embeddings: h.store.Embeddings(),
		Threshold:  h.store.Threshold(),
	}
}
