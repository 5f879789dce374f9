package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

const (
	// HeaderIngestToken carries the producer token on ingest routes
	HeaderIngestToken = "X-Ingest-Token"
	// LocalCameraID is the key to retrieve the accepted camera id from context
	LocalCameraID = "camera_id"
)

// CameraAcceptor reports whether frames from a camera are accepted.
type CameraAcceptor interface {
	Accepts(cameraID string) bool
}

// IngestAuth checks the producer token. The token is read from the
// X-Ingest-Token header, a Bearer Authorization header, or the "token" query
// parameter for browser websocket clients. An empty configured token
// disables the check.
func IngestAuth(token string) fiber.Handler {
	if token == "" {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	want := sha256.Sum256([]byte(token))

	return func(c *fiber.Ctx) error {
		got := extractIngestToken(c)
		if got == "" {
			return domain.ErrUnauthorized
		}
		sum := sha256.Sum256([]byte(got))
		if subtle.ConstantTimeCompare(sum[:], want[:]) != 1 {
			return domain.ErrUnauthorized
		}
		return c.Next()
	}
}

// CameraGate rejects requests for cameras the registry does not know.
func CameraGate(cameras CameraAcceptor) fiber.Handler {
	return func(c *fiber.Ctx) error {
		cameraID := c.Params("id")
		if cameraID == "" || !cameras.Accepts(cameraID) {
			return domain.ErrCameraNotFound
		}
		c.Locals(LocalCameraID, cameraID)
		return c.Next()
	}
}

func extractIngestToken(c *fiber.Ctx) string {
	if token := strings.TrimSpace(c.Get(HeaderIngestToken)); token != "" {
		return token
	}
	if auth := c.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return c.Query("token")
}
