package middleware

import (
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticCameras map[string]bool

func (s staticCameras) Accepts(cameraID string) bool { return s[cameraID] }

func newAuthApp(token string) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(slog.Default())})
	app.Post("/cameras/:id/frames", IngestAuth(token), CameraGate(staticCameras{"cam-1": true}), func(c *fiber.Ctx) error {
		return c.SendString(c.Locals(LocalCameraID).(string))
	})
	return app
}

func TestIngestAuth(t *testing.T) {
	tests := []struct {
		name       string
		token      string
		path       string
		headers    map[string]string
		wantStatus int
	}{
		{
			name:       "header token",
			token:      "secret",
			path:       "/cameras/cam-1/frames",
			headers:    map[string]string{HeaderIngestToken: "secret"},
			wantStatus: fiber.StatusOK,
		},
		{
			name:       "bearer token",
			token:      "secret",
			path:       "/cameras/cam-1/frames",
			headers:    map[string]string{"Authorization": "Bearer secret"},
			wantStatus: fiber.StatusOK,
		},
		{
			name:       "query token",
			token:      "secret",
			path:       "/cameras/cam-1/frames?token=secret",
			wantStatus: fiber.StatusOK,
		},
		{
			name:       "missing token",
			token:      "secret",
			path:       "/cameras/cam-1/frames",
			wantStatus: fiber.StatusUnauthorized,
		},
		{
			name:       "wrong token",
			token:      "secret",
			path:       "/cameras/cam-1/frames",
			headers:    map[string]string{HeaderIngestToken: "nope"},
			wantStatus: fiber.StatusUnauthorized,
		},
		{
			name:       "auth disabled",
			token:      "",
			path:       "/cameras/cam-1/frames",
			wantStatus: fiber.StatusOK,
		},
		{
			name:       "unknown camera",
			token:      "secret",
			path:       "/cameras/cam-9/frames",
			headers:    map[string]string{HeaderIngestToken: "secret"},
			wantStatus: fiber.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newAuthApp(tt.token)
			req := httptest.NewRequest("POST", tt.path, nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestExtractIngestToken_HeaderWins(t *testing.T) {
	app := fiber.New()
	var got string
	app.Get("/", func(c *fiber.Ctx) error {
		got = extractIngestToken(c)
		return nil
	})

	req := httptest.NewRequest("GET", "/?token=query", nil)
	req.Header.Set(HeaderIngestToken, "header")
	_, err := app.Test(req)

	require.NoError(t, err)
	assert.Equal(t, "header", got)
}
