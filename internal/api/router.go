package api

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	swagger "github.com/go-swagno/swagno-fiber/swagger"
	"github.com/saturnino-fabrica-de-software/vigia/internal/api/docs"
	"github.com/saturnino-fabrica-de-software/vigia/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/vigia/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/vigia/internal/camera"
	"github.com/saturnino-fabrica-de-software/vigia/internal/hub"
	"github.com/saturnino-fabrica-de-software/vigia/internal/identity"
	"github.com/saturnino-fabrica-de-software/vigia/internal/ws"
)

// DefaultMaxFrameBytes bounds a single ingested frame
const DefaultMaxFrameBytes = 8 << 20

type Dependencies struct {
	Cameras     *camera.Registry
	Frames      *hub.Hub
	Rooms       *ws.Hub
	Identities  *identity.Store
	Reloader    handler.Reloader
	Attendance  handler.AttendanceReader
	Alerts      handler.AlertReader
	DB          handler.Pinger
	Gatherer    prometheus.Gatherer
	IngestToken string

	MaxFrameBytes int
}

type Router struct {
	app    *fiber.App
	logger *slog.Logger
	deps   *Dependencies
}

func NewRouter(logger *slog.Logger, deps *Dependencies) *Router {
	if deps.MaxFrameBytes <= 0 {
		deps.MaxFrameBytes = DefaultMaxFrameBytes
	}
	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(logger),
		AppName:      "Vigia",
		BodyLimit:    deps.MaxFrameBytes + 1<<10,
	})

	return &Router{
		app:    app,
		logger: logger,
		deps:   deps,
	}
}

func (r *Router) Setup() {
	r.app.Use(requestid.New())
	r.app.Use(middleware.Recover(r.logger))
	r.app.Use(middleware.Logger(r.logger, "/health", "/ready", "/metrics"))
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization," + middleware.HeaderIngestToken + "," + handler.HeaderCapturedAt,
	}))

	swagger.SwaggerHandler(r.app, docs.NewSwagger().MustToJson())

	healthHandler := handler.NewHealthHandler(r.deps.DB)
	r.app.Get("/health", healthHandler.Health)
	r.app.Get("/ready", healthHandler.Ready)

	gatherer := r.deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := r.app.Group("/v1")
	auth := middleware.IngestAuth(r.deps.IngestToken)
	gate := middleware.CameraGate(r.deps.Cameras)

	cameraHandler := handler.NewCameraHandler(r.deps.Cameras, r.deps.Frames, r.deps.Rooms)
	v1.Get("/cameras", cameraHandler.List)
	v1.Post("/cameras", auth, cameraHandler.Register)
	v1.Get("/cameras/:id", cameraHandler.Get)
	v1.Get("/cameras/:id/stats", cameraHandler.Stats)

	frameHandler := handler.NewFrameHandler(r.deps.Frames, r.deps.MaxFrameBytes)
	v1.Post("/cameras/:id/frames", auth, gate, frameHandler.Publish)

	if r.deps.Attendance != nil && r.deps.Alerts != nil {
		eventHandler := handler.NewEventHandler(r.deps.Attendance, r.deps.Alerts)
		v1.Get("/cameras/:id/attendance", gate, eventHandler.Attendance)
		v1.Get("/cameras/:id/alerts", gate, eventHandler.Alerts)
	}

	if r.deps.Reloader != nil {
		identityHandler := handler.NewIdentityHandler(r.deps.Reloader, r.deps.Identities)
		v1.Post("/identities/reload", auth, identityHandler.Reload)
		v1.Get("/identities/stats", identityHandler.Stats)
	}

	v1.Get("/ws/ingest/:id", auth, gate, ws.UpgradeMiddleware(), ws.IngestHandler(r.deps.Frames, r.logger))
	v1.Get("/ws/view/:id", gate, ws.UpgradeMiddleware(), ws.ViewHandler(r.deps.Rooms, r.deps.Frames, r.logger))
}

func (r *Router) App() *fiber.App {
	return r.app
}

func (r *Router) Listen(addr string) error {
	return r.app.Listen(addr)
}

func (r *Router) Shutdown(ctx context.Context) error {
	return r.app.ShutdownWithContext(ctx)
}
