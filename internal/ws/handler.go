package ws

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
	"github.com/saturnino-fabrica-de-software/vigia/internal/hub"
)

// FrameSource hands out frame subscriptions for the viewer relay.
type FrameSource interface {
	Subscribe(cameraID, consumer string) (*hub.Subscription, error)
}

// FrameSink receives frames pushed by a producer socket.
type FrameSink interface {
	Publish(cameraID string, data []byte, capturedAt time.Time) (domain.Frame, error)
	MarkOffline(cameraID string)
}

type frameStream interface {
	Next(ctx context.Context) (domain.Frame, error)
}

// ViewHandler joins the viewer to the camera room and relays the camera's
// frames as binary messages alongside the JSON events.
func ViewHandler(rooms *Hub, frames FrameSource, logger *slog.Logger) fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		cameraID := c.Params("id")
		client := newClient(rooms, c, cameraID, defaultClientBuffer)
		if !rooms.Register(client) {
			_ = c.Close()
			return
		}

		r := &relay{
			frames:   frames,
			cameraID: cameraID,
			consumer: "viewer-" + uuid.NewString(),
			client:   client,
			logger:   logger.With(slog.String("camera_id", cameraID)),
		}
		sub, err := frames.Subscribe(cameraID, r.consumer)
		if err != nil {
			logger.Warn("viewer subscribe failed", slog.String("camera_id", cameraID), slog.Any("error", err))
			rooms.Unregister(client)
			_ = c.Close()
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		go r.run(ctx, sub)
		go client.WritePump()
		client.ReadPump()
	})
}

// relay feeds one viewer from the frame hub. When the hub releases the
// camera the relay subscribes again; the new subscription waits for the
// producer to come back.
type relay struct {
	frames   FrameSource
	cameraID string
	consumer string
	client   *Client
	logger   *slog.Logger
}

func (r *relay) run(ctx context.Context, sub *hub.Subscription) {
	for {
		err := relayFrames(ctx, sub, r.client)
		sub.Close()
		if !errors.Is(err, domain.ErrCameraOffline) || ctx.Err() != nil {
			return
		}

		sub, err = r.frames.Subscribe(r.cameraID, r.consumer)
		if err != nil {
			if !errors.Is(err, hub.ErrHubClosed) {
				r.logger.Warn("viewer resubscribe failed", slog.Any("error", err))
			}
			r.client.hub.Unregister(r.client)
			return
		}
		r.logger.Debug("viewer resubscribed after camera release")
	}
}

// relayFrames forwards frames until the stream ends or the client is closed,
// and returns the stream error. Frames are dropped while the viewer's frame
// queue is full.
func relayFrames(ctx context.Context, frames frameStream, client *Client) error {
	for {
		frame, err := frames.Next(ctx)
		if err != nil {
			return err
		}
		if !client.sendFrame(binaryMessage(frame.Data)) && client.isClosed() {
			return nil
		}
	}
}

// IngestHandler publishes every binary message as a frame of the camera.
// Closing the socket marks the camera offline.
func IngestHandler(frames FrameSink, logger *slog.Logger) fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		cameraID := c.Params("id")
		log := logger.With(slog.String("camera_id", cameraID))
		log.Info("producer connected")

		defer func() {
			frames.MarkOffline(cameraID)
			_ = c.Close()
			log.Info("producer disconnected")
		}()

		for {
			kind, data, err := c.ReadMessage()
			if err != nil {
				return
			}
			if kind != websocket.BinaryMessage || len(data) == 0 {
				continue
			}
			if _, err := frames.Publish(cameraID, data, time.Time{}); err != nil {
				if !errors.Is(err, hub.ErrHubClosed) {
					log.Error("frame publish failed", slog.Any("error", err))
				}
				return
			}
		}
	})
}

// UpgradeMiddleware rejects plain HTTP requests on websocket routes.
func UpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}
