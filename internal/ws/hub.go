// Package ws serves camera rooms over websockets: producers push frames in,
// viewers receive relayed frames plus overlay and alert events.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

const defaultClientBuffer = 64

// Hub groups viewer clients into per-camera rooms.
type Hub struct {
	rooms      map[string]map[*Client]bool
	broadcast  chan Event
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	logger     *slog.Logger
	now        func() time.Time
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger.With("component", "ws"),
		now:        time.Now,
	}
}

// Run processes registrations and broadcasts until ctx is done, then closes
// every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case event := <-h.broadcast:
			h.broadcastToRoom(event)
		}
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Register adds a client to its camera room. It reports false when the hub
// is no longer running.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[client.cameraID] == nil {
		h.rooms[client.cameraID] = make(map[*Client]bool)
	}
	h.rooms[client.cameraID][client] = true
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(client)
}

func (h *Hub) dropLocked(client *Client) {
	room := h.rooms[client.cameraID]
	if _, ok := room[client]; !ok {
		return
	}
	delete(room, client)
	if len(room) == 0 {
		delete(h.rooms, client.cameraID)
	}
	client.close()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range h.rooms {
		for client := range room {
			client.close()
		}
	}
	h.rooms = make(map[string]map[*Client]bool)
}

func (h *Hub) broadcastToRoom(event Event) {
	message, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal ws event", slog.Any("error", err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.rooms[event.CameraID] {
		if !client.sendEvent(textMessage(message)) {
			// viewer can't keep up with events
			h.dropLocked(client)
		}
	}
}

// Broadcast queues an event for every viewer of cameraID. Events are dropped
// when the hub is saturated.
func (h *Hub) Broadcast(cameraID string, eventType EventType, data interface{}) {
	event := Event{
		CameraID:  cameraID,
		Type:      eventType,
		Data:      data,
		Timestamp: h.now(),
	}

	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("ws broadcast queue full, event dropped",
			slog.String("camera_id", cameraID),
			slog.String("type", string(eventType)),
		)
	}
}

func (h *Hub) PublishOverlay(overlay domain.Overlay) {
	if h.Viewers(overlay.CameraID) == 0 {
		return
	}
	h.Broadcast(overlay.CameraID, EventOverlay, overlay)
}

// PublishAlert makes the hub an alert sink for the camera room.
func (h *Hub) PublishAlert(_ context.Context, alert domain.Alert) error {
	h.Broadcast(alert.CameraID, EventAlert, alert)
	return nil
}

// CameraStatus is registered as a frame hub status listener.
func (h *Hub) CameraStatus(cameraID string, status domain.CameraStatus) {
	h.Broadcast(cameraID, EventCameraStatus, map[string]domain.CameraStatus{"status": status})
}

func (h *Hub) Viewers(cameraID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.rooms[cameraID])
}

func textMessage(data []byte) message {
	return message{kind: websocket.TextMessage, data: data}
}

func binaryMessage(data []byte) message {
	return message{kind: websocket.BinaryMessage, data: data}
}
