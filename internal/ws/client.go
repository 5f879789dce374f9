package ws

import (
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait = 10 * time.Second
	// frames are latest-wins, a short queue keeps the viewer near live
	defaultFrameBuffer = 4
)

type message struct {
	kind int
	data []byte
}

// Client is one viewer connection. Events and relayed frames are queued
// separately: a full frame queue drops frames, a full event queue means the
// viewer is stuck and gets disconnected.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	cameraID string

	events chan message
	frames chan message
	quit   chan struct{}

	mu     sync.Mutex
	closed bool
}

func newClient(hub *Hub, conn *websocket.Conn, cameraID string, buffer int) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		cameraID: cameraID,
		events:   make(chan message, buffer),
		frames:   make(chan message, defaultFrameBuffer),
		quit:     make(chan struct{}),
	}
}

// sendEvent queues an event without blocking. It reports false when the
// client is closed or its event queue is full.
func (c *Client) sendEvent(msg message) bool {
	return c.offer(c.events, msg)
}

// sendFrame queues a frame without blocking. A false return with the client
// still open means the frame was dropped.
func (c *Client) sendFrame(msg message) bool {
	return c.offer(c.frames, msg)
}

func (c *Client) offer(ch chan message, msg message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case ch <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.quit)
	}
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// ReadPump discards viewer input and returns when the connection drops.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

// WritePump writes queued messages, events first, until the client closes.
func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for {
		var msg message
		select {
		case msg = <-c.events:
		default:
			select {
			case msg = <-c.events:
			case msg = <-c.frames:
			case <-c.quit:
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
		}

		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(msg.kind, msg.data); err != nil {
			return
		}
	}
}
