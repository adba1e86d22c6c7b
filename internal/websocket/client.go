package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"logistics-admin-be/pkg/notifsync"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	markReadWait   = 10 * time.Second
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	Hub *Hub

	// The websocket connection.
	Conn *websocket.Conn

	// UserID associated with this connection
	UserID string

	// Buffered channel of outbound messages.
	Send chan []byte

	// Live notification state shared with the user's other sessions
	engine         *notifsync.Engine
	release        func()
	removeListener func()

	mu     sync.Mutex
	closed bool
}

func newClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{Hub: hub, Conn: conn, UserID: userID, Send: make(chan []byte, 256)}
}

// attach binds the client to the user's live engine and pushes every state
// change as a snapshot frame.
func (c *Client) attach(registry *notifsync.Registry) {
	if registry == nil {
		return
	}
	c.engine, c.release = registry.Acquire(c.UserID)
	c.removeListener = c.engine.Follow(c.pushSnapshot)
}

func (c *Client) detach() {
	if c.removeListener != nil {
		c.removeListener()
	}
	if c.release != nil {
		c.release()
	}
}

func (c *Client) pushSnapshot(v notifsync.View) {
	c.enqueue(encode(FrameSnapshot, SnapshotData{View: v, Degraded: c.engine.Degraded()}))
}

// enqueue never blocks: a client that does not drain its buffer loses frames
// and gets dropped by the hub.
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
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
		close(c.Send)
	}
}

// handle processes one inbound message.
func (c *Client) handle(ctx context.Context, raw []byte) {
	var msg InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.enqueue(encode(FrameError, "invalid message"))
		return
	}
	if c.engine == nil {
		c.enqueue(encode(FrameError, "live notifications unavailable"))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, markReadWait)
	defer cancel()

	switch msg.Type {
	case MsgMarkRead:
		ok := msg.ID != "" && c.engine.MarkRead(ctx, msg.ID)
		c.enqueue(encode(FrameMarkReadResult, MarkReadResult{ID: msg.ID, Success: ok}))
	case MsgMarkAllRead:
		ok := c.engine.MarkAllRead(ctx)
		c.enqueue(encode(FrameMarkReadResult, MarkReadResult{All: true, Success: ok}))
	default:
		c.enqueue(encode(FrameError, "unknown message type: "+msg.Type))
	}
}

// readPump pumps messages from the websocket connection to the engine.
func (c *Client) readPump() {
	defer func() {
		c.Hub.logger.Debug("WebSocket", "readPump exiting", map[string]interface{}{"user_id": c.UserID})
		c.detach()
		c.Hub.unregisterClient(c)
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("WebSocket", "Unexpected close", map[string]interface{}{"user_id": c.UserID, "error": err.Error()})
			}
			break
		}
		c.handle(context.Background(), message)
	}
}

// writePump pumps messages from the hub to the websocket connection. Each
// frame is its own websocket message so clients can JSON-decode them one by
// one.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Hub.logger.Debug("WebSocket", "Ping failed", map[string]interface{}{"user_id": c.UserID, "error": err.Error()})
				return
			}
		}
	}
}
