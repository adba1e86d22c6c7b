package websocket

import (
	"github.com/gofiber/websocket/v2"
)

// ServeWs runs one websocket session until the peer goes away.
func ServeWs(hub *Hub, c *websocket.Conn, userID string) {
	client := newClient(hub, c, userID)
	client.attach(hub.registry)
	if !hub.registerClient(client) {
		// Shutting down
		client.detach()
		c.Close()
		return
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	client.readPump() // Run readPump in current goroutine (handler)
}
