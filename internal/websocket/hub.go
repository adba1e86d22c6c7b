package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"logistics-admin-be/internal/model"
	"logistics-admin-be/internal/pkg/logger"
	"logistics-admin-be/pkg/notifsync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	clusterChannel = "cluster_events"
	broadcastAll   = "*"
)

type Hub struct {
	// Registered clients map: UserID -> List of Clients (multi-device)
	clients map[string][]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Closed when Run returns; register and unregister sends give up then
	done chan struct{}

	// Lock for safe map access
	mu sync.RWMutex

	// Redis connection for cross-instance communication
	rdb *redis.Client

	// Tags our own cluster messages so they are not delivered twice
	instanceID string

	// Per-user live notification engines
	registry *notifsync.Registry

	logger logger.Logger
}

// clusterMessage travels on the redis channel between instances.
type clusterMessage struct {
	Origin       string          `json:"origin"`
	TargetUserID string          `json:"target_user_id"`
	Message      json.RawMessage `json:"message"`
}

func NewHub(rdb *redis.Client, registry *notifsync.Registry, log logger.Logger) *Hub {
	if log == nil {
		log = logger.NewNop()
	}
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[string][]*Client),
		rdb:        rdb,
		instanceID: uuid.NewString(),
		registry:   registry,
		logger:     log,
	}
}

// Run serves register and unregister requests until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	// Start Redis Subscriber if Redis is available
	if h.rdb != nil {
		go h.subscribeToRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.UserID] = append(h.clients[client.UserID], client)
			h.mu.Unlock()
			h.logger.Info("Hub", "Client registered", map[string]interface{}{"user_id": client.UserID})

		case client := <-h.unregister:
			h.remove(client)
		}
	}
}

// registerClient hands client to Run. It reports false once the hub stopped.
func (h *Hub) registerClient(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// unregisterClient is a no-op once the hub stopped; closeAll already
// released every client.
func (h *Hub) unregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[client.UserID]
	if !ok {
		return
	}
	for i, c := range clients {
		if c == client {
			h.clients[client.UserID] = append(clients[:i], clients[i+1:]...)
			client.close()
			break
		}
	}
	if len(h.clients[client.UserID]) == 0 {
		delete(h.clients, client.UserID)
		h.logger.Info("Hub", "Client completely unregistered", map[string]interface{}{"user_id": client.UserID})
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, clients := range h.clients {
		for _, c := range clients {
			c.close()
		}
		delete(h.clients, userID)
	}
}

// Connected reports how many sessions a user has on this instance.
func (h *Hub) Connected(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Broadcast sends a notification to ALL connected clients.
func (h *Hub) Broadcast(notification model.Notification) {
	data := encode(FrameNotification, notification)
	h.deliverAll(data)
	h.publish(broadcastAll, data)
}

// Send pushes a notification toast to every session of userID, here and on
// the other instances.
func (h *Hub) Send(userID string, notification model.Notification) {
	data := encode(FrameNotification, notification)
	h.deliver(userID, data)
	h.publish(userID, data)
}

func (h *Hub) deliver(userID string, data []byte) {
	h.mu.RLock()
	clients := append([]*Client(nil), h.clients[userID]...)
	h.mu.RUnlock()

	for _, client := range clients {
		h.push(client, data)
	}
}

func (h *Hub) deliverAll(data []byte) {
	h.mu.RLock()
	var all []*Client
	for _, clients := range h.clients {
		all = append(all, clients...)
	}
	h.mu.RUnlock()

	for _, client := range all {
		h.push(client, data)
	}
}

func (h *Hub) push(client *Client, data []byte) {
	if client.enqueue(data) {
		return
	}
	h.logger.Warn("Hub", "Client Send buffer full, dropping client", map[string]interface{}{"user_id": client.UserID})
	// Run owns the map; never block the caller on it
	go h.unregisterClient(client)
}

func (h *Hub) publish(target string, data []byte) {
	if h.rdb == nil {
		return
	}
	payload, _ := json.Marshal(clusterMessage{Origin: h.instanceID, TargetUserID: target, Message: data})
	if err := h.rdb.Publish(context.Background(), clusterChannel, payload).Err(); err != nil {
		h.logger.Warn("Hub", "Cluster publish failed", map[string]interface{}{"error": err.Error()})
	}
}

// subscribeToRedis relays frames published by the other instances. Every
// instance listens on one channel and keeps only the users it holds locally.
func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, clusterChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.dispatchCluster([]byte(msg.Payload))
		}
	}
}

func (h *Hub) dispatchCluster(raw []byte) {
	var payload clusterMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.logger.Warn("Hub", "Redis msg parse error", map[string]interface{}{"error": err.Error()})
		return
	}
	if payload.Origin == h.instanceID {
		return
	}

	if payload.TargetUserID == broadcastAll {
		h.deliverAll(payload.Message)
		return
	}
	h.deliver(payload.TargetUserID, payload.Message)
}
