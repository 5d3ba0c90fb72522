package websocket

import (
	"context"
	"sync"
	"time"

	"venty/internal/config"
	"venty/internal/metrics"
	"venty/pkg/logger"
)

const broadcastBuffer = 256

// Hub fans negotiation events out to the clients watching each conversation.
type Hub struct {
	cfg config.WebSocketConfig

	clients map[*Client]bool

	// Clients organized by conversation ID
	rooms map[string]map[*Client]bool

	// Register requests from clients
	Register chan *Client

	// Unregister requests from clients
	Unregister chan *Client

	broadcast chan *RoomMessage

	// closed when Run returns
	done chan struct{}

	mu sync.RWMutex
}

// NewHub creates a new WebSocket hub
func NewHub(cfg config.WebSocketConfig) *Hub {
	return &Hub{
		cfg:        cfg,
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		broadcast:  make(chan *RoomMessage, broadcastBuffer),
		done:       make(chan struct{}),
	}
}

// Run serves registrations and broadcasts until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case roomMsg := <-h.broadcast:
			h.broadcastToRoom(roomMsg)
		}
	}
}

// Join registers a client unless the hub has stopped.
func (h *Hub) Join(client *Client) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Leave unregisters a client. It is a no-op once the hub has stopped.
func (h *Hub) Leave(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.done:
	}
}

// Publish queues a negotiation event for the conversation's room. Events are
// dropped when the queue is full rather than blocking the caller.
func (h *Hub) Publish(conversationID, event string, payload interface{}) {
	msg := NewWSMessage(MessageType(event), "", payload)
	msg.ConversationID = conversationID
	h.enqueue(&RoomMessage{ConversationID: conversationID, Message: msg})
}

// BroadcastToRoomExcept sends a message to a room except one user
func (h *Hub) BroadcastToRoomExcept(conversationID, excludeUserID string, msg *WSMessage) {
	msg.ConversationID = conversationID
	h.enqueue(&RoomMessage{ConversationID: conversationID, Message: msg, Exclude: excludeUserID})
}

func (h *Hub) enqueue(roomMsg *RoomMessage) {
	select {
	case h.broadcast <- roomMsg:
	default:
		logger.Warnf("websocket broadcast queue full, dropping %s event for %s",
			roomMsg.Message.Type, roomMsg.ConversationID)
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomSize returns the number of clients watching a conversation
func (h *Hub) RoomSize(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[conversationID])
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	room := h.rooms[client.ConversationID]
	if room == nil {
		room = make(map[*Client]bool)
		h.rooms[client.ConversationID] = room
	}
	room[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WebSocketClients.Set(float64(total))

	logger.WithFields(map[string]interface{}{
		"user_id":         client.UserID,
		"conversation_id": client.ConversationID,
		"total_clients":   total,
	}).Info("Client registered")

	client.SendMessage(NewWSMessage(MessageTypeSubscribed, "Connected successfully", map[string]interface{}{
		"conversation_id": client.ConversationID,
		"server_time":     time.Now(),
	}))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	if room, exists := h.rooms[client.ConversationID]; exists {
		delete(room, client)
		if len(room) == 0 {
			delete(h.rooms, client.ConversationID)
		}
	}
	client.close()
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WebSocketClients.Set(float64(total))

	logger.WithFields(map[string]interface{}{
		"user_id":         client.UserID,
		"conversation_id": client.ConversationID,
		"total_clients":   total,
	}).Info("Client unregistered")
}

func (h *Hub) broadcastToRoom(roomMsg *RoomMessage) {
	data, err := roomMsg.Message.ToJSON()
	if err != nil {
		logger.WithError(err).Errorf("Failed to marshal %s event", roomMsg.Message.Type)
		return
	}

	var slow []*Client
	h.mu.RLock()
	for client := range h.rooms[roomMsg.ConversationID] {
		if roomMsg.Exclude != "" && client.UserID == roomMsg.Exclude {
			continue
		}
		if !client.enqueue(data) {
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.unregisterClient(client)
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	for client := range h.clients {
		client.close()
	}
	h.clients = make(map[*Client]bool)
	h.rooms = make(map[string]map[*Client]bool)
	h.mu.Unlock()

	close(h.done)

	metrics.WebSocketClients.Set(0)
	logger.Info("WebSocket hub stopped")
}
