package websocket

import (
	"fmt"
	"sync"
	"time"

	"venty/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	// Buffer size for client send channel
	sendBufferSize = 64

	// Frames a client may send per minute
	clientFrameLimit = 120
)

var newline = []byte{'\n'}

// Client is one WebSocket connection watching a single conversation.
type Client struct {
	Conn *websocket.Conn
	Hub  *Hub

	// Buffered channel of outbound messages
	Send chan []byte

	UserID         string
	ConversationID string
	IP             string
	ConnectedAt    time.Time

	frameCount  int
	windowStart time.Time
	closed      bool
	mu          sync.Mutex
}

// NewClient creates a new WebSocket client
func NewClient(conn *websocket.Conn, hub *Hub, userID, conversationID string) *Client {
	now := time.Now()
	return &Client{
		Conn:           conn,
		Hub:            hub,
		Send:           make(chan []byte, sendBufferSize),
		UserID:         userID,
		ConversationID: conversationID,
		ConnectedAt:    now,
		windowStart:    now,
	}
}

// ReadPump reads client frames until the connection drops.
func (c *Client) ReadPump() {
	cfg := c.Hub.cfg
	defer func() {
		c.Hub.Leave(c)
		c.Conn.Close()
		logger.LogNegotiationEvent("websocket_disconnected", c.ConversationID, c.UserID, map[string]interface{}{
			"duration_seconds": time.Since(c.ConnectedAt).Seconds(),
		})
	}()

	c.Conn.SetReadLimit(cfg.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
		return nil
	})

	logger.LogNegotiationEvent("websocket_connected", c.ConversationID, c.UserID, map[string]interface{}{
		"ip": c.IP,
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.WithFields(map[string]interface{}{
					"user_id": c.UserID,
					"error":   err.Error(),
				}).Error("WebSocket read error")
			}
			return
		}

		if !c.checkRateLimit(time.Now()) {
			c.sendError("Rate limit exceeded")
			continue
		}

		msg, err := ParseClientMessage(data)
		if err != nil {
			c.sendError(fmt.Sprintf("Invalid message: %v", err))
			continue
		}
		c.handleMessage(msg)
	}
}

// WritePump writes queued messages and pings to the connection.
func (c *Client) WritePump() {
	cfg := c.Hub.cfg
	ticker := time.NewTicker(cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write(newline)
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(msg *WSMessage) {
	switch msg.Type {
	case MessageTypeTyping, MessageTypeStopTyping:
		out := NewWSMessage(msg.Type, "", nil)
		out.From = c.UserID
		c.Hub.BroadcastToRoomExcept(c.ConversationID, c.UserID, out)
	case MessageTypeHeartbeat:
		c.SendMessage(NewWSMessage(MessageTypeHeartbeat, "", map[string]interface{}{
			"server_time": time.Now(),
			"uptime":      time.Since(c.ConnectedAt).Seconds(),
		}))
	}
}

// checkRateLimit allows clientFrameLimit frames per minute.
func (c *Client) checkRateLimit(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if now.Sub(c.windowStart) > time.Minute {
		c.windowStart = now
		c.frameCount = 0
	}
	c.frameCount++
	return c.frameCount <= clientFrameLimit
}

// SendMessage queues a message for the client
func (c *Client) SendMessage(msg *WSMessage) error {
	data, err := msg.ToJSON()
	if err != nil {
		return err
	}
	if !c.enqueue(data) {
		return fmt.Errorf("client send buffer full")
	}
	return nil
}

func (c *Client) sendError(message string) {
	c.SendMessage(NewWSMessage(MessageTypeError, message, nil))
}

// enqueue reports false when the buffer is full or the client is closed.
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
