package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageType represents different types of WebSocket messages
type MessageType string

const (
	// Negotiation events pushed by the service
	MessageTypeMessage   MessageType = "message"
	MessageTypeAgreement MessageType = "agreement"
	MessageTypeStatus    MessageType = "status"

	// Client originated
	MessageTypeTyping     MessageType = "typing"
	MessageTypeStopTyping MessageType = "stop_typing"
	MessageTypeHeartbeat  MessageType = "heartbeat"

	// System
	MessageTypeSubscribed MessageType = "subscribed"
	MessageTypeError      MessageType = "error"
)

// WSMessage represents a WebSocket message
type WSMessage struct {
	ID             string      `json:"id"`
	Type           MessageType `json:"type"`
	ConversationID string      `json:"conversation_id,omitempty"`
	From           string      `json:"from,omitempty"`
	Content        string      `json:"content,omitempty"`
	Data           interface{} `json:"data,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
}

// RoomMessage is a message addressed to every client of one conversation.
type RoomMessage struct {
	ConversationID string
	Message        *WSMessage
	Exclude        string // user ID to skip
}

// NewWSMessage creates a new WebSocket message
func NewWSMessage(msgType MessageType, content string, data interface{}) *WSMessage {
	return &WSMessage{
		ID:        uuid.NewString(),
		Type:      msgType,
		Content:   content,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// ToJSON converts message to JSON bytes
func (m *WSMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ParseClientMessage decodes a frame sent by a client. Only typing and
// heartbeat frames are accepted; sends go through the REST API so they pass
// the off-platform checks.
func ParseClientMessage(data []byte) (*WSMessage, error) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}

	switch msg.Type {
	case MessageTypeTyping, MessageTypeStopTyping, MessageTypeHeartbeat:
	case "":
		return nil, fmt.Errorf("message type is required")
	default:
		return nil, fmt.Errorf("unsupported message type: %s", msg.Type)
	}

	msg.Content = ""
	msg.Data = nil
	msg.Timestamp = time.Now()
	return &msg, nil
}
