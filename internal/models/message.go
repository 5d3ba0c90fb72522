package models

import (
	"time"

	"venty/internal/agreement"
)

type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeSystem MessageType = "system"
)

// RoleSystem is the sender role of synthesized messages.
const RoleSystem agreement.Role = "system"

// DisplayTimeLayout formats Message.TimestampDisplay.
const DisplayTimeLayout = "15:04"

type Message struct {
	ID               string         `bson:"_id" json:"id"`
	ConversationID   string         `bson:"conversation_id" json:"conversation_id"`
	SenderID         string         `bson:"sender_id" json:"sender_id"`
	SenderRole       agreement.Role `bson:"sender_role" json:"sender_role"`
	Type             MessageType    `bson:"type" json:"type"`
	TextRaw          string         `bson:"text_raw" json:"-"`
	TextClean        string         `bson:"text_clean" json:"-"`
	Timestamp        time.Time      `bson:"timestamp" json:"timestamp"`
	TimestampDisplay string         `bson:"timestamp_display" json:"timestamp_display"`
}

// DisplayText returns the text to show for a conversation in status. Raw text
// is only shown once both sides agreed to disclose.
func (m *Message) DisplayText(status agreement.Status) string {
	if status == agreement.StatusAgreed {
		return m.TextRaw
	}
	return m.TextClean
}

// MessageView is the client representation of a message.
type MessageView struct {
	ID               string         `json:"id"`
	ConversationID   string         `json:"conversation_id"`
	SenderID         string         `json:"sender_id"`
	SenderRole       agreement.Role `json:"sender_role"`
	Type             MessageType    `json:"type"`
	Text             string         `json:"text"`
	Timestamp        time.Time      `json:"timestamp"`
	TimestampDisplay string         `json:"timestamp_display"`
}

func (m *Message) View(status agreement.Status) MessageView {
	return MessageView{
		ID:               m.ID,
		ConversationID:   m.ConversationID,
		SenderID:         m.SenderID,
		SenderRole:       m.SenderRole,
		Type:             m.Type,
		Text:             m.DisplayText(status),
		Timestamp:        m.Timestamp,
		TimestampDisplay: m.TimestampDisplay,
	}
}
