package models

import (
	"sort"
	"strings"
	"time"

	"venty/internal/agreement"
)

type Contact struct {
	Phone string `bson:"phone" json:"phone,omitempty"`
	Email string `bson:"email,omitempty" json:"email,omitempty"`
}

func (c Contact) IsZero() bool {
	return c.Phone == "" && c.Email == ""
}

type Participant struct {
	ID          string         `bson:"id" json:"id"`
	Role        agreement.Role `bson:"role" json:"role"`
	DisplayName string         `bson:"display_name" json:"display_name"`
	// Contact stays out of JSON; it is only exposed through a ContactCard.
	Contact Contact `bson:"contact" json:"-"`
}

type Conversation struct {
	ID           string            `bson:"_id" json:"id"`
	Variant      agreement.Variant `bson:"variant" json:"variant"`
	Participants []Participant     `bson:"participants" json:"participants"`
	ContextRef   string            `bson:"context_ref" json:"context_ref"`
	PairKey      string            `bson:"pair_key" json:"-"`
	Status       agreement.Status  `bson:"status" json:"status"`
	Agreement    agreement.State   `bson:"agreement" json:"agreement"`
	AgreedAt     *time.Time        `bson:"agreed_at,omitempty" json:"agreed_at,omitempty"`
	ClosedAt     *time.Time        `bson:"closed_at,omitempty" json:"closed_at,omitempty"`
	CloseReason  string            `bson:"close_reason,omitempty" json:"close_reason,omitempty"`
	CreatedAt    time.Time         `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time         `bson:"updated_at" json:"updated_at"`
}

// Participant returns the participant with the given id.
func (c *Conversation) Participant(id string) (*Participant, bool) {
	for i := range c.Participants {
		if c.Participants[i].ID == id {
			return &c.Participants[i], true
		}
	}
	return nil, false
}

// Counterpart returns the other participant of id.
func (c *Conversation) Counterpart(id string) (*Participant, bool) {
	if _, ok := c.Participant(id); !ok {
		return nil, false
	}
	for i := range c.Participants {
		if c.Participants[i].ID != id {
			return &c.Participants[i], true
		}
	}
	return nil, false
}

func (c *Conversation) ParticipantIDs() []string {
	ids := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		ids = append(ids, p.ID)
	}
	return ids
}

// IsOpen reports whether the conversation still accepts messages and toggles.
func (c *Conversation) IsOpen() bool {
	return c.Status == agreement.StatusNegotiating
}

// PairKey identifies the conversation of two participants about one context,
// independent of participant order.
func PairKey(variant agreement.Variant, contextRef string, participantIDs ...string) string {
	ids := append([]string(nil), participantIDs...)
	sort.Strings(ids)
	return string(variant) + "|" + contextRef + "|" + strings.Join(ids, "|")
}

// SharedContact is one side of a ContactCard.
type SharedContact struct {
	ParticipantID string         `json:"participant_id"`
	Role          agreement.Role `json:"role"`
	DisplayName   string         `json:"display_name"`
	Phone         string         `json:"phone,omitempty"`
	Email         string         `json:"email,omitempty"`
}

// ContactCard is the contact disclosure of an agreed conversation.
type ContactCard struct {
	ConversationID string          `json:"conversation_id"`
	AgreedAt       time.Time       `json:"agreed_at"`
	Contacts       []SharedContact `json:"contacts"`
}

// ConversationView is a conversation as seen by one participant.
type ConversationView struct {
	*Conversation
	Role        agreement.Role `json:"role"`
	Counterpart *Participant   `json:"counterpart,omitempty"`
	// Endorsement is the message the viewer endorses; exchange only.
	Endorsement string `json:"endorsement,omitempty"`
}

func (c *Conversation) ViewFor(participantID string) ConversationView {
	view := ConversationView{Conversation: c}
	if p, ok := c.Participant(participantID); ok {
		view.Role = p.Role
	}
	if other, ok := c.Counterpart(participantID); ok {
		view.Counterpart = other
	}
	if c.Variant == agreement.VariantExchange {
		view.Endorsement = c.Agreement.Endorsements[participantID]
	}
	return view
}
