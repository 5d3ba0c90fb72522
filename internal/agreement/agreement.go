// Package agreement tracks mutual consent to disclose contact details in a
// two-party negotiation.
package agreement

import (
	"errors"
	"fmt"
)

// Status is the lifecycle state of a conversation.
type Status string

const (
	StatusNegotiating Status = "negotiating"
	StatusAgreed      Status = "agreed"
	StatusClosed      Status = "closed"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusNegotiating, StatusAgreed, StatusClosed:
		return true
	}
	return false
}

// IsTerminal reports whether no further messages or toggles are accepted.
func (s Status) IsTerminal() bool {
	return s == StatusAgreed || s == StatusClosed
}

// Variant selects how agreement is expressed.
type Variant string

const (
	// VariantUnified is the buyer/merchant chat: one boolean flag per role.
	VariantUnified Variant = "unified"
	// VariantExchange is the peer/peer chat: each peer endorses a message id.
	VariantExchange Variant = "exchange"
)

func (v Variant) IsValid() bool {
	switch v {
	case VariantUnified, VariantExchange:
		return true
	}
	return false
}

// Role is a participant's side in a unified conversation.
type Role string

const (
	RoleUser     Role = "user"
	RoleMerchant Role = "merchant"
	RolePeer     Role = "peer"
)

var (
	// ErrLocked is returned for any toggle once both sides have agreed.
	ErrLocked = errors.New("agreement already reached")
	// ErrInvalidToggle is returned when a toggle does not fit the policy.
	ErrInvalidToggle = errors.New("invalid agreement toggle")
)

// State is the persisted agreement data of a conversation. Only the fields of
// the conversation's variant are used.
type State struct {
	UserAgreed     bool              `bson:"user_agreed" json:"user_agreed"`
	MerchantAgreed bool              `bson:"merchant_agreed" json:"merchant_agreed"`
	Endorsements   map[string]string `bson:"endorsements,omitempty" json:"endorsements,omitempty"`
}

// Toggle is one participant's change of consent.
type Toggle struct {
	ParticipantID string
	Role          Role
	// MessageID is the endorsed deal message; exchange variant only.
	MessageID string
}

// Policy drives the agreement state of one conversation.
type Policy interface {
	Variant() Variant
	// Toggle applies t to the underlying State and returns the resulting status.
	Toggle(t Toggle) (Status, error)
	IsAgreed() bool
}

// NewPolicy returns the policy for variant operating on state. participants
// are the two participant ids of the conversation.
func NewPolicy(variant Variant, state *State, participants []string) (Policy, error) {
	if state == nil {
		return nil, fmt.Errorf("%w: nil state", ErrInvalidToggle)
	}
	switch variant {
	case VariantUnified:
		return &MutualFlagPolicy{state: state}, nil
	case VariantExchange:
		if len(participants) != 2 || participants[0] == participants[1] {
			return nil, fmt.Errorf("%w: exchange needs two distinct participants", ErrInvalidToggle)
		}
		return &MutualEndorsementPolicy{state: state, participants: [2]string{participants[0], participants[1]}}, nil
	default:
		return nil, fmt.Errorf("%w: unknown variant %q", ErrInvalidToggle, variant)
	}
}

func statusOf(p Policy) Status {
	if p.IsAgreed() {
		return StatusAgreed
	}
	return StatusNegotiating
}
