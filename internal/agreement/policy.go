package agreement

import "fmt"

// MutualFlagPolicy is the unified variant: the user and the merchant each
// hold a flag, and agreement needs both.
type MutualFlagPolicy struct {
	state *State
}

func (p *MutualFlagPolicy) Variant() Variant { return VariantUnified }

func (p *MutualFlagPolicy) IsAgreed() bool {
	return p.state.UserAgreed && p.state.MerchantAgreed
}

// Toggle flips the flag of t.Role.
func (p *MutualFlagPolicy) Toggle(t Toggle) (Status, error) {
	if p.IsAgreed() {
		return StatusAgreed, ErrLocked
	}

	switch t.Role {
	case RoleUser:
		p.state.UserAgreed = !p.state.UserAgreed
	case RoleMerchant:
		p.state.MerchantAgreed = !p.state.MerchantAgreed
	default:
		return StatusNegotiating, fmt.Errorf("%w: role %q cannot agree in a unified chat", ErrInvalidToggle, t.Role)
	}

	return statusOf(p), nil
}

// MutualEndorsementPolicy is the exchange variant: each peer points at the
// message they accept as the deal, and agreement needs both to point at the
// same one.
type MutualEndorsementPolicy struct {
	state        *State
	participants [2]string
}

func (p *MutualEndorsementPolicy) Variant() Variant { return VariantExchange }

func (p *MutualEndorsementPolicy) IsAgreed() bool {
	a := p.state.Endorsements[p.participants[0]]
	b := p.state.Endorsements[p.participants[1]]
	return a != "" && a == b
}

// Toggle endorses t.MessageID for t.ParticipantID. Endorsing the same message
// again withdraws the endorsement; a different message replaces it.
func (p *MutualEndorsementPolicy) Toggle(t Toggle) (Status, error) {
	if p.IsAgreed() {
		return StatusAgreed, ErrLocked
	}
	if t.ParticipantID != p.participants[0] && t.ParticipantID != p.participants[1] {
		return StatusNegotiating, fmt.Errorf("%w: %q is not a participant", ErrInvalidToggle, t.ParticipantID)
	}
	if t.MessageID == "" {
		return StatusNegotiating, fmt.Errorf("%w: message id required", ErrInvalidToggle)
	}

	if p.state.Endorsements == nil {
		p.state.Endorsements = make(map[string]string, 2)
	}
	if p.state.Endorsements[t.ParticipantID] == t.MessageID {
		delete(p.state.Endorsements, t.ParticipantID)
	} else {
		p.state.Endorsements[t.ParticipantID] = t.MessageID
	}

	return statusOf(p), nil
}
