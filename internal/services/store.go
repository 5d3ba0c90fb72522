package services

import (
	"context"
	"sync"

	"venty/internal/agreement"
	"venty/internal/models"
)

// ConversationStore persists conversations and their append-only transcripts.
// Lookups return ErrConversationNotFound or ErrMessageNotFound when nothing
// matches. Returned values are copies owned by the caller.
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	// FindActiveConversation returns the newest conversation for pairKey that
	// is not closed.
	FindActiveConversation(ctx context.Context, pairKey string) (*models.Conversation, error)
	UpdateConversation(ctx context.Context, conv *models.Conversation) error
	AppendMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, conversationID, messageID string) (*models.Message, error)
	// ListMessages returns messages oldest first and the total count.
	ListMessages(ctx context.Context, conversationID string, offset, limit int) ([]*models.Message, int64, error)
}

// MemoryConversationStore is a ConversationStore for tests and single-node
// development.
type MemoryConversationStore struct {
	mu            sync.RWMutex
	conversations map[string]*models.Conversation
	messages      map[string][]*models.Message
}

func NewMemoryConversationStore() *MemoryConversationStore {
	return &MemoryConversationStore{
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string][]*models.Message),
	}
}

func (s *MemoryConversationStore) CreateConversation(_ context.Context, conv *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.conversations[conv.ID]; exists {
		return ErrInvalidConversation
	}
	s.conversations[conv.ID] = cloneConversation(conv)
	return nil
}

func (s *MemoryConversationStore) GetConversation(_ context.Context, id string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return cloneConversation(conv), nil
}

func (s *MemoryConversationStore) FindActiveConversation(_ context.Context, pairKey string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *models.Conversation
	for _, conv := range s.conversations {
		if conv.PairKey != pairKey || conv.Status == agreement.StatusClosed {
			continue
		}
		if found == nil || conv.CreatedAt.After(found.CreatedAt) {
			found = conv
		}
	}
	if found == nil {
		return nil, ErrConversationNotFound
	}
	return cloneConversation(found), nil
}

func (s *MemoryConversationStore) UpdateConversation(_ context.Context, conv *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conv.ID]; !ok {
		return ErrConversationNotFound
	}
	s.conversations[conv.ID] = cloneConversation(conv)
	return nil
}

func (s *MemoryConversationStore) AppendMessage(_ context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[msg.ConversationID]; !ok {
		return ErrConversationNotFound
	}
	m := *msg
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], &m)
	return nil
}

func (s *MemoryConversationStore) GetMessage(_ context.Context, conversationID, messageID string) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.messages[conversationID] {
		if m.ID == messageID {
			msg := *m
			return &msg, nil
		}
	}
	return nil, ErrMessageNotFound
}

func (s *MemoryConversationStore) ListMessages(_ context.Context, conversationID string, offset, limit int) ([]*models.Message, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.messages[conversationID]
	total := int64(len(all))
	if offset >= len(all) {
		return []*models.Message{}, total, nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	page := make([]*models.Message, 0, end-offset)
	for _, m := range all[offset:end] {
		msg := *m
		page = append(page, &msg)
	}
	return page, total, nil
}

func cloneConversation(conv *models.Conversation) *models.Conversation {
	c := *conv
	c.Participants = append([]models.Participant(nil), conv.Participants...)
	if conv.Agreement.Endorsements != nil {
		c.Agreement.Endorsements = make(map[string]string, len(conv.Agreement.Endorsements))
		for k, v := range conv.Agreement.Endorsements {
			c.Agreement.Endorsements[k] = v
		}
	}
	if conv.AgreedAt != nil {
		t := *conv.AgreedAt
		c.AgreedAt = &t
	}
	if conv.ClosedAt != nil {
		t := *conv.ClosedAt
		c.ClosedAt = &t
	}
	return &c
}
