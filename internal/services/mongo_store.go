package services

import (
	"context"
	"errors"
	"fmt"

	"venty/internal/agreement"
	"venty/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	ConversationsCollection = "conversations"
	MessagesCollection      = "messages"
)

// MongoConversationStore keeps conversations and messages in two collections.
type MongoConversationStore struct {
	collection    *mongo.Collection
	msgCollection *mongo.Collection
}

func NewMongoConversationStore(db *mongo.Database) *MongoConversationStore {
	return &MongoConversationStore{
		collection:    db.Collection(ConversationsCollection),
		msgCollection: db.Collection(MessagesCollection),
	}
}

func (s *MongoConversationStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if _, err := s.collection.InsertOne(ctx, conv); err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

func (s *MongoConversationStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&conv)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conv, nil
}

func (s *MongoConversationStore) FindActiveConversation(ctx context.Context, pairKey string) (*models.Conversation, error) {
	filter := bson.M{
		"pair_key": pairKey,
		"status":   bson.M{"$ne": agreement.StatusClosed},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})

	var conv models.Conversation
	err := s.collection.FindOne(ctx, filter, opts).Decode(&conv)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to find conversation: %w", err)
	}
	return &conv, nil
}

func (s *MongoConversationStore) UpdateConversation(ctx context.Context, conv *models.Conversation) error {
	result, err := s.collection.ReplaceOne(ctx, bson.M{"_id": conv.ID}, conv)
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrConversationNotFound
	}
	return nil
}

func (s *MongoConversationStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	if _, err := s.msgCollection.InsertOne(ctx, msg); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

func (s *MongoConversationStore) GetMessage(ctx context.Context, conversationID, messageID string) (*models.Message, error) {
	var msg models.Message
	err := s.msgCollection.FindOne(ctx, bson.M{
		"_id":             messageID,
		"conversation_id": conversationID,
	}).Decode(&msg)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return &msg, nil
}

func (s *MongoConversationStore) ListMessages(ctx context.Context, conversationID string, offset, limit int) ([]*models.Message, int64, error) {
	filter := bson.M{"conversation_id": conversationID}

	total, err := s.msgCollection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(offset))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.msgCollection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get messages: %w", err)
	}
	defer cursor.Close(ctx)

	messages := []*models.Message{}
	if err = cursor.All(ctx, &messages); err != nil {
		return nil, 0, fmt.Errorf("failed to decode messages: %w", err)
	}
	return messages, total, nil
}

// Indexes returns the indexes per collection the store relies on.
func (s *MongoConversationStore) Indexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		ConversationsCollection: {
			{Keys: bson.D{{Key: "pair_key", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "participants.id", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
		MessagesCollection: {
			{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "timestamp", Value: 1}}},
			{Keys: bson.D{{Key: "sender_id", Value: 1}}},
		},
	}
}
