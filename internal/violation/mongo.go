package violation

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CollectionName is the Mongo collection holding violation counters.
const CollectionName = "chat_violations"

type mongoCounter struct {
	Key             string     `bson:"_id"`
	Count           int64      `bson:"count"`
	LastViolationAt time.Time  `bson:"last_violation_at"`
	ExpiresAt       *time.Time `bson:"expires_at,omitempty"`
}

// MongoStore keeps counters as documents keyed by the counter key.
type MongoStore struct {
	collection *mongo.Collection
	now        func() time.Time
}

// NewMongoStore returns a store over the chat_violations collection of db.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		collection: db.Collection(CollectionName),
		now:        time.Now,
	}
}

func (s *MongoStore) Get(ctx context.Context, key string) (int64, error) {
	var doc mongoCounter
	err := s.collection.FindOne(ctx, liveFilter(key, s.now())).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return doc.Count, nil
}

// Increment upserts the counter. An expired document is dropped first so the
// count restarts at one; the TTL index only removes documents lazily.
func (s *MongoStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	now := s.now()

	if _, err := s.collection.DeleteOne(ctx, expiredFilter(key, now)); err != nil {
		return 0, err
	}

	var doc mongoCounter
	err := s.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": key},
		incrementUpdate(now, ttl),
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, err
	}
	return doc.Count, nil
}

func (s *MongoStore) Reset(ctx context.Context, key string) error {
	_, err := s.collection.DeleteOne(ctx, bson.M{"_id": key})
	return err
}

// Indexes returns the indexes the collection needs.
func (s *MongoStore) Indexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetSparse(true),
		},
		{
			Keys: bson.D{{Key: "last_violation_at", Value: -1}},
		},
	}
}

func liveFilter(key string, now time.Time) bson.M {
	return bson.M{
		"_id": key,
		"$or": bson.A{
			bson.M{"expires_at": bson.M{"$exists": false}},
			bson.M{"expires_at": bson.M{"$gt": now}},
		},
	}
}

func expiredFilter(key string, now time.Time) bson.M {
	return bson.M{
		"_id":        key,
		"expires_at": bson.M{"$lte": now},
	}
}

func incrementUpdate(now time.Time, ttl time.Duration) bson.M {
	update := bson.M{
		"$inc": bson.M{"count": 1},
	}
	if ttl > 0 {
		update["$set"] = bson.M{
			"last_violation_at": now,
			"expires_at":        now.Add(ttl),
		}
	} else {
		update["$set"] = bson.M{"last_violation_at": now}
		update["$unset"] = bson.M{"expires_at": ""}
	}
	return update
}
