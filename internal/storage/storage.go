// Package storage selects and opens the persistence backends from config.
package storage

import (
	"context"
	"fmt"

	"venty/internal/config"
	"venty/internal/services"
	"venty/internal/violation"
	"venty/pkg/database"
	"venty/pkg/logger"

	"go.mongodb.org/mongo-driver/mongo"
)

const (
	KindMongo  = "mongo"
	KindRedis  = "redis"
	KindMemory = "memory"
)

// Backends holds the opened stores and the probes for /health.
type Backends struct {
	Conversations services.ConversationStore
	Violations    violation.Store
	ViolationKind string
	Checks        map[string]func(ctx context.Context) error

	closers []func() error
}

// ViolationKind resolves VIOLATION_STORE: explicit value, else Redis when
// REDIS_URL is set, else the conversation database.
func ViolationKind(cfg *config.Config) string {
	if cfg.Violations.Store != "" {
		return cfg.Violations.Store
	}
	switch {
	case cfg.Database.Redis.URL != "":
		return KindRedis
	case cfg.Database.Driver == KindMongo:
		return KindMongo
	default:
		return KindMemory
	}
}

// Open connects the configured backends and ensures Mongo indexes.
func Open(ctx context.Context, cfg *config.Config) (*Backends, error) {
	b := &Backends{
		ViolationKind: ViolationKind(cfg),
		Checks:        make(map[string]func(ctx context.Context) error),
	}

	var db *mongo.Database
	if cfg.Database.Driver == KindMongo || b.ViolationKind == KindMongo {
		var err error
		db, err = database.InitMongoDB(cfg.Database.MongoDB)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, database.Disconnect)
		b.Checks["mongodb"] = func(ctx context.Context) error {
			if h := database.HealthCheck(ctx); h["status"] != "connected" {
				return fmt.Errorf("%v", h["error"])
			}
			return nil
		}
	}

	if cfg.Database.Driver == KindMongo {
		store := services.NewMongoConversationStore(db)
		database.EnsureIndexes(ctx, db, store.Indexes())
		b.Conversations = store
	} else {
		logger.Warnf("Using in-memory conversation store; data is lost on restart")
		b.Conversations = services.NewMemoryConversationStore()
	}

	switch b.ViolationKind {
	case KindRedis:
		rs, err := violation.NewRedisStore(ctx, cfg.Database.Redis.URL)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.closers = append(b.closers, rs.Close)
		b.Checks["redis"] = rs.Ping
		b.Violations = rs
	case KindMongo:
		ms := violation.NewMongoStore(db)
		database.EnsureIndexes(ctx, db, map[string][]mongo.IndexModel{
			violation.CollectionName: ms.Indexes(),
		})
		b.Violations = ms
	default:
		logger.Warnf("Using in-memory violation counters; suspensions are lost on restart")
		b.Violations = violation.NewMemoryStore()
	}

	logger.WithFields(map[string]interface{}{
		"conversations": cfg.Database.Driver,
		"violations":    b.ViolationKind,
	}).Info("Storage ready")
	return b, nil
}

// Close releases connections in reverse order of opening.
func (b *Backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			logger.WithError(err).Warnf("Failed to close storage backend")
		}
	}
	b.closers = nil
}
