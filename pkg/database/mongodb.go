package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"venty/internal/config"
	"venty/pkg/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

var (
	client   *mongo.Client
	database *mongo.Database
	once     sync.Once
)

// InitMongoDB connects once and returns the configured database.
func InitMongoDB(cfg config.MongoConfig) (*mongo.Database, error) {
	var err error
	once.Do(func() {
		err = connectToMongoDB(cfg)
	})
	if err != nil {
		return nil, err
	}
	if database == nil {
		return nil, fmt.Errorf("MongoDB connection failed earlier")
	}
	return database, nil
}

func connectToMongoDB(cfg config.MongoConfig) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout+cfg.ServerSelectionTimeout)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetMinPoolSize(cfg.MinPoolSize).
		SetMaxConnIdleTime(cfg.MaxConnIdleTime).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.ServerSelectionTimeout).
		SetHeartbeatInterval(cfg.HeartbeatInterval).
		SetRetryWrites(true).
		SetRetryReads(true)

	c, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err = c.Ping(ctx, readpref.Primary()); err != nil {
		c.Disconnect(context.Background())
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	client = c
	database = c.Database(cfg.Database)
	logger.Infof("Connected to MongoDB database: %s", cfg.Database)
	return nil
}

// EnsureIndexes creates indexes per collection. Failures are logged and the
// remaining collections are still processed.
func EnsureIndexes(ctx context.Context, db *mongo.Database, indexes map[string][]mongo.IndexModel) {
	for collection, models := range indexes {
		if len(models) == 0 {
			continue
		}
		if _, err := db.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
			logger.LogError(err, "failed to create indexes", map[string]interface{}{
				"collection": collection,
			})
			continue
		}
		logger.Infof("Created %d indexes for collection: %s", len(models), collection)
	}
}

// Disconnect closes MongoDB connection
func Disconnect() error {
	if client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return client.Disconnect(ctx)
}

// HealthCheck pings the primary and reports connection stats.
func HealthCheck(ctx context.Context) map[string]interface{} {
	if database == nil {
		return map[string]interface{}{
			"status": "disconnected",
			"error":  "database not initialized",
		}
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		}
	}

	health := map[string]interface{}{
		"status":   "connected",
		"database": database.Name(),
	}

	var status bson.M
	err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "serverStatus", Value: 1}}).Decode(&status)
	if err == nil {
		if connections, ok := status["connections"].(bson.M); ok {
			health["current_connections"] = connections["current"]
			health["available_connections"] = connections["available"]
		}
	}
	return health
}
