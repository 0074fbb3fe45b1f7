package database

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoConfig struct {
	URI         string
	Database    string
	MaxPoolSize uint64
	IdleTimeout time.Duration
	Timeout     time.Duration
}

// MongoConfigFromEnv reads MONGO_URI, MONGO_DATABASE and MONGO_MAX_POOL_SIZE.
func MongoConfigFromEnv() MongoConfig {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}
	name := os.Getenv("MONGO_DATABASE")
	if name == "" {
		name = "hostlink"
	}
	var pool uint64 = 10
	if v, err := strconv.ParseUint(os.Getenv("MONGO_MAX_POOL_SIZE"), 10, 64); err == nil && v > 0 {
		pool = v
	}
	return MongoConfig{URI: uri, Database: name, MaxPoolSize: pool, IdleTimeout: 45 * time.Second, Timeout: 10 * time.Second}
}

// ConnectMongo connects and pings; the caller owns Disconnect.
func ConnectMongo(cfg MongoConfig) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	client, err := mongo.Connect(ctx,
		options.Client().ApplyURI(cfg.URI),
		options.Client().SetMaxConnIdleTime(cfg.IdleTimeout),
		options.Client().SetMaxPoolSize(cfg.MaxPoolSize),
	)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}
