package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	defaultConnectTimeout         = 10 * time.Second
	defaultServerSelectionTimeout = 5 * time.Second
	defaultMaxPoolSize            = 100
	defaultMinPoolSize            = 10
)

// MongoOptions bounds connection behaviour. Zero values fall back to the
// package defaults, so callers only set what they need to override.
type MongoOptions struct {
	ConnectTimeout         time.Duration
	ServerSelectionTimeout time.Duration
	MaxPoolSize            uint64
	MinPoolSize            uint64
}

func clientOptions(uri string, opts MongoOptions) *options.ClientOptions {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.ServerSelectionTimeout <= 0 {
		opts.ServerSelectionTimeout = defaultServerSelectionTimeout
	}
	if opts.MaxPoolSize == 0 {
		opts.MaxPoolSize = defaultMaxPoolSize
	}
	if opts.MinPoolSize == 0 {
		opts.MinPoolSize = defaultMinPoolSize
	}

	return options.Client().
		ApplyURI(uri).
		SetConnectTimeout(opts.ConnectTimeout).
		SetServerSelectionTimeout(opts.ServerSelectionTimeout).
		SetMaxPoolSize(opts.MaxPoolSize).
		SetMinPoolSize(opts.MinPoolSize)
}

func ConnectMongoDB(ctx context.Context, uri, database string, opts MongoOptions) (*mongo.Database, error) {
	client, err := mongo.Connect(ctx, clientOptions(uri, opts))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(database), nil
}
