package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

const (
	defaultMongoMaxPool     = 100
	defaultMongoConnTimeout = 10 * time.Second
	mongoPingAttempts       = 3
)

// MongoOptions configures the client shared by the cart and catalog
// repositories.
type MongoOptions struct {
	URI            string
	Database       string
	MaxPoolSize    uint64
	MinPoolSize    uint64
	ConnectTimeout time.Duration
}

func (o MongoOptions) clientOptions() *options.ClientOptions {
	if o.MaxPoolSize == 0 {
		o.MaxPoolSize = defaultMongoMaxPool
	}
	if o.MinPoolSize > o.MaxPoolSize {
		o.MinPoolSize = o.MaxPoolSize
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = defaultMongoConnTimeout
	}
	// stock decrements must survive a primary failover
	return options.Client().
		ApplyURI(o.URI).
		SetAppName("storefront").
		SetConnectTimeout(o.ConnectTimeout).
		SetServerSelectionTimeout(o.ConnectTimeout / 2).
		SetMaxPoolSize(o.MaxPoolSize).
		SetMinPoolSize(o.MinPoolSize).
		SetRetryWrites(true).
		SetWriteConcern(writeconcern.Majority())
}

// ConnectMongoDB opens the client and pings the primary, retrying a few
// times while the server comes up.
func ConnectMongoDB(ctx context.Context, opts MongoOptions) (*mongo.Database, error) {
	if opts.Database == "" {
		return nil, fmt.Errorf("mongo database name is required")
	}
	client, err := mongo.Connect(ctx, opts.clientOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	for attempt := 1; ; attempt++ {
		err = client.Ping(ctx, readpref.Primary())
		if err == nil {
			return client.Database(opts.Database), nil
		}
		if attempt == mongoPingAttempts || ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}
	_ = client.Disconnect(context.Background())
	return nil, fmt.Errorf("failed to ping MongoDB after %d attempts: %w", mongoPingAttempts, err)
}
