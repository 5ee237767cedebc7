package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

const defaultMongoPingTimeout = 5 * time.Second

// MongoConfig locates the database that holds the catalog, the stock ledger,
// carts and discounts.
type MongoConfig struct {
	URI         string
	Database    string
	MaxPoolSize uint64
	// PingTimeout bounds server selection and the readiness ping. Zero means
	// five seconds.
	PingTimeout time.Duration
}

// OpenMongo connects and waits until a primary answers. Reads go to the
// primary and writes wait for a majority, so a reservation acknowledged to a
// shopper survives a failover. The client is closed again if the ping fails.
func OpenMongo(ctx context.Context, cfg MongoConfig) (*mongo.Database, error) {
	if cfg.Database == "" {
		return nil, errors.New("mongo database name is empty")
	}
	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = defaultMongoPingTimeout
	}

	clientOpts := options.Client().
		ApplyURI(cfg.URI).
		SetAppName("checkout-pipeline").
		SetRegistry(NewRegistry()).
		SetReadPreference(readpref.Primary()).
		SetWriteConcern(writeconcern.Majority()).
		SetRetryWrites(true).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout)
	if cfg.MaxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(cfg.MaxPoolSize)
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo primary: %w", err)
	}

	return client.Database(cfg.Database), nil
}
