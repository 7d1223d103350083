package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"fund-manager/internal/config"
)

// FundsCollection holds one document per fund
const FundsCollection = "funds"

// MongoDB represents MongoDB database connection
type MongoDB struct {
	client   *mongo.Client
	database *mongo.Database
}

// ClientOptions translates the configuration into driver options
func ClientOptions(cfg config.DatabaseConfig) *options.ClientOptions {
	clientOpts := options.Client().ApplyURI(cfg.URI)

	// Set connection pool options
	if cfg.MaxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(uint64(cfg.MaxPoolSize))
	}
	if cfg.MinPoolSize > 0 {
		clientOpts.SetMinPoolSize(uint64(cfg.MinPoolSize))
	}
	if cfg.MaxIdleTime > 0 {
		clientOpts.SetMaxConnIdleTime(time.Duration(cfg.MaxIdleTime) * time.Second)
	}

	// Set timeouts
	if cfg.ConnectTimeout > 0 {
		clientOpts.SetConnectTimeout(time.Duration(cfg.ConnectTimeout) * time.Second)
	}
	if cfg.SocketTimeout > 0 {
		clientOpts.SetSocketTimeout(time.Duration(cfg.SocketTimeout) * time.Second)
	}

	if cfg.ReplicaSet != "" {
		clientOpts.SetReplicaSet(cfg.ReplicaSet)
	}
	return clientOpts
}

// NewMongoDB connects to MongoDB and verifies the connection
func NewMongoDB(ctx context.Context, cfg config.DatabaseConfig) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, ClientOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &MongoDB{
		client:   client,
		database: client.Database(cfg.Database),
	}, nil
}

// GetDatabase returns the database instance
func (m *MongoDB) GetDatabase() *mongo.Database {
	return m.database
}

// Collection returns a collection
func (m *MongoDB) Collection(name string) *mongo.Collection {
	return m.database.Collection(name)
}

// Disconnect closes the database connection
func (m *MongoDB) Disconnect() error {
	if m.client == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return m.client.Disconnect(ctx)
}

// Ping checks the database connection
func (m *MongoDB) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

// FundIndexes are the indexes fund lookups rely on: listing by type in
// insertion order and counting a fund's position within its type
func FundIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "type", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("type_id"),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: -1}},
			Options: options.Index().SetName("created_at"),
		},
	}
}

// EnsureSchema creates the collections' indexes. It is safe to call on
// every start.
func (m *MongoDB) EnsureSchema(ctx context.Context) error {
	if _, err := m.Collection(FundsCollection).Indexes().CreateMany(ctx, FundIndexes()); err != nil {
		return fmt.Errorf("failed to create fund indexes: %w", err)
	}
	return nil
}

// IsHealthy reports whether the database answers a ping
func (m *MongoDB) IsHealthy(ctx context.Context) bool {
	return m.Ping(ctx) == nil
}
