package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/prohmpiriya/ticket-inventory/pkg/config"
	"github.com/prohmpiriya/ticket-inventory/pkg/retry"
)

// Config holds MongoDB client settings
type Config struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
	MaxPoolSize    uint64

	// Connect is the retry policy for the initial ping
	Connect retry.Policy
}

// DefaultConfig returns default MongoDB configuration
func DefaultConfig() *Config {
	return &Config{
		URI:            "mongodb://localhost:27017",
		Database:       "ticket_inventory",
		ConnectTimeout: 10 * time.Second,
		MaxPoolSize:    100,
		Connect:        retry.DefaultPolicy(),
	}
}

// FromConfig maps the service configuration onto client settings
func FromConfig(cfg *config.MongoDBConfig) *Config {
	mc := DefaultConfig()
	if cfg.URI != "" {
		mc.URI = cfg.URI
	}
	if cfg.Database != "" {
		mc.Database = cfg.Database
	}
	if cfg.ConnectTimeout > 0 {
		mc.ConnectTimeout = cfg.ConnectTimeout
	}
	if cfg.MaxPoolSize > 0 {
		mc.MaxPoolSize = cfg.MaxPoolSize
	}
	return mc
}

// Client wraps a mongo client bound to one database
type Client struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewClient connects and pings the primary, retrying with backoff
func NewClient(ctx context.Context, cfg *Config, notify retry.Notify) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Database == "" {
		return nil, errors.New("mongodb database name is required")
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetMaxPoolSize(cfg.MaxPoolSize)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create mongodb client: %w", err)
	}

	_, err = retry.Do(ctx, cfg.Connect, func(ctx context.Context) error {
		return client.Ping(ctx, readpref.Primary())
	}, notify)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	return &Client{client: client, db: client.Database(cfg.Database)}, nil
}

// Database returns the configured database
func (c *Client) Database() *mongo.Database {
	return c.db
}

// Collection returns a collection of the configured database
func (c *Client) Collection(name string) *mongo.Collection {
	return c.db.Collection(name)
}

// HealthCheck pings the primary with a short timeout
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := c.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("mongodb health check failed: %w", err)
	}
	return nil
}

// Close disconnects the client
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}
