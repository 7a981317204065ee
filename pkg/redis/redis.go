package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/prohmpiriya/ticket-inventory/pkg/config"
	"github.com/prohmpiriya/ticket-inventory/pkg/retry"
)

// Config holds Redis connection configuration
type Config struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Connect is the retry policy for the initial ping
	Connect retry.Policy
}

// DefaultConfig returns default Redis configuration
func DefaultConfig() *Config {
	return &Config{
		Host:         "localhost",
		Port:         6379,
		PoolSize:     100,
		MinIdleConns: 10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		Connect:      retry.DefaultPolicy(),
	}
}

// FromConfig maps the service configuration onto client settings
func FromConfig(cfg *config.RedisConfig) *Config {
	rc := DefaultConfig()
	rc.Host = cfg.Host
	rc.Port = cfg.Port
	rc.Password = cfg.Password
	rc.DB = cfg.DB
	if cfg.PoolSize > 0 {
		rc.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		rc.MinIdleConns = cfg.MinIdleConns
	}
	if cfg.DialTimeout > 0 {
		rc.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		rc.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		rc.WriteTimeout = cfg.WriteTimeout
	}
	return rc
}

// Addr returns the Redis address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Client wraps a go-redis client with a named Lua script registry
type Client struct {
	client  *goredis.Client
	scripts sync.Map // name -> *goredis.Script
}

// NewClient connects and pings, retrying with backoff
func NewClient(ctx context.Context, cfg *Config, notify retry.Notify) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	_, err := retry.Do(ctx, cfg.Connect, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}, notify)
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewFromClient(rdb), nil
}

// NewFromClient wraps an existing go-redis client, e.g. one built by a test container
func NewFromClient(rdb *goredis.Client) *Client {
	return &Client{client: rdb}
}

// Raw returns the underlying go-redis client
func (c *Client) Raw() *goredis.Client {
	return c.client
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}

// HealthCheck pings Redis with a short timeout
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// RegisterScript adds a Lua script to the registry under name
func (c *Client) RegisterScript(name, src string) {
	c.scripts.Store(name, goredis.NewScript(src))
}

// LoadScripts pushes every registered script into the server's script cache
func (c *Client) LoadScripts(ctx context.Context) error {
	var err error
	c.scripts.Range(func(k, v any) bool {
		if loadErr := v.(*goredis.Script).Load(ctx, c.client).Err(); loadErr != nil {
			err = fmt.Errorf("failed to load script %s: %w", k, loadErr)
			return false
		}
		return true
	})
	return err
}

// RunScript runs a registered script by SHA, falling back to EVAL on NOSCRIPT
func (c *Client) RunScript(ctx context.Context, name string, keys []string, args ...any) *goredis.Cmd {
	v, ok := c.scripts.Load(name)
	if !ok {
		cmd := goredis.NewCmd(ctx)
		cmd.SetErr(fmt.Errorf("script %s not registered", name))
		return cmd
	}
	return v.(*goredis.Script).Run(ctx, c.client, keys, args...)
}

// scriptHash returns the SHA1 of a registered script
func (c *Client) scriptHash(name string) (string, bool) {
	v, ok := c.scripts.Load(name)
	if !ok {
		return "", false
	}
	return v.(*goredis.Script).Hash(), true
}
