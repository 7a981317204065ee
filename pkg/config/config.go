package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Backend names accepted for the ledger and the event/ticket store
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMongo    = "mongo"
)

// Config holds all application configuration
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	MongoDB     MongoDBConfig     `mapstructure:"mongodb"`
	OTel        OTelConfig        `mapstructure:"otel"`
	Inventory   InventoryConfig   `mapstructure:"inventory"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Outbox      OutboxConfig      `mapstructure:"outbox"`
}

// AppConfig holds application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	Debug       bool   `mapstructure:"debug"`
	Version     string `mapstructure:"version"`
	LogLevel    string `mapstructure:"log_level"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the listen address
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the Redis address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// KafkaConfig holds Kafka/Redpanda connection settings
type KafkaConfig struct {
	Enabled           bool     `mapstructure:"enabled"`
	Brokers           []string `mapstructure:"brokers"`
	ClientID          string   `mapstructure:"client_id"`
	TicketEventsTopic string   `mapstructure:"ticket_events_topic"`
}

// MongoDBConfig holds MongoDB connection settings
type MongoDBConfig struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	MaxPoolSize    uint64        `mapstructure:"max_pool_size"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	ServiceName   string  `mapstructure:"service_name"`
	CollectorAddr string  `mapstructure:"collector_addr"`
	SampleRatio   float64 `mapstructure:"sample_ratio"`
}

// InventoryConfig selects storage backends and the issuance failure policy
type InventoryConfig struct {
	// LedgerBackend holds sold counts: memory, postgres, redis or mongo.
	// Anything but redis must match StoreBackend.
	LedgerBackend string `mapstructure:"ledger_backend"`
	// StoreBackend holds events and tickets: memory, postgres or mongo.
	StoreBackend string `mapstructure:"store_backend"`
	// ReleaseOnIssueFailure gives a slot back when issuance fails definitively.
	ReleaseOnIssueFailure bool          `mapstructure:"release_on_issue_failure"`
	OperationTimeout      time.Duration `mapstructure:"operation_timeout"`
	SnapshotInterval      time.Duration `mapstructure:"snapshot_interval"`
}

// IdempotencyConfig holds settings for the purchase idempotency middleware
type IdempotencyConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// OutboxConfig holds settings for the transactional outbox and its relay
type OutboxConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	BatchSize       int           `mapstructure:"batch_size"`
	RetryInterval   time.Duration `mapstructure:"retry_interval"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	RetentionPeriod time.Duration `mapstructure:"retention_period"`
}

// Load loads configuration from environment variables and an optional .env file
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")

	// .env is optional; environment variables win either way
	_ = v.ReadInConfig()

	return load(v)
}

// LoadWithPath loads configuration from a specific env file
func LoadWithPath(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	cfg := &Config{}
	if err := bindConfig(v, cfg); err != nil {
		return nil, fmt.Errorf("failed to bind config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("APP_NAME", "ticket-inventory")
	v.SetDefault("APP_ENVIRONMENT", "development")
	v.SetDefault("APP_DEBUG", true)
	v.SetDefault("APP_VERSION", "1.0.0")
	v.SetDefault("APP_LOG_LEVEL", "info")

	// Server defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8083)
	v.SetDefault("SERVER_READ_TIMEOUT", "15s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "15s")
	v.SetDefault("SERVER_IDLE_TIMEOUT", "120s")
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", "30s")

	// Database defaults
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "postgres")
	v.SetDefault("DATABASE_PASSWORD", "postgres")
	v.SetDefault("DATABASE_DBNAME", "ticket_inventory")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("DATABASE_MAX_CONNS", 50)
	v.SetDefault("DATABASE_MIN_CONNS", 5)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", "1h")
	v.SetDefault("DATABASE_CONN_MAX_IDLE_TIME", "30m")
	v.SetDefault("DATABASE_AUTO_MIGRATE", true)

	// Redis defaults
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 100)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 10)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")
	v.SetDefault("REDIS_READ_TIMEOUT", "3s")
	v.SetDefault("REDIS_WRITE_TIMEOUT", "3s")

	// Kafka defaults
	v.SetDefault("KAFKA_ENABLED", false)
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_CLIENT_ID", "ticket-inventory")
	v.SetDefault("KAFKA_TICKET_EVENTS_TOPIC", "ticket-events")

	// MongoDB defaults
	v.SetDefault("MONGODB_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGODB_DATABASE", "ticket_inventory")
	v.SetDefault("MONGODB_CONNECT_TIMEOUT", "10s")
	v.SetDefault("MONGODB_MAX_POOL_SIZE", 100)

	// OTel defaults
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_SERVICE_NAME", "ticket-inventory")
	v.SetDefault("OTEL_COLLECTOR_ADDR", "localhost:4317")
	v.SetDefault("OTEL_SAMPLE_RATIO", 1.0)

	// Inventory defaults
	v.SetDefault("INVENTORY_LEDGER_BACKEND", BackendMemory)
	v.SetDefault("INVENTORY_STORE_BACKEND", BackendMemory)
	v.SetDefault("INVENTORY_RELEASE_ON_ISSUE_FAILURE", false)
	v.SetDefault("INVENTORY_OPERATION_TIMEOUT", "3s")
	v.SetDefault("INVENTORY_SNAPSHOT_INTERVAL", "5s")

	// Idempotency defaults
	v.SetDefault("IDEMPOTENCY_ENABLED", false)
	v.SetDefault("IDEMPOTENCY_TTL", "24h")

	// Outbox defaults
	v.SetDefault("OUTBOX_ENABLED", false)
	v.SetDefault("OUTBOX_POLL_INTERVAL", "100ms")
	v.SetDefault("OUTBOX_BATCH_SIZE", 100)
	v.SetDefault("OUTBOX_RETRY_INTERVAL", "5s")
	v.SetDefault("OUTBOX_CLEANUP_INTERVAL", "1h")
	v.SetDefault("OUTBOX_RETENTION_PERIOD", "168h")
}

func bindConfig(v *viper.Viper, cfg *Config) error {
	// App
	cfg.App.Name = v.GetString("APP_NAME")
	cfg.App.Environment = v.GetString("APP_ENVIRONMENT")
	cfg.App.Debug = v.GetBool("APP_DEBUG")
	cfg.App.Version = v.GetString("APP_VERSION")
	cfg.App.LogLevel = v.GetString("APP_LOG_LEVEL")

	// Server
	cfg.Server.Host = v.GetString("SERVER_HOST")
	cfg.Server.Port = v.GetInt("SERVER_PORT")
	cfg.Server.ReadTimeout = v.GetDuration("SERVER_READ_TIMEOUT")
	cfg.Server.WriteTimeout = v.GetDuration("SERVER_WRITE_TIMEOUT")
	cfg.Server.IdleTimeout = v.GetDuration("SERVER_IDLE_TIMEOUT")
	cfg.Server.ShutdownTimeout = v.GetDuration("SERVER_SHUTDOWN_TIMEOUT")

	// Database
	cfg.Database.Host = v.GetString("DATABASE_HOST")
	cfg.Database.Port = v.GetInt("DATABASE_PORT")
	cfg.Database.User = v.GetString("DATABASE_USER")
	cfg.Database.Password = v.GetString("DATABASE_PASSWORD")
	cfg.Database.DBName = v.GetString("DATABASE_DBNAME")
	cfg.Database.SSLMode = v.GetString("DATABASE_SSLMODE")
	cfg.Database.MaxConns = v.GetInt32("DATABASE_MAX_CONNS")
	cfg.Database.MinConns = v.GetInt32("DATABASE_MIN_CONNS")
	cfg.Database.ConnMaxLifetime = v.GetDuration("DATABASE_CONN_MAX_LIFETIME")
	cfg.Database.ConnMaxIdleTime = v.GetDuration("DATABASE_CONN_MAX_IDLE_TIME")
	cfg.Database.AutoMigrate = v.GetBool("DATABASE_AUTO_MIGRATE")

	// Redis
	cfg.Redis.Host = v.GetString("REDIS_HOST")
	cfg.Redis.Port = v.GetInt("REDIS_PORT")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")
	cfg.Redis.PoolSize = v.GetInt("REDIS_POOL_SIZE")
	cfg.Redis.MinIdleConns = v.GetInt("REDIS_MIN_IDLE_CONNS")
	cfg.Redis.DialTimeout = v.GetDuration("REDIS_DIAL_TIMEOUT")
	cfg.Redis.ReadTimeout = v.GetDuration("REDIS_READ_TIMEOUT")
	cfg.Redis.WriteTimeout = v.GetDuration("REDIS_WRITE_TIMEOUT")

	// Kafka
	cfg.Kafka.Enabled = v.GetBool("KAFKA_ENABLED")
	cfg.Kafka.Brokers = splitList(v.GetString("KAFKA_BROKERS"))
	cfg.Kafka.ClientID = v.GetString("KAFKA_CLIENT_ID")
	cfg.Kafka.TicketEventsTopic = v.GetString("KAFKA_TICKET_EVENTS_TOPIC")

	// MongoDB
	cfg.MongoDB.URI = v.GetString("MONGODB_URI")
	cfg.MongoDB.Database = v.GetString("MONGODB_DATABASE")
	cfg.MongoDB.ConnectTimeout = v.GetDuration("MONGODB_CONNECT_TIMEOUT")
	cfg.MongoDB.MaxPoolSize = v.GetUint64("MONGODB_MAX_POOL_SIZE")

	// OTel
	cfg.OTel.Enabled = v.GetBool("OTEL_ENABLED")
	cfg.OTel.ServiceName = v.GetString("OTEL_SERVICE_NAME")
	cfg.OTel.CollectorAddr = v.GetString("OTEL_COLLECTOR_ADDR")
	cfg.OTel.SampleRatio = v.GetFloat64("OTEL_SAMPLE_RATIO")

	// Inventory
	cfg.Inventory.LedgerBackend = strings.ToLower(v.GetString("INVENTORY_LEDGER_BACKEND"))
	cfg.Inventory.StoreBackend = strings.ToLower(v.GetString("INVENTORY_STORE_BACKEND"))
	cfg.Inventory.ReleaseOnIssueFailure = v.GetBool("INVENTORY_RELEASE_ON_ISSUE_FAILURE")
	cfg.Inventory.OperationTimeout = v.GetDuration("INVENTORY_OPERATION_TIMEOUT")
	cfg.Inventory.SnapshotInterval = v.GetDuration("INVENTORY_SNAPSHOT_INTERVAL")

	// Idempotency
	cfg.Idempotency.Enabled = v.GetBool("IDEMPOTENCY_ENABLED")
	cfg.Idempotency.TTL = v.GetDuration("IDEMPOTENCY_TTL")

	// Outbox
	cfg.Outbox.Enabled = v.GetBool("OUTBOX_ENABLED")
	cfg.Outbox.PollInterval = v.GetDuration("OUTBOX_POLL_INTERVAL")
	cfg.Outbox.BatchSize = v.GetInt("OUTBOX_BATCH_SIZE")
	cfg.Outbox.RetryInterval = v.GetDuration("OUTBOX_RETRY_INTERVAL")
	cfg.Outbox.CleanupInterval = v.GetDuration("OUTBOX_CLEANUP_INTERVAL")
	cfg.Outbox.RetentionPeriod = v.GetDuration("OUTBOX_RETENTION_PERIOD")

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Inventory.StoreBackend {
	case BackendMemory, BackendPostgres, BackendMongo:
	default:
		return fmt.Errorf("invalid INVENTORY_STORE_BACKEND: %q", c.Inventory.StoreBackend)
	}

	switch c.Inventory.LedgerBackend {
	case BackendRedis:
	case BackendMemory, BackendPostgres, BackendMongo:
		if c.Inventory.LedgerBackend != c.Inventory.StoreBackend {
			return fmt.Errorf("ledger backend %q must match store backend %q unless it is redis",
				c.Inventory.LedgerBackend, c.Inventory.StoreBackend)
		}
	default:
		return fmt.Errorf("invalid INVENTORY_LEDGER_BACKEND: %q", c.Inventory.LedgerBackend)
	}

	if c.Outbox.Enabled && c.Inventory.StoreBackend != BackendPostgres {
		return errors.New("OUTBOX_ENABLED requires the postgres store backend")
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("KAFKA_BROKERS is required when Kafka is enabled")
	}

	if c.Inventory.OperationTimeout < 0 {
		return fmt.Errorf("invalid INVENTORY_OPERATION_TIMEOUT: %s", c.Inventory.OperationTimeout)
	}

	return nil
}

// UsesPostgres reports whether any backend needs a PostgreSQL pool
func (c *Config) UsesPostgres() bool {
	return c.Inventory.StoreBackend == BackendPostgres || c.Inventory.LedgerBackend == BackendPostgres
}

// UsesRedis reports whether Redis is needed for the ledger or idempotency keys
func (c *Config) UsesRedis() bool {
	return c.Inventory.LedgerBackend == BackendRedis || c.Idempotency.Enabled
}

// UsesMongo reports whether any backend needs a MongoDB client
func (c *Config) UsesMongo() bool {
	return c.Inventory.StoreBackend == BackendMongo || c.Inventory.LedgerBackend == BackendMongo
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}
