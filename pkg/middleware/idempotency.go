package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"

	"github.com/prohmpiriya/ticket-inventory/pkg/response"
)

const (
	// IdempotencyKeyHeader carries the client-supplied key
	IdempotencyKeyHeader = "X-Idempotency-Key"
	// ContextKeyIdempotencyKey is the gin context key holding the accepted key
	ContextKeyIdempotencyKey = "idempotency_key"
	// ContextKeyIdempotencyRetryable marks a failed request that left no side effects
	ContextKeyIdempotencyRetryable = "idempotency_retryable"
	// IdempotencyKeyPrefix namespaces records in Redis
	IdempotencyKeyPrefix = "idempotency:"
)

// IdempotencyStatus represents the status of an idempotency record
type IdempotencyStatus string

const (
	StatusProcessing IdempotencyStatus = "processing"
	StatusCompleted  IdempotencyStatus = "completed"
)

// IdempotencyRecord stores the state of an idempotent request
type IdempotencyRecord struct {
	Key          string            `json:"key"`
	Status       IdempotencyStatus `json:"status"`
	RequestHash  string            `json:"request_hash"`
	ResponseCode int               `json:"response_code,omitempty"`
	ResponseBody string            `json:"response_body,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}

// IdempotencyStore persists idempotency records
type IdempotencyStore interface {
	// Claim stores the record only if the key is unused
	Claim(ctx context.Context, key string, record *IdempotencyRecord, ttl time.Duration) (bool, error)
	// Load returns nil, nil for unknown keys
	Load(ctx context.Context, key string) (*IdempotencyRecord, error)
	Save(ctx context.Context, key string, record *IdempotencyRecord, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// IdempotencyConfig holds configuration for idempotency middleware
type IdempotencyConfig struct {
	Store IdempotencyStore
	// TTL of completed records
	TTL time.Duration
	// ProcessingTTL bounds how long a crashed request blocks its key
	ProcessingTTL time.Duration
}

// DefaultIdempotencyConfig returns default configuration
func DefaultIdempotencyConfig(store IdempotencyStore) *IdempotencyConfig {
	return &IdempotencyConfig{
		Store:         store,
		TTL:           24 * time.Hour,
		ProcessingTTL: 60 * time.Second,
	}
}

// IdempotencyMiddleware replays the stored response for a repeated key.
// Requests without a key pass through unprotected. Every response is stored,
// server errors included, unless the handler called MarkRetryable; a timed out
// purchase may have committed, so its retry must not run the handler again.
func IdempotencyMiddleware(config *IdempotencyConfig) gin.HandlerFunc {
	if config.ProcessingTTL <= 0 {
		config.ProcessingTTL = 60 * time.Second
	}
	if config.TTL <= 0 {
		config.TTL = 24 * time.Hour
	}

	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyKeyHeader)
		if key == "" {
			c.Next()
			return
		}
		c.Set(ContextKeyIdempotencyKey, key)

		var body []byte
		if c.Request.Body != nil {
			body, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
		}
		hash := requestHash(c, body)
		storeKey := IdempotencyKeyPrefix + key
		ctx := c.Request.Context()

		record := &IdempotencyRecord{
			Key:         key,
			Status:      StatusProcessing,
			RequestHash: hash,
			CreatedAt:   time.Now(),
		}

		claimed, err := config.Store.Claim(ctx, storeKey, record, config.ProcessingTTL)
		if err != nil {
			// Store unavailable: refuse rather than risk a double purchase
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, response.Error("IDEMPOTENCY_UNAVAILABLE", "Idempotency store unavailable, retry later"))
			return
		}
		if !claimed {
			existing, err := config.Store.Load(ctx, storeKey)
			if err != nil || existing == nil {
				c.AbortWithStatusJSON(http.StatusConflict, response.Error("REQUEST_IN_PROGRESS", "A request with this idempotency key is already being processed"))
				return
			}
			replay(c, existing, hash)
			return
		}

		rw := &capturingWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = rw
		c.Next()

		status := rw.Status()
		if status >= http.StatusInternalServerError && c.GetBool(ContextKeyIdempotencyRetryable) {
			_ = config.Store.Delete(context.WithoutCancel(ctx), storeKey)
			return
		}

		now := time.Now()
		record.Status = StatusCompleted
		record.ResponseCode = status
		record.ResponseBody = rw.body.String()
		record.CompletedAt = &now
		_ = config.Store.Save(context.WithoutCancel(ctx), storeKey, record, config.TTL)
	}
}

func replay(c *gin.Context, existing *IdempotencyRecord, hash string) {
	switch {
	case existing.RequestHash != hash:
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, response.Error("IDEMPOTENCY_KEY_REUSED", "Idempotency key already used with a different request"))
	case existing.Status == StatusProcessing:
		c.AbortWithStatusJSON(http.StatusConflict, response.Error("REQUEST_IN_PROGRESS", "A request with this idempotency key is already being processed"))
	default:
		c.Header("Idempotent-Replayed", "true")
		c.Data(existing.ResponseCode, "application/json; charset=utf-8", []byte(existing.ResponseBody))
		c.Abort()
	}
}

// MarkRetryable tells the idempotency middleware that the failed request
// changed nothing, so the same key may run again
func MarkRetryable(c *gin.Context) {
	c.Set(ContextKeyIdempotencyRetryable, true)
}

// GetIdempotencyKey extracts idempotency key from gin context
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ContextKeyIdempotencyKey)
	if !ok {
		return "", false
	}
	k, ok := v.(string)
	return k, ok
}

type capturingWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *capturingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *capturingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

func requestHash(c *gin.Context, body []byte) string {
	h := sha256.New()
	h.Write([]byte(c.Request.Method))
	h.Write([]byte(c.Request.URL.Path))
	if userID, ok := GetUserID(c); ok {
		h.Write([]byte(userID))
	}
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// RedisIdempotencyStore keeps records as JSON strings in Redis
type RedisIdempotencyStore struct {
	client goredis.UniversalClient
}

// NewRedisIdempotencyStore creates a Redis-backed store
func NewRedisIdempotencyStore(client goredis.UniversalClient) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client}
}

// Claim uses SET NX so only one request owns the key
func (s *RedisIdempotencyStore) Claim(ctx context.Context, key string, record *IdempotencyRecord, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return false, err
	}
	return s.client.SetNX(ctx, key, data, ttl).Result()
}

// Load returns the record stored under key
func (s *RedisIdempotencyStore) Load(ctx context.Context, key string) (*IdempotencyRecord, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var record IdempotencyRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Save overwrites the record under key
func (s *RedisIdempotencyStore) Save(ctx context.Context, key string, record *IdempotencyRecord, ttl time.Duration) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, ttl).Err()
}

// Delete removes the record under key
func (s *RedisIdempotencyStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}
