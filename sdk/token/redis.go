package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the connection settings of a RedisStore.
type RedisConfig struct {
	Host     string `envconfig:"HOST" default:"localhost"`
	Port     int    `envconfig:"PORT" default:"6379"`
	Password string `envconfig:"PASSWORD"`
	DB       int    `envconfig:"DB" default:"0"`

	// KeyPrefix namespaces token keys
	KeyPrefix string `envconfig:"KEY_PREFIX" default:"boxoffice:token:"`

	MaxRetries   int           `envconfig:"MAX_RETRIES" default:"3"`
	DialTimeout  time.Duration `envconfig:"DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"3s"`
	PoolSize     int           `envconfig:"POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MIN_IDLE_CONNS" default:"2"`
}

// NewRedisConfigFromEnv reads BOXOFFICE_REDIS_* environment variables.
func NewRedisConfigFromEnv() (*RedisConfig, error) {
	var c RedisConfig
	if err := envconfig.Process("BOXOFFICE_REDIS", &c); err != nil {
		return nil, fmt.Errorf("invalid redis config: %w", err)
	}
	return &c, nil
}

// Address returns the Redis server address
func (c *RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RedisStore is a Store backed by Redis. Entries expire with the token.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, config *RedisConfig) (*RedisStore, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Address(),
		Password:     config.Password,
		DB:           config.DB,
		MaxRetries:   config.MaxRetries,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStoreFromClient(client, config.KeyPrefix), nil
}

// NewRedisStoreFromClient wraps an existing client
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// Get returns the token and its remaining lifetime
func (r *RedisStore) Get(ctx context.Context, key string) (string, time.Duration, error) {
	pipe := r.client.Pipeline()
	get := pipe.Get(ctx, r.prefix+key)
	ttl := pipe.PTTL(ctx, r.prefix+key)

	if _, err := pipe.Exec(ctx); err != nil {
		if errors.Is(err, redis.Nil) {
			return "", 0, ErrNotFound
		}
		return "", 0, storeError("failed to get token", err)
	}

	remaining := ttl.Val()
	// -2: key vanished between commands, -1: no expiry (never written by Set)
	if remaining == -2 {
		return "", 0, ErrNotFound
	}
	if remaining < 0 {
		remaining = 0
	}
	return get.Val(), remaining, nil
}

// Set stores the token for ttl
func (r *RedisStore) Set(ctx context.Context, key, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, r.prefix+key, token, ttl).Err(); err != nil {
		return storeError("failed to set token", err)
	}
	return nil
}

// Delete removes the token
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return storeError("failed to delete token", err)
	}
	return nil
}

// storeError marks failures of a closed client as permanent.
func storeError(message string, err error) *StoreError {
	return NewStoreError(message, !errors.Is(err, redis.ErrClosed)).WithError(err)
}

// Ping checks if Redis is healthy
func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return NewStoreError("ping failed", false).WithError(err)
	}
	return nil
}

// Close closes the connection
func (r *RedisStore) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}
