package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds the configuration for the Redis client.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Namespace is prepended to every key. Keys and Clear only see keys inside it.
	Namespace string
	// EntryTTL expires entries after the given duration; zero keeps them forever.
	EntryTTL time.Duration
}

// RedisStore is a Store backed by Redis. It lets several daemon instances share
// one icon cache.
type RedisStore struct {
	redisClient *redis.Client
	logger      zerolog.Logger
	namespace   string
	ttl         time.Duration
}

// NewRedisStore creates and connects a new RedisStore.
// It pings the Redis server to ensure connectivity before returning.
func NewRedisStore(ctx context.Context, cfg *RedisConfig, logger zerolog.Logger) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info().Str("redis_address", cfg.Addr).Str("namespace", cfg.Namespace).Msg("Successfully connected to Redis.")

	return NewRedisStoreFromClient(rdb, cfg, logger), nil
}

// NewRedisStoreFromClient wraps an existing client. The store takes ownership
// of the client and closes it on Close.
func NewRedisStoreFromClient(client *redis.Client, cfg *RedisConfig, logger zerolog.Logger) *RedisStore {
	return &RedisStore{
		redisClient: client,
		logger:      logger.With().Str("component", "RedisStore").Logger(),
		namespace:   cfg.Namespace,
		ttl:         cfg.EntryTTL,
	}
}

// Get retrieves a value from Redis.
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.redisClient.Get(ctx, s.namespace+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("key '%s': %w", key, ErrNotFound)
		}
		s.logger.Error().Err(err).Str("key", key).Msg("Unexpected Redis error during get.")
		return "", fmt.Errorf("redis get failed for key %s: %w", key, err)
	}
	return value, nil
}

// Set stores a value with the configured TTL. An out-of-memory reply from the
// server is reported as ErrQuotaExceeded.
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.redisClient.Set(ctx, s.namespace+key, value, s.ttl).Err(); err != nil {
		if isOutOfMemory(err) {
			return fmt.Errorf("redis set for key %s: %w: %v", key, ErrQuotaExceeded, err)
		}
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to set data in Redis.")
		return fmt.Errorf("failed to set in redis: %w", err)
	}
	s.logger.Debug().Str("key", key).Msg("Successfully stored data in Redis.")
	return nil
}

// Delete removes a key from Redis.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.redisClient.Del(ctx, s.namespace+key).Err(); err != nil {
		return fmt.Errorf("redis del failed for key %s: %w", key, err)
	}
	return nil
}

// Keys scans the namespace and returns the keys without the namespace prefix.
func (s *RedisStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.redisClient.Scan(ctx, 0, s.namespace+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), s.namespace))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan failed: %w", err)
	}
	return keys, nil
}

// Clear deletes every key in the namespace.
func (s *RedisStore) Clear(ctx context.Context) error {
	keys, err := s.Keys(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.namespace + k
	}
	if err := s.redisClient.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("redis clear failed: %w", err)
	}
	s.logger.Info().Int("deleted", len(full)).Msg("Cleared Redis namespace.")
	return nil
}

// Close closes the Redis client connection.
func (s *RedisStore) Close() error {
	if s.redisClient != nil {
		s.logger.Info().Msg("Closing Redis client connection...")
		return s.redisClient.Close()
	}
	return nil
}

func isOutOfMemory(err error) bool {
	return strings.HasPrefix(err.Error(), "OOM ")
}
