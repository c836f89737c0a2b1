package piicache

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"idvault/internal/platform/redis"
	"idvault/internal/sentinel"
	id "idvault/pkg/domain"
)

const redisKeyPrefix = "piicache:"

// RedisStore backs the session cache with Redis, so entries survive process
// restarts and are shared across instances. Expiry rides on Redis TTLs.
type RedisStore struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed cache store.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(sessionID id.SessionID) string {
	return redisKeyPrefix + sessionID.String()
}

func (s *RedisStore) Put(ctx context.Context, sessionID id.SessionID, blob []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, redisKey(sessionID), blob, ttl).Err(); err != nil {
		return fmt.Errorf("cache write failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, sessionID id.SessionID) ([]byte, error) {
	blob, err := s.client.Get(ctx, redisKey(sessionID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("no cache entry for session: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("cache read failed: %w", err)
	}
	return blob, nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID id.SessionID) error {
	if err := s.client.Del(ctx, redisKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("cache delete failed: %w", err)
	}
	return nil
}
