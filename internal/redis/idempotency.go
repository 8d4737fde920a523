package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const idempotencyKeyPrefix = "idempotency:"

// IdempotencyStore keeps replayable HTTP responses in Redis.
type IdempotencyStore struct {
	client *redis.Client
}

// NewIdempotencyStore creates a new IdempotencyStore.
func NewIdempotencyStore(client *redis.Client) *IdempotencyStore {
	return &IdempotencyStore{client: client}
}

// GetResponse returns the stored response. Returns nil, nil when the key is unknown.
func (s *IdempotencyStore) GetResponse(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, idempotencyKeyPrefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

// SaveResponse stores a response. An existing entry is kept so the first
// answer always wins.
func (s *IdempotencyStore) SaveResponse(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return s.client.SetNX(ctx, idempotencyKeyPrefix+key, data, ttl).Err()
}
