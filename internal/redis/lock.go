package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockStore handles per-order locking in Redis so that transitions on the
// same order never interleave, even across service replicas.
type LockStore struct {
	client *redis.Client
}

// NewLockStore creates a new LockStore.
func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{client: client}
}

func orderLockKey(orderID string) string {
	return fmt.Sprintf("lock:order:%s", orderID)
}

// AcquireOrderLock attempts to acquire the lock for the given order.
// On success it returns the holder token needed to release it.
func (s *LockStore) AcquireOrderLock(ctx context.Context, orderID string, ttl time.Duration) (string, bool, error) {
	token := uuid.New().String()
	ok, err := s.client.SetNX(ctx, orderLockKey(orderID), token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}

	return token, true, nil
}

// ReleaseOrderLock releases the lock if token still holds it. A lock that
// expired and was taken by someone else is left alone.
func (s *LockStore) ReleaseOrderLock(ctx context.Context, orderID, token string) error {
	return releaseScript.Run(ctx, s.client, []string{orderLockKey(orderID)}, token).Err()
}
