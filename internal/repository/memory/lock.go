package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"dispatch/internal/redis"
)

type lockEntry struct {
	token  string
	expiry time.Time // zero means none
}

// LockStore is an in-process order lock with the same semantics as the Redis
// one. It is used when the console runs as a single replica without Redis.
type LockStore struct {
	mu    sync.Mutex
	locks map[string]lockEntry
	now   func() time.Time
}

// Ensure LockStore implements redis.LockStoreInterface.
var _ redis.LockStoreInterface = (*LockStore)(nil)

// NewLockStore creates a new LockStore.
func NewLockStore() *LockStore {
	return &LockStore{
		locks: make(map[string]lockEntry),
		now:   time.Now,
	}
}

// AcquireOrderLock takes the lock unless a live holder exists.
func (s *LockStore) AcquireOrderLock(ctx context.Context, orderID string, ttl time.Duration) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if entry, held := s.locks[orderID]; held && (entry.expiry.IsZero() || now.Before(entry.expiry)) {
		return "", false, nil
	}

	entry := lockEntry{token: uuid.New().String()}
	if ttl > 0 {
		entry.expiry = now.Add(ttl)
	}
	s.locks[orderID] = entry
	return entry.token, true, nil
}

// ReleaseOrderLock releases the lock if token still holds it.
func (s *LockStore) ReleaseOrderLock(ctx context.Context, orderID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, held := s.locks[orderID]; held && entry.token == token {
		delete(s.locks, orderID)
	}
	return nil
}
