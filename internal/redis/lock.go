package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockNotAcquired = errors.New("lock not acquired")

// Mutex serializes a critical section across process replicas. The cleanup
// worker uses it so only one replica runs a sweep at a time.
type Mutex interface {
	WithLock(ctx context.Context, name string, fn func(ctx context.Context) error) error
}

type redisMutex struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisMutex creates a mutex backed by a per-name Redis key.
func NewRedisMutex(client *redis.Client, ttl time.Duration) Mutex {
	return &redisMutex{
		client: client,
		ttl:    ttl,
	}
}

func (m *redisMutex) WithLock(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:%s", name)
	token := uuid.NewString()

	ok, err := m.client.SetNX(ctx, key, token, m.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = m.release(ctx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, m.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

// The token check keeps a replica from deleting a lock it no longer holds
// after its TTL lapsed.
var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (m *redisMutex) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, m.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
