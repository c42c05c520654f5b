package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bothive/bothive/internal/pkg/apperr"
)

// releaseScript deletes the lock key only when it still holds our token, so a
// holder whose TTL lapsed can never delete a lock re-acquired by someone else.
const releaseScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
else
    return 0
end
`

// Mutex is a single-holder distributed lock on a Redis key. It guarantees
// mutual exclusion across processes via SET NX EX and token-checked release.
type Mutex struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	token  string
}

// NewMutex creates a lock handle for the given key. The TTL must be tuned
// shorter than the interval of the loop it protects, so a crashed holder's
// lock expires before the next due run.
func NewMutex(client *redis.Client, key string, ttl time.Duration) *Mutex {
	return &Mutex{client: client, key: key, ttl: ttl}
}

// Acquire attempts to take the lock. Returns apperr.ErrLockNotAcquired when
// another holder is active; that is an expected condition, not a failure.
func (m *Mutex) Acquire(ctx context.Context) error {
	token := uuid.New().String()
	ok, err := m.client.SetNX(ctx, m.key, token, m.ttl).Result()
	if err != nil {
		return apperr.Wrap(apperr.KindUpstream, "lock acquire", err)
	}
	if !ok {
		return apperr.ErrLockNotAcquired
	}
	m.token = token
	return nil
}

// Release gives the lock back. It is a no-op when the key now holds a
// different token (our TTL expired and someone else took over).
func (m *Mutex) Release(ctx context.Context) error {
	if m.token == "" {
		return nil
	}
	token := m.token
	m.token = ""
	err := m.client.Eval(ctx, releaseScript, []string{m.key}, token).Err()
	if err != nil && err != redis.Nil {
		return apperr.Wrap(apperr.KindUpstream, "lock release", err)
	}
	return nil
}
