package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// unlockLua deletes the lock only if it still carries the caller's token.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// LockManager serialises executions of a market pair across instances
// with SET NX plus a token-checked release.
type LockManager struct {
	rdb      *redis.Client
	c        *Client
	unlockSc *redis.Script
}

var _ domain.PairLocker = (*LockManager)(nil)

// NewLockManager creates a LockManager backed by c.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{
		rdb:      c.rdb,
		c:        c,
		unlockSc: redis.NewScript(unlockLua),
	}
}

// Acquire takes the lock for pairID. It returns domain.ErrLockHeld when
// another holder owns it. The returned unlock is safe to call repeatedly.
func (lm *LockManager) Acquire(ctx context.Context, pairID string, ttl time.Duration) (func(), error) {
	token := uuid.New().String()
	key := lm.c.Key("lock", "pair", pairID)

	ok, err := lm.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", pairID, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			// Released on a fresh context; the caller's may be gone.
			unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = lm.unlockSc.Run(unlockCtx, lm.rdb, []string{key}, token).Err()
		})
	}
	return unlock, nil
}
