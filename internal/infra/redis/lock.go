// File: internal/infra/redis/lock.go
package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"venture-idea-analyzer/internal/domain"
)

// RedisLocker is a single-attempt SETNX lease with token-checked
// release. A held key means some other driver owns the stage right now;
// callers treat that as "already running", not as a reason to wait.
// The TTL bounds how long a crashed holder can block the stage.
type RedisLocker struct {
	cli *redis.Client
}

func NewLocker(c *Client) *RedisLocker {
	return &RedisLocker{cli: c.cli}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := l.cli.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", domain.ErrStageAlreadyRunning
	}
	return token, nil
}

// luaUnlock deletes the key only when the caller still owns it, so an
// expired lease taken over by someone else is never released by the old
// holder.
var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	_, err := luaUnlock.Run(ctx, l.cli, []string{key}, token).Result()
	return err
}
