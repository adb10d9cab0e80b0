package repository

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"

	"github.com/soochol/chatflow/internal/chatflow/ports"
)

const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

const refreshScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
else
	return 0
end
`

// RedisLocker implements ports.Locker with SET NX PX so that replicas
// never advance the same conversation concurrently.
type RedisLocker struct {
	client *backend.Client
	prefix string
	poll   time.Duration
}

func NewRedisLocker(client *backend.Client, prefix string) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix, poll: 25 * time.Millisecond}
}

// Lock polls until the lock is acquired or ctx is done. While held, the
// lock is renewed every ttl/3 so a long turn keeps it; it expires after
// ttl once its holder stops renewing, either because ctx ended or the
// process died.
func (l *RedisLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	lockKey := l.prefix + "lock:" + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, lockKey, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis error acquiring lock: %w", err)
		}
		if ok {
			return l.hold(ctx, lockKey, token, ttl), nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// hold renews the lock until the returned unlock runs or ctx is done.
func (l *RedisLocker) hold(ctx context.Context, lockKey, token string, ttl time.Duration) ports.UnlockFunc {
	if ttl/3 <= 0 {
		return func(ctx context.Context) error {
			return l.client.Eval(ctx, unlockScript, []string{lockKey}, token).Err()
		}
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(ttl / 3)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-t.C:
			}
			n, err := l.client.Eval(ctx, refreshScript, []string{lockKey}, token, ttl.Milliseconds()).Int()
			if err != nil {
				slog.Warn("redis lock: renew failed", "key", lockKey, "err", err)
				continue
			}
			if n == 0 {
				slog.Warn("redis lock: lost before unlock", "key", lockKey)
				return
			}
		}
	}()

	var once sync.Once
	return func(ctx context.Context) error {
		once.Do(func() { close(stop) })
		<-done
		return l.client.Eval(ctx, unlockScript, []string{lockKey}, token).Err()
	}
}
