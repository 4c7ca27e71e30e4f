package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/duynhne/mc-profile-service/internal/core/domain"
)

const keyPrefix = "mc-profile:lock:"

// releaseScript deletes the lock only if it still holds our token, so an
// expired lock taken over by another instance is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript resets the expiry only while the lock still holds our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker is a Locker shared by every replica pointing at the same Redis.
// A held lock is extended every renew interval until it is released, so the
// ttl only bounds how long a crashed holder blocks others.
type RedisLocker struct {
	client redis.UniversalClient
	log    *zap.Logger
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
	renew  time.Duration
}

func NewRedisLocker(client redis.UniversalClient, ttl, wait time.Duration, log *zap.Logger) *RedisLocker {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisLocker{
		client: client,
		log:    log.With(zap.String("component", "redis_lock")),
		ttl:    ttl,
		wait:   wait,
		retry:  50 * time.Millisecond,
		renew:  ttl / 3,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	k := keyPrefix + key
	token := uuid.NewString()

	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, k, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %q: %w", key, err)
		}
		if ok {
			break
		}
		if !time.Now().Before(deadline) {
			return nil, domain.ErrProfileBusy
		}
		t := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, domain.ErrProfileBusy
		case <-t.C:
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(context.WithoutCancel(ctx), key, k, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			// release must run even if the request context was cancelled
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(rctx, l.client, []string{k}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
				l.log.Warn("Failed to release profile lock", zap.String("key", key), zap.Error(err))
			}
		})
	}, nil
}

func (l *RedisLocker) keepAlive(ctx context.Context, key, k, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	if l.renew <= 0 {
		<-stop
		return
	}

	t := time.NewTicker(l.renew)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
		}

		rctx, cancel := context.WithTimeout(ctx, l.renew)
		n, err := extendScript.Run(rctx, l.client, []string{k}, token, l.ttl.Milliseconds()).Int()
		cancel()
		if err != nil {
			l.log.Warn("Failed to extend profile lock", zap.String("key", key), zap.Error(err))
			continue
		}
		if n == 0 {
			l.log.Warn("Profile lock expired while held", zap.String("key", key))
			<-stop
			return
		}
	}
}
