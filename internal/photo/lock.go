package photo

import (
	"context"
	"errors"
	"sync"
	"time"

	"backend-dailyrecord/internal/logging"
	"backend-dailyrecord/internal/shared/apperr"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lockPrefix = "photo:analyze:"

// Locker grants a non-blocking, per-key critical section.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

const lockPingTimeout = 2 * time.Second

// NewLocker prefers redis so the lock holds across instances. When redis is
// not configured or does not answer at startup it falls back to an
// in-process lock, the same way the stream hub falls back to local delivery.
func NewLocker(client *redis.Client, ttl time.Duration) Locker {
	if client == nil {
		return NewLocalLocker()
	}
	ctx, cancel := context.WithTimeout(context.Background(), lockPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logging.Warn().Err(err).Msg("redis unreachable, using in-process analysis lock")
		return NewLocalLocker()
	}
	return &RedisLocker{client: client, ttl: ttl}
}

func errInProgress() error {
	return apperr.Conflict("analysis already in progress for this photo")
}

type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	k := lockPrefix + key
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, k, token, l.ttl).Result()
	if err != nil {
		return nil, apperr.Upstream(err, "could not acquire analysis lock")
	}
	if !ok {
		return nil, errInProgress()
	}
	return func() {
		err := releaseScript.Run(context.Background(), l.client, []string{k}, token).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			logging.Warn().Err(err).Str("key", k).Msg("release analysis lock")
		}
	}, nil
}

type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: map[string]struct{}{}}
}

func (l *LocalLocker) Acquire(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, errInProgress()
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}
