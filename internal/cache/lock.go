package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker hands out short-lived named locks. The returned release func is safe to call once.
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (release func(), ok bool, err error)
}

// Connect initializes a Redis client from URL or host:port input.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// releaseScript deletes the lock only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type RedisLocker struct {
	client *redis.Client
	prefix string
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client, prefix: "loomper:lock:"}
}

func (l *RedisLocker) TryLock(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	key := l.prefix + name
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, false, nil
	}
	var once sync.Once
	release := func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
		})
	}
	return release, true, nil
}

// LocalLocker is the single-process fallback when Redis is not configured.
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]time.Time
	nowFn func() time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]time.Time), nowFn: time.Now}
}

func (l *LocalLocker) TryLock(_ context.Context, name string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFn()
	if until, ok := l.held[name]; ok && now.Before(until) {
		return nil, false, nil
	}
	until := now.Add(ttl)
	l.held[name] = until

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if l.held[name].Equal(until) {
				delete(l.held, name)
			}
		})
	}
	return release, true, nil
}
