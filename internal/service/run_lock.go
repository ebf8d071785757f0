package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	appErrors "github.com/noah-isme/ano-letivo-api/pkg/errors"
)

const runLockPrefix = "transicao:lock:"

// RunLock serialises transitions per key. Acquire returns ErrTransitionLocked while the key is held.
type RunLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// NewRunLock returns a Redis-backed lock or an in-process one when client is nil.
func NewRunLock(client *redis.Client) RunLock {
	if client == nil {
		return NewLocalRunLock()
	}
	return NewRedisRunLock(client)
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisRunLock holds a lock as a Redis key with an owner token so only the owner can release it.
type RedisRunLock struct {
	client *redis.Client
}

// NewRedisRunLock constructs the lock.
func NewRedisRunLock(client *redis.Client) *RedisRunLock {
	return &RedisRunLock{client: client}
}

// Acquire sets the key with NX and PX. The returned release is safe to call more than once.
func (l *RedisRunLock) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	redisKey := runLockPrefix + key
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, redisKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire transition lock: %w", err)
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrTransitionLocked, fmt.Sprintf("a transition is already running for %s", key))
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err()
		})
	}, nil
}

// LocalRunLock is an in-process lock for single-instance deployments and the CLI.
type LocalRunLock struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

// NewLocalRunLock constructs the lock.
func NewLocalRunLock() *LocalRunLock {
	return &LocalRunLock{held: make(map[string]time.Time), now: time.Now}
}

// Acquire takes the key unless it is held and not expired.
func (l *LocalRunLock) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if expires, ok := l.held[key]; ok && (ttl <= 0 || now.Before(expires)) {
		return nil, appErrors.Clone(appErrors.ErrTransitionLocked, fmt.Sprintf("a transition is already running for %s", key))
	}
	expires := now.Add(ttl)
	l.held[key] = expires
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if current, ok := l.held[key]; ok && current.Equal(expires) {
				delete(l.held, key)
			}
		})
	}, nil
}
