package redis

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Ramsey-B/fern/pkg/metrics"
)

var (
	// ErrLockNotAcquired is returned when a lock cannot be acquired
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrLockNotHeld is returned when trying to release a lock not held
	ErrLockNotHeld = errors.New("lock not held")
)

// Lock names shared by the match loop, the lifecycle job and manual CLI runs.
const (
	MatchLock     = "match"
	LifecycleLock = "lifecycle"
)

// Lock is a held lock.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker hands out named locks with a TTL.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisLocker provides locks shared by every process using the same Redis.
type RedisLocker struct {
	client    *Client
	keyPrefix string
}

// NewLocker creates a new RedisLocker
func NewLocker(client *Client, keyPrefix string) *RedisLocker {
	if keyPrefix == "" {
		keyPrefix = "fern:lock:"
	}
	return &RedisLocker{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Acquire attempts to acquire a lock
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	lockKey := l.keyPrefix + key
	lockValue := uuid.New().String()

	ok, err := l.client.rdb.SetNX(ctx, lockKey, lockValue, ttl).Result()
	if err != nil {
		metrics.RecordLock(key, "error")
		return nil, err
	}
	if !ok {
		metrics.RecordLock(key, "busy")
		return nil, ErrLockNotAcquired
	}

	metrics.RecordLock(key, "acquired")
	l.client.logger.WithContext(ctx).Debugf("Acquired lock: %s", lockKey)

	return &redisLock{client: l.client, key: lockKey, value: lockValue}, nil
}

type redisLock struct {
	client *Client
	key    string
	value  string
}

// Release deletes the key only while it still holds this lock's token.
func (lock *redisLock) Release(ctx context.Context) error {
	result, err := releaseScript.Run(ctx, lock.client.rdb, []string{lock.key}, lock.value).Int64()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrLockNotHeld
	}

	lock.client.logger.WithContext(ctx).Debugf("Released lock: %s", lock.key)
	return nil
}

// LocalLocker is the in-process Locker used when Redis is disabled. It only excludes
// callers inside the same process.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]localEntry
	now  func() time.Time
}

type localEntry struct {
	token   string
	expires time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		held: make(map[string]localEntry),
		now:  time.Now,
	}
}

func (l *LocalLocker) Acquire(_ context.Context, key string, ttl time.Duration) (Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if entry, ok := l.held[key]; ok && now.Before(entry.expires) {
		metrics.RecordLock(key, "busy")
		return nil, ErrLockNotAcquired
	}

	token := uuid.New().String()
	l.held[key] = localEntry{token: token, expires: now.Add(ttl)}
	metrics.RecordLock(key, "acquired")
	return &localLock{locker: l, key: key, token: token}, nil
}

type localLock struct {
	locker *LocalLocker
	key    string
	token  string
}

func (lock *localLock) Release(_ context.Context) error {
	lock.locker.mu.Lock()
	defer lock.locker.mu.Unlock()

	entry, ok := lock.locker.held[lock.key]
	if !ok || entry.token != lock.token {
		return ErrLockNotHeld
	}
	delete(lock.locker.held, lock.key)
	return nil
}

// WithLock executes fn while holding the named lock. ErrLockNotAcquired is returned
// untouched so callers can treat a busy lock as a skip.
func WithLock(ctx context.Context, locker Locker, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	lock, err := locker.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer lock.Release(context.WithoutCancel(ctx))

	return fn(ctx)
}
