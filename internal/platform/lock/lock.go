// Package lock provides per-key mutual exclusion across processes.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrNotObtained is returned when the key stays locked past the wait budget.
var ErrNotObtained = errors.New("lock: not obtained")

// Locker serialises work on a key.
type Locker interface {
	// Acquire waits up to the locker's budget for key and returns the release func.
	Acquire(ctx context.Context, key string) (func(), error)
	// TryAcquire makes a single attempt and fails with ErrNotObtained when key is held.
	TryAcquire(ctx context.Context, key string) (func(), error)
}

// RedisLocker uses bsm/redislock so the API server and the worker exclude each other.
type RedisLocker struct {
	client  *redislock.Client
	ttl     time.Duration
	wait    time.Duration
	backoff time.Duration
}

// NewRedisLocker builds a RedisLocker. ttl bounds how long a crashed holder
// blocks others and is also how long Acquire waits for a held key.
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{
		client:  redislock.New(client),
		ttl:     ttl,
		wait:    ttl,
		backoff: 100 * time.Millisecond,
	}
}

// Acquire obtains the redis lock for key, retrying until the wait budget
// runs out. Cancellation of ctx is reported as is.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()
	retries := int(l.wait / l.backoff)
	return l.obtain(ctx, waitCtx, key, redislock.LimitRetry(redislock.LinearBackoff(l.backoff), retries))
}

// TryAcquire obtains the redis lock for key without retrying.
func (l *RedisLocker) TryAcquire(ctx context.Context, key string) (func(), error) {
	return l.obtain(ctx, ctx, key, redislock.NoRetry())
}

func (l *RedisLocker) obtain(ctx, waitCtx context.Context, key string, retry redislock.RetryStrategy) (func(), error) {
	held, err := l.client.Obtain(waitCtx, "lock:"+key, l.ttl, &redislock.Options{RetryStrategy: retry})
	switch {
	case err == nil:
	case errors.Is(err, redislock.ErrNotObtained):
		return nil, fmt.Errorf("%w: %s", ErrNotObtained, key)
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		// Our own wait budget expired while the key stayed held.
		return nil, fmt.Errorf("%w: %s", ErrNotObtained, key)
	default:
		return nil, fmt.Errorf("lock: obtain %s: %w", key, err)
	}
	return func() {
		// Release with a fresh context so a cancelled request still frees the key.
		_ = held.Release(context.Background())
	}, nil
}

type localSlot struct {
	ch   chan struct{}
	refs int
}

// LocalLocker is an in-process Locker for single-binary deployments and tests.
// A slot lives only while someone holds or waits for its key.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*localSlot
}

// NewLocalLocker constructs LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]*localSlot)}
}

// Acquire waits for key or returns ErrNotObtained once ctx ends.
func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(), error) {
	slot := l.ref(key)
	select {
	case slot.ch <- struct{}{}:
		return l.releaser(key, slot), nil
	case <-ctx.Done():
		l.unref(key)
		return nil, fmt.Errorf("%w: %s: %v", ErrNotObtained, key, ctx.Err())
	}
}

// TryAcquire takes key only if it is free right now.
func (l *LocalLocker) TryAcquire(ctx context.Context, key string) (func(), error) {
	slot := l.ref(key)
	select {
	case slot.ch <- struct{}{}:
		return l.releaser(key, slot), nil
	default:
		l.unref(key)
		return nil, fmt.Errorf("%w: %s", ErrNotObtained, key)
	}
}

// Len reports how many keys are currently held or awaited.
func (l *LocalLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

func (l *LocalLocker) ref(key string) *localSlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[key]
	if !ok {
		slot = &localSlot{ch: make(chan struct{}, 1)}
		l.slots[key] = slot
	}
	slot.refs++
	return slot
}

func (l *LocalLocker) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[key]
	if !ok {
		return
	}
	slot.refs--
	if slot.refs <= 0 {
		delete(l.slots, key)
	}
}

func (l *LocalLocker) releaser(key string, slot *localSlot) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-slot.ch
			l.unref(key)
		})
	}
}
