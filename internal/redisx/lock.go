package redisx

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockTimeout = errors.New("lock acquisition timed out")

// Locker hands out short-TTL exclusive leases over a set of resource keys.
// Swappable: RedisLocker for multi-node deployments, MemoryLocker for
// single-node runs and tests.
type Locker interface {
	Acquire(ctx context.Context, keys []string, ttl time.Duration) (Lease, error)
}

// Lease must be released on every exit path. Release is idempotent.
type Lease interface {
	Release(ctx context.Context) error
}

// compare-token-and-del, so a lease that outlived its TTL cannot delete
// someone else's lock.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

const acquireRetryDelay = 50 * time.Millisecond

type RedisLocker struct {
	RDB *redis.Client
	// Bound on the whole multi-key acquisition. Zero means 3s.
	AcquireTimeout time.Duration
}

type redisLease struct {
	rdb   *redis.Client
	keys  []string
	token string
	once  sync.Once
	err   error
}

// Acquire grabs every key in sorted order (stable ordering avoids deadlock
// between two checkouts locking overlapping SKU sets). On timeout, keys
// acquired so far are released before returning ErrLockTimeout.
func (l *RedisLocker) Acquire(ctx context.Context, keys []string, ttl time.Duration) (Lease, error) {
	sorted := dedupeSorted(keys)
	timeout := l.AcquireTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	deadline := time.Now().Add(timeout)

	lease := &redisLease{rdb: l.RDB, token: uuid.NewString()}
	for _, k := range sorted {
		for {
			ok, err := l.RDB.SetNX(ctx, k, lease.token, ttl).Result()
			if err != nil {
				_ = lease.Release(ctx)
				return nil, fmt.Errorf("lock %s: %w", k, err)
			}
			if ok {
				lease.keys = append(lease.keys, k)
				break
			}
			if time.Now().After(deadline) {
				_ = lease.Release(ctx)
				return nil, ErrLockTimeout
			}
			select {
			case <-ctx.Done():
				_ = lease.Release(ctx)
				return nil, ctx.Err()
			case <-time.After(acquireRetryDelay):
			}
		}
	}
	return lease, nil
}

func (le *redisLease) Release(ctx context.Context) error {
	le.once.Do(func() {
		for _, k := range le.keys {
			if err := releaseScript.Run(ctx, le.rdb, []string{k}, le.token).Err(); err != nil && !errors.Is(err, redis.Nil) {
				le.err = err
			}
		}
	})
	return le.err
}

// MemoryLocker serializes on an in-process table. TTL is not enforced;
// leases live until released, which is fine inside a single process.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]bool

	// Bound on the whole multi-key acquisition. Zero means 3s.
	AcquireTimeout time.Duration
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: map[string]bool{}}
}

type memoryLease struct {
	l    *MemoryLocker
	keys []string
	once sync.Once
}

func (l *MemoryLocker) Acquire(ctx context.Context, keys []string, _ time.Duration) (Lease, error) {
	sorted := dedupeSorted(keys)
	timeout := l.AcquireTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	deadline := time.Now().Add(timeout)

	for {
		if l.tryAll(sorted) {
			return &memoryLease{l: l, keys: sorted}, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (l *MemoryLocker) tryAll(keys []string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, k := range keys {
		if l.held[k] {
			return false
		}
	}
	for _, k := range keys {
		l.held[k] = true
	}
	return true
}

func (le *memoryLease) Release(context.Context) error {
	le.once.Do(func() {
		le.l.mu.Lock()
		defer le.l.mu.Unlock()
		for _, k := range le.keys {
			delete(le.l.held, k)
		}
	})
	return nil
}

func dedupeSorted(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := map[string]bool{}
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
