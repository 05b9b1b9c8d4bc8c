package ingestion

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/adyeetya/blogs-backend/pkg/errors"
)

// ErrRunInProgress is returned when a magazine already has an ingestion run.
var ErrRunInProgress = pkgerrors.New(pkgerrors.CodeConflict, "ingestion already in progress")

// Lease is a held per-magazine lock.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker serializes ingestion runs per magazine slug.
type Locker interface {
	Acquire(ctx context.Context, slug string) (Lease, error)
}

// redisStore defines the operations used by RedisLocker.
type redisStore interface {
	AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, owner string) (bool, error)
	IngestionLockKey(slug string) string
}

// RedisLocker implements Locker with Redis SETNX + TTL so runs are exclusive
// across API instances. The TTL must outlive the run timeout.
type RedisLocker struct {
	client redisStore
	ttl    time.Duration
}

func NewRedisLocker(client redisStore, ttl time.Duration) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("redis client required for ingestion lock")
	}
	if ttl <= 0 {
		return nil, errors.New("ingestion lock ttl must be positive")
	}
	return &RedisLocker{client: client, ttl: ttl}, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, slug string) (Lease, error) {
	key := l.client.IngestionLockKey(slug)
	owner := uuid.NewString()
	ok, err := l.client.AcquireLock(ctx, key, owner, l.ttl)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire ingestion lock")
	}
	if !ok {
		return nil, ErrRunInProgress
	}
	return &redisLease{client: l.client, key: key, owner: owner}, nil
}

type redisLease struct {
	client redisStore
	key    string
	owner  string
}

// Release frees the lock only if this lease still owns it. A lease that
// expired and was taken by another run is left alone.
func (l *redisLease) Release(ctx context.Context) error {
	if _, err := l.client.ReleaseLock(ctx, l.key, l.owner); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release ingestion lock")
	}
	return nil
}

// MemoryLocker serializes runs inside one process.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]struct{})}
}

func (l *MemoryLocker) Acquire(_ context.Context, slug string) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[slug]; ok {
		return nil, ErrRunInProgress
	}
	l.held[slug] = struct{}{}
	return &memoryLease{locker: l, slug: slug}, nil
}

type memoryLease struct {
	locker *MemoryLocker
	slug   string
	once   sync.Once
}

func (l *memoryLease) Release(context.Context) error {
	l.once.Do(func() {
		l.locker.mu.Lock()
		delete(l.locker.held, l.slug)
		l.locker.mu.Unlock()
	})
	return nil
}
