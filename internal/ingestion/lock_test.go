package ingestion

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/adyeetya/blogs-backend/pkg/errors"
)

type fakeRedis struct {
	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
	setErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) AcquireLock(_ context.Context, key, owner string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return false, f.setErr
	}
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = owner
	f.ttls[key] = ttl
	return true, nil
}

func (f *fakeRedis) ReleaseLock(_ context.Context, key, owner string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.values[key] != owner {
		return false, nil
	}
	delete(f.values, key)
	return true, nil
}

func (f *fakeRedis) IngestionLockKey(slug string) string { return "mag:ingestion:lock:" + slug }

func TestRedisLockerExclusive(t *testing.T) {
	store := newFakeRedis()
	locker, err := NewRedisLocker(store, time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "issue-1")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, store.ttls["mag:ingestion:lock:issue-1"])

	_, err = locker.Acquire(ctx, "issue-1")
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	other, err := locker.Acquire(ctx, "issue-2")
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lease.Release(ctx))
	again, err := locker.Acquire(ctx, "issue-1")
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestRedisLeaseKeepsForeignOwner(t *testing.T) {
	store := newFakeRedis()
	locker, err := NewRedisLocker(store, time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "issue-1")
	require.NoError(t, err)

	// lock expired and another instance took it
	store.values["mag:ingestion:lock:issue-1"] = "someone-else"
	require.NoError(t, lease.Release(ctx))
	assert.Equal(t, "someone-else", store.values["mag:ingestion:lock:issue-1"])

	delete(store.values, "mag:ingestion:lock:issue-1")
	assert.NoError(t, lease.Release(ctx), "releasing an expired lock is a no-op")
}

func TestRedisLockerBackendError(t *testing.T) {
	store := newFakeRedis()
	store.setErr = errors.New("connection refused")
	locker, err := NewRedisLocker(store, time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(context.Background(), "issue-1")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestNewRedisLockerValidates(t *testing.T) {
	_, err := NewRedisLocker(nil, time.Minute)
	assert.Error(t, err)
	_, err = NewRedisLocker(newFakeRedis(), 0)
	assert.Error(t, err)
}

func TestMemoryLocker(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "issue-1")
	require.NoError(t, err)
	_, err = locker.Acquire(ctx, "issue-1")
	assert.ErrorIs(t, err, ErrRunInProgress)

	require.NoError(t, lease.Release(ctx))
	next, err := locker.Acquire(ctx, "issue-1")
	require.NoError(t, err)

	// a stale lease must not free the new holder
	require.NoError(t, lease.Release(ctx))
	_, err = locker.Acquire(ctx, "issue-1")
	assert.ErrorIs(t, err, ErrRunInProgress)
	require.NoError(t, next.Release(ctx))
}
