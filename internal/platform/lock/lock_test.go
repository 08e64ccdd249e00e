package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisLockerExcludesAndReleases(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locker := NewRedisLocker(client, 300*time.Millisecond)
	release, err := locker.Acquire(context.Background(), "ledger:rolls:2025-01-10")
	require.NoError(t, err)
	require.True(t, mr.Exists("lock:ledger:rolls:2025-01-10"))

	start := time.Now()
	_, err = locker.Acquire(context.Background(), "ledger:rolls:2025-01-10")
	require.True(t, errors.Is(err, ErrNotObtained), "got %v", err)
	require.GreaterOrEqual(t, time.Since(start), 250*time.Millisecond)

	_, err = locker.TryAcquire(context.Background(), "ledger:rolls:2025-01-10")
	require.True(t, errors.Is(err, ErrNotObtained), "got %v", err)

	other, err := locker.Acquire(context.Background(), "ledger:meat:2025-01-10")
	require.NoError(t, err)
	other()

	release()
	require.False(t, mr.Exists("lock:ledger:rolls:2025-01-10"))

	again, err := locker.Acquire(context.Background(), "ledger:rolls:2025-01-10")
	require.NoError(t, err)
	again()
}

func TestRedisLockerReportsCallerCancellation(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locker := NewRedisLocker(client, 5*time.Second)
	release, err := locker.Acquire(context.Background(), "pos:sync:2025-01-10")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(ctx, "pos:sync:2025-01-10")
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrNotObtained))
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestLocalLockerTryAcquire(t *testing.T) {
	locker := NewLocalLocker()
	release, err := locker.TryAcquire(context.Background(), "k")
	require.NoError(t, err)

	_, err = locker.TryAcquire(context.Background(), "k")
	require.True(t, errors.Is(err, ErrNotObtained))
	require.Equal(t, 1, locker.Len())

	release()
	require.Zero(t, locker.Len())
}

func TestLocalLockerDropsIdleKeys(t *testing.T) {
	locker := NewLocalLocker()
	for i := 0; i < 50; i++ {
		rel, err := locker.Acquire(context.Background(), time.Date(2025, 1, 1+i, 0, 0, 0, 0, time.UTC).Format("2006-01-02"))
		require.NoError(t, err)
		rel()
	}
	require.Zero(t, locker.Len())

	release, err := locker.Acquire(context.Background(), "k")
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(ctx, "k")
	require.Error(t, err)
	require.Equal(t, 1, locker.Len())
	release()
	require.Zero(t, locker.Len())
}

func TestLocalLockerSerialises(t *testing.T) {
	locker := NewLocalLocker()
	release, err := locker.Acquire(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(ctx, "k")
	require.True(t, errors.Is(err, ErrNotObtained))

	done := make(chan struct{})
	go func() {
		rel, err := locker.Acquire(context.Background(), "k")
		if err == nil {
			rel()
		}
		close(done)
	}()
	release()
	release()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter was not released")
	}
	require.Zero(t, locker.Len())
}
