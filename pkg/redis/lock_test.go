package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()

	t.Run("excludes a second holder until release", func(t *testing.T) {
		l := NewLocalLocker()

		lock, err := l.Acquire(ctx, MatchLock, time.Minute)
		require.NoError(t, err)

		_, err = l.Acquire(ctx, MatchLock, time.Minute)
		assert.ErrorIs(t, err, ErrLockNotAcquired)

		_, err = l.Acquire(ctx, LifecycleLock, time.Minute)
		assert.NoError(t, err)

		require.NoError(t, lock.Release(ctx))
		assert.ErrorIs(t, lock.Release(ctx), ErrLockNotHeld)

		_, err = l.Acquire(ctx, MatchLock, time.Minute)
		assert.NoError(t, err)
	})

	t.Run("expired lock can be taken over", func(t *testing.T) {
		l := NewLocalLocker()
		now := time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC)
		l.now = func() time.Time { return now }

		stale, err := l.Acquire(ctx, MatchLock, time.Minute)
		require.NoError(t, err)

		now = now.Add(2 * time.Minute)
		_, err = l.Acquire(ctx, MatchLock, time.Minute)
		require.NoError(t, err)

		assert.ErrorIs(t, stale.Release(ctx), ErrLockNotHeld)
	})
}

func TestWithLock(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	ran := false
	err := WithLock(ctx, l, MatchLock, time.Minute, func(ctx context.Context) error {
		ran = true
		_, err := l.Acquire(ctx, MatchLock, time.Minute)
		assert.ErrorIs(t, err, ErrLockNotAcquired)
		return errors.New("job failed")
	})
	assert.EqualError(t, err, "job failed")
	assert.True(t, ran)

	_, err = l.Acquire(ctx, MatchLock, time.Minute)
	assert.NoError(t, err, "lock is released after the job")
}
