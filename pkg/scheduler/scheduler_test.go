package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/lifecycle"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/redis"
)

type countingMatcher struct {
	mu    sync.Mutex
	calls int
	err   error
	ran   chan struct{}
}

func (m *countingMatcher) Match(_ context.Context, req matching.MatchRequest) (*matching.MatchResults, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.ran != nil {
		select {
		case m.ran <- struct{}{}:
		default:
		}
	}
	return &matching.MatchResults{}, m.err
}

func (m *countingMatcher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type fakeLifecycle struct {
	calls int
	err   error
}

func (f *fakeLifecycle) Run(_ context.Context) (*lifecycle.RunReport, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &lifecycle.RunReport{TrainingRows: 10, Challenger: "challenger-x"}, nil
}

func nopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestRunMatch(t *testing.T) {
	ctx := context.Background()

	t.Run("runs under the match lock", func(t *testing.T) {
		m := &countingMatcher{}
		s := NewScheduler(m, &fakeLifecycle{}, redis.NewLocalLocker(), DefaultConfig(), nopLogger())

		require.NoError(t, s.RunMatch(ctx))
		require.NoError(t, s.RunMatch(ctx))
		assert.Equal(t, 2, m.count())
	})

	t.Run("busy lock skips without error", func(t *testing.T) {
		m := &countingMatcher{}
		locker := redis.NewLocalLocker()
		s := NewScheduler(m, &fakeLifecycle{}, locker, DefaultConfig(), nopLogger())

		_, err := locker.Acquire(ctx, redis.MatchLock, time.Minute)
		require.NoError(t, err)

		require.NoError(t, s.RunMatch(ctx))
		assert.Equal(t, 0, m.count())
	})

	t.Run("match errors surface", func(t *testing.T) {
		m := &countingMatcher{err: errors.New("store down")}
		s := NewScheduler(m, &fakeLifecycle{}, redis.NewLocalLocker(), DefaultConfig(), nopLogger())
		assert.EqualError(t, s.RunMatch(ctx), "store down")
	})
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()

	lc := &fakeLifecycle{}
	locker := redis.NewLocalLocker()
	s := NewScheduler(&countingMatcher{}, lc, locker, DefaultConfig(), nopLogger())
	require.NoError(t, s.RunLifecycle(ctx))
	assert.Equal(t, 1, lc.calls)

	lock, err := locker.Acquire(ctx, redis.LifecycleLock, time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.RunLifecycle(ctx))
	assert.Equal(t, 1, lc.calls)
	require.NoError(t, lock.Release(ctx))

	lc.err = errors.New("artifact store unavailable")
	assert.Error(t, s.RunLifecycle(ctx))
}

func TestStartStop(t *testing.T) {
	m := &countingMatcher{ran: make(chan struct{}, 1)}
	cfg := Config{PollInterval: time.Hour, LifecycleCron: DefaultLifecycleCron}
	s := NewScheduler(m, &fakeLifecycle{}, redis.NewLocalLocker(), cfg, nopLogger())

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	assert.ErrorIs(t, s.Start(ctx), ErrSchedulerAlreadyRunning)
	assert.True(t, s.IsRunning())

	select {
	case <-m.ran:
	case <-time.After(5 * time.Second):
		t.Fatal("match loop did not run on start")
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))
	assert.False(t, s.IsRunning())
	assert.Equal(t, 1, m.count())
}

func TestStartRejectsBadCron(t *testing.T) {
	s := NewScheduler(&countingMatcher{}, &fakeLifecycle{}, redis.NewLocalLocker(), Config{LifecycleCron: "not a cron"}, nopLogger())
	assert.Error(t, s.Start(context.Background()))
	assert.False(t, s.IsRunning())
}
