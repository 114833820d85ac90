// Package scheduler drives the periodic match loop and the lifecycle cron job.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/robfig/cron/v3"

	"github.com/Ramsey-B/fern/pkg/lifecycle"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var (
	// ErrSchedulerAlreadyRunning is returned when trying to start an already running scheduler
	ErrSchedulerAlreadyRunning = errors.New("scheduler already running")
)

const (
	// DefaultPollInterval is the default interval between match runs
	DefaultPollInterval = 15 * time.Minute

	// DefaultLockTTL bounds how long a crashed holder can block the next run
	DefaultLockTTL = 10 * time.Minute

	// DefaultLifecycleCron runs the lifecycle nightly
	DefaultLifecycleCron = "0 3 * * *"
)

// Matcher runs one matching pass.
type Matcher interface {
	Match(ctx context.Context, req matching.MatchRequest) (*matching.MatchResults, error)
}

// LifecycleRunner runs train, validate and promote.
type LifecycleRunner interface {
	Run(ctx context.Context) (*lifecycle.RunReport, error)
}

// Config holds configuration for the scheduler
type Config struct {
	// PollInterval is how often the match loop runs
	PollInterval time.Duration

	// LockTTL is how long a run may hold its lock
	LockTTL time.Duration

	// LifecycleCron is a standard five field cron spec. Empty disables the job.
	LifecycleCron string
}

// DefaultConfig returns the default scheduler configuration
func DefaultConfig() Config {
	return Config{
		PollInterval:  DefaultPollInterval,
		LockTTL:       DefaultLockTTL,
		LifecycleCron: DefaultLifecycleCron,
	}
}

// Scheduler runs matching on an interval and the lifecycle on a cron schedule. Both take a
// named lock first so overlapping runs, here or in another process, are skipped.
type Scheduler struct {
	matcher   Matcher
	lifecycle LifecycleRunner
	locker    redis.Locker
	cron      *cron.Cron
	config    Config
	logger    ectologger.Logger

	stopCh   chan struct{}
	stoppedC chan struct{}
	running  bool
	mu       sync.RWMutex
}

// NewScheduler creates a new scheduler
func NewScheduler(
	matcher Matcher,
	runner LifecycleRunner,
	locker redis.Locker,
	config Config,
	logger ectologger.Logger,
) *Scheduler {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.LockTTL <= 0 {
		config.LockTTL = DefaultLockTTL
	}

	return &Scheduler{
		matcher:   matcher,
		lifecycle: runner,
		locker:    locker,
		cron:      cron.New(),
		config:    config,
		logger:    logger,
		stopCh:    make(chan struct{}),
		stoppedC:  make(chan struct{}),
	}
}

// Start starts the poll loop and the cron job
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	if s.config.LifecycleCron != "" {
		_, err := s.cron.AddFunc(s.config.LifecycleCron, func() {
			_ = s.RunLifecycle(ctx)
		})
		if err != nil {
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			return err
		}
		s.cron.Start()
	}

	s.logger.WithContext(ctx).Infof("Starting scheduler: poll_interval=%s lifecycle_cron=%q",
		s.config.PollInterval, s.config.LifecycleCron)

	go s.pollLoop(ctx)
	return nil
}

// Stop stops the scheduler gracefully
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.WithContext(ctx).Info("Stopping scheduler...")

	close(s.stopCh)
	cronDone := s.cron.Stop()

	for _, done := range []<-chan struct{}{s.stoppedC, cronDone.Done()} {
		select {
		case <-done:
		case <-ctx.Done():
			s.logger.WithContext(ctx).Warn("Scheduler shutdown timed out")
			return ctx.Err()
		}
	}

	s.logger.WithContext(ctx).Info("Scheduler stopped gracefully")
	return nil
}

// Run starts the scheduler and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	return s.Stop(stopCtx)
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) pollLoop(ctx context.Context) {
	defer close(s.stoppedC)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	// Run immediately on start
	_ = s.RunMatch(ctx)

	for {
		select {
		case <-s.stopCh:
			s.logger.WithContext(ctx).Debug("Scheduler poll loop stopping")
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.RunMatch(ctx)
		}
	}
}

// RunMatch runs one match pass over every open query under the match lock. A busy lock is
// logged and skipped, not reported as an error.
func (s *Scheduler) RunMatch(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "Scheduler.RunMatch")
	defer span.End()

	err := redis.WithLock(ctx, s.locker, redis.MatchLock, s.config.LockTTL, func(ctx context.Context) error {
		_, err := s.matcher.Match(ctx, matching.MatchRequest{})
		return err
	})
	return s.finish(ctx, redis.MatchLock, err)
}

// RunLifecycle runs the lifecycle under the lifecycle lock.
func (s *Scheduler) RunLifecycle(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "Scheduler.RunLifecycle")
	defer span.End()

	err := redis.WithLock(ctx, s.locker, redis.LifecycleLock, s.config.LockTTL, func(ctx context.Context) error {
		report, err := s.lifecycle.Run(ctx)
		if err != nil {
			return err
		}
		s.logger.WithContext(ctx).WithFields(map[string]any{
			"training_rows": report.TrainingRows,
			"challenger":    report.Challenger,
			"skipped":       report.Skipped,
			"adopted":       report.Adopted,
		}).Info("Lifecycle run complete")
		return nil
	})
	return s.finish(ctx, redis.LifecycleLock, err)
}

func (s *Scheduler) finish(ctx context.Context, job string, err error) error {
	log := s.logger.WithContext(ctx).WithField("job", job)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.ErrLockNotAcquired):
		log.Info("Previous run still in progress, skipping")
		return nil
	default:
		log.WithError(err).Error("Scheduled job failed")
		return err
	}
}
