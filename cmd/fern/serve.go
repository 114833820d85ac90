package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/routes"
	"github.com/Ramsey-B/fern/pkg/routes/health"
	"github.com/Ramsey-B/fern/pkg/scheduler"
)

const shutdownTimeout = 30 * time.Second

func (c *cli) serveCommand() *cobra.Command {
	var noScheduler bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API, the intake consumers and the scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), c.cfg.DatabaseMigrateOnStart, func(ctx context.Context, a *app) error {
				return c.serve(ctx, a, !noScheduler)
			})
		},
	}
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "serve the API without the match loop and lifecycle job")
	return cmd
}

func (c *cli) serve(ctx context.Context, a *app, withScheduler bool) error {
	log := c.logger.WithContext(ctx)

	checks := map[string]health.Pinger{"database": a.db}
	if a.redis != nil {
		checks["redis"] = health.PingFunc(a.redis.Ping)
	}
	var consumers []*kafka.Consumer
	if c.cfg.KafkaEnabled {
		consumers = append(consumers,
			kafka.NewConsumer(kafka.ConsumerConfig{
				Brokers:       c.cfg.KafkaBrokers,
				Topic:         c.cfg.KafkaCandidateTopic,
				ConsumerGroup: c.cfg.KafkaCandidateGroup,
			}, c.logger, kafka.CandidateIntake(a.candidates, c.logger)),
			kafka.NewConsumer(kafka.ConsumerConfig{
				Brokers:       c.cfg.KafkaBrokers,
				Topic:         c.cfg.KafkaFeedbackTopic,
				ConsumerGroup: c.cfg.KafkaFeedbackGroup,
			}, c.logger, kafka.FeedbackIntake(a.ledger, c.logger)),
		)
		checks["kafka"] = health.PingFunc(func(context.Context) error {
			for _, consumer := range consumers {
				if !consumer.Health() {
					return errors.New("consumer stopped")
				}
			}
			return nil
		})
	}

	checker := health.NewChecker(c.cfg.Version, checks)

	e := routes.NewServer(routes.Options{
		ServiceName:  c.cfg.AppName,
		AllowOrigins: c.cfg.AllowOrigins,
	}, routes.Dependencies{
		Queries:  a.queries,
		Feedback: a.ledger,
		Matcher:  a.matcher,
		Locker:   a.locker,
		LockTTL:  c.cfg.MatchLockTTL,
		Registry: a.registry,
		Results:  a.results,
		Health:   checker,
	}, c.logger)
	e.Server.ReadTimeout = time.Duration(c.cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(c.cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(c.cfg.HttpServerIdleTimeoutSeconds) * time.Second

	g, ctx := errgroup.WithContext(ctx)

	addr := fmt.Sprintf(":%d", c.cfg.Port)
	g.Go(func() error {
		log.Infof("Starting HTTP server on %s", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	for _, consumer := range consumers {
		g.Go(func() error { return consumer.Run(ctx) })
	}

	if withScheduler {
		sched := scheduler.NewScheduler(a.matcher, a.lifecycle, a.locker, scheduler.Config{
			PollInterval:  c.cfg.MatchPollInterval,
			LockTTL:       c.cfg.MatchLockTTL,
			LifecycleCron: c.cfg.LifecycleCron,
		}, c.logger)
		g.Go(func() error { return sched.Run(ctx) })
	}

	checker.SetReady(true)
	err := g.Wait()
	checker.SetReady(false)

	log.Info("Server stopped")
	return err
}
