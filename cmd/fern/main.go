// Command fern matches tracked construction projects against published certificate postings.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/redis"
)

type cli struct {
	cfg    *config.Config
	logger ectologger.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "fern",
		Short:         "Match tracked projects against certificate postings",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			c.cfg, c.logger = cfg, logger
			return nil
		},
	}

	root.AddCommand(
		c.serveCommand(),
		c.migrateCommand(),
		c.matchCommand(),
		c.trainCommand(),
		c.validateCommand(),
		c.lifecycleCommand(),
		c.modelsCommand(),
		c.queryCommand(),
		c.sourceCommand(),
	)
	return root
}

// withApp builds the app, runs fn and closes the app again.
func (c *cli) withApp(ctx context.Context, migrate bool, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(ctx, c.cfg, c.logger, migrate)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			c.logger.WithError(err).Warn("Failed to close dependencies")
		}
	}()
	return fn(ctx, a)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func lockBusy(err error, job string) error {
	if errors.Is(err, redis.ErrLockNotAcquired) {
		return fmt.Errorf("a %s run is already in progress", job)
	}
	return err
}

func (c *cli) migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), true, func(ctx context.Context, _ *app) error {
				c.logger.WithContext(ctx).Info("Migrations applied")
				return nil
			})
		},
	}
}

func (c *cli) matchCommand() *cobra.Command {
	var (
		queryIDs []string
		req      matching.MatchRequest
	)

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Match open queries against the posting window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(queryIDs) > 0 {
				req.Queries = matching.QueryIDs(queryIDs...)
			}
			return c.withApp(cmd.Context(), c.cfg.DatabaseMigrateOnStart, func(ctx context.Context, a *app) error {
				var results *matching.MatchResults
				err := redis.WithLock(ctx, a.locker, redis.MatchLock, c.cfg.MatchLockTTL, func(ctx context.Context) error {
					var err error
					results, err = a.matcher.Match(ctx, req)
					return err
				})
				if err != nil {
					return lockBusy(err, redis.MatchLock)
				}
				return printJSON(cmd, results)
			})
		},
	}

	cmd.Flags().StringSliceVar(&queryIDs, "query-id", nil, "match only these query ids")
	cmd.Flags().StringVar(&req.Since, "since", "", "first publish date of the window, YYYY-MM-DD")
	cmd.Flags().StringVar(&req.Until, "until", "", "last publish date of the window, YYYY-MM-DD")
	cmd.Flags().BoolVar(&req.FullRescan, "full-rescan", false, "ignore watermarks and score the whole window")
	cmd.Flags().BoolVar(&req.DryRun, "dry-run", false, "score without notifying or moving watermarks")
	return cmd
}

func (c *cli) trainCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "Train a challenger model from confirmed feedback",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), c.cfg.DatabaseMigrateOnStart, func(ctx context.Context, a *app) error {
				return lockBusy(redis.WithLock(ctx, a.locker, redis.LifecycleLock, c.cfg.MatchLockTTL, func(ctx context.Context) error {
					set, err := a.lifecycle.BuildTrainingSet(ctx)
					if err != nil {
						return err
					}
					model, err := a.lifecycle.Train(ctx, set)
					if err != nil {
						return err
					}
					return printJSON(cmd, map[string]any{
						"model":    model.Name,
						"features": model.Features,
						"rows":     len(set.Rows),
					})
				}), redis.LifecycleLock)
			})
		},
	}
}

func (c *cli) validateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the challenger and promote or archive it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), c.cfg.DatabaseMigrateOnStart, func(ctx context.Context, a *app) error {
				return lockBusy(redis.WithLock(ctx, a.locker, redis.LifecycleLock, c.cfg.MatchLockTTL, func(ctx context.Context) error {
					report, err := a.lifecycle.Validate(ctx)
					if err != nil {
						return err
					}
					return printJSON(cmd, report)
				}), redis.LifecycleLock)
			})
		},
	}
}

func (c *cli) lifecycleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "lifecycle",
		Short: "Build, train and validate in one run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), c.cfg.DatabaseMigrateOnStart, func(ctx context.Context, a *app) error {
				return lockBusy(redis.WithLock(ctx, a.locker, redis.LifecycleLock, c.cfg.MatchLockTTL, func(ctx context.Context) error {
					report, err := a.lifecycle.Run(ctx)
					if err != nil {
						return err
					}
					return printJSON(cmd, report)
				}), redis.LifecycleLock)
			})
		},
	}
}

func (c *cli) modelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the model slots and their features",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), false, func(ctx context.Context, a *app) error {
				status, err := a.registry.Status(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, status)
			})
		},
	}
}

func (c *cli) queryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Operate on tracked query records",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a query record and its feedback",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), false, func(ctx context.Context, a *app) error {
				return a.queries.Delete(ctx, args[0])
			})
		},
	})
	return cmd
}

func (c *cli) sourceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "source",
		Short: "Manage candidate source labels",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <name> <display-name> [base-url]",
		Short: "Create or update a source label",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := models.Source{Name: args[0], DisplayName: args[1]}
			if len(args) == 3 {
				src.BaseURL = args[2]
			}
			return c.withApp(cmd.Context(), false, func(ctx context.Context, a *app) error {
				return a.sources.Upsert(ctx, src)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List source labels",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), false, func(ctx context.Context, a *app) error {
				sources, err := a.sources.List(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, sources)
			})
		},
	})
	return cmd
}
