package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/db"
	"github.com/Ramsey-B/fern/internal/repositories/candidaterecord"
	feedbackrepo "github.com/Ramsey-B/fern/internal/repositories/feedback"
	"github.com/Ramsey-B/fern/internal/repositories/queryrecord"
	"github.com/Ramsey-B/fern/internal/repositories/results"
	"github.com/Ramsey-B/fern/internal/repositories/source"
	"github.com/Ramsey-B/fern/pkg/classifier"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/feedback"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/lifecycle"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/registry"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/tracing/exporters"
)

// app holds every wired component. Commands build it once and close it on exit.
type app struct {
	cfg     *config.Config
	logger  ectologger.Logger
	startup *startup.Startup

	db          database.DB
	redis       *redis.Client
	locker      redis.Locker
	producer    *kafka.Producer
	stopTracing func(context.Context) error

	queries    *queryrecord.Repository
	candidates *candidaterecord.Repository
	feedback   *feedbackrepo.Repository
	sources    *source.Repository
	results    *results.Repository

	ledger    *feedback.Ledger
	registry  *registry.Registry
	matcher   *matching.Service
	lifecycle *lifecycle.Manager
}

func newLogger(cfg *config.Config) (ectologger.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	zapLogger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil), nil
}

// newApp connects the stores and builds the services. Connections are retried by the
// startup sequence; migrate controls whether pending migrations are applied.
func newApp(ctx context.Context, cfg *config.Config, logger ectologger.Logger, migrate bool) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		startup: startup.NewStartup(logger, cfg.StartupMaxAttempts),
		locker:  redis.NewLocalLocker(),
	}

	a.startup.AddDependency(startup.Dependency{
		Name:    "tracing",
		StartFn: a.startTracing,
		StopFn: func(ctx context.Context) error {
			if a.stopTracing == nil {
				return nil
			}
			return a.stopTracing(ctx)
		},
	})
	a.startup.AddDependency(startup.Dependency{
		Name: "database",
		StartFn: func(ctx context.Context) error {
			return a.openDatabase(ctx, migrate)
		},
		StopFn: func(context.Context) error { return a.db.Close() },
	})
	if cfg.RedisEnabled {
		a.startup.AddDependency(startup.Dependency{
			Name:    "redis",
			StartFn: a.connectRedis,
			StopFn:  func(context.Context) error { return a.redis.Close() },
		})
	}
	if cfg.KafkaEnabled {
		a.startup.AddDependency(startup.Dependency{
			Name: "kafka-producer",
			StartFn: func(context.Context) error {
				a.producer = kafka.NewProducer(kafka.ProducerConfig{
					Brokers:      cfg.KafkaBrokers,
					Topic:        cfg.KafkaNotificationTopic,
					BatchSize:    cfg.KafkaBatchSize,
					BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
					RequiredAcks: cfg.KafkaRequiredAcks,
					Compression:  cfg.KafkaCompression,
				}, logger)
				return nil
			},
			StopFn: func(context.Context) error { return a.producer.Close() },
		})
	}

	if err := a.startup.Start(ctx); err != nil {
		_ = a.startup.Stop(context.WithoutCancel(ctx))
		return nil, err
	}

	if err := a.wire(); err != nil {
		_ = a.startup.Stop(context.WithoutCancel(ctx))
		return nil, err
	}
	return a, nil
}

func (a *app) startTracing(ctx context.Context) error {
	if !a.cfg.OTLPEnabled {
		return nil
	}

	stop, err := tracing.Setup(ctx, a.cfg.AppName, exporters.OTLPConfig{
		Endpoint: a.cfg.OTLPEndpoint,
		Protocol: a.cfg.OTLPProtocol,
		Insecure: a.cfg.OTLPInsecure,
		Timeout:  10 * time.Second,
	})
	if err != nil {
		return err
	}
	a.stopTracing = stop
	return nil
}

func (a *app) openDatabase(ctx context.Context, migrate bool) error {
	store, err := database.Open(ctx, database.ConnectionConfig{
		Driver:          a.cfg.DatabaseDriver,
		Host:            a.cfg.DatabaseHost,
		Port:            a.cfg.DatabasePort,
		User:            a.cfg.DatabaseUserName,
		Password:        a.cfg.DatabasePassword,
		Name:            a.cfg.DatabaseName,
		SSLMode:         a.cfg.DatabaseSSLMode,
		SQLitePath:      a.cfg.DatabaseSQLitePath,
		MaxOpenConns:    a.cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    a.cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: a.cfg.DatabaseConnMaxLifetime,
	}, a.logger)
	if err != nil {
		return err
	}

	if migrate {
		migrations := database.NewMigrationService(a.logger, &database.MigrationConfig{
			Source:       db.Migrations,
			Path:         db.MigrationsPath,
			Version:      uint(max(a.cfg.DatabaseMigrationVersion, 0)),
			Force:        a.cfg.DatabaseMigrationForce,
			AutoRollback: a.cfg.DatabaseMigrationAutoRollback,
		})
		if err := migrations.MigrateDB(store); err != nil {
			_ = store.Close()
			return err
		}
	}

	a.db = store
	return nil
}

func (a *app) connectRedis(ctx context.Context) error {
	client, err := redis.NewClient(ctx, redis.Config{
		Host:     a.cfg.RedisHost,
		Port:     a.cfg.RedisPort,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	}, a.logger)
	if err != nil {
		return err
	}
	a.redis = client
	a.locker = redis.NewLocker(client, "")
	return nil
}

func (a *app) wire() error {
	logger := a.logger

	a.queries = queryrecord.NewRepository(a.db, logger)
	a.candidates = candidaterecord.NewRepository(a.db, logger)
	a.feedback = feedbackrepo.NewRepository(a.db, logger)
	a.sources = source.NewRepository(a.db, logger)
	a.results = results.NewRepository(a.db, logger)

	a.ledger = feedback.NewLedger(a.db, a.feedback, a.queries, a.candidates, logger)
	a.registry = registry.New(a.cfg.ModelDir, logger)

	var notifier matching.Notifier
	if a.producer != nil {
		notifier = events.NewEmitter(a.producer, a.sources, logger)
	}
	a.matcher = matching.NewService(logger, a.queries, a.candidates, a.registry, notifier, matching.Config{
		Threshold:    a.cfg.MatchProbThreshold,
		LookbackDays: a.cfg.MatchLookbackDays,
	})

	lcCfg := lifecycle.DefaultConfig()
	lcCfg.StaleFrom = a.cfg.LifecycleStaleWindowFrom
	lcCfg.StaleTo = a.cfg.LifecycleStaleWindowTo
	lcCfg.MaxNegativesPerQuery = a.cfg.LifecycleMaxNegatives
	lcCfg.Oversample = a.cfg.LifecycleOversample
	lcCfg.Folds = a.cfg.LifecycleFolds
	lcCfg.ExcludeFeatures = a.cfg.LifecycleExcludeFeatures
	lcCfg.Threshold = a.cfg.MatchProbThreshold
	lcCfg.Seed = a.cfg.LifecycleSeed
	lcCfg.Fit = classifier.DefaultFitOptions()
	if err := lcCfg.Validate(); err != nil {
		return err
	}
	a.lifecycle = lifecycle.NewManager(lcCfg, a.feedback, a.queries, a.candidates, a.results, a.registry, logger)
	return nil
}

// Close stops every dependency in reverse start order.
func (a *app) Close(ctx context.Context) error {
	return a.startup.Stop(ctx)
}
