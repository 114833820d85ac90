package config

import (
	"errors"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"fern"`
	Version                       string   `env:"APP_VERSION" env-default:"dev"`
	Port                          int      `env:"PORT" env-default:"3004"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// Relational store
	DatabaseDriver                string        `env:"DB_DRIVER" env-default:"postgres"` // postgres, pgx or sqlite
	DatabaseHost                  string        `env:"DB_HOST" env-default:"localhost"`
	DatabasePort                  string        `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword              string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                  string        `env:"DB_NAME" env-default:"fern"`
	DatabaseSSLMode               string        `env:"DB_SSL_MODE" env-default:"disable"`
	DatabaseSQLitePath            string        `env:"DB_SQLITE_PATH" env-default:"fern.db"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" env-default:"10"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" env-default:"5"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10m"`
	DatabaseMigrationVersion      int           `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce        int           `env:"DB_MIGRATION_FORCE" env-default:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`
	DatabaseMigrateOnStart        bool          `env:"DB_MIGRATE_ON_START" env-default:"true"`

	// Kafka
	KafkaEnabled           bool     `env:"KAFKA_ENABLED" env-default:"true"`
	KafkaBrokers           []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaCandidateTopic    string   `env:"KAFKA_CANDIDATE_TOPIC" env-default:"certificate-postings"`
	KafkaCandidateGroup    string   `env:"KAFKA_CANDIDATE_GROUP" env-default:"fern-candidates"`
	KafkaFeedbackTopic     string   `env:"KAFKA_FEEDBACK_TOPIC" env-default:"match-feedback"`
	KafkaFeedbackGroup     string   `env:"KAFKA_FEEDBACK_GROUP" env-default:"fern-feedback"`
	KafkaNotificationTopic string   `env:"KAFKA_NOTIFICATION_TOPIC" env-default:"match-notifications"`
	KafkaBatchSize         int      `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout      int      `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks      int      `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression       string   `env:"KAFKA_COMPRESSION" env-default:"snappy"`

	// Redis
	RedisEnabled  bool   `env:"REDIS_ENABLED" env-default:"false"`
	RedisHost     string `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`

	// Tracing
	OTLPEnabled  bool   `env:"OTLP_ENABLED" env-default:"false"`
	OTLPEndpoint string `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
	OTLPProtocol string `env:"OTLP_PROTOCOL" env-default:"grpc"`
	OTLPInsecure bool   `env:"OTLP_INSECURE" env-default:"true"`

	// Matching
	MatchProbThreshold float64       `env:"MATCH_PROB_THRESHOLD" env-default:"0.5"`
	MatchLookbackDays  int           `env:"MATCH_LOOKBACK_DAYS" env-default:"30"`
	MatchPollInterval  time.Duration `env:"MATCH_POLL_INTERVAL" env-default:"15m"`
	MatchLockTTL       time.Duration `env:"MATCH_LOCK_TTL" env-default:"10m"`

	// Model lifecycle
	ModelDir                 string   `env:"MODEL_DIR" env-default:"models"`
	LifecycleCron            string   `env:"LIFECYCLE_CRON" env-default:"0 3 * * *"`
	LifecycleStaleWindowFrom string   `env:"LIFECYCLE_STALE_WINDOW_FROM" env-default:"2018-01-01"`
	LifecycleStaleWindowTo   string   `env:"LIFECYCLE_STALE_WINDOW_TO" env-default:"2018-12-31"`
	LifecycleOversample      bool     `env:"LIFECYCLE_OVERSAMPLE" env-default:"true"`
	LifecycleFolds           int      `env:"LIFECYCLE_FOLDS" env-default:"3"`
	LifecycleExcludeFeatures []string `env:"LIFECYCLE_EXCLUDE_FEATURES" env-default:"total_score,owner_acronym_score,contractor_acronym_score"`
	LifecycleSeed            int64    `env:"LIFECYCLE_SEED" env-default:"42"`
	LifecycleMaxNegatives    int      `env:"LIFECYCLE_MAX_NEGATIVES_PER_QUERY" env-default:"50"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
