// Package testutil builds the fixtures shared by package tests.
package testutil

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/db"
	"github.com/Ramsey-B/fern/pkg/database"
)

// Logger returns a development logger that writes to stderr.
func Logger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

// NopLogger discards every entry.
func NopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

// DB opens a private in-memory SQLite database with every migration applied.
func DB(t *testing.T) database.DB {
	t.Helper()

	logger := NopLogger()
	store, err := database.Open(context.Background(), database.ConnectionConfig{
		Driver:     database.DriverSQLite,
		SQLitePath: ":memory:",
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	migrations := database.NewMigrationService(logger, &database.MigrationConfig{
		Source: db.Migrations,
		Path:   db.MigrationsPath,
	})
	require.NoError(t, migrations.MigrateDB(store))
	return store
}
