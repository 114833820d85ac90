// Package db embeds the schema migrations shared by PostgreSQL and SQLite.
package db

import "embed"

// MigrationsPath is the directory inside Migrations holding the migration files.
const MigrationsPath = "migrations"

//go:embed migrations/*.sql
var Migrations embed.FS
