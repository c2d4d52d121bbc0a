// Package db provides database connectivity and migration functionality for the
// postboard application. It creates the pgx connection pool used by the services,
// exposes the same pool through sqlx for the list-query layer, enables the
// PostgreSQL extensions the schema relies on and runs golang-migrate migrations.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	// Registers the "postgres" database driver of golang-migrate, which uses lib/pq.
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	// Registers the file:// migration source.
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	// Registers the "pgx" database/sql driver used by sqlx.
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	// lib/pq is the database/sql driver behind migrate's postgres driver.
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/user/postboard-go/apperror"
	"github.com/user/postboard-go/config"
)

// pgUniqueViolation is the PostgreSQL error code for unique constraint violations.
const pgUniqueViolation = "23505"

// NewPool establishes the PostgreSQL connection pool and verifies it with a ping.
func NewPool(ctx context.Context, cfg *config.DBConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, apperror.NewDatabaseError("error parsing database DSN", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxSize)
	poolConfig.MaxConnIdleTime = 10 * time.Minute
	poolConfig.MaxConnLifetime = 30 * time.Minute

	createCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(createCtx, poolConfig)
	if err != nil {
		return nil, apperror.NewDatabaseError("error creating pgxpool", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, apperror.NewDatabaseError("error connecting to the database", err)
	}
	return pool, nil
}

// OpenSQLX wraps pool in a *sqlx.DB. Connections are still owned by pool, so
// closing the returned handle does not close the pool.
func OpenSQLX(pool *pgxpool.Pool) *sqlx.DB {
	return sqlx.NewDb(stdlib.OpenDBFromPool(pool), "pgx")
}

// EnableExtensions enables the PostgreSQL extensions the schema relies on.
// pg_trgm backs the trigram indexes used by case-insensitive search.
func EnableExtensions(ctx context.Context, pool *pgxpool.Pool) error {
	for _, ext := range []string{"pg_trgm"} {
		execCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, err := pool.Exec(execCtx, fmt.Sprintf("CREATE EXTENSION IF NOT EXISTS %s", ext))
		cancel()
		if err != nil {
			return apperror.NewDatabaseError(fmt.Sprintf("failed to create extension %s", ext), err)
		}
	}
	return nil
}

// Migrator applies the SQL files in a migrations directory.
// Files follow golang-migrate naming: 000001_create_users.up.sql / .down.sql.
type Migrator struct {
	m      *migrate.Migrate
	logger logrus.FieldLogger
}

// NewMigrator opens a migrator for the database behind dsn.
func NewMigrator(dsn, migrationsPath string, logger logrus.FieldLogger) (*Migrator, error) {
	m, err := migrate.New("file://"+migrationsPath, dsn)
	if err != nil {
		return nil, apperror.NewMigrationError("failed to create migrator", err)
	}
	return &Migrator{m: m, logger: logger}, nil
}

// Up applies every pending migration. Having nothing to apply is not an error.
func (mg *Migrator) Up() error {
	if err := mg.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return apperror.NewMigrationError("failed to run migrations", err)
	}
	mg.logVersion()
	return nil
}

// Down rolls back the given number of migrations.
func (mg *Migrator) Down(steps int) error {
	if err := mg.m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return apperror.NewMigrationError(fmt.Sprintf("failed to roll back %d migrations", steps), err)
	}
	mg.logVersion()
	return nil
}

func (mg *Migrator) logVersion() {
	version, dirty, err := mg.m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		mg.logger.WithError(err).Warn("could not read migration version")
		return
	}
	mg.logger.WithFields(logrus.Fields{"version": version, "dirty": dirty}).Info("database schema is up to date")
}

// Close releases the migration source and database handles.
func (mg *Migrator) Close() {
	srcErr, dbErr := mg.m.Close()
	if srcErr != nil {
		mg.logger.WithError(srcErr).Warn("error closing migration source")
	}
	if dbErr != nil {
		mg.logger.WithError(dbErr).Warn("error closing migration database instance")
	}
}

// RunMigrations applies all pending migrations and closes the migrator.
func RunMigrations(dsn, migrationsPath string, logger logrus.FieldLogger) error {
	mg, err := NewMigrator(dsn, migrationsPath, logger)
	if err != nil {
		return err
	}
	defer mg.Close()
	return mg.Up()
}

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation, optionally on the named constraint.
func IsUniqueViolation(err error, constraint ...string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return false
	}
	if len(constraint) == 0 {
		return true
	}
	for _, c := range constraint {
		if pgErr.ConstraintName == c {
			return true
		}
	}
	return false
}
