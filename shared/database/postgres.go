// Package database wraps a sqlx Postgres connection with the logging and
// metrics every store query goes through.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"findtrades/shared/config"
	"findtrades/shared/observability"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Querier is the read surface the listing stores need.
type Querier interface {
	Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// DB is a Postgres connection instrumented with observability.
type DB struct {
	conn    *sqlx.DB
	logger  observability.Logger
	metrics observability.Metrics
}

// Open connects to Postgres using lib/pq and applies the pool settings.
func Open(ctx context.Context, cfg config.DatabaseConfig, provider observability.Provider) (*DB, error) {
	conn, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	db := New(conn, provider)
	if err := db.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.logger.Info(ctx, "Connected to database", observability.Fields{
		"host":           cfg.Host,
		"database":       cfg.Database,
		"max_open_conns": cfg.MaxOpenConns,
	})
	return db, nil
}

// New wraps an existing connection.
func New(conn *sqlx.DB, provider observability.Provider) *DB {
	return &DB{
		conn:    conn,
		logger:  provider.Logger("database"),
		metrics: provider.Metrics("database"),
	}
}

// Get executes a query and scans a single row into dest.
func (d *DB) Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	start := time.Now()
	err := d.conn.GetContext(ctx, dest, query, args...)
	d.record(ctx, "get", start, err, query)
	return err
}

// Select executes a query and scans every row into dest.
func (d *DB) Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	start := time.Now()
	err := d.conn.SelectContext(ctx, dest, query, args...)
	d.record(ctx, "select", start, err, query)
	return err
}

// Ping verifies the connection.
func (d *DB) Ping(ctx context.Context) error {
	return d.conn.PingContext(ctx)
}

// Close closes the connection pool.
func (d *DB) Close() error {
	d.logger.Info(context.Background(), "Closing database connection", nil)
	return d.conn.Close()
}

func (d *DB) record(ctx context.Context, operation string, start time.Time, err error, query string) {
	op := "db_" + operation
	d.metrics.RecordDuration(op, time.Since(start).Seconds())

	switch {
	case err == nil:
		d.metrics.RecordSuccess(op)
	case errors.Is(err, sql.ErrNoRows):
		// not found is an expected outcome for Get
		d.logger.Debug(ctx, "No rows found", observability.Fields{"query": query})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		d.metrics.RecordError(op, "cancelled")
	default:
		d.metrics.RecordError(op, "query_failed")
		d.logger.Error(ctx, "Query failed", err, observability.Fields{
			"operation": operation,
			"query":     query,
		})
	}
}
