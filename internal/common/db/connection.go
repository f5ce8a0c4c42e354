package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/twofivefivedev/nz-transit-app/internal/common/config"
	"github.com/twofivefivedev/nz-transit-app/internal/common/logger"
)

type DB struct {
	conn   *sql.DB
	logger logger.Logger
}

// New opens a pool with the configured driver ("postgres" for lib/pq, "pgx" for pgx) and pings it.
func New(ctx context.Context, cfg config.DatabaseConfig, log logger.Logger) (*DB, error) {
	conn, err := sql.Open(cfg.Driver, cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		conn.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	d := &DB{conn: conn, logger: log}
	if err := d.Ping(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	log.Info("Database connection established", "driver", cfg.Driver)
	return d, nil
}

// Wrap adopts an existing pool, used by tests with sqlmock.
func Wrap(conn *sql.DB, log logger.Logger) *DB {
	return &DB{conn: conn, logger: log}
}

func (db *DB) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}
	return nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// DB returns the underlying pool.
func (db *DB) DB() *sql.DB {
	return db.conn
}

// Logger returns the logger instance
func (db *DB) Logger() logger.Logger {
	return db.logger
}
