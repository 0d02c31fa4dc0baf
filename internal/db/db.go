package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/inkwell-comics/modsvc/config"
	_ "github.com/lib/pq"
)

const (
	driverName   = "postgres"
	pingTimeout  = 5 * time.Second
	connMaxIdle  = 2 * time.Minute
	connMaxLife  = 30 * time.Minute
	maxIdleConns = 5
	maxOpenConns = 25
)

// PostgresURL builds the connection URL shared by the pool and the migrator.
func PostgresURL(cfg config.DatabaseConfig) string {
	sslmode := "disable"
	if cfg.UseSSL {
		sslmode = "require"
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		User:   url.UserPassword(cfg.User, cfg.Password),
		Path:   cfg.DBName,
	}
	q := u.Query()
	q.Set("sslmode", sslmode)
	if cfg.ApplicationName != "" {
		q.Set("application_name", cfg.ApplicationName)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Open connects the pool and pings it. Zero pool settings fall back to the
// package defaults.
func Open(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	conn, err := sql.Open(driverName, PostgresURL(cfg.Database))
	if err != nil {
		return nil, err
	}

	conn.SetConnMaxIdleTime(connMaxIdle)
	conn.SetConnMaxLifetime(orDuration(cfg.Database.ConnMaxLifetime, connMaxLife))
	conn.SetMaxIdleConns(orInt(cfg.Database.MaxIdleConns, maxIdleConns))
	conn.SetMaxOpenConns(orInt(cfg.Database.MaxOpenConns, maxOpenConns))

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping %s:%d/%s: %w", cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, err)
	}
	return conn, nil
}

// WithTx runs fn in a transaction and commits when fn returns nil.
func WithTx(ctx context.Context, conn *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func orInt(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func orDuration(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
