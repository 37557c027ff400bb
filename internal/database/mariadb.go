// Package database manages connections to MariaDB and Redis, and runs
// schema migrations at startup.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/lumenwerk/gatehouse/internal/config"
)

// NewMariaDB opens a connection pool to MariaDB and verifies connectivity
// with a retrying ping. The database can take a moment to accept connections
// when everything starts together, so we retry with backoff before failing.
func NewMariaDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	const maxAttempts = 10
	var pingErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		pingErr = db.PingContext(ctx)
		cancel()
		if pingErr == nil {
			return db, nil
		}
		slog.Warn("database not ready, retrying",
			slog.Int("attempt", attempt),
			slog.String("error", pingErr.Error()))
		time.Sleep(time.Duration(attempt) * 500 * time.Millisecond)
	}

	db.Close()
	return nil, fmt.Errorf("pinging database after %d attempts: %w", maxAttempts, pingErr)
}
