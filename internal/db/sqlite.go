package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// OpenSQLite opens a SQLite database through the ncruces driver. An empty dsn or ":memory:"
// opens a private in-memory database.
func OpenSQLite(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		dsn = ":memory:"
	}
	handle, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// Each connection to ":memory:" is its own database, so keep exactly one.
	if dsn == ":memory:" {
		handle.SetMaxOpenConns(1)
	}
	if err := handle.PingContext(ctx); err != nil {
		handle.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	if _, err := handle.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		handle.Close()
		return nil, fmt.Errorf("failed to configure sqlite database: %w", err)
	}
	return handle, nil
}
