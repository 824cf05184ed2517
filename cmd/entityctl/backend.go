package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rpattn/entitykit/internal/config"
	"github.com/rpattn/entitykit/internal/db"
	"github.com/rpattn/entitykit/internal/ingestion"
	"github.com/rpattn/entitykit/internal/middleware"
	"github.com/rpattn/entitykit/internal/repository"
	"github.com/rpattn/entitykit/internal/versioning"
)

// backend is the row store and version store selected by the configuration, sharing one
// connection.
type backend struct {
	rows     repository.RowStore
	versions *versioning.Store
	prepare  ingestion.TablePreparer
	close    func()
}

// openBackend opens the configured stores. Row store calls are logged at Debug, so they show
// with --verbose.
func openBackend(ctx context.Context, c config.Config) (*backend, error) {
	b, err := openStores(ctx, c)
	if err != nil {
		return nil, err
	}
	b.rows = middleware.NewLoggingStore(b.rows, slog.Default())
	return b, nil
}

func openStores(ctx context.Context, c config.Config) (*backend, error) {
	switch c.Store.Driver {
	case config.DriverPostgres:
		conn, err := db.NewConnection(ctx, c.Database)
		if err != nil {
			return nil, err
		}
		return &backend{
			rows:     repository.NewPostgresStore(conn.Pool),
			versions: versioning.NewStore(repository.NewPostgresVersionRepository(conn.Pool)),
			close:    conn.Close,
		}, nil
	case config.DriverSQLite:
		handle, err := db.OpenSQLite(ctx, c.Store.DSN)
		if err != nil {
			return nil, err
		}
		repo, err := repository.NewSQLiteVersionRepository(ctx, handle)
		if err != nil {
			handle.Close()
			return nil, err
		}
		rows := repository.NewSQLiteStore(handle)
		return &backend{
			rows:     rows,
			versions: versioning.NewStore(repo),
			prepare:  rows.EnsureTable,
			close:    func() { handle.Close() },
		}, nil
	case config.DriverMemory:
		slog.Warn("memory store selected; nothing outlives this process")
		return &backend{
			rows:     repository.NewMemoryStore(),
			versions: versioning.NewStore(repository.NewMemoryVersionRepository()),
			close:    func() {},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", c.Store.Driver)
	}
}

// openVersions opens the version store selected by the configuration. The returned close
// function releases the underlying connection.
func openVersions(ctx context.Context, c config.Config) (*versioning.Store, func(), error) {
	b, err := openBackend(ctx, c)
	if err != nil {
		return nil, nil, err
	}
	return b.versions, b.close, nil
}
