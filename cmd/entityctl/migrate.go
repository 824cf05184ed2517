package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rpattn/entitykit/internal/config"
	"github.com/rpattn/entitykit/internal/db"
	"github.com/rpattn/entitykit/internal/repository"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the entity_versions table",
	Long:  `Applies the embedded Postgres migrations, or creates the SQLite versions table.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		switch cfg.Store.Driver {
		case config.DriverPostgres:
			conn, err := db.NewConnection(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer conn.Close()
			return db.RunMigrations(ctx, conn.Pool, slog.Default())
		case config.DriverSQLite:
			handle, err := db.OpenSQLite(ctx, cfg.Store.DSN)
			if err != nil {
				return err
			}
			defer handle.Close()
			if _, err := repository.NewSQLiteVersionRepository(ctx, handle); err != nil {
				return err
			}
			slog.Info("sqlite versions table ready", "dsn", cfg.Store.DSN)
			return nil
		default:
			return fmt.Errorf("migrate needs a persistent store, driver is %q", cfg.Store.Driver)
		}
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
