package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/example/crm-scheduler/internal/config"
	"github.com/example/crm-scheduler/internal/persistence/sqlite"
	"github.com/example/crm-scheduler/internal/persistence/sqlite/migration"
)

func newMigrateCommand(flags *rootFlags) *cobra.Command {
	var statusOnly bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadRuntime(cmd, flags)
			if err != nil {
				return err
			}
			if statusOnly {
				return printMigrationStatus(cmd.Context(), cmd.OutOrStdout(), cfg, logger)
			}
			storage, err := openStorage(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeStorage(storage, logger)
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
	cmd.Flags().BoolVar(&statusOnly, "status", false, "report applied and pending migrations without applying them")
	return cmd
}

// openStorage opens the configured database and applies the embedded migrations.
func openStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (*sqlite.Storage, error) {
	storage, err := sqlite.Open(migration.DefaultSQLiteConfig(cfg.SQLiteDSN), logger)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if err := storage.Migrate(ctx); err != nil {
		closeStorage(storage, logger)
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return storage, nil
}

func closeStorage(storage *sqlite.Storage, logger *slog.Logger) {
	if err := storage.Close(); err != nil {
		logger.Error("failed to close storage", "error", err)
	}
}

func printMigrationStatus(ctx context.Context, out io.Writer, cfg config.Config, logger *slog.Logger) error {
	db, err := migration.Open(migration.DefaultSQLiteConfig(cfg.SQLiteDSN))
	if err != nil {
		return err
	}
	defer db.Close()

	manager := migration.NewMigrationManager(migration.NewFileScanner(migration.Files), migration.NewSQLiteExecutor(db), migration.Dir, logger)
	status, err := manager.GetMigrationStatus(ctx)
	if err != nil {
		return err
	}

	current := status.CurrentVersion
	if current == "" {
		current = "none"
	}
	fmt.Fprintf(out, "current version: %s\n", current)
	fmt.Fprintf(out, "applied: %d\n", len(status.AppliedMigrations))
	fmt.Fprintf(out, "pending: %d\n", status.PendingCount)
	for _, m := range status.PendingMigrations {
		fmt.Fprintf(out, "  %s %s\n", m.Version, m.Description)
	}
	return nil
}
