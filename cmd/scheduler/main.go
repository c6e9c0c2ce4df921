package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/crm-scheduler/internal/config"
	"github.com/example/crm-scheduler/internal/logging"
)

func main() {
	if err := newRootCommand(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

type rootFlags struct {
	dsn      string
	logLevel string
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:          "scheduler",
		Short:        "Booking, conflict detection and find-a-time service",
		SilenceUsage: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&flags.dsn, "db", "", "SQLite database path (overrides SCHEDULER_SQLITE_DSN)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error (overrides SCHEDULER_LOG_LEVEL)")

	root.AddCommand(
		newServeCommand(flags),
		newMigrateCommand(flags),
		newExpandCommand(),
	)
	return root
}

// loadRuntime reads the environment configuration, applies command line
// overrides and builds the logger. Logs go to the command's error stream.
func loadRuntime(cmd *cobra.Command, flags *rootFlags) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	if flags.dsn != "" {
		cfg.SQLiteDSN = flags.dsn
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	logger, err := logging.New(cmd.ErrOrStderr(), cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}
