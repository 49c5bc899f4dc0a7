// Package main provides the streamsink server executable: HTTP intake,
// broker consumers with retry and dead-lettering, and schema tooling.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/coregx/streamsink/adapters/relica"
	"github.com/coregx/streamsink/cmd/streamsink/internal/app"
	"github.com/coregx/streamsink/cmd/streamsink/internal/config"
	"github.com/coregx/streamsink/logging"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "streamsink",
		Short:         "Message intake and persistence service",
		Long:          "streamsink accepts users, orders, notifications and events over HTTP, publishes them to Kafka and persists consumed messages with retry and dead-lettering.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newMigrateCommand())
	rootCmd.AddCommand(newProvisionCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// setup loads configuration and builds the process logger.
func setup() (*config.Config, *logging.ZapLogger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, err := logging.NewZapLogger(cfg.Log.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init logger: %w", err)
	}
	return cfg, logger, nil
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Short:   "Run the HTTP API and the consumers",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			logger.Infof("Starting streamsink %s: broker=%s, db=%s, retry=%dx%v",
				app.Version, cfg.Broker.Kind, cfg.Database.Driver, cfg.Retry.MaxAttempts, cfg.Retry.Backoff)

			a, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := a.Close(); cerr != nil {
					logger.Warnf("Shutdown incomplete: %v", cerr)
				}
			}()

			return a.Run(ctx)
		},
	}
}

func newMigrateCommand() *cobra.Command {
	migrateCmd := &cobra.Command{Use: "migrate", Short: "Database schema commands"}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setupDatabase()
			if err != nil {
				return err
			}
			if err := relica.MigrateUp(cfg.Database.Driver, cfg.Database.GetDSN()); err != nil {
				return err
			}
			logger.Infof("Schema is up to date (%s)", cfg.Database.Driver)
			return nil
		},
	}

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			cfg, logger, err := setupDatabase()
			if err != nil {
				return err
			}
			if err := relica.MigrateDown(cfg.Database.Driver, cfg.Database.GetDSN(), steps); err != nil {
				return err
			}
			logger.Infof("Rolled back %d migration(s) (%s)", steps, cfg.Database.Driver)
			return nil
		},
	}
	downCmd.Flags().Int("steps", 1, "Number of migrations to roll back, 0 for all")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setupDatabase()
			if err != nil {
				return err
			}
			version, dirty, err := relica.MigrationVersion(cfg.Database.Driver, cfg.Database.GetDSN())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", version, dirty)
			return nil
		},
	}

	migrateCmd.AddCommand(upCmd, downCmd, versionCmd)
	return migrateCmd
}

func setupDatabase() (*config.Config, *logging.ZapLogger, error) {
	cfg, logger, err := setup()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.Driver == config.DriverMemory {
		return nil, nil, fmt.Errorf("DB_DRIVER=memory has no schema to migrate")
	}
	return cfg, logger, nil
}

func newProvisionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "provision",
		Short: "Create the Kafka topics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			created, err := app.Provision(cfg, logger)
			if err != nil {
				return err
			}
			if len(created) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "all topics already exist")
				return nil
			}
			for _, topic := range created {
				fmt.Fprintln(cmd.OutOrStdout(), "created", topic)
			}
			return nil
		},
	}
}

