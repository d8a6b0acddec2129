package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/groupsync/internal/config"
	"github.com/example/groupsync/internal/persistence/sqlite"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "groupsync",
		Short:         "Group availability API with realtime rooms",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newMigrateCommand())

	return cmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the SQLite schema",
	}

	run := func(action func(*sqlite.ConnectionPool, *cobra.Command) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.Store != config.StoreSQLite {
				return fmt.Errorf("migrations require the %q store, configured store is %q", config.StoreSQLite, cfg.Store)
			}
			pool, err := sqlite.NewConnectionPool(cmd.Context(), sqlite.DefaultConfig(cfg.SQLiteDSN))
			if err != nil {
				return err
			}
			defer pool.Close()
			return action(pool, cmd)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: run(func(pool *sqlite.ConnectionPool, cmd *cobra.Command) error {
			if err := pool.MigrateUp(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Revert every applied migration",
		Args:  cobra.NoArgs,
		RunE: run(func(pool *sqlite.ConnectionPool, cmd *cobra.Command) error {
			if err := pool.MigrateDown(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations reverted")
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: run(func(pool *sqlite.ConnectionPool, cmd *cobra.Command) error {
			status, err := pool.MigrationVersion()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty=%t)\n", status.Version, status.Dirty)
			return nil
		}),
	})

	return cmd
}
