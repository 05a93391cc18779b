package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sagakit/sagakit/adapters/postgres"
)

// NewMigrateCommand creates the migrate command
func NewMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long: `Create and inspect the sagakit database tables.

Examples:
  sagakit migrate up        # Create the saga and timeout tables
  sagakit migrate status    # Check which tables exist`,
	}

	cmd.AddCommand(newMigrateUpCommand())
	cmd.AddCommand(newMigrateStatusCommand())

	return cmd
}

func newMigrateUpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Create the sagakit tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if cfg.Database.Driver == "memory" {
				fmt.Println("Memory driver doesn't require migrations")
				return nil
			}

			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := cmd.Context()

			sagaStore := postgres.NewSagaStore(db,
				postgres.WithSagaSchema(cfg.Database.Schema),
				postgres.WithSagaTable(cfg.Stores.SagaTable),
			)
			if err := sagaStore.Initialize(ctx); err != nil {
				return err
			}
			fmt.Printf("Created table %s.%s\n", cfg.Database.Schema, cfg.Stores.SagaTable)

			timeoutStore := postgres.NewTimeoutStore(db,
				postgres.WithTimeoutSchema(cfg.Database.Schema),
				postgres.WithTimeoutTable(cfg.Stores.TimeoutTable),
			)
			if err := timeoutStore.Initialize(ctx); err != nil {
				return err
			}
			fmt.Printf("Created table %s.%s\n", cfg.Database.Schema, cfg.Stores.TimeoutTable)

			return nil
		},
	}
}

func newMigrateStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check which sagakit tables exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if cfg.Database.Driver == "memory" {
				fmt.Println("Memory driver doesn't require migrations")
				return nil
			}

			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := cmd.Context()
			for _, table := range []string{cfg.Stores.SagaTable, cfg.Stores.TimeoutTable} {
				var exists bool
				err := db.QueryRowContext(ctx,
					`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2)`,
					cfg.Database.Schema, table,
				).Scan(&exists)
				if err != nil {
					return err
				}

				status := "missing"
				if exists {
					status = "ok"
				}
				fmt.Printf("%s.%s: %s\n", cfg.Database.Schema, table, status)
			}

			return nil
		},
	}
}
