// Package commands provides the CLI command implementations for sagakit.
package commands

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sagakit/sagakit/cli/config"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// NewRootCommand creates the root command for the sagakit CLI
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sagakit",
		Short: "Saga orchestration toolkit for Go",
		Long: `Sagakit is a saga orchestration toolkit for Go applications.
It provides durable saga state, durable timeouts, and the tooling to
operate them.

Quick Start:

  sagakit init              Initialize a new project
  sagakit migrate up        Create the database tables
  sagakit timeouts due      Inspect pending timeouts

Documentation:

  https://github.com/sagakit/sagakit`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(NewInitCommand())
	rootCmd.AddCommand(NewMigrateCommand())
	rootCmd.AddCommand(NewTimeoutsCommand())
	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sagakit %s (commit %s, built %s)\n", Version, Commit, BuildDate)
		},
	}
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}

	return nil
}

// loadConfig finds the project config starting from the working
// directory.
func loadConfig() (*config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	_, cfg, err := config.FindConfig(cwd)
	if err != nil {
		return nil, fmt.Errorf("no %s found: %w", config.ConfigFileName, err)
	}
	return cfg, nil
}

// openDB opens the configured database connection.
func openDB(cfg *config.Config) (*sql.DB, error) {
	if cfg.Database.Driver != "postgres" {
		return nil, fmt.Errorf("database driver %q does not support this command", cfg.Database.Driver)
	}

	dbURL := os.ExpandEnv(cfg.Database.URL)
	if dbURL == "" || dbURL == "${DATABASE_URL}" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	return sql.Open("pgx", dbURL)
}
