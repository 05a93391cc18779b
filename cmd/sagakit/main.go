// sagakit is the command-line interface for the sagakit saga
// orchestration library.
//
// Usage:
//
//	sagakit <command> [flags]
//
// Commands:
//
//	init        Initialize a new sagakit project
//	migrate     Manage the database schema
//	timeouts    Inspect and manage scheduled timeouts
//	version     Show version information
//
// Examples:
//
//	# Initialize a new project
//	sagakit init orders --module github.com/acme/orders
//
//	# Create the database tables
//	sagakit migrate up
//
//	# List timeouts due within the next hour
//	sagakit timeouts due --within 1h
package main

import (
	"os"

	"github.com/sagakit/sagakit/cli/commands"

	// Register PostgreSQL driver
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Build information (set via ldflags)
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.BuildDate = buildDate

	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
