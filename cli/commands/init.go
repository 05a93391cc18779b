package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sagakit/sagakit/cli/config"
)

// NewInitCommand creates the init command
func NewInitCommand() *cobra.Command {
	var (
		module string
		driver string
	)

	cmd := &cobra.Command{
		Use:   "init [name]",
		Short: "Initialize a new sagakit project",
		Long: `Write a default ` + config.ConfigFileName + ` into the current directory.

Examples:
  sagakit init orders --module github.com/acme/orders
  sagakit init payments --driver memory`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return err
			}

			if config.Exists(cwd) {
				return fmt.Errorf("%s already exists", config.ConfigFileName)
			}

			cfg := config.DefaultConfig()
			if len(args) > 0 {
				cfg.Project.Name = args[0]
			}
			if module != "" {
				cfg.Project.Module = module
			}
			if driver != "" {
				cfg.Database.Driver = driver
			}

			if problems := cfg.Validate(); len(problems) > 0 {
				return fmt.Errorf("invalid configuration: %v", problems)
			}

			if err := cfg.Save(cwd); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}

			fmt.Printf("Created %s for project %q\n", config.ConfigFileName, cfg.Project.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&module, "module", "", "Go module path for the project")
	cmd.Flags().StringVar(&driver, "driver", "", "Database driver (postgres, memory)")

	return cmd
}
