package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sagakit/sagakit/adapters/postgres"
	"github.com/sagakit/sagakit/cli/config"
)

// NewTimeoutsCommand creates the timeouts command
func NewTimeoutsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timeouts",
		Short: "Inspect and manage scheduled timeouts",
		Long: `Inspect and manage the durable timeout store.

Examples:
  sagakit timeouts due                  # List timeouts due right now
  sagakit timeouts due --within 1h      # Include timeouts due in the next hour
  sagakit timeouts cancel --saga-id ID  # Cancel all pending timeouts for a saga`,
	}

	cmd.AddCommand(newTimeoutsDueCommand())
	cmd.AddCommand(newTimeoutsCancelCommand())

	return cmd
}

func timeoutStoreFromConfig(cfg *config.Config) (*postgres.TimeoutStore, func() error, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, nil, err
	}

	store := postgres.NewTimeoutStore(db,
		postgres.WithTimeoutSchema(cfg.Database.Schema),
		postgres.WithTimeoutTable(cfg.Stores.TimeoutTable),
	)
	return store, db.Close, nil
}

func newTimeoutsDueCommand() *cobra.Command {
	var (
		within time.Duration
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "due",
		Short: "List undelivered timeouts that are due",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			store, closeDB, err := timeoutStoreFromConfig(cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			due, err := store.Due(cmd.Context(), time.Now().UTC().Add(within), limit)
			if err != nil {
				return err
			}

			if len(due) == 0 {
				fmt.Println("No timeouts due")
				return nil
			}

			for _, t := range due {
				fmt.Printf("%s  saga=%s/%s  type=%s  due=%s\n",
					t.TimeoutID, t.SagaType, t.SagaID, t.TimeoutType,
					t.DueAt.Format(time.RFC3339))
			}
			fmt.Printf("%d timeout(s)\n", len(due))
			return nil
		},
	}

	cmd.Flags().DurationVar(&within, "within", 0, "Also include timeouts due within this duration")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of timeouts to list (0 for no limit)")

	return cmd
}

func newTimeoutsCancelCommand() *cobra.Command {
	var (
		sagaID    string
		timeoutID string
	)

	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel pending timeouts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sagaID == "" {
				return fmt.Errorf("--saga-id is required")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			store, closeDB, err := timeoutStoreFromConfig(cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			if timeoutID != "" {
				if err := store.Cancel(cmd.Context(), sagaID, timeoutID); err != nil {
					return err
				}
				fmt.Printf("Cancelled timeout %s\n", timeoutID)
				return nil
			}

			if err := store.CancelAll(cmd.Context(), sagaID); err != nil {
				return err
			}
			fmt.Printf("Cancelled all pending timeouts for saga %s\n", sagaID)
			return nil
		},
	}

	cmd.Flags().StringVar(&sagaID, "saga-id", "", "Saga correlation id (required)")
	cmd.Flags().StringVar(&timeoutID, "timeout-id", "", "Cancel only this timeout id")

	return cmd
}
