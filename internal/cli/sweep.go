package cli

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"lms-quiz-engine/internal/config"
	pgstore "lms-quiz-engine/internal/infra/postgres"
)

// NewSweepCmd marks stale in-progress attempts as abandoned, for cron use.
// This frees users blocked by an orphaned attempt without waiting for the
// in-process sweeper of a running server.
func NewSweepCmd(configPath *string) *cobra.Command {
	var graceFlag string
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Abandon stale in-progress attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}
			grace := config.Duration(graceFlag, config.Duration(cfg.Attempts.Grace, time.Hour))

			sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
			db := bun.NewDB(sqldb, pgdialect.New())
			defer db.Close()

			store := pgstore.NewAttemptStore(db)
			swept, err := store.AbandonStale(cmd.Context(), time.Now().Add(-grace))
			if err != nil {
				return err
			}
			log.Printf("abandoned %d stale attempts", swept)
			return nil
		},
	}
	cmd.Flags().StringVar(&graceFlag, "grace", "", "idle window before abandoning (overrides config)")
	return cmd
}
