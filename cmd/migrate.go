// File: cmd/migrate.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/scriptforge/internal/observability"
	"github.com/xkilldash9x/scriptforge/internal/service"
	"github.com/xkilldash9x/scriptforge/internal/store"
)

// openPool is swapped out in tests.
var openPool service.PoolOpener = service.InitializePool

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}

			pool, err := openPool(ctx, cfg.Database(), logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			st, err := store.New(ctx, pool, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize database store: %w", err)
			}
			applied, err := st.Migrate(ctx)
			if err != nil {
				return fmt.Errorf("migration failed after applying %d migration(s): %w", len(applied), err)
			}

			out := cmd.OutOrStdout()
			if len(applied) == 0 {
				fmt.Fprintln(out, "Database schema is up to date.")
				return nil
			}
			for _, v := range applied {
				fmt.Fprintf(out, "Applied %s\n", v)
			}
			fmt.Fprintf(out, "Applied %d migration(s).\n", len(applied))
			return nil
		},
	}
}
