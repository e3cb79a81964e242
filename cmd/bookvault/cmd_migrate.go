package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bookvault/bookvault/internal/db"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if err := db.RunMigrations(ctx, a.pool, a.log, nil); err != nil {
				return fmt.Errorf("running migrations: %w", err)
			}

			output(map[string]int{"schema_version": db.SchemaVersion()}, fmt.Sprint(db.SchemaVersion()))

			return nil
		},
	}
}
