package main

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-interview-scoring/core"
	"github.com/spf13/cobra"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded SQL migrations to the configured database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(ctx, opts.v)
			if err != nil {
				return err
			}
			driver := strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
			if driver == core.DatabaseDriverMemory {
				return fmt.Errorf("command: database.driver is memory; nothing to migrate")
			}
			client, err := openPersistence(cfg.Database)
			if err != nil {
				return err
			}
			defer client.Close()
			if err := migrate(ctx, client, driver); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%s)\n", driver)
			return nil
		},
	}
}
