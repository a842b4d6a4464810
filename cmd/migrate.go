package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/adapters/repository"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/config"
)

func newMigrateCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations to the configured database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := cc.load(cmd.Context())
			if err != nil {
				return err
			}

			var version uint
			switch cfg.StoreDriver {
			case config.DriverPostgres:
				version, err = repository.MigratePostgres(cfg.StoreDSN)
			case config.DriverSQLite:
				version, err = repository.MigrateSQLite(cfg.StoreDSN)
			default:
				return fmt.Errorf("store driver %q has no schema to migrate", cfg.StoreDriver)
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s schema at version %d\n", cfg.StoreDriver, version)
			return err
		},
	}
}
