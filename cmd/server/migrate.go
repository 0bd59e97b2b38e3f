package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/pkg/database"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := database.New(database.Config{
				Driver:          appConfig.Database.Driver,
				Path:            appConfig.Database.Path,
				DSN:             appConfig.Database.DSN,
				MaxOpenConns:    appConfig.Database.MaxOpenConns,
				MaxIdleConns:    appConfig.Database.MaxIdleConns,
				ConnMaxLifetime: appConfig.Database.ConnMaxLifetime,
			}, logger)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.Close()

			applied, err := database.NewMigrator(db, logger).Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			logger.Info("Migrations complete", zap.Int("applied", applied))
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", applied)
			return nil
		},
	}
}
