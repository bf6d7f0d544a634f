package main

import (
	"github.com/spf13/cobra"

	"teamhq/internal/db"
	"teamhq/internal/logging"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := logging.Component("server")

		database, err := db.NewDatabase(cmd.Context(), cfg.Database.DSN, db.Options{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return err
		}
		defer database.Close()

		if err := database.AutoMigrate(cmd.Context()); err != nil {
			return err
		}
		logger.Info().Int("statements", len(db.Schema)).Msg("schema applied")
		return nil
	},
}
