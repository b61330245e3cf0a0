package main

import (
	"fmt"

	"drydock/internal/db"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Migrations only need the database, not a full provider config.
		dbURL := viper.GetString("database_url")
		if dbURL == "" {
			dbURL = "drydock.db"
		}

		database, err := db.New(dbURL)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer database.Close()

		if err := database.Migrate(); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}

		fmt.Printf("Migrations applied to %s\n", dbURL)
		return nil
	},
}
