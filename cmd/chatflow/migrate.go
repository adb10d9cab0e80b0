package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soochol/chatflow/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if cfg.Database.URL == "" {
			return errors.New("database.url (or DATABASE_URL) is not set")
		}
		database, err := db.New(cmd.Context(), cfg.Database.URL)
		if err != nil {
			return err
		}
		defer database.Close()
		if err := database.Migrate(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "migrated %s database\n", database.Dialect)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
