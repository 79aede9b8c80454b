package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/javajoker/imi-ownership/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the ledger tables",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	env, closeDB, err := openLedger()
	if err != nil {
		return err
	}
	defer closeDB()

	if err := database.RunMigrations(env.db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
	return nil
}
