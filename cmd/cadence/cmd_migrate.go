/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/friendsincode/cadence/internal/db"
)

var migrateBackfillLabels bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long: `Creates or updates the schema. Safe to run repeatedly.

Examples:
  cadence migrate
  cadence migrate --backfill-labels`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateBackfillLabels, "backfill-labels", false, "Recompute empty prospect display labels")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	database, _, err := initDatabase()
	if err != nil {
		return err
	}
	defer db.Close(database)
	fmt.Println("Migrations applied.")

	if migrateBackfillLabels {
		n, err := db.BackfillDisplayLabels(database)
		if err != nil {
			return err
		}
		fmt.Printf("Backfilled %d display labels.\n", n)
	}
	return nil
}
