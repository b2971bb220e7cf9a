/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/cadence/internal/db"
	"github.com/friendsincode/cadence/internal/scheduler"
)

var (
	runUser string
	runAll  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run sequences once",
	Long: `Runs the sequence engine once and prints the run summary as JSON.

With --user the user's sequence runs immediately, ignoring agent frequency
but not working hours. With --all one scheduler tick runs, so only users
that are due are processed.

Examples:
  cadence run --user sam@seller.com
  cadence run --all`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runUser, "user", "", "User id or email to run")
	runCmd.Flags().BoolVar(&runAll, "all", false, "Run one scheduler tick for every due user")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	if runUser == "" && !runAll {
		return fmt.Errorf("one of --user or --all is required")
	}
	if err := loadConfig(); err != nil {
		return err
	}
	database, st, err := initDatabase()
	if err != nil {
		return err
	}
	defer db.Close(database)

	sched := scheduler.New(st, newRunner(database, st), logger,
		scheduler.WithConcurrency(cfg.SchedulerConcurrency),
	)

	ctx := cmd.Context()
	if runAll {
		start := time.Now()
		sched.Tick(ctx)
		fmt.Printf("Tick finished in %s\n", time.Since(start).Round(time.Millisecond))
		return nil
	}

	user, err := resolveUser(ctx, st, runUser)
	if err != nil {
		return fmt.Errorf("find user: %w", err)
	}
	summary, err := sched.RunNow(ctx, user.ID)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"user":    user.Email,
		"outcome": summary.Outcome(),
		"summary": summary,
	})
}
