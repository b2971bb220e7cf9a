/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/cadence/internal/db"
)

var (
	slotsUser  string
	slotsLimit int
)

var slotsCmd = &cobra.Command{
	Use:   "slots",
	Short: "List free meeting slots for a user",
	Long: `Prints the meeting slots the next run could book, in the user's timezone.

Examples:
  cadence slots --user sam@seller.com --limit 5`,
	RunE: runSlots,
}

func init() {
	slotsCmd.Flags().StringVar(&slotsUser, "user", "", "User id or email (required)")
	slotsCmd.Flags().IntVar(&slotsLimit, "limit", 10, "Maximum slots to print")
	slotsCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(slotsCmd)
}

func runSlots(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	database, st, err := initDatabase()
	if err != nil {
		return err
	}
	defer db.Close(database)

	ctx := cmd.Context()
	user, err := resolveUser(ctx, st, slotsUser)
	if err != nil {
		return fmt.Errorf("find user: %w", err)
	}
	seq, err := st.GetSequenceConfig(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("load sequence: %w", err)
	}
	loc, err := time.LoadLocation(seq.Timezone)
	if err != nil {
		loc = time.UTC
	}

	free, err := newRunner(database, st).PreviewSlots(ctx, user.ID)
	if err != nil {
		return err
	}
	if len(free) == 0 {
		fmt.Println("No free slots in the search window.")
		return nil
	}
	for i, s := range free {
		if i == slotsLimit {
			fmt.Printf("... %d more\n", len(free)-slotsLimit)
			break
		}
		fmt.Printf("%s - %s\n", s.Start.In(loc).Format("Mon 2006-01-02 15:04 MST"), s.End.In(loc).Format("15:04"))
	}
	return nil
}
