/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/cadence/internal/calendar"
	"github.com/friendsincode/cadence/internal/db"
	"github.com/friendsincode/cadence/internal/store"
)

var (
	calendarUser string
	calendarFile string
	calendarDays int
)

var calendarCmd = &cobra.Command{
	Use:   "calendar",
	Short: "Import or export a user's busy time",
}

var calendarImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Load busy blocks from an iCalendar (.ics) file",
	Long: `Stores every opaque VEVENT of the file as busy time. Events are matched
on UID, so importing an updated export again changes blocks in place.

Examples:
  cadence calendar import --user sam@seller.com --file work.ics`,
	RunE: runCalendarImport,
}

var calendarExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write upcoming busy time and meetings as iCalendar to stdout",
	RunE:  runCalendarExport,
}

func init() {
	calendarImportCmd.Flags().StringVar(&calendarUser, "user", "", "User id or email (required)")
	calendarImportCmd.Flags().StringVar(&calendarFile, "file", "", "Path to the .ics file (required)")
	calendarImportCmd.MarkFlagRequired("user")
	calendarImportCmd.MarkFlagRequired("file")

	calendarExportCmd.Flags().StringVar(&calendarUser, "user", "", "User id or email (required)")
	calendarExportCmd.Flags().IntVar(&calendarDays, "days", 30, "Days ahead to export")
	calendarExportCmd.MarkFlagRequired("user")

	calendarCmd.AddCommand(calendarImportCmd, calendarExportCmd)
	rootCmd.AddCommand(calendarCmd)
}

func openCalendar(cmd *cobra.Command) (*calendar.Service, *time.Location, func(), error) {
	if err := loadConfig(); err != nil {
		return nil, nil, nil, err
	}
	database, st, err := initDatabase()
	if err != nil {
		return nil, nil, nil, err
	}
	closeDB := func() { _ = db.Close(database) }

	ctx := cmd.Context()
	user, err := resolveUser(ctx, st, calendarUser)
	if err != nil {
		closeDB()
		return nil, nil, nil, fmt.Errorf("find user: %w", err)
	}

	loc := time.UTC
	seq, err := st.GetSequenceConfig(ctx, user.ID)
	switch {
	case err == nil:
		if l, lerr := time.LoadLocation(seq.Timezone); lerr == nil {
			loc = l
		}
	case !errors.Is(err, store.ErrNotFound):
		closeDB()
		return nil, nil, nil, fmt.Errorf("load sequence: %w", err)
	}

	svc := calendar.New(database, user.ID, cfg.BaseURL, cfg.MeetingLinkBase, logger)
	return svc, loc, closeDB, nil
}

func runCalendarImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(calendarFile)
	if err != nil {
		return fmt.Errorf("open calendar: %w", err)
	}
	defer f.Close()

	svc, loc, closeDB, err := openCalendar(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	res, err := svc.ImportICal(cmd.Context(), f, loc)
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d, updated %d, skipped %d.\n", res.Imported, res.Updated, res.Skipped)
	for _, msg := range res.Errors {
		fmt.Fprintf(os.Stderr, "  %s\n", msg)
	}
	return nil
}

func runCalendarExport(cmd *cobra.Command, args []string) error {
	if calendarDays <= 0 {
		return fmt.Errorf("--days must be positive")
	}
	svc, _, closeDB, err := openCalendar(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	start := time.Now()
	data, err := svc.ExportICal(cmd.Context(), start, start.AddDate(0, 0, calendarDays))
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}
