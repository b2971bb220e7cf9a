/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/friendsincode/cadence/internal/db"
	"github.com/friendsincode/cadence/internal/templates"
)

var (
	templatesUser string
	templatesFile string
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Manage touchpoint templates",
}

var templatesImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Replace a user's touchpoint templates from YAML",
	Long: `Reads a YAML file of the form

  templates:
    - touchpoint: 1
      subject: "Quick question, {{.FirstName}}"
      body: |
        Hi {{.FirstName}}, ...

Touchpoints must be numbered from 1 without gaps. Existing templates for
the listed touchpoints are replaced.

Examples:
  cadence templates import --user sam@seller.com --file sequence.yaml`,
	RunE: runTemplatesImport,
}

func init() {
	templatesImportCmd.Flags().StringVar(&templatesUser, "user", "", "User id or email (required)")
	templatesImportCmd.Flags().StringVar(&templatesFile, "file", "", "Path to the YAML file (required)")
	templatesImportCmd.MarkFlagRequired("user")
	templatesImportCmd.MarkFlagRequired("file")
	templatesCmd.AddCommand(templatesImportCmd)
	rootCmd.AddCommand(templatesCmd)
}

func runTemplatesImport(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	f, err := os.Open(templatesFile)
	if err != nil {
		return fmt.Errorf("open templates: %w", err)
	}
	defer f.Close()

	tpls, err := templates.Import(f)
	if err != nil {
		return err
	}

	database, st, err := initDatabase()
	if err != nil {
		return err
	}
	defer db.Close(database)

	ctx := cmd.Context()
	user, err := resolveUser(ctx, st, templatesUser)
	if err != nil {
		return fmt.Errorf("find user: %w", err)
	}
	seq, err := st.GetSequenceConfig(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("load sequence: %w", err)
	}
	if len(tpls) < seq.NumberOfTouchpoints {
		fmt.Printf("Warning: sequence has %d touchpoints but only %d templates were imported.\n", seq.NumberOfTouchpoints, len(tpls))
	}
	if err := st.UpsertTemplates(ctx, seq.ID, tpls); err != nil {
		return err
	}
	fmt.Printf("Imported %d templates for %s.\n", len(tpls), user.Email)
	return nil
}
