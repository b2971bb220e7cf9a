/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/badoux/checkmail"
	"github.com/spf13/cobra"

	"github.com/friendsincode/cadence/internal/auth"
	"github.com/friendsincode/cadence/internal/db"
	"github.com/friendsincode/cadence/internal/models"
)

var (
	userEmail    string
	userName     string
	userPassword string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user who can log in to the API",
	Long: `Creates a user. The password is read from --password, then
CADENCE_USER_PASSWORD, then a line on stdin.

Examples:
  cadence user create --email sam@seller.com --name "Sam Seller"
  echo 's3cret-pass' | cadence user create --email sam@seller.com`,
	RunE: runUserCreate,
}

func init() {
	userCreateCmd.Flags().StringVar(&userEmail, "email", "", "Login email (required)")
	userCreateCmd.Flags().StringVar(&userName, "name", "", "Display name")
	userCreateCmd.Flags().StringVar(&userPassword, "password", "", "Password (prefer CADENCE_USER_PASSWORD)")
	userCreateCmd.MarkFlagRequired("email")
	userCmd.AddCommand(userCreateCmd)
	rootCmd.AddCommand(userCmd)
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	if err := checkmail.ValidateFormat(userEmail); err != nil {
		return fmt.Errorf("invalid email %q: %w", userEmail, err)
	}

	password := userPassword
	if password == "" {
		password = os.Getenv("CADENCE_USER_PASSWORD")
	}
	if password == "" {
		fmt.Fprint(os.Stderr, "Password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	if err := loadConfig(); err != nil {
		return err
	}
	database, st, err := initDatabase()
	if err != nil {
		return err
	}
	defer db.Close(database)

	user := &models.User{Email: userEmail, Name: strings.TrimSpace(userName), PasswordHash: hash}
	if err := st.CreateUser(cmd.Context(), user); err != nil {
		return err
	}
	fmt.Printf("Created user %s (%s)\n", user.Email, user.ID)
	return nil
}
