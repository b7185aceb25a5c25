package main

import (
	"fmt"

	"github.com/arashthr/memex/internal/models"
	"github.com/arashthr/memex/internal/rand"
	"github.com/arashthr/memex/internal/seed"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply Postgres migrations or create the SQLite schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStores(cmd, true)
		if err != nil {
			return err
		}
		defer s.Close()
		fmt.Fprintf(cmd.OutOrStdout(), "%s store is up to date\n", s.Dialect)
		return nil
	},
}

var addLoginFlags struct {
	login      string
	email      string
	screenName string
	fullName   string
	password   string
}

var addLoginCmd = &cobra.Command{
	Use:   "add-login",
	Short: "Create a login with its default profile",
	Long: `Create a login and the profile it posts as.

Without --password a random password is generated and printed once.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		password := addLoginFlags.password
		generated := password == ""
		if generated {
			var err error
			password, err = rand.Password(18)
			if err != nil {
				return err
			}
		}

		s, err := openStores(cmd, false)
		if err != nil {
			return err
		}
		defer s.Close()

		login, profile, err := s.logins.Register(cmd.Context(), models.Account{
			LoginName:  addLoginFlags.login,
			Email:      addLoginFlags.email,
			Password:   password,
			ScreenName: addLoginFlags.screenName,
			FullName:   addLoginFlags.fullName,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "created login %s with profile %s\n", login.LoginName, profile.ScreenName)
		if generated {
			fmt.Fprintf(out, "password: %s\n", password)
		}
		return nil
	},
}

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load logins and bookmarks from a YAML accounts file",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := seed.Load(seedFile)
		if err != nil {
			return err
		}
		s, err := openStores(cmd, false)
		if err != nil {
			return err
		}
		defer s.Close()

		stats, err := seed.Apply(cmd.Context(), f, s.logins, s.bookmarks)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "accounts created: %d, existing: %d, bookmarks saved: %d\n",
			stats.Created, stats.Existing, stats.Bookmarks)
		return nil
	},
}

func init() {
	flags := addLoginCmd.Flags()
	flags.StringVar(&addLoginFlags.login, "login", "", "login name (required)")
	flags.StringVar(&addLoginFlags.email, "email", "", "email address")
	flags.StringVar(&addLoginFlags.screenName, "screen-name", "", "profile screen name (defaults to the login name)")
	flags.StringVar(&addLoginFlags.fullName, "full-name", "", "profile full name")
	flags.StringVar(&addLoginFlags.password, "password", "", "password (generated when empty)")
	addLoginCmd.MarkFlagRequired("login")

	seedCmd.Flags().StringVar(&seedFile, "file", "", "accounts YAML file (required)")
	seedCmd.MarkFlagRequired("file")
}
