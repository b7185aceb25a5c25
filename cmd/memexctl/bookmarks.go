package main

import (
	"fmt"
	"io"
	"os"

	"github.com/arashthr/memex/internal/service"
	"github.com/arashthr/memex/internal/service/importer"
	"github.com/arashthr/memex/internal/tags"
	"github.com/spf13/cobra"
)

var importFlags struct {
	login   string
	file    string
	onlyTag string
	replace bool
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a delicious HTML export into a login's profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(importFlags.file)
		if err != nil {
			return err
		}
		defer f.Close()
		items, err := importer.ParseDelicious(f)
		if err != nil {
			return err
		}

		s, err := openStores(cmd, false)
		if err != nil {
			return err
		}
		defer s.Close()

		profile, err := s.logins.DefaultProfileForLogin(cmd.Context(), importFlags.login)
		if err != nil {
			return fmt.Errorf("profile for %s: %w", importFlags.login, err)
		}
		im := &importer.Importer{
			BookmarkModel: s.bookmarks,
			OnlyTags:      tags.Parse(importFlags.onlyTag),
		}
		res, err := im.Import(cmd.Context(), profile.ID, items, importFlags.replace)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d, skipped %d, already present %d\n",
			res.Imported, res.Skipped, res.Conflicts)
		return nil
	},
}

var exportFlags struct {
	login string
	tag   string
	out   string
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a login's bookmarks as OPML",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStores(cmd, false)
		if err != nil {
			return err
		}
		defer s.Close()

		profile, err := s.logins.DefaultProfileForLogin(cmd.Context(), exportFlags.login)
		if err != nil {
			return fmt.Errorf("profile for %s: %w", exportFlags.login, err)
		}

		var out io.Writer = cmd.OutOrStdout()
		if exportFlags.out != "" {
			f, err := os.Create(exportFlags.out)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}
		return service.ExportOPML(cmd.Context(), out, s.bookmarks, profile, tags.Parse(exportFlags.tag), "")
	},
}

func init() {
	importCmd.Flags().StringVar(&importFlags.login, "login", "", "login whose default profile receives the bookmarks (required)")
	importCmd.Flags().StringVar(&importFlags.file, "file", "", "delicious HTML export (required)")
	importCmd.Flags().StringVar(&importFlags.onlyTag, "only-tag", "", "only import items carrying all these space separated tags")
	importCmd.Flags().BoolVar(&importFlags.replace, "replace", false, "overwrite bookmarks that already exist")
	importCmd.MarkFlagRequired("login")
	importCmd.MarkFlagRequired("file")

	exportCmd.Flags().StringVar(&exportFlags.login, "login", "", "login to export (required)")
	exportCmd.Flags().StringVar(&exportFlags.tag, "tag", "", "only bookmarks carrying all these space separated tags")
	exportCmd.Flags().StringVar(&exportFlags.out, "out", "", "output file (default stdout)")
	exportCmd.MarkFlagRequired("login")
}
