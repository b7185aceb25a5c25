// Command memexctl administers a memex store: schema migrations, logins,
// seeding, and delicious import and OPML export.
package main

import (
	"fmt"
	"os"

	"github.com/arashthr/memex/internal/cache"
	"github.com/arashthr/memex/internal/config"
	"github.com/arashthr/memex/internal/db"
	"github.com/arashthr/memex/internal/logging"
	"github.com/arashthr/memex/internal/models"
	"github.com/spf13/cobra"
)

var (
	envFile string
	cfg     *config.AppConfig
)

var rootCmd = &cobra.Command{
	Use:           "memexctl",
	Short:         "Administer a memex bookmark store",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var files []string
		if envFile != "" {
			files = append(files, envFile)
		}
		var err error
		cfg, err = config.LoadEnvConfig(files...)
		if err != nil {
			return err
		}
		logging.Init(cfg.Logging)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "env file to load instead of .env")
	rootCmd.AddCommand(migrateCmd, addLoginCmd, seedCmd, importCmd, exportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type stores struct {
	*db.Store
	logins     *models.LoginModel
	bookmarks  *models.BookmarkModel
	closeCache func() error
}

// openStores also connects the last modified cache so that writes made here
// are visible to posts/update right away.
func openStores(cmd *cobra.Command, migrate bool) (*stores, error) {
	store, err := db.OpenStore(cmd.Context(), cfg, migrate)
	if err != nil {
		return nil, err
	}
	lastModified, closeCache := cache.OpenLastModified(cmd.Context(), cfg.Redis, cache.DefaultConnectOptions)
	return &stores{
		Store:      store,
		logins:     &models.LoginModel{DB: store.DB, Dialect: store.Dialect},
		bookmarks:  &models.BookmarkModel{DB: store.DB, Dialect: store.Dialect, Changes: lastModified},
		closeCache: closeCache,
	}, nil
}

func (s *stores) Close() {
	s.closeCache()
	s.Store.Close()
}
