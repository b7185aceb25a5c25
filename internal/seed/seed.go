// Package seed loads logins, profiles and bookmarks from a YAML accounts
// file.
package seed

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/arashthr/memex/internal/errors"
	"github.com/arashthr/memex/internal/logging"
	"github.com/arashthr/memex/internal/models"
	"github.com/arashthr/memex/internal/tags"
	"gopkg.in/yaml.v3"
)

type File struct {
	Accounts []Account `yaml:"accounts"`
}

type Account struct {
	Login        string     `yaml:"login"`
	Email        string     `yaml:"email"`
	Password     string     `yaml:"password"`
	PasswordHash string     `yaml:"password_hash"`
	ScreenName   string     `yaml:"screen_name"`
	FullName     string     `yaml:"full_name"`
	Bio          string     `yaml:"bio"`
	Bookmarks    []Bookmark `yaml:"bookmarks"`
}

type Bookmark struct {
	URL     string    `yaml:"url"`
	Title   string    `yaml:"title"`
	Notes   string    `yaml:"notes"`
	Tags    string    `yaml:"tags"`
	Date    time.Time `yaml:"date"`
	Private bool      `yaml:"private"`
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed yaml: %w", err)
	}
	for i, acct := range f.Accounts {
		if acct.Login == "" {
			return nil, fmt.Errorf("account %d: login is required", i)
		}
	}
	return &f, nil
}

type Stats struct {
	Created   int
	Existing  int
	Bookmarks int
}

// Apply registers every account that does not exist yet and saves its
// bookmarks, replacing earlier copies. Running it twice is harmless.
func Apply(ctx context.Context, f *File, logins *models.LoginModel, bookmarks *models.BookmarkModel) (Stats, error) {
	var stats Stats
	for _, acct := range f.Accounts {
		_, _, err := logins.Register(ctx, models.Account{
			LoginName:    acct.Login,
			Email:        acct.Email,
			Password:     acct.Password,
			PasswordHash: acct.PasswordHash,
			ScreenName:   acct.ScreenName,
			FullName:     acct.FullName,
			Bio:          acct.Bio,
		})
		switch {
		case err == nil:
			stats.Created++
		case errors.Is(err, errors.ErrLoginTaken):
			stats.Existing++
		default:
			return stats, fmt.Errorf("seed %s: %w", acct.Login, err)
		}

		profile, err := logins.DefaultProfileForLogin(ctx, acct.Login)
		if err != nil {
			return stats, fmt.Errorf("seed %s: %w", acct.Login, err)
		}
		for _, b := range acct.Bookmarks {
			_, err := bookmarks.Save(ctx, &models.Bookmark{
				ProfileID: profile.ID,
				URL:       b.URL,
				Title:     b.Title,
				Notes:     b.Notes,
				Tags:      tags.Parse(b.Tags),
				Shared:    !b.Private,
				UserDate:  b.Date,
			}, true)
			if err != nil {
				return stats, fmt.Errorf("seed %s bookmark %s: %w", acct.Login, b.URL, err)
			}
			stats.Bookmarks++
		}
		logging.Logger.Infow("seeded account", "login", acct.Login, "bookmarks", len(acct.Bookmarks))
	}
	return stats, nil
}
