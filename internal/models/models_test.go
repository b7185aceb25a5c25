package models

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/arashthr/memex/internal/db"
	"github.com/arashthr/memex/internal/types"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()
	conn, err := db.OpenSQLite(ctx, filepath.Join(t.TempDir(), "memex.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := db.InitSchema(ctx, conn); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return conn
}

type fixture struct {
	bookmarks *BookmarkModel
	logins    *LoginModel
	profile   *Profile
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := newTestDB(t)
	now := func() time.Time { return testNow }
	f := fixture{
		bookmarks: &BookmarkModel{DB: conn, Dialect: db.SQLite, Now: now},
		logins:    &LoginModel{DB: conn, Dialect: db.SQLite, Now: now},
	}
	f.profile = f.register(t, "alice")
	return f
}

func (f fixture) register(t *testing.T, name string) *Profile {
	t.Helper()
	_, profile, err := f.logins.Register(context.Background(), Account{
		LoginName: name,
		Email:     name + "@example.com",
		Password:  name + "-secret",
	})
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	return profile
}

func (f fixture) save(t *testing.T, profileID types.ProfileId, url string, tagList []string, userDate time.Time) *Bookmark {
	t.Helper()
	b, err := f.bookmarks.Save(context.Background(), &Bookmark{
		ProfileID: profileID,
		URL:       url,
		Title:     "title of " + url,
		Tags:      tagList,
		Shared:    true,
		UserDate:  userDate,
	}, true)
	if err != nil {
		t.Fatalf("save %s: %v", url, err)
	}
	return b
}

func day(d, h int) time.Time {
	return time.Date(2024, 5, d, h, 0, 0, 0, time.UTC)
}

func urls(bookmarks []Bookmark) []string {
	out := make([]string, len(bookmarks))
	for i, b := range bookmarks {
		out[i] = b.URL
	}
	return out
}

func slicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
