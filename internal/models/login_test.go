package models

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/arashthr/memex/internal/errors"
)

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	login, profile, err := f.logins.Register(ctx, Account{
		LoginName:  "  carol ",
		Email:      " Carol@Example.COM ",
		Password:   "pw",
		ScreenName: "carol_s",
		FullName:   "Carol",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if login.LoginName != "carol" || login.Email != "carol@example.com" {
		t.Errorf("login = %+v", login)
	}
	if !strings.HasPrefix(login.PasswordHash, "$2") {
		t.Errorf("password was not bcrypt hashed: %q", login.PasswordHash)
	}

	got, err := f.logins.DefaultProfileForLogin(ctx, "carol")
	if err != nil {
		t.Fatalf("DefaultProfileForLogin() error = %v", err)
	}
	if got.ID != profile.ID || got.ScreenName != "carol_s" || got.FullName != "Carol" {
		t.Errorf("default profile = %+v, want %+v", got, profile)
	}
}

func TestRegisterErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		acct Account
		want error
	}{
		{name: "login taken", acct: Account{LoginName: "alice", Password: "x", ScreenName: "other"}, want: errors.ErrLoginTaken},
		{name: "screen name taken", acct: Account{LoginName: "alice2", Password: "x", ScreenName: "alice"}, want: errors.ErrScreenNameTaken},
		{name: "missing login", acct: Account{Password: "x"}, want: errors.ErrValidation},
		{name: "missing password", acct: Account{LoginName: "dave"}, want: errors.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.logins.Register(ctx, tt.acct)
			if !errors.Is(err, tt.want) {
				t.Errorf("Register() error = %v, want %v", err, tt.want)
			}
		})
	}

	// A failed registration must not leave a half-created login behind.
	if _, err := f.logins.GetByLoginName(ctx, "alice2"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("GetByLoginName(alice2) error = %v, want ErrNotFound", err)
	}
}

func TestResolve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		login    string
		password string
		want     bool
	}{
		{name: "correct", login: "alice", password: "alice-secret", want: true},
		{name: "wrong password", login: "alice", password: "wrongpass", want: false},
		{name: "unknown login", login: "mallory", password: "alice-secret", want: false},
		{name: "login names are exact", login: "Alice", password: "alice-secret", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.logins.Resolve(ctx, tt.login, tt.password)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q, %q) = %v, want %v", tt.login, tt.password, got, tt.want)
			}
		})
	}
}

func TestResolveLegacyMD5Upgrades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sum := md5.Sum([]byte("old-password"))
	_, _, err := f.logins.Register(ctx, Account{LoginName: "legacy", PasswordHash: hex.EncodeToString(sum[:])})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if ok, err := f.logins.Resolve(ctx, "legacy", "nope"); err != nil || ok {
		t.Fatalf("Resolve(wrong) = %v, %v", ok, err)
	}
	if ok, err := f.logins.Resolve(ctx, "legacy", "old-password"); err != nil || !ok {
		t.Fatalf("Resolve(legacy) = %v, %v", ok, err)
	}

	login, err := f.logins.GetByLoginName(ctx, "legacy")
	if err != nil {
		t.Fatalf("GetByLoginName() error = %v", err)
	}
	if !strings.HasPrefix(login.PasswordHash, "$2") {
		t.Errorf("legacy hash was not upgraded: %q", login.PasswordHash)
	}
	if ok, err := f.logins.Resolve(ctx, "legacy", "old-password"); err != nil || !ok {
		t.Errorf("Resolve() after upgrade = %v, %v", ok, err)
	}
}

func TestDefaultProfileMissing(t *testing.T) {
	f := newFixture(t)
	_, err := f.logins.DefaultProfileForLogin(context.Background(), "nobody")
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("DefaultProfileForLogin() error = %v, want ErrNotFound", err)
	}
}
