package models

import (
	"context"
	"crypto/md5"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/arashthr/memex/internal/db"
	"github.com/arashthr/memex/internal/errors"
	"github.com/arashthr/memex/internal/logging"
	"github.com/arashthr/memex/internal/types"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type Login struct {
	ID           types.LoginId
	LoginName    string
	Email        string
	PasswordHash string
	Created      time.Time
}

type Profile struct {
	ID         types.ProfileId
	ScreenName string
	FullName   string
	Bio        string
	Created    time.Time
}

// Account is everything needed to register a login with its first profile.
// PasswordHash, when set, is stored as-is and Password is ignored.
type Account struct {
	LoginName    string
	Email        string
	Password     string
	PasswordHash string
	ScreenName   string
	FullName     string
	Bio          string
}

type LoginModel struct {
	DB      *sql.DB
	Dialect db.Dialect
	Now     func() time.Time
}

var legacyHashPattern = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (lm *LoginModel) now() time.Time {
	if lm.Now != nil {
		return lm.Now().UTC().Truncate(time.Second)
	}
	return time.Now().UTC().Truncate(time.Second)
}

// Register creates a login, its profile and the link between them.
func (lm *LoginModel) Register(ctx context.Context, acct Account) (*Login, *Profile, error) {
	loginName := strings.TrimSpace(acct.LoginName)
	screenName := strings.TrimSpace(acct.ScreenName)
	if screenName == "" {
		screenName = loginName
	}
	if loginName == "" {
		return nil, nil, errors.Validation("login name is required")
	}

	passwordHash := acct.PasswordHash
	if passwordHash == "" {
		if acct.Password == "" {
			return nil, nil, errors.Validation("password is required")
		}
		hashedBytes, err := bcrypt.GenerateFromPassword([]byte(acct.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, nil, fmt.Errorf("register: %w", err)
		}
		passwordHash = string(hashedBytes)
	}

	now := lm.now()
	login := Login{
		ID:           types.LoginId(uuid.NewString()),
		LoginName:    loginName,
		Email:        normalizeEmail(acct.Email),
		PasswordHash: passwordHash,
		Created:      now,
	}
	profile := Profile{
		ID:         types.ProfileId(uuid.NewString()),
		ScreenName: screenName,
		FullName:   acct.FullName,
		Bio:        acct.Bio,
		Created:    now,
	}

	tx, err := lm.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("register: begin: %w", err)
	}
	defer tx.Rollback()

	d := lm.Dialect
	_, err = d.Builder().Insert("logins").
		Columns("id", "login_name", "email", "password_hash", "created").
		Values(login.ID, login.LoginName, login.Email, login.PasswordHash, d.Time(now)).
		RunWith(tx).ExecContext(ctx)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, nil, errors.ErrLoginTaken
		}
		return nil, nil, fmt.Errorf("register login: %w", err)
	}

	_, err = d.Builder().Insert("profiles").
		Columns("id", "screen_name", "full_name", "bio", "created").
		Values(profile.ID, profile.ScreenName, profile.FullName, profile.Bio, d.Time(now)).
		RunWith(tx).ExecContext(ctx)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, nil, errors.ErrScreenNameTaken
		}
		return nil, nil, fmt.Errorf("register profile: %w", err)
	}

	_, err = d.Builder().Insert("logins_profiles").
		Columns("login_id", "profile_id", "created").
		Values(login.ID, profile.ID, d.Time(now)).
		RunWith(tx).ExecContext(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("register link: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("register: commit: %w", err)
	}
	return &login, &profile, nil
}

func (lm *LoginModel) GetByLoginName(ctx context.Context, loginName string) (*Login, error) {
	var (
		login   Login
		created dbTime
	)
	err := lm.Dialect.Builder().
		Select("id", "login_name", "email", "password_hash", "created").
		From("logins").
		Where(sq.Eq{"login_name": loginName}).
		RunWith(lm.DB).QueryRowContext(ctx).
		Scan(&login.ID, &login.LoginName, &login.Email, &login.PasswordHash, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrNotFound
		}
		return nil, fmt.Errorf("get login: %w", err)
	}
	login.Created = created.Time
	return &login, nil
}

// DefaultProfile returns the earliest profile linked to the login.
func (lm *LoginModel) DefaultProfile(ctx context.Context, loginID types.LoginId) (*Profile, error) {
	var (
		profile Profile
		created dbTime
	)
	err := lm.Dialect.Builder().
		Select("p.id", "p.screen_name", "p.full_name", "p.bio", "p.created").
		From("profiles p").
		Join("logins_profiles lp ON lp.profile_id = p.id").
		Where(sq.Eq{"lp.login_id": loginID}).
		OrderBy("lp.created ASC", "p.id").
		Limit(1).
		RunWith(lm.DB).QueryRowContext(ctx).
		Scan(&profile.ID, &profile.ScreenName, &profile.FullName, &profile.Bio, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrNotFound
		}
		return nil, fmt.Errorf("default profile: %w", err)
	}
	profile.Created = created.Time
	return &profile, nil
}

// DefaultProfileForLogin resolves a login name to its default profile.
func (lm *LoginModel) DefaultProfileForLogin(ctx context.Context, loginName string) (*Profile, error) {
	login, err := lm.GetByLoginName(ctx, loginName)
	if err != nil {
		return nil, err
	}
	return lm.DefaultProfile(ctx, login.ID)
}

// Resolve checks a login name and password. Unknown logins and wrong
// passwords both report false without an error. A login still carrying a
// legacy MD5 fingerprint is upgraded to bcrypt after a successful check.
func (lm *LoginModel) Resolve(ctx context.Context, loginName, password string) (bool, error) {
	login, err := lm.GetByLoginName(ctx, loginName)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("resolve: %w", err)
	}

	if legacyHashPattern.MatchString(login.PasswordHash) {
		sum := md5.Sum([]byte(password))
		given := hex.EncodeToString(sum[:])
		if subtle.ConstantTimeCompare([]byte(given), []byte(strings.ToLower(login.PasswordHash))) != 1 {
			return false, nil
		}
		if err := lm.UpdatePassword(ctx, login.ID, password); err != nil {
			logging.Logger.Warnw("upgrading legacy password hash", "login", loginName, "error", err)
		}
		return true, nil
	}

	err = bcrypt.CompareHashAndPassword([]byte(login.PasswordHash), []byte(password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, fmt.Errorf("resolve: %w", err)
	}
	return true, nil
}

func (lm *LoginModel) UpdatePassword(ctx context.Context, loginID types.LoginId, password string) error {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	_, err = lm.Dialect.Builder().
		Update("logins").
		Set("password_hash", string(hashedBytes)).
		Where(sq.Eq{"id": loginID}).
		RunWith(lm.DB).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}
