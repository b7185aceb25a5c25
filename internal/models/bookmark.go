package models

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/arashthr/memex/internal/db"
	"github.com/arashthr/memex/internal/errors"
	"github.com/arashthr/memex/internal/logging"
	"github.com/arashthr/memex/internal/tags"
	"github.com/arashthr/memex/internal/types"
	"github.com/arashthr/memex/internal/validations"
	"github.com/google/uuid"
)

type Bookmark struct {
	ID        types.BookmarkId
	ProfileID types.ProfileId
	URL       string
	Hash      string
	Signature string
	Title     string
	Notes     string
	Tags      []string
	Shared    bool
	UserDate  time.Time
	Created   time.Time
	Updated   time.Time
}

// DateCount is one bucket of the per-day histogram.
type DateCount struct {
	Date  string
	Count int
}

type Order int

const (
	OrderUserDateDesc Order = iota
	OrderUserDateAsc
)

// Query filters a profile's bookmarks. Tags use AND semantics, Start and End
// bound user_date inclusively, and a Limit of zero or less means no limit.
type Query struct {
	ProfileID types.ProfileId
	Tags      []string
	Start     *time.Time
	End       *time.Time
	Offset    int
	Limit     int
	Order     Order
}

// ChangeNotifier hears about every committed write to a profile's bookmarks.
type ChangeNotifier interface {
	Invalidate(ctx context.Context, profileID types.ProfileId) error
}

type BookmarkModel struct {
	DB      *sql.DB
	Dialect db.Dialect
	Now     func() time.Time
	// Changes, when set, is told after each committed write.
	Changes ChangeNotifier
}

const bookmarkColumns = "b.id, b.profile_id, b.url, b.hash, b.signature, b.title, b.notes, b.tags, b.shared, b.user_date, b.created, b.updated"

func (model *BookmarkModel) changed(ctx context.Context, profileID types.ProfileId) {
	if model.Changes == nil {
		return
	}
	if err := model.Changes.Invalidate(ctx, profileID); err != nil {
		logging.Logger.Warnw("invalidating last modified", "profile", profileID, "error", err)
	}
}

func (model *BookmarkModel) now() time.Time {
	if model.Now != nil {
		return validations.NormalizeTime(model.Now())
	}
	return validations.NormalizeTime(time.Now())
}

// Signature fingerprints the content of a bookmark. It changes whenever any
// synced field changes.
func Signature(b *Bookmark) string {
	h := md5.New()
	for _, part := range []string{
		b.URL,
		b.Title,
		b.Notes,
		tags.Concatenate(b.Tags),
		b.UserDate.UTC().Format(time.RFC3339),
	} {
		h.Write([]byte(part))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Save creates or replaces the bookmark for (profile, url) with a single
// conditional insert. With replace set, an existing record keeps its id and
// created time and takes the new content. Without it, an existing record
// yields errors.ErrConflict and nothing changes.
func (model *BookmarkModel) Save(ctx context.Context, b *Bookmark, replace bool) (*Bookmark, error) {
	if b.ProfileID == "" {
		return nil, fmt.Errorf("save bookmark: missing profile id")
	}
	if b.URL == "" {
		return nil, errors.Validation("url is required")
	}

	now := model.now()
	record := *b
	if record.UserDate.IsZero() {
		record.UserDate = now
	}
	record.UserDate = validations.NormalizeTime(record.UserDate)
	record.Tags = tags.Unique(record.Tags)
	record.Hash = validations.URLHash(record.URL)
	record.Signature = Signature(&record)
	if record.ID == "" {
		record.ID = types.BookmarkId(uuid.NewString())
	}
	record.Created = now
	record.Updated = now

	tx, err := model.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("save bookmark: begin: %w", err)
	}
	defer tx.Rollback()

	d := model.Dialect
	insert := d.Builder().
		Insert("bookmarks").
		Columns("id", "profile_id", "url", "hash", "signature", "title", "notes", "tags", "shared", "user_date", "created", "updated").
		Values(record.ID, record.ProfileID, record.URL, record.Hash, record.Signature, record.Title, record.Notes,
			tags.Concatenate(record.Tags), record.Shared, d.Time(record.UserDate), d.Time(record.Created), d.Time(record.Updated))
	if replace {
		insert = insert.Suffix(`ON CONFLICT (profile_id, url) DO UPDATE SET
			hash = excluded.hash,
			signature = excluded.signature,
			title = excluded.title,
			notes = excluded.notes,
			tags = excluded.tags,
			shared = excluded.shared,
			user_date = excluded.user_date,
			updated = excluded.updated
			RETURNING id, created`)
	} else {
		insert = insert.Suffix("ON CONFLICT (profile_id, url) DO NOTHING RETURNING id, created")
	}

	var created dbTime
	err = insert.RunWith(tx).QueryRowContext(ctx).Scan(&record.ID, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrConflict
		}
		return nil, fmt.Errorf("save bookmark: %w", err)
	}
	record.Created = created.Time

	if err := model.replaceTags(ctx, tx, &record); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("save bookmark: commit: %w", err)
	}
	model.changed(ctx, record.ProfileID)
	return &record, nil
}

func (model *BookmarkModel) replaceTags(ctx context.Context, tx *sql.Tx, b *Bookmark) error {
	_, err := model.Dialect.Builder().
		Delete("bookmark_tags").
		Where(sq.Eq{"bookmark_id": b.ID}).
		RunWith(tx).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("clear bookmark tags: %w", err)
	}
	if len(b.Tags) == 0 {
		return nil
	}
	insert := model.Dialect.Builder().Insert("bookmark_tags").Columns("bookmark_id", "profile_id", "tag")
	for _, tag := range b.Tags {
		insert = insert.Values(b.ID, b.ProfileID, tag)
	}
	if _, err := insert.RunWith(tx).ExecContext(ctx); err != nil {
		return fmt.Errorf("insert bookmark tags: %w", err)
	}
	return nil
}

func (model *BookmarkModel) selectBookmarks(profileID types.ProfileId) sq.SelectBuilder {
	return model.Dialect.Builder().
		Select(bookmarkColumns).
		From("bookmarks b").
		Where(sq.Eq{"b.profile_id": profileID})
}

// withTags keeps only bookmarks carrying every tag in want.
func withTags(q sq.SelectBuilder, profileID types.ProfileId, want []string) sq.SelectBuilder {
	want = tags.Unique(want)
	if len(want) == 0 {
		return q
	}
	args := make([]any, 0, len(want)+2)
	args = append(args, profileID)
	for _, t := range want {
		args = append(args, t)
	}
	args = append(args, len(want))
	return q.Where(sq.Expr(`b.id IN (
		SELECT bt.bookmark_id FROM bookmark_tags bt
		WHERE bt.profile_id = ? AND bt.tag IN (`+sq.Placeholders(len(want))+`)
		GROUP BY bt.bookmark_id
		HAVING COUNT(DISTINCT bt.tag) = ?)`, args...))
}

func (model *BookmarkModel) getOne(ctx context.Context, q sq.SelectBuilder) (*Bookmark, error) {
	bookmarks, err := model.query(ctx, q.Limit(1))
	if err != nil {
		return nil, err
	}
	if len(bookmarks) == 0 {
		return nil, errors.ErrNotFound
	}
	return &bookmarks[0], nil
}

func (model *BookmarkModel) GetByUrl(ctx context.Context, profileID types.ProfileId, link string) (*Bookmark, error) {
	b, err := model.getOne(ctx, model.selectBookmarks(profileID).Where(sq.Eq{"b.url": link}))
	if err != nil {
		return nil, fmt.Errorf("get bookmark by url: %w", err)
	}
	return b, nil
}

func (model *BookmarkModel) GetByHash(ctx context.Context, profileID types.ProfileId, hash string) (*Bookmark, error) {
	b, err := model.getOne(ctx, model.selectBookmarks(profileID).Where(sq.Eq{"b.hash": strings.ToLower(hash)}))
	if err != nil {
		return nil, fmt.Errorf("get bookmark by hash: %w", err)
	}
	return b, nil
}

// GetByHashes returns the bookmarks matching any of hashes, newest first.
// Unknown hashes are skipped.
func (model *BookmarkModel) GetByHashes(ctx context.Context, profileID types.ProfileId, hashes []string) ([]Bookmark, error) {
	wanted := make([]string, 0, len(hashes))
	for _, h := range hashes {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			wanted = append(wanted, h)
		}
	}
	if len(wanted) == 0 {
		return []Bookmark{}, nil
	}
	q := model.selectBookmarks(profileID).
		Where(sq.Eq{"b.hash": tags.Unique(wanted)}).
		OrderBy("b.user_date DESC", "b.created DESC", "b.id")
	bookmarks, err := model.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("get bookmarks by hashes: %w", err)
	}
	return bookmarks, nil
}

// FetchBy runs the general filtered listing.
func (model *BookmarkModel) FetchBy(ctx context.Context, query Query) ([]Bookmark, error) {
	d := model.Dialect
	q := withTags(model.selectBookmarks(query.ProfileID), query.ProfileID, query.Tags)
	if query.Start != nil {
		q = q.Where(sq.GtOrEq{"b.user_date": d.Time(*query.Start)})
	}
	if query.End != nil {
		q = q.Where(sq.LtOrEq{"b.user_date": d.Time(*query.End)})
	}

	switch query.Order {
	case OrderUserDateAsc:
		q = q.OrderBy("b.user_date ASC", "b.created ASC", "b.id")
	default:
		q = q.OrderBy("b.user_date DESC", "b.created DESC", "b.id")
	}

	offset := max(query.Offset, 0)
	switch {
	case query.Limit > 0:
		q = q.Limit(uint64(query.Limit))
	case offset > 0:
		// SQLite rejects OFFSET without LIMIT.
		q = q.Limit(math.MaxInt64)
	}
	if offset > 0 {
		q = q.Offset(uint64(offset))
	}

	bookmarks, err := model.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("fetch bookmarks: %w", err)
	}
	return bookmarks, nil
}

// LastModified returns the newest user_date of the profile, and false when
// the profile has no bookmarks.
func (model *BookmarkModel) LastModified(ctx context.Context, profileID types.ProfileId) (time.Time, bool, error) {
	var last dbTime
	err := model.Dialect.Builder().
		Select("MAX(b.user_date)").
		From("bookmarks b").
		Where(sq.Eq{"b.profile_id": profileID}).
		RunWith(model.DB).QueryRowContext(ctx).Scan(&last)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("last modified: %w", err)
	}
	return last.Time, last.Valid, nil
}

// MostRecentDate is the UTC calendar day of the newest bookmark.
func (model *BookmarkModel) MostRecentDate(ctx context.Context, profileID types.ProfileId) (string, bool, error) {
	last, ok, err := model.LastModified(ctx, profileID)
	if err != nil || !ok {
		return "", ok, err
	}
	return last.Format(validations.DayLayout), true, nil
}

func (model *BookmarkModel) CountByProfileAndTags(ctx context.Context, profileID types.ProfileId, want []string) (int, error) {
	q := model.Dialect.Builder().
		Select("COUNT(*)").
		From("bookmarks b").
		Where(sq.Eq{"b.profile_id": profileID})
	q = withTags(q, profileID, want)

	var count int
	if err := q.RunWith(model.DB).QueryRowContext(ctx).Scan(&count); err != nil {
		return 0, fmt.Errorf("count bookmarks: %w", err)
	}
	return count, nil
}

// DatesByTagsAndProfile counts matching bookmarks per UTC day, newest day
// first.
func (model *BookmarkModel) DatesByTagsAndProfile(ctx context.Context, profileID types.ProfileId, want []string) ([]DateCount, error) {
	q := model.Dialect.Builder().
		Select(model.Dialect.DayExpr("b.user_date")+" AS day", "COUNT(*)").
		From("bookmarks b").
		Where(sq.Eq{"b.profile_id": profileID})
	q = withTags(q, profileID, want).GroupBy("day").OrderBy("day DESC")

	rows, err := q.RunWith(model.DB).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("bookmark dates: %w", err)
	}
	defer rows.Close()

	dates := []DateCount{}
	for rows.Next() {
		var dc DateCount
		if err := rows.Scan(&dc.Date, &dc.Count); err != nil {
			return nil, fmt.Errorf("scan bookmark date: %w", err)
		}
		dates = append(dates, dc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bookmark dates: %w", err)
	}
	return dates, nil
}

// DeleteByID removes a bookmark of the profile. Missing ids are not an error.
func (model *BookmarkModel) DeleteByID(ctx context.Context, profileID types.ProfileId, id types.BookmarkId) error {
	tx, err := model.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete bookmark: begin: %w", err)
	}
	defer tx.Rollback()

	b := model.Dialect.Builder()
	_, err = b.Delete("bookmark_tags").
		Where(sq.Eq{"bookmark_id": id, "profile_id": profileID}).
		RunWith(tx).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("delete bookmark tags: %w", err)
	}
	_, err = b.Delete("bookmarks").
		Where(sq.Eq{"id": id, "profile_id": profileID}).
		RunWith(tx).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("delete bookmark: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete bookmark: commit: %w", err)
	}
	model.changed(ctx, profileID)
	return nil
}

func (model *BookmarkModel) query(ctx context.Context, q sq.SelectBuilder) ([]Bookmark, error) {
	rows, err := q.RunWith(model.DB).QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bookmarks := []Bookmark{}
	for rows.Next() {
		var (
			b                          Bookmark
			tagText                    string
			userDate, created, updated dbTime
		)
		err := rows.Scan(&b.ID, &b.ProfileID, &b.URL, &b.Hash, &b.Signature, &b.Title, &b.Notes,
			&tagText, &b.Shared, &userDate, &created, &updated)
		if err != nil {
			return nil, fmt.Errorf("scan bookmark: %w", err)
		}
		b.Tags = tags.Parse(tagText)
		b.UserDate = userDate.Time
		b.Created = created.Time
		b.Updated = updated.Time
		bookmarks = append(bookmarks, b)
	}
	return bookmarks, rows.Err()
}
