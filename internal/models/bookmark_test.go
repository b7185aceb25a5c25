package models

import (
	"context"
	"testing"
	"time"

	"github.com/arashthr/memex/internal/errors"
	"github.com/arashthr/memex/internal/types"
	"github.com/arashthr/memex/internal/validations"
)

func TestSaveCreatesBookmark(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.bookmarks.Save(ctx, &Bookmark{
		ProfileID: f.profile.ID,
		URL:       "http://x",
		Title:     "X",
		Notes:     "notes",
		Tags:      []string{"b", "a", "b"},
		UserDate:  time.Date(2024, 5, 1, 10, 30, 15, 999, time.FixedZone("plus2", 7200)),
	}, true)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if b.ID == "" {
		t.Error("Save() did not assign an id")
	}
	if b.Hash != validations.URLHash("http://x") {
		t.Errorf("Hash = %s", b.Hash)
	}
	if !slicesEqual(b.Tags, []string{"b", "a"}) {
		t.Errorf("Tags = %q, want deduplicated [b a]", b.Tags)
	}
	wantDate := time.Date(2024, 5, 1, 8, 30, 15, 0, time.UTC)
	if !b.UserDate.Equal(wantDate) {
		t.Errorf("UserDate = %v, want %v", b.UserDate, wantDate)
	}
	if !b.Created.Equal(testNow) {
		t.Errorf("Created = %v, want %v", b.Created, testNow)
	}

	got, err := f.bookmarks.GetByUrl(ctx, f.profile.ID, "http://x")
	if err != nil {
		t.Fatalf("GetByUrl() error = %v", err)
	}
	if got.ID != b.ID || got.Title != "X" || got.Notes != "notes" || !got.UserDate.Equal(wantDate) {
		t.Errorf("GetByUrl() = %+v", got)
	}
	if got.Signature != b.Signature || got.Signature == "" {
		t.Errorf("Signature = %q, want %q", got.Signature, b.Signature)
	}
}

func TestSaveDefaultsUserDateToNow(t *testing.T) {
	f := newFixture(t)
	b := f.save(t, f.profile.ID, "http://now", nil, time.Time{})
	if !b.UserDate.Equal(testNow) {
		t.Errorf("UserDate = %v, want %v", b.UserDate, testNow)
	}
}

func TestSaveReplace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.save(t, f.profile.ID, "http://x", []string{"old"}, day(1, 10))

	f.bookmarks.Now = func() time.Time { return testNow.Add(time.Hour) }
	second, err := f.bookmarks.Save(ctx, &Bookmark{
		ProfileID: f.profile.ID,
		URL:       "http://x",
		Title:     "new title",
		Notes:     "new notes",
		Tags:      []string{"new"},
		UserDate:  day(2, 10),
	}, true)
	if err != nil {
		t.Fatalf("Save(replace) error = %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("replace changed id: %s -> %s", first.ID, second.ID)
	}
	if !second.Created.Equal(first.Created) {
		t.Errorf("replace changed created: %v -> %v", first.Created, second.Created)
	}
	if second.Signature == first.Signature {
		t.Error("signature should change with content")
	}

	got, err := f.bookmarks.GetByUrl(ctx, f.profile.ID, "http://x")
	if err != nil {
		t.Fatalf("GetByUrl() error = %v", err)
	}
	if got.Title != "new title" || !slicesEqual(got.Tags, []string{"new"}) || !got.UserDate.Equal(day(2, 10)) {
		t.Errorf("replaced bookmark = %+v", got)
	}
	if n, _ := f.bookmarks.CountByProfileAndTags(ctx, f.profile.ID, []string{"old"}); n != 0 {
		t.Errorf("old tag still matches %d bookmarks", n)
	}
	if n, _ := f.bookmarks.CountByProfileAndTags(ctx, f.profile.ID, nil); n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestSaveNoReplaceConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.save(t, f.profile.ID, "http://x", []string{"keep"}, day(1, 10))

	_, err := f.bookmarks.Save(ctx, &Bookmark{
		ProfileID: f.profile.ID,
		URL:       "http://x",
		Title:     "clobbered",
		Tags:      []string{"lost"},
	}, false)
	if !errors.Is(err, errors.ErrConflict) {
		t.Fatalf("Save(no replace) error = %v, want ErrConflict", err)
	}

	got, err := f.bookmarks.GetByUrl(ctx, f.profile.ID, "http://x")
	if err != nil {
		t.Fatalf("GetByUrl() error = %v", err)
	}
	if got.Title != "title of http://x" || !slicesEqual(got.Tags, []string{"keep"}) {
		t.Errorf("bookmark was mutated: %+v", got)
	}
}

func TestSaveNoReplaceCreatesWhenAbsent(t *testing.T) {
	f := newFixture(t)
	_, err := f.bookmarks.Save(context.Background(), &Bookmark{ProfileID: f.profile.ID, URL: "http://fresh", Title: "t"}, false)
	if err != nil {
		t.Fatalf("Save(no replace) on new url error = %v", err)
	}
}

func TestSaveValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.bookmarks.Save(context.Background(), &Bookmark{ProfileID: f.profile.ID}, true)
	if !errors.Is(err, errors.ErrValidation) {
		t.Errorf("Save() without url error = %v, want ErrValidation", err)
	}
}

func TestLookupsByHash(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.save(t, f.profile.ID, "http://a", nil, day(1, 10))
	b := f.save(t, f.profile.ID, "http://b", nil, day(2, 10))
	f.save(t, f.profile.ID, "http://c", nil, day(3, 10))

	byHash, err := f.bookmarks.GetByHash(ctx, f.profile.ID, validations.URLHash("http://a"))
	if err != nil {
		t.Fatalf("GetByHash() error = %v", err)
	}
	byURL, err := f.bookmarks.GetByUrl(ctx, f.profile.ID, "http://a")
	if err != nil {
		t.Fatalf("GetByUrl() error = %v", err)
	}
	if byHash.ID != byURL.ID || byHash.ID != a.ID {
		t.Errorf("hash and url lookups disagree: %s vs %s", byHash.ID, byURL.ID)
	}

	_, err = f.bookmarks.GetByHash(ctx, f.profile.ID, validations.URLHash("http://missing"))
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("GetByHash(missing) error = %v, want ErrNotFound", err)
	}

	many, err := f.bookmarks.GetByHashes(ctx, f.profile.ID, []string{a.Hash, "", "deadbeef", b.Hash, a.Hash})
	if err != nil {
		t.Fatalf("GetByHashes() error = %v", err)
	}
	if got := urls(many); !slicesEqual(got, []string{"http://b", "http://a"}) {
		t.Errorf("GetByHashes() = %q", got)
	}

	none, err := f.bookmarks.GetByHashes(ctx, f.profile.ID, nil)
	if err != nil || len(none) != 0 {
		t.Errorf("GetByHashes(nil) = %v, %v", none, err)
	}
}

func TestProfileIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bob := f.register(t, "bob")

	mine := f.save(t, f.profile.ID, "http://shared", []string{"t"}, day(1, 10))
	theirs := f.save(t, bob.ID, "http://shared", []string{"t"}, day(1, 10))
	if mine.ID == theirs.ID {
		t.Fatal("same url in two profiles must be two bookmarks")
	}

	if err := f.bookmarks.DeleteByID(ctx, f.profile.ID, theirs.ID); err != nil {
		t.Fatalf("DeleteByID() error = %v", err)
	}
	if _, err := f.bookmarks.GetByUrl(ctx, bob.ID, "http://shared"); err != nil {
		t.Errorf("cross-profile delete removed bob's bookmark: %v", err)
	}

	n, err := f.bookmarks.CountByProfileAndTags(ctx, f.profile.ID, []string{"t"})
	if err != nil || n != 1 {
		t.Errorf("CountByProfileAndTags() = %d, %v; want 1", n, err)
	}
}

func TestFetchByTagsANDSemantics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.save(t, f.profile.ID, "http://a", []string{"A"}, day(1, 10))
	f.save(t, f.profile.ID, "http://ab", []string{"A", "B"}, day(2, 10))
	f.save(t, f.profile.ID, "http://abc", []string{"C", "B", "A"}, day(3, 10))
	f.save(t, f.profile.ID, "http://lower", []string{"a", "b"}, day(4, 10))

	tests := []struct {
		name string
		tags []string
		want []string
	}{
		{name: "no filter", tags: nil, want: []string{"http://lower", "http://abc", "http://ab", "http://a"}},
		{name: "single tag", tags: []string{"A"}, want: []string{"http://abc", "http://ab", "http://a"}},
		{name: "two tags", tags: []string{"A", "B"}, want: []string{"http://abc", "http://ab"}},
		{name: "order does not matter", tags: []string{"B", "A"}, want: []string{"http://abc", "http://ab"}},
		{name: "duplicate filter tags", tags: []string{"A", "A", "B"}, want: []string{"http://abc", "http://ab"}},
		{name: "case sensitive", tags: []string{"a"}, want: []string{"http://lower"}},
		{name: "unknown tag", tags: []string{"A", "Z"}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.bookmarks.FetchBy(ctx, Query{ProfileID: f.profile.ID, Tags: tt.tags})
			if err != nil {
				t.Fatalf("FetchBy() error = %v", err)
			}
			if !slicesEqual(urls(got), tt.want) {
				t.Errorf("FetchBy(%q) = %q, want %q", tt.tags, urls(got), tt.want)
			}

			count, err := f.bookmarks.CountByProfileAndTags(ctx, f.profile.ID, tt.tags)
			if err != nil {
				t.Fatalf("CountByProfileAndTags() error = %v", err)
			}
			if count != len(got) {
				t.Errorf("count = %d, unbounded FetchBy returned %d", count, len(got))
			}

			dates, err := f.bookmarks.DatesByTagsAndProfile(ctx, f.profile.ID, tt.tags)
			if err != nil {
				t.Fatalf("DatesByTagsAndProfile() error = %v", err)
			}
			sum := 0
			for _, d := range dates {
				sum += d.Count
			}
			if sum != count {
				t.Errorf("histogram sum = %d, count = %d", sum, count)
			}
		})
	}
}

func TestFetchByDatesAndPaging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		f.save(t, f.profile.ID, "http://"+string(rune('a'+i-1)), nil, day(i, 12))
	}
	// a=May 1, b=May 2, c=May 3, d=May 4, e=May 5

	start := day(2, 0)
	end := day(4, 12)
	tests := []struct {
		name  string
		query Query
		want  []string
	}{
		{name: "inclusive range", query: Query{Start: &start, End: &end}, want: []string{"http://d", "http://c", "http://b"}},
		{name: "limit", query: Query{Limit: 2}, want: []string{"http://e", "http://d"}},
		{name: "offset and limit", query: Query{Offset: 1, Limit: 2}, want: []string{"http://d", "http://c"}},
		{name: "offset without limit", query: Query{Offset: 3}, want: []string{"http://b", "http://a"}},
		{name: "negative offset clamps to zero", query: Query{Offset: -5, Limit: 1}, want: []string{"http://e"}},
		{name: "negative limit means unbounded", query: Query{Limit: -1}, want: []string{"http://e", "http://d", "http://c", "http://b", "http://a"}},
		{name: "ascending", query: Query{Order: OrderUserDateAsc, Limit: 2}, want: []string{"http://a", "http://b"}},
		{name: "offset past end", query: Query{Offset: 10}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.query.ProfileID = f.profile.ID
			got, err := f.bookmarks.FetchBy(ctx, tt.query)
			if err != nil {
				t.Fatalf("FetchBy() error = %v", err)
			}
			if !slicesEqual(urls(got), tt.want) {
				t.Errorf("FetchBy() = %q, want %q", urls(got), tt.want)
			}
		})
	}
}

func TestDatesByTagsAndProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.save(t, f.profile.ID, "http://1", []string{"x"}, day(1, 1))
	f.save(t, f.profile.ID, "http://2", []string{"x"}, day(1, 23))
	f.save(t, f.profile.ID, "http://3", []string{"x"}, day(3, 5))
	f.save(t, f.profile.ID, "http://4", []string{"y"}, day(3, 6))

	dates, err := f.bookmarks.DatesByTagsAndProfile(ctx, f.profile.ID, []string{"x"})
	if err != nil {
		t.Fatalf("DatesByTagsAndProfile() error = %v", err)
	}
	want := []DateCount{{Date: "2024-05-03", Count: 1}, {Date: "2024-05-01", Count: 2}}
	if len(dates) != len(want) {
		t.Fatalf("dates = %+v, want %+v", dates, want)
	}
	for i := range want {
		if dates[i] != want[i] {
			t.Errorf("dates[%d] = %+v, want %+v", i, dates[i], want[i])
		}
	}
}

func TestLastModifiedAndMostRecentDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, ok, err := f.bookmarks.LastModified(ctx, f.profile.ID); err != nil || ok {
		t.Fatalf("LastModified() on empty profile = %v, %v", ok, err)
	}
	if _, ok, err := f.bookmarks.MostRecentDate(ctx, f.profile.ID); err != nil || ok {
		t.Fatalf("MostRecentDate() on empty profile = %v, %v", ok, err)
	}

	f.save(t, f.profile.ID, "http://old", nil, day(1, 8))
	f.save(t, f.profile.ID, "http://new", nil, day(9, 23))
	f.save(t, f.profile.ID, "http://mid", nil, day(5, 8))

	last, ok, err := f.bookmarks.LastModified(ctx, f.profile.ID)
	if err != nil || !ok || !last.Equal(day(9, 23)) {
		t.Errorf("LastModified() = %v, %v, %v", last, ok, err)
	}
	date, ok, err := f.bookmarks.MostRecentDate(ctx, f.profile.ID)
	if err != nil || !ok || date != "2024-05-09" {
		t.Errorf("MostRecentDate() = %q, %v, %v", date, ok, err)
	}
}

func TestDeleteByID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.save(t, f.profile.ID, "http://gone", []string{"t"}, day(1, 1))

	if err := f.bookmarks.DeleteByID(ctx, f.profile.ID, b.ID); err != nil {
		t.Fatalf("DeleteByID() error = %v", err)
	}
	if _, err := f.bookmarks.GetByHash(ctx, f.profile.ID, b.Hash); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("GetByHash() after delete error = %v", err)
	}
	if n, _ := f.bookmarks.CountByProfileAndTags(ctx, f.profile.ID, []string{"t"}); n != 0 {
		t.Errorf("tag rows survived delete: count = %d", n)
	}
	if err := f.bookmarks.DeleteByID(ctx, f.profile.ID, b.ID); err != nil {
		t.Errorf("DeleteByID() of missing id error = %v", err)
	}
}

type recordingNotifier struct {
	profiles []types.ProfileId
	err      error
}

func (n *recordingNotifier) Invalidate(_ context.Context, profileID types.ProfileId) error {
	n.profiles = append(n.profiles, profileID)
	return n.err
}

func TestWritesNotifyChanges(t *testing.T) {
	tests := []struct {
		name    string
		write   func(f fixture) error
		notices int
	}{
		{
			name: "save",
			write: func(f fixture) error {
				_, err := f.bookmarks.Save(context.Background(), &Bookmark{ProfileID: f.profile.ID, URL: "http://new", Title: "t"}, true)
				return err
			},
			notices: 1,
		},
		{
			name: "conflicting save",
			write: func(f fixture) error {
				_, err := f.bookmarks.Save(context.Background(), &Bookmark{ProfileID: f.profile.ID, URL: "http://seeded", Title: "t"}, false)
				if errors.Is(err, errors.ErrConflict) {
					return nil
				}
				return err
			},
		},
		{
			name: "delete",
			write: func(f fixture) error {
				b, err := f.bookmarks.GetByUrl(context.Background(), f.profile.ID, "http://seeded")
				if err != nil {
					return err
				}
				return f.bookmarks.DeleteByID(context.Background(), f.profile.ID, b.ID)
			},
			notices: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.save(t, f.profile.ID, "http://seeded", nil, day(1, 1))
			n := &recordingNotifier{}
			f.bookmarks.Changes = n

			if err := tt.write(f); err != nil {
				t.Fatalf("write error = %v", err)
			}
			if len(n.profiles) != tt.notices {
				t.Fatalf("got %d notices, want %d", len(n.profiles), tt.notices)
			}
			for _, pid := range n.profiles {
				if pid != f.profile.ID {
					t.Errorf("notice for profile %s, want %s", pid, f.profile.ID)
				}
			}
		})
	}
}

func TestFailingNotifierKeepsWrite(t *testing.T) {
	f := newFixture(t)
	f.bookmarks.Changes = &recordingNotifier{err: errors.New("redis down")}
	b := f.save(t, f.profile.ID, "http://kept", nil, day(2, 1))
	if _, err := f.bookmarks.GetByHash(context.Background(), f.profile.ID, b.Hash); err != nil {
		t.Errorf("GetByHash() error = %v", err)
	}
}

func TestSignature(t *testing.T) {
	base := Bookmark{URL: "http://x", Title: "t", Notes: "n", Tags: []string{"a"}, UserDate: day(1, 1)}
	sig := Signature(&base)
	if sig != Signature(&base) {
		t.Fatal("signature is not deterministic")
	}
	changed := base
	changed.Notes = "other"
	if Signature(&changed) == sig {
		t.Error("signature ignores notes")
	}
	changed = base
	changed.Tags = []string{"a", "b"}
	if Signature(&changed) == sig {
		t.Error("signature ignores tags")
	}
}
