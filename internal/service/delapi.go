package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/arashthr/memex/internal/auth"
	"github.com/arashthr/memex/internal/auth/context/loggercontext"
	"github.com/arashthr/memex/internal/auth/context/principalcontext"
	"github.com/arashthr/memex/internal/cache"
	"github.com/arashthr/memex/internal/errors"
	"github.com/arashthr/memex/internal/metrics"
	"github.com/arashthr/memex/internal/models"
	"github.com/arashthr/memex/internal/tags"
	"github.com/arashthr/memex/internal/types"
	"github.com/arashthr/memex/internal/validations"
	"github.com/arashthr/memex/internal/wire"
	"github.com/go-chi/chi/v5"
)

const (
	defaultRecentCount = 15
	maxRecentCount     = 100
	// maxAllResults bounds posts/all when the client asks for everything.
	maxAllResults = 100000
)

// DelAPI serves the delicious v1 compatible sync operations for the
// authenticated profile.
type DelAPI struct {
	BookmarkModel *models.BookmarkModel
	LastModified  cache.LastModified
	Now           func() time.Time
}

// Routes mounts the sync operations on a router. Everything except the
// unauthorized fallback requires Basic credentials.
func (api *DelAPI) Routes(mw auth.BasicMiddleware) func(r chi.Router) {
	return func(r chi.Router) {
		r.Get("/unauthorized", func(w http.ResponseWriter, r *http.Request) {
			mw.Auth.Challenge(w)
		})
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireProfile)
			r.Route("/posts", func(r chi.Router) {
				r.Get("/update", instrument("update", api.Update))
				r.Get("/get", instrument("get", api.Get))
				r.Get("/recent", instrument("recent", api.Recent))
				r.Get("/all", instrument("all", api.All))
				r.Get("/dates", instrument("dates", api.Dates))
				r.Get("/add", instrument("add", api.Add))
				r.Post("/add", instrument("add", api.Add))
				r.Get("/delete", instrument("delete", api.Delete))
				r.Post("/delete", instrument("delete", api.Delete))
				r.Get("/opml", instrument("opml", api.OPML))
			})
		})
	}
}

func (api *DelAPI) now() time.Time {
	if api.Now != nil {
		return api.Now().UTC()
	}
	return time.Now().UTC()
}

func (api *DelAPI) lastModifiedCache() cache.LastModified {
	if api.LastModified == nil {
		return cache.Nop{}
	}
	return api.LastModified
}

func (api *DelAPI) Update(w http.ResponseWriter, r *http.Request) {
	profile := principalcontext.Profile(r.Context())

	last, err := api.lastModified(r.Context(), profile.ID)
	if err != nil {
		serverError(w, r, err)
		return
	}
	render(w, r, func(out io.Writer) error {
		return wire.WriteUpdate(out, last)
	})
}

// lastModified consults the cache before the store. A zero time means the
// profile has no bookmarks. Writes clear the cache through the model.
func (api *DelAPI) lastModified(ctx context.Context, profileID types.ProfileId) (time.Time, error) {
	logger := loggercontext.Logger(ctx)

	entry, err := api.lastModifiedCache().Get(ctx, profileID)
	if err != nil {
		logger.Warnw("last modified cache", "error", err)
	} else if entry.Hit {
		return entry.Time, nil
	}

	last, _, err := api.BookmarkModel.LastModified(ctx, profileID)
	if err != nil {
		return time.Time{}, err
	}
	if err := api.lastModifiedCache().Fill(ctx, profileID, entry.Version, last); err != nil {
		logger.Warnw("last modified cache", "error", err)
	}
	return last, nil
}

// requestURL is the url parameter as add stores it.
func requestURL(r *http.Request) string {
	return strings.TrimSpace(r.FormValue("url"))
}

func (api *DelAPI) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profile := principalcontext.Profile(ctx)

	var (
		bookmarks []models.Bookmark
		err       error
	)
	switch {
	case requestURL(r) != "":
		bookmarks, err = single(api.BookmarkModel.GetByUrl(ctx, profile.ID, requestURL(r)))
	case r.FormValue("hash") != "":
		bookmarks, err = single(api.BookmarkModel.GetByHash(ctx, profile.ID, r.FormValue("hash")))
	case r.FormValue("hashes") != "":
		bookmarks, err = api.BookmarkModel.GetByHashes(ctx, profile.ID, strings.Fields(r.FormValue("hashes")))
	default:
		api.getDay(w, r, profile)
		return
	}
	if err != nil {
		serverError(w, r, err)
		return
	}

	render(w, r, func(out io.Writer) error {
		return wire.WritePosts(out, wire.PostsEnvelope{User: profile.ScreenName}, toPosts(bookmarks))
	})
}

// single adapts an exact lookup to a list. A miss is an empty list.
func single(b *models.Bookmark, err error) ([]models.Bookmark, error) {
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return []models.Bookmark{}, nil
		}
		return nil, err
	}
	return []models.Bookmark{*b}, nil
}

// getDay lists one UTC calendar day: dt when given, else the day of the
// newest bookmark, else today.
func (api *DelAPI) getDay(w http.ResponseWriter, r *http.Request, profile *models.Profile) {
	ctx := r.Context()
	tagList := tags.Parse(r.FormValue("tag"))

	var date string
	if dt := r.FormValue("dt"); dt != "" {
		var err error
		date, err = validations.ParseDay(dt, api.now())
		if err != nil {
			rejected(w, r, errors.Validation("dt is not a valid date"))
			return
		}
	} else {
		recent, ok, err := api.BookmarkModel.MostRecentDate(ctx, profile.ID)
		if err != nil {
			serverError(w, r, err)
			return
		}
		date = recent
		if !ok {
			date = api.now().Format(validations.DayLayout)
		}
	}

	start, err := time.Parse(validations.DayLayout, date)
	if err != nil {
		serverError(w, r, fmt.Errorf("day bounds: %w", err))
		return
	}
	end := start.Add(24*time.Hour - time.Second)

	bookmarks, err := api.BookmarkModel.FetchBy(ctx, models.Query{
		ProfileID: profile.ID,
		Tags:      tagList,
		Start:     &start,
		End:       &end,
		Order:     models.OrderUserDateDesc,
	})
	if err != nil {
		serverError(w, r, err)
		return
	}

	render(w, r, func(out io.Writer) error {
		return wire.WritePosts(out, wire.PostsEnvelope{
			User: profile.ScreenName,
			Tag:  tags.Concatenate(tagList),
			Dt:   date,
		}, toPosts(bookmarks))
	})
}

func (api *DelAPI) Recent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profile := principalcontext.Profile(ctx)
	tagList := tags.Parse(r.FormValue("tag"))
	count := validations.ClampInt(r.FormValue("count"), defaultRecentCount, 1, maxRecentCount)

	bookmarks, err := api.BookmarkModel.FetchBy(ctx, models.Query{
		ProfileID: profile.ID,
		Tags:      tagList,
		Limit:     count,
		Order:     models.OrderUserDateDesc,
	})
	if err != nil {
		serverError(w, r, err)
		return
	}

	render(w, r, func(out io.Writer) error {
		return wire.WritePosts(out, wire.PostsEnvelope{
			User: profile.ScreenName,
			Tag:  tags.Concatenate(tagList),
		}, toPosts(bookmarks))
	})
}

func (api *DelAPI) All(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := loggercontext.Logger(ctx)
	profile := principalcontext.Profile(ctx)
	tagList := tags.Parse(r.FormValue("tag"))

	start := validations.ClampInt(r.FormValue("start"), 0, 0, maxAllResults)
	results := validations.ClampInt(r.FormValue("results"), 0, 0, maxAllResults)
	limit := results
	if limit == 0 {
		limit = maxAllResults
	}

	query := models.Query{
		ProfileID: profile.ID,
		Tags:      tagList,
		Offset:    start,
		Limit:     limit,
		Order:     models.OrderUserDateDesc,
	}
	now := api.now()
	if from := r.FormValue("fromdt"); from != "" {
		if t, err := validations.ParseDateTime(from, now); err == nil {
			query.Start = &t
		} else {
			logger.Debugw("ignoring fromdt", "value", from, "error", err)
		}
	}
	if to := r.FormValue("todt"); to != "" {
		if t, err := validations.ParseDateTime(to, now); err == nil {
			query.End = &t
		} else {
			logger.Debugw("ignoring todt", "value", to, "error", err)
		}
	}

	bookmarks, err := api.BookmarkModel.FetchBy(ctx, query)
	if err != nil {
		serverError(w, r, err)
		return
	}
	total, err := api.BookmarkModel.CountByProfileAndTags(ctx, profile.ID, tagList)
	if err != nil {
		serverError(w, r, err)
		return
	}
	last, err := api.lastModified(ctx, profile.ID)
	if err != nil {
		serverError(w, r, err)
		return
	}

	env := wire.PostsEnvelope{
		User:  profile.ScreenName,
		Tag:   tags.Concatenate(tagList),
		Total: &total,
		Start: &start,
	}
	count := len(bookmarks)
	if results > 0 {
		count = results
	}
	env.Count = &count
	if !last.IsZero() {
		env.Update = &last
	}

	render(w, r, func(out io.Writer) error {
		return wire.WritePosts(out, env, toPosts(bookmarks))
	})
}

func (api *DelAPI) Dates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profile := principalcontext.Profile(ctx)
	tagList := tags.Parse(r.FormValue("tag"))

	dates, err := api.BookmarkModel.DatesByTagsAndProfile(ctx, profile.ID, tagList)
	if err != nil {
		serverError(w, r, err)
		return
	}

	counts := make([]wire.DateCount, 0, len(dates))
	for _, d := range dates {
		counts = append(counts, wire.DateCount{Date: d.Date, Count: d.Count})
	}
	render(w, r, func(out io.Writer) error {
		return wire.WriteDates(out, wire.DatesEnvelope{
			User: profile.ScreenName,
			Tag:  tags.Concatenate(tagList),
		}, counts)
	})
}

func (api *DelAPI) Add(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := loggercontext.Logger(ctx)
	profile := principalcontext.Profile(ctx)

	bookmark, err := api.parseAdd(r, profile.ID)
	if err != nil {
		rejected(w, r, err)
		return
	}
	replace := r.FormValue("replace") != "no"

	saved, err := api.BookmarkModel.Save(ctx, bookmark, replace)
	if err != nil {
		if errors.Is(err, errors.ErrConflict) || errors.Is(err, errors.ErrValidation) {
			rejected(w, r, err)
			return
		}
		serverError(w, r, err)
		return
	}
	metrics.BookmarksWritten.WithLabelValues("saved").Inc()
	logger.Infow("bookmark saved", "id", saved.ID, "replace", replace)

	render(w, r, func(out io.Writer) error {
		return wire.WriteResult(out, wire.Done)
	})
}

func (api *DelAPI) parseAdd(r *http.Request, profileID types.ProfileId) (*models.Bookmark, error) {
	link := requestURL(r)
	if link == "" {
		return nil, errors.Validation("url is required")
	}
	if !validations.IsURLValid(link) {
		return nil, errors.Validation("url is not valid")
	}
	title := strings.TrimSpace(r.FormValue("description"))
	if title == "" {
		return nil, errors.Validation("description is required")
	}

	b := &models.Bookmark{
		ProfileID: profileID,
		URL:       link,
		Title:     title,
		Notes:     strings.TrimSpace(r.FormValue("extended")),
		Tags:      tags.Parse(r.FormValue("tags")),
		Shared:    r.FormValue("shared") != "no",
	}
	if dt := r.FormValue("dt"); dt != "" {
		t, err := validations.ParseDateTime(dt, api.now())
		if err != nil {
			return nil, errors.Validation("dt is not a valid date")
		}
		b.UserDate = t
	}
	return b, nil
}

func (api *DelAPI) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profile := principalcontext.Profile(ctx)

	var (
		bookmark *models.Bookmark
		err      error
	)
	switch {
	case requestURL(r) != "":
		bookmark, err = api.BookmarkModel.GetByUrl(ctx, profile.ID, requestURL(r))
	case r.FormValue("hash") != "":
		bookmark, err = api.BookmarkModel.GetByHash(ctx, profile.ID, r.FormValue("hash"))
	default:
		rejected(w, r, errors.Validation("url or hash is required"))
		return
	}
	if err == nil {
		err = api.BookmarkModel.DeleteByID(ctx, profile.ID, bookmark.ID)
	}
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			rejected(w, r, err)
			return
		}
		serverError(w, r, err)
		return
	}
	metrics.BookmarksWritten.WithLabelValues("deleted").Inc()

	render(w, r, func(out io.Writer) error {
		return wire.WriteResult(out, wire.Done)
	})
}

func toPosts(bookmarks []models.Bookmark) []wire.Post {
	posts := make([]wire.Post, 0, len(bookmarks))
	for _, b := range bookmarks {
		posts = append(posts, wire.Post{
			Href:        b.URL,
			Hash:        b.Hash,
			Meta:        b.Signature,
			Description: b.Title,
			Extended:    b.Notes,
			Tag:         tags.Concatenate(b.Tags),
			Time:        b.UserDate,
		})
	}
	return posts
}
