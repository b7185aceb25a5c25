package service

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/arashthr/memex/internal/auth/context/principalcontext"
	"github.com/arashthr/memex/internal/models"
	"github.com/arashthr/memex/internal/tags"
	"github.com/arashthr/memex/internal/wire"
)

// ExportOPML writes the profile's bookmarks matching tagList as an OPML
// outline, newest first.
func ExportOPML(ctx context.Context, out io.Writer, bm *models.BookmarkModel, profile *models.Profile, tagList []string, selfURL string) error {
	bookmarks, err := bm.FetchBy(ctx, models.Query{
		ProfileID: profile.ID,
		Tags:      tagList,
		Limit:     maxAllResults,
		Order:     models.OrderUserDateDesc,
	})
	if err != nil {
		return err
	}

	title := []string{"memex", profile.ScreenName}
	if len(tagList) > 0 {
		title = append(title, tags.Concatenate(tagList))
	}
	items := make([]wire.OPMLItem, 0, len(bookmarks))
	for _, b := range bookmarks {
		items = append(items, wire.OPMLItem{
			Title:   b.Title,
			URL:     b.URL,
			Notes:   b.Notes,
			Tags:    b.Tags,
			Created: b.UserDate,
		})
	}
	return wire.WriteOPML(out, wire.OPMLHead{
		Title:   strings.Join(title, " / "),
		SelfURL: selfURL,
	}, items)
}

func (api *DelAPI) OPML(w http.ResponseWriter, r *http.Request) {
	profile := principalcontext.Profile(r.Context())
	tagList := tags.Parse(r.FormValue("tag"))

	render(w, r, func(out io.Writer) error {
		return ExportOPML(r.Context(), out, api.BookmarkModel, profile, tagList, "")
	})
}
