package importer

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/arashthr/memex/internal/errors"
	"github.com/arashthr/memex/internal/logging"
	"github.com/arashthr/memex/internal/models"
	"github.com/arashthr/memex/internal/tags"
	"github.com/arashthr/memex/internal/types"
	"github.com/arashthr/memex/internal/validations"
)

// Item is one entry of a delicious (Netscape bookmark file) export.
type Item struct {
	URL     string
	Title   string
	Notes   string
	Tags    []string
	AddDate time.Time
	Private bool
}

type Result struct {
	Imported  int
	Skipped   int
	Conflicts int
}

type Importer struct {
	BookmarkModel *models.BookmarkModel
	// OnlyTags, when set, limits the import to items carrying all of them.
	OnlyTags []string
}

// ParseDelicious reads the <dt><a …>title</a><dd>notes pairs of an export.
// The tags attribute is comma separated; tags with inner spaces are split.
func ParseDelicious(r io.Reader) ([]Item, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse export: %w", err)
	}

	items := []Item{}
	var (
		current Item
		pending bool
	)
	doc.Find("dt a,dd").Each(func(_ int, s *goquery.Selection) {
		if err != nil {
			return
		}
		switch s.Nodes[0].Data {
		case "a":
			if pending {
				items = append(items, current)
			}
			current = Item{Title: markupText(s)}
			href, ok := s.Attr("href")
			if !ok {
				err = fmt.Errorf("no href in %q", current.Title)
				return
			}
			current.URL = strings.TrimSpace(href)
			current.Tags = splitTags(s.AttrOr("tags", ""))
			current.Private = s.AttrOr("private", "0") == "1"
			if raw := s.AttrOr("add_date", ""); raw != "" {
				var secs int64
				secs, err = strconv.ParseInt(raw, 10, 64)
				if err != nil {
					err = fmt.Errorf("add_date of %s: %w", current.URL, err)
					return
				}
				current.AddDate = time.Unix(secs, 0).UTC()
			}
			pending = true
		case "dd":
			if pending {
				current.Notes = markupText(s)
				items = append(items, current)
				pending = false
			}
		}
	})
	if err != nil {
		return nil, err
	}
	if pending {
		items = append(items, current)
	}
	return items, nil
}

// markupText flattens the inner HTML of an export node into plain text.
// Escaped angle brackets survive, tags do not.
func markupText(s *goquery.Selection) string {
	inner, err := s.Html()
	if err != nil {
		return strings.TrimSpace(s.Text())
	}
	return validations.CleanUpText(inner)
}

func splitTags(raw string) []string {
	return strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
}

// Import saves items into the profile. Invalid URLs are skipped. Without
// replace, URLs already bookmarked are counted as conflicts and left alone.
func (im *Importer) Import(ctx context.Context, profileID types.ProfileId, items []Item, replace bool) (Result, error) {
	var res Result
	logger := logging.Logger.With("profile", profileID)

	for _, item := range items {
		if !validations.IsURLValid(item.URL) {
			logger.Debugw("skipping invalid URL", "url", item.URL)
			res.Skipped++
			continue
		}
		if !tags.ContainsAll(item.Tags, im.OnlyTags) {
			res.Skipped++
			continue
		}
		title := strings.TrimSpace(item.Title)
		if title == "" {
			title = validations.ExtractHostname(item.URL)
		}
		_, err := im.BookmarkModel.Save(ctx, &models.Bookmark{
			ProfileID: profileID,
			URL:       item.URL,
			Title:     title,
			Notes:     item.Notes,
			Tags:      item.Tags,
			Shared:    !item.Private,
			UserDate:  item.AddDate,
		}, replace)
		if err != nil {
			if errors.Is(err, errors.ErrConflict) {
				res.Conflicts++
				continue
			}
			return res, fmt.Errorf("import %s: %w", item.URL, err)
		}
		res.Imported++
	}

	logger.Infow("import completed", "imported", res.Imported, "skipped", res.Skipped, "conflicts", res.Conflicts)
	return res, nil
}
