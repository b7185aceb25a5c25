package wire

import (
	"io"
	"strings"
	"time"
)

type OPMLHead struct {
	Title   string
	SelfURL string
}

// OPMLItem is one bookmark in an OPML outline.
type OPMLItem struct {
	Title   string
	URL     string
	Notes   string
	Tags    []string
	Created time.Time
}

// feedVersions maps feed marker tags to the OPML version attribute.
var feedVersions = []struct {
	tag     string
	version string
}{
	{"system:filetype:rss", "RSS"},
	{"filetype:rss", "RSS"},
	{"system:filetype:atom", "Atom"},
	{"filetype:atom", "Atom"},
	{"system:filetype:feed", ""},
	{"filetype:feed", ""},
}

// FeedVersion reports whether the tags mark a bookmarked feed, and its
// version.
func FeedVersion(tags []string) (string, bool) {
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		set[t] = struct{}{}
	}
	for _, fv := range feedVersions {
		if _, ok := set[fv.tag]; ok {
			return fv.version, true
		}
	}
	return "", false
}

// WriteOPML renders items as an OPML 2.0 outline. Bookmarked feeds become
// subscription entries that aggregators can import.
func WriteOPML(w io.Writer, head OPMLHead, items []OPMLItem) error {
	doc := newDocument()
	opml := doc.CreateElement("opml")
	opml.CreateAttr("version", "2.0")
	opml.CreateAttr("xmlns:atom", "http://www.w3.org/2005/Atom")

	h := opml.CreateElement("head")
	h.CreateElement("title").SetText(head.Title)
	if head.SelfURL != "" {
		link := h.CreateElement("atom:link")
		link.CreateAttr("rel", "self")
		link.CreateAttr("type", "application/atom+xml")
		link.CreateAttr("href", head.SelfURL)
	}

	body := opml.CreateElement("body")
	for _, item := range items {
		el := body.CreateElement("outline")
		el.CreateAttr("text", item.Title)
		el.CreateAttr("created", FormatTime(item.Created))
		if version, ok := FeedVersion(item.Tags); ok {
			el.CreateAttr("type", "rss")
			el.CreateAttr("xmlUrl", item.URL)
			el.CreateAttr("title", item.Title)
			el.CreateAttr("version", version)
		} else {
			el.CreateAttr("url", item.URL)
		}
		el.CreateAttr("description", item.Notes)
		el.CreateAttr("category", strings.Join(item.Tags, ","))
	}
	return write(w, doc)
}
