// Package wire renders bookmark query results in the delicious v1 XML
// format. Output is deterministic: fixed attribute order, one element per
// line, empty elements self-closed.
package wire

import (
	"io"
	"strconv"
	"time"

	"github.com/beevik/etree"
)

const (
	Done               = "done"
	SomethingWentWrong = "something went wrong"

	ContentType = "text/xml; charset=utf-8"
)

// Post is one bookmark as it appears on the wire.
type Post struct {
	Href        string
	Hash        string
	Meta        string
	Description string
	Extended    string
	Tag         string
	Time        time.Time
}

type DateCount struct {
	Date  string
	Count int
}

// PostsEnvelope carries the attributes of the <posts> root. Optional
// attributes are omitted when unset.
type PostsEnvelope struct {
	User   string
	Tag    string
	Dt     string
	Total  *int
	Count  *int
	Start  *int
	Update *time.Time
}

type DatesEnvelope struct {
	User string
	Tag  string
}

// FormatTime renders t as an ISO-8601 UTC instant.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func newDocument() *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	return doc
}

func write(w io.Writer, doc *etree.Document) error {
	doc.Indent(2)
	_, err := doc.WriteTo(w)
	return err
}

func setInt(el *etree.Element, key string, v *int) {
	if v != nil {
		el.CreateAttr(key, strconv.Itoa(*v))
	}
}

func WritePosts(w io.Writer, env PostsEnvelope, posts []Post) error {
	doc := newDocument()
	root := doc.CreateElement("posts")
	root.CreateAttr("user", env.User)
	root.CreateAttr("tag", env.Tag)
	if env.Dt != "" {
		root.CreateAttr("dt", env.Dt)
	}
	setInt(root, "total", env.Total)
	setInt(root, "count", env.Count)
	setInt(root, "start", env.Start)
	if env.Update != nil {
		root.CreateAttr("update", FormatTime(*env.Update))
	}

	for _, p := range posts {
		el := root.CreateElement("post")
		el.CreateAttr("href", p.Href)
		el.CreateAttr("hash", p.Hash)
		el.CreateAttr("meta", p.Meta)
		el.CreateAttr("description", p.Description)
		el.CreateAttr("extended", p.Extended)
		el.CreateAttr("tag", p.Tag)
		el.CreateAttr("time", FormatTime(p.Time))
	}
	return write(w, doc)
}

func WriteDates(w io.Writer, env DatesEnvelope, dates []DateCount) error {
	doc := newDocument()
	root := doc.CreateElement("dates")
	root.CreateAttr("user", env.User)
	root.CreateAttr("tag", env.Tag)
	for _, d := range dates {
		el := root.CreateElement("date")
		el.CreateAttr("date", d.Date)
		el.CreateAttr("count", strconv.Itoa(d.Count))
	}
	return write(w, doc)
}

// WriteUpdate renders <update time="..."/>. A zero time omits the attribute.
func WriteUpdate(w io.Writer, last time.Time) error {
	doc := newDocument()
	root := doc.CreateElement("update")
	if !last.IsZero() {
		root.CreateAttr("time", FormatTime(last))
	}
	return write(w, doc)
}

// WriteResult renders a single-operation outcome with no envelope.
func WriteResult(w io.Writer, code string) error {
	doc := etree.NewDocument()
	doc.CreateElement("result").CreateAttr("code", code)
	return write(w, doc)
}
