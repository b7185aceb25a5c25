package validations

import (
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

const DayLayout = "2006-01-02"

var naturalDates = newNaturalParser()

func newNaturalParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// ParseDateTime reads an absolute timestamp in any common layout, falling
// back to English phrases such as "yesterday" relative to now. Results are
// UTC and truncated to whole seconds.
func ParseDateTime(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if t, err := dateparse.ParseIn(s, time.UTC); err == nil {
		return NormalizeTime(t), nil
	}
	r, err := naturalDates.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("parse date %q: unrecognized", s)
	}
	return NormalizeTime(r.Time), nil
}

// ParseDay resolves s to a calendar day string (YYYY-MM-DD, UTC).
func ParseDay(s string, now time.Time) (string, error) {
	if t, err := time.Parse(DayLayout, strings.TrimSpace(s)); err == nil {
		return t.Format(DayLayout), nil
	}
	t, err := ParseDateTime(s, now)
	if err != nil {
		return "", err
	}
	return t.Format(DayLayout), nil
}

func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
