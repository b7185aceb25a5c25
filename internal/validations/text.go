package validations

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var spacesRegex *regexp.Regexp = regexp.MustCompile("[\t\n\r]+")

var sanitization = bluemonday.StrictPolicy()

// CleanUpText strips markup and folds tabs and newlines into spaces.
func CleanUpText(text string) string {
	return strings.TrimSpace(html.UnescapeString(
		sanitization.Sanitize(
			spacesRegex.ReplaceAllLiteralString(text, " "),
		)))
}

// ClampInt parses s and clamps it to [min, max]. Empty or non-numeric input
// yields def.
func ClampInt(s string, def, min, max int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}
