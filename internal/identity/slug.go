package identity

import (
	"regexp"
	"strings"
)

var (
	slugDisallowed = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugWhitespace = regexp.MustCompile(`\s+`)
	slugHyphenRuns = regexp.MustCompile(`-+`)
)

// Slugify derives a URL-safe slug from a display name: lowercase, strip
// everything but letters, digits, spaces and hyphens, turn whitespace runs
// into single hyphens, collapse repeated hyphens, trim the ends.
//
// Slugify is idempotent. An all-punctuation name yields the empty string;
// callers are responsible for a fallback base.
func Slugify(name string) string {
	slug := strings.ToLower(name)
	slug = slugDisallowed.ReplaceAllString(slug, "")
	slug = slugWhitespace.ReplaceAllString(slug, "-")
	slug = slugHyphenRuns.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}
