// Package episode derives the deterministic fileKey that names every durable
// artifact belonging to an episode.
package episode

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// ErrInvalidDate is returned when a publication date cannot be parsed.
var ErrInvalidDate = errors.New("episode: unparseable publication date")

// maxSlugLen bounds the slug portion of a fileKey. Truncation happens on a
// hyphen boundary so keys stay readable.
const maxSlugLen = 120

var dateLayouts = []string{
	time.RFC1123Z,              // Mon, 06 Jan 2020 12:00:00 -0700
	time.RFC1123,               // Mon, 06 Jan 2020 12:00:00 GMT
	time.RFC822Z,               // 06 Jan 20 12:00 -0700
	time.RFC822,                // 06 Jan 20 12:00 GMT
	time.RFC3339,               // 2020-01-06T12:00:00Z
	"2006-01-02T15:04:05.000Z", // ISO8601 with millis
	"2006-01-02",
}

// ParseDate parses an RFC2822 or ISO8601 publication date.
func ParseDate(pubDate string) (time.Time, error) {
	trimmed := strings.TrimSpace(pubDate)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, pubDate)
}

// FileKey derives "{YYYY-MM-DD}_{slug}" from a title and publication date.
// The function is pure and stable across platforms: the title is normalized to
// NFC first, so NFC and NFD spellings of the same title collide on purpose.
func FileKey(title, pubDate string) (string, error) {
	t, err := ParseDate(pubDate)
	if err != nil {
		return "", err
	}
	date := t.UTC().Format("2006-01-02")
	return date + "_" + Slugify(title), nil
}

// FileKeyForTime is FileKey for callers that already hold a parsed time.
func FileKeyForTime(title string, t time.Time) string {
	return t.UTC().Format("2006-01-02") + "_" + Slugify(title)
}

// Slugify reduces a title to the slug charset [A-Za-z0-9_.-]. Whitespace runs
// become a single hyphen; anything outside the charset after NFC normalization
// is dropped, which transliterates emoji-bearing titles deterministically.
func Slugify(title string) string {
	normalized := norm.NFC.String(title)

	var b strings.Builder
	b.Grow(len(normalized))
	pendingHyphen := false
	for _, r := range normalized {
		if unicode.IsSpace(r) {
			if b.Len() > 0 {
				pendingHyphen = true
			}
			continue
		}
		if !isSlugRune(r) {
			continue
		}
		if pendingHyphen {
			b.WriteByte('-')
			pendingHyphen = false
		}
		b.WriteRune(r)
	}

	slug := strings.Trim(b.String(), "-")
	if len(slug) > maxSlugLen {
		slug = truncateOnHyphen(slug, maxSlugLen)
	}
	return slug
}

func isSlugRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_', r == '.', r == '-':
		return true
	}
	return false
}

func truncateOnHyphen(s string, max int) string {
	cut := s[:max]
	if idx := strings.LastIndexByte(cut, '-'); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, "-")
}
