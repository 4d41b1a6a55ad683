package source

import (
	"strings"
	"time"
)

// IsRecent reports whether publishedAt lies within maxAge of the current
// time. A missing timestamp is never recent.
func IsRecent(publishedAt *time.Time, maxAge time.Duration) bool {
	return IsRecentAt(time.Now().UTC(), publishedAt, maxAge)
}

// IsRecentAt is IsRecent against an explicit reference time.
func IsRecentAt(now time.Time, publishedAt *time.Time, maxAge time.Duration) bool {
	if publishedAt == nil || publishedAt.IsZero() {
		return false
	}
	return now.UTC().Sub(publishedAt.UTC()) <= maxAge
}

// Layouts without a zone parse as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
}

// ParseTimestamp parses the timestamp formats seen in feeds and APIs and
// returns the instant in UTC. ok is false when no layout matched.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
