package query

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrNoPath is returned for a location without a path.
var ErrNoPath = errors.New("location has no path")

// viewSegment is the trailing path segment of a post page.
const viewSegment = "/view"

// Location is the page address the browser reports.
type Location struct {
	Origin   string `json:"origin"`
	Path     string `json:"path"`
	RawQuery string `json:"query,omitempty"`
}

// ParseLocation splits an absolute or path-only href.
func ParseLocation(href string) (Location, error) {
	u, err := url.Parse(href)
	if err != nil {
		return Location{}, fmt.Errorf("invalid location %q: %w", href, err)
	}
	if u.Path == "" {
		return Location{}, ErrNoPath
	}
	loc := Location{Path: u.Path, RawQuery: u.RawQuery}
	if u.Scheme != "" && u.Host != "" {
		loc.Origin = u.Scheme + "://" + u.Host
	}
	return loc, nil
}

// String returns the href.
func (l Location) String() string {
	if l.RawQuery == "" {
		return l.Origin + l.Path
	}
	return l.Origin + l.Path + "?" + l.RawQuery
}

// Key identifies the page within a session. The origin is not part of it.
func (l Location) Key() string {
	if l.RawQuery == "" {
		return l.Path
	}
	return l.Path + "?" + l.RawQuery
}

// BasePath is the path with a trailing "/view" segment removed.
func (l Location) BasePath() string {
	p := strings.TrimSuffix(l.Path, "/")
	return strings.TrimSuffix(p, viewSegment)
}
