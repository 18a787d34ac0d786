// Package query builds same-page navigation URLs from the current location and a set
// of query parameter overrides.
package query

import (
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// SizeKey is the page-size query parameter.
const SizeKey = "size"

// PageSizes are the page sizes offered by the pagination controls.
var PageSizes = []int{10, 20, 40}

// ValidPageSize reports whether n is one of PageSizes.
func ValidPageSize(n int) bool {
	return slices.Contains(PageSizes, n)
}

// Params is an insertion-ordered set of query parameters. A repeated key keeps its
// first position and its last value.
type Params struct {
	m *orderedmap.OrderedMap[string, string]
}

// NewParams returns an empty parameter set.
func NewParams() Params {
	return Params{m: orderedmap.New[string, string]()}
}

// ParseParams parses a raw query string, with or without the leading "?".
func ParseParams(raw string) Params {
	p := NewParams()
	raw = strings.TrimPrefix(raw, "?")
	for raw != "" {
		var pair string
		pair, raw, _ = strings.Cut(raw, "&")
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		p.m.Set(unescape(k), unescape(v))
	}
	return p
}

// unescape decodes a query component. Malformed escapes are kept verbatim, the way
// browsers read them.
func unescape(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return strings.ReplaceAll(s, "+", " ")
}

// Get returns the value for key.
func (p Params) Get(key string) (string, bool) {
	if p.m == nil {
		return "", false
	}
	return p.m.Get(key)
}

// Set replaces the value for key, keeping its position, or appends it.
func (p Params) Set(key, value string) {
	p.m.Set(key, value)
}

// Len returns the number of keys.
func (p Params) Len() int {
	if p.m == nil {
		return 0
	}
	return p.m.Len()
}

// Keys returns the keys in order.
func (p Params) Keys() []string {
	if p.m == nil {
		return nil
	}
	keys := make([]string, 0, p.m.Len())
	for pair := p.m.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Clone returns an independent copy.
func (p Params) Clone() Params {
	c := NewParams()
	if p.m == nil {
		return c
	}
	for pair := p.m.Oldest(); pair != nil; pair = pair.Next() {
		c.m.Set(pair.Key, pair.Value)
	}
	return c
}

// Encode renders the parameters as application/x-www-form-urlencoded in key order.
func (p Params) Encode() string {
	if p.m == nil {
		return ""
	}
	var b strings.Builder
	for pair := p.m.Oldest(); pair != nil; pair = pair.Next() {
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(pair.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(pair.Value))
	}
	return b.String()
}

// Merge returns current with overrides applied. Overridden keys keep their position;
// new keys are appended in sorted order.
func Merge(current Params, overrides map[string]string) Params {
	merged := current.Clone()
	for _, k := range sortedKeys(overrides) {
		merged.Set(k, overrides[k])
	}
	return merged
}

// BuildRedirectURL returns origin + path + "?" + the merged, encoded query.
func BuildRedirectURL(origin, path string, current Params, overrides map[string]string) string {
	return origin + path + "?" + Merge(current, overrides).Encode()
}

// PaginateURL is the redirect for a page-size control.
func PaginateURL(loc Location, size int) (string, error) {
	if !ValidPageSize(size) {
		return "", fmt.Errorf("unsupported page size %d", size)
	}
	return BuildRedirectURL(loc.Origin, loc.Path, ParseParams(loc.RawQuery), map[string]string{SizeKey: strconv.Itoa(size)}), nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
