package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/gobwas/glob"
)

// Mapping links a Board project id to a Tracker project key.
type Mapping struct {
	SourceID   string
	ProjectKey string
}

// mappingLine matches "<id> - <key>". The id may not contain whitespace or a
// hyphen; the key is everything after the first separator.
var mappingLine = regexp.MustCompile(`^([^\s-]+)\s*-\s*(\S.*)$`)

// ParseMappings parses one mapping per line. Blank and malformed lines are skipped.
func ParseMappings(text string) []Mapping {
	var out []Mapping
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		m := mappingLine.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		out = append(out, Mapping{SourceID: m[1], ProjectKey: strings.TrimSpace(m[2])})
	}
	return out
}

// ResolveProjectKey returns the key of the first mapping whose id equals sourceID.
func ResolveProjectKey(text, sourceID string) (string, bool) {
	sourceID = strings.TrimSpace(sourceID)
	if sourceID == "" {
		return "", false
	}
	for _, m := range ParseMappings(text) {
		if m.SourceID == sourceID {
			return m.ProjectKey, true
		}
	}
	return "", false
}

// NormalizeBaseURL prefixes https:// when no scheme is given, lowercases the
// scheme and strips trailing slashes.
func NormalizeBaseURL(raw string) (string, error) {
	base := strings.TrimSpace(raw)
	if base == "" {
		return "", errors.New("base url is empty")
	}
	if scheme, rest, ok := strings.Cut(base, "://"); ok {
		scheme = strings.ToLower(scheme)
		if scheme != "http" && scheme != "https" {
			return "", fmt.Errorf("invalid base url %q: scheme must be http or https", raw)
		}
		base = scheme + "://" + rest
	} else {
		base = "https://" + base
	}
	base = strings.TrimRight(base, "/")

	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid base url %q", raw)
	}
	return base, nil
}

// DefaultURLPatterns returns patterns matching every page of base's host.
func DefaultURLPatterns(base string) []string {
	if base == "" {
		return nil
	}
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return nil
	}
	origin := u.Scheme + "://" + u.Host
	return []string{origin, origin + "/*"}
}

// URLMatcher decides whether a page URL belongs to the Tracker.
type URLMatcher struct {
	patterns []string
	globs    []glob.Glob
}

// NewURLMatcher compiles glob patterns such as "https://*.example.net/*".
// '*' matches across path separators.
func NewURLMatcher(patterns []string) (*URLMatcher, error) {
	m := &URLMatcher{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid tracker url pattern %q: %w", p, err)
		}
		m.patterns = append(m.patterns, p)
		m.globs = append(m.globs, g)
	}
	return m, nil
}

// Match reports whether pageURL matches any pattern. A matcher without
// patterns matches everything.
func (m *URLMatcher) Match(pageURL string) bool {
	if m == nil || len(m.globs) == 0 {
		return true
	}
	for _, g := range m.globs {
		if g.Match(pageURL) {
			return true
		}
	}
	return false
}

// Patterns returns the compiled pattern strings.
func (m *URLMatcher) Patterns() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.patterns...)
}
