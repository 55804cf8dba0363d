package domain

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

// HostMatcher matches URLs against a family of host fragments
type HostMatcher struct {
	fragments []string
}

// NewHostMatcher creates a matcher for hosts containing any of the fragments
func NewHostMatcher(fragments []string) *HostMatcher {
	m := &HostMatcher{}
	for _, f := range fragments {
		f = strings.ToLower(strings.TrimSpace(f))
		if f != "" {
			m.fragments = append(m.fragments, f)
		}
	}
	return m
}

// Match reports whether the URL's host belongs to the family
func (m *HostMatcher) Match(rawURL string) bool {
	if m == nil || rawURL == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	for _, f := range m.fragments {
		if strings.Contains(host, f) {
			return true
		}
	}
	return false
}

// MatchAny reports whether any of the URLs match
func (m *HostMatcher) MatchAny(urls ...string) bool {
	for _, u := range urls {
		if m.Match(u) {
			return true
		}
	}
	return false
}

// rangeQueryKeys are query parameters some CDNs use to serve a slice of the media
var rangeQueryKeys = map[string]bool{
	"bytestart": true,
	"byteend":   true,
	"range":     true,
}

// NormalizeMediaURL trims the URL and, for matched hosts, drops
// query parameters that pin the response to a byte slice.
// Returns "" for anything that is not http(s).
func NormalizeMediaURL(rawURL string, matcher *HostMatcher) string {
	trimmed := strings.TrimSpace(rawURL)
	lower := strings.ToLower(trimmed)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return ""
	}
	if !matcher.Match(trimmed) {
		return trimmed
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.RawQuery == "" {
		return trimmed
	}

	var kept []string
	removed := false
	for _, part := range strings.Split(u.RawQuery, "&") {
		if part == "" {
			continue
		}
		key, _, _ := strings.Cut(part, "=")
		if rangeQueryKeys[strings.ToLower(key)] {
			removed = true
			continue
		}
		kept = append(kept, part)
	}
	if !removed {
		return trimmed
	}
	u.RawQuery = strings.Join(kept, "&")
	return u.String()
}

// IsSegmentedStream reports whether the URL points at an HLS playlist
func IsSegmentedStream(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return strings.Contains(strings.ToLower(rawURL), ".m3u8")
	}
	return strings.EqualFold(path.Ext(u.Path), ".m3u8")
}

// OriginOf returns scheme://host for a URL, or "" when it has no host
func OriginOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

var (
	unsafeNameChars = regexp.MustCompile(`[\\/:*?"<>|\x00-\x1f]`)
	repeatedSpaces  = regexp.MustCompile(`\s+`)
)

// SanitizeFileName replaces characters that are not allowed in file names
func SanitizeFileName(name string) string {
	out := unsafeNameChars.ReplaceAllString(name, " ")
	out = strings.TrimSpace(repeatedSpaces.ReplaceAllString(out, " "))
	if out == "" || out == "." || out == ".." {
		return "video"
	}
	return out
}
