package infrastructure

import (
	"bufio"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/yourusername/mediagrab/internal/domain"
)

const httpOnlyPrefix = "#HttpOnly_"

// CookieHeaderSource builds request headers from a cookie jar and a fixed user agent
type CookieHeaderSource struct {
	jar       http.CookieJar
	userAgent string
}

// NewCookieHeaderSource creates a header source backed by an empty cookie jar
func NewCookieHeaderSource(userAgent string) (*CookieHeaderSource, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	if userAgent == "" {
		userAgent = domain.DefaultUserAgent
	}
	return &CookieHeaderSource{
		jar:       jar,
		userAgent: SanitizeUserAgent(userAgent),
	}, nil
}

// SetCookies stores cookies for a URL
func (s *CookieHeaderSource) SetCookies(rawURL string, cookies []*http.Cookie) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid cookie url: %w", err)
	}
	s.jar.SetCookies(u, cookies)
	return nil
}

// Headers returns the headers for a request to targetURL made on behalf of referer
func (s *CookieHeaderSource) Headers(targetURL, referer string) map[string]string {
	headers := map[string]string{
		"User-Agent":      s.userAgent,
		"Accept":          "*/*",
		"Accept-Encoding": "identity",
		"Accept-Language": "en-US,en;q=0.9",
	}
	if referer != "" {
		headers["Referer"] = referer
		if origin := domain.OriginOf(referer); origin != "" {
			headers["Origin"] = origin
		}
	}
	if cookie := s.cookieHeader(targetURL, referer); cookie != "" {
		headers["Cookie"] = cookie
	}
	return headers
}

// cookieHeader merges cookies for the target and then the referer.
// Media CDNs often need the page host's first-party cookies.
func (s *CookieHeaderSource) cookieHeader(targetURL, referer string) string {
	seen := make(map[string]bool)
	var parts []string
	for _, raw := range []string{targetURL, referer} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			continue
		}
		for _, c := range s.jar.Cookies(u) {
			pair := c.Name + "=" + c.Value
			if seen[pair] {
				continue
			}
			seen[pair] = true
			parts = append(parts, pair)
		}
	}
	return strings.Join(parts, "; ")
}

// LoadNetscapeCookies reads a cookies.txt file into the jar and returns the number loaded
func (s *CookieHeaderSource) LoadNetscapeCookies(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open cookie file: %w", err)
	}
	defer file.Close()

	loaded := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		httpOnly := false
		if strings.HasPrefix(line, httpOnlyPrefix) {
			line = strings.TrimPrefix(line, httpOnlyPrefix)
			httpOnly = true
		}
		if line == "" || line[0] == '#' {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) != 7 {
			continue
		}
		expires, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			continue
		}

		cookie := &http.Cookie{
			Name:     fields[5],
			Value:    fields[6],
			Path:     fields[2],
			Domain:   fields[0],
			Secure:   fields[3] == "TRUE",
			HttpOnly: httpOnly,
		}
		if expires > 0 {
			cookie.Expires = time.Unix(expires, 0)
		}

		scheme := "http"
		if cookie.Secure {
			scheme = "https"
		}
		host := strings.TrimPrefix(cookie.Domain, ".")
		u, err := url.Parse(fmt.Sprintf("%s://%s/", scheme, host))
		if err != nil {
			continue
		}
		s.jar.SetCookies(u, []*http.Cookie{cookie})
		loaded++
	}
	if err := scanner.Err(); err != nil {
		return loaded, fmt.Errorf("failed to read cookie file: %w", err)
	}
	return loaded, nil
}

// SanitizeUserAgent replaces control characters that would corrupt a header value
func SanitizeUserAgent(ua string) string {
	var b strings.Builder
	b.Grow(len(ua))
	for _, r := range ua {
		if r <= 0x1f || r == 0x7f {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}
