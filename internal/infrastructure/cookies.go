package infrastructure

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

// NetscapeHeader is the first line of every exported cookie file
const NetscapeHeader = "# Netscape HTTP Cookie File"

// Cookie is one browser cookie as the downloader consumes it
type Cookie struct {
	Domain  string `json:"domain"`
	Path    string `json:"path,omitempty"`
	Secure  bool   `json:"secure,omitempty"`
	Expires int64  `json:"expires,omitempty"` // epoch seconds, 0 for a session cookie
	Name    string `json:"name"`
	Value   string `json:"value"`
}

// CookieSource returns the cookies stored for domain and its subdomains
type CookieSource interface {
	CookiesFor(domain string) []Cookie
}

// CookieStore is an in-memory CookieSource, fed from Set-Cookie headers or a
// cookie file
type CookieStore struct {
	mu      sync.Mutex
	cookies []Cookie
}

// NewCookieStore creates an empty store
func NewCookieStore() *CookieStore {
	return &CookieStore{}
}

// Add stores c, replacing any cookie with the same domain, path and name
func (s *CookieStore) Add(c Cookie) {
	if c.Path == "" {
		c.Path = "/"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.cookies {
		if sameCookie(existing, c) {
			s.cookies[i] = c
			return
		}
	}
	s.cookies = append(s.cookies, c)
}

// Capture records cookies set by a response for u. Expired or deleted cookies
// are removed from the store.
func (s *CookieStore) Capture(u *url.URL, cookies []*http.Cookie) {
	now := time.Now()
	for _, hc := range cookies {
		c := Cookie{
			Domain: hc.Domain,
			Path:   hc.Path,
			Secure: hc.Secure,
			Name:   hc.Name,
			Value:  hc.Value,
		}
		if c.Domain == "" {
			c.Domain = u.Hostname()
		}

		switch {
		case hc.MaxAge < 0:
			s.remove(c)
			continue
		case hc.MaxAge > 0:
			c.Expires = now.Add(time.Duration(hc.MaxAge) * time.Second).Unix()
		case !hc.Expires.IsZero():
			if hc.Expires.Before(now) {
				s.remove(c)
				continue
			}
			c.Expires = hc.Expires.Unix()
		}
		s.Add(c)
	}
}

// CookiesFor returns the stored cookies whose domain is domain or one of its
// subdomains, in insertion order
func (s *CookieStore) CookiesFor(domain string) []Cookie {
	domain = strings.TrimPrefix(strings.ToLower(domain), ".")

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Cookie
	for _, c := range s.cookies {
		cd := strings.TrimPrefix(strings.ToLower(c.Domain), ".")
		if cd == domain || strings.HasSuffix(cd, "."+domain) {
			out = append(out, c)
		}
	}
	return out
}

// Len returns the number of stored cookies
func (s *CookieStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cookies)
}

func (s *CookieStore) remove(c Cookie) {
	if c.Path == "" {
		c.Path = "/"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.cookies {
		if sameCookie(existing, c) {
			s.cookies = append(s.cookies[:i], s.cookies[i+1:]...)
			return
		}
	}
}

func sameCookie(a, b Cookie) bool {
	return strings.EqualFold(strings.TrimPrefix(a.Domain, "."), strings.TrimPrefix(b.Domain, ".")) &&
		a.Path == b.Path && a.Name == b.Name
}

// RegistrableDomain returns the eTLD+1 of host, or host itself when it has
// none (IP addresses, localhost)
func RegistrableDomain(host string) string {
	if net.ParseIP(host) != nil {
		return host
	}
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return d
}

// ExportNetscape renders the cookies for rawURL's hostname and its registrable
// parent domain as a Netscape cookie file. A name keeps the position of its
// first occurrence and the value of its last, so a parent-domain cookie
// overrides the hostname one. It reports false when there is nothing to export.
func ExportNetscape(rawURL string, source CookieSource) (string, bool) {
	if source == nil {
		return "", false
	}
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Hostname() == "" {
		return "", false
	}

	host := strings.ToLower(u.Hostname())
	domains := []string{host}
	if parent := RegistrableDomain(host); parent != host {
		domains = append(domains, parent)
	}

	index := make(map[string]int)
	var picked []Cookie
	for _, d := range domains {
		for _, c := range source.CookiesFor(d) {
			if i, ok := index[c.Name]; ok {
				picked[i] = c
				continue
			}
			index[c.Name] = len(picked)
			picked = append(picked, c)
		}
	}

	if len(picked) == 0 {
		return "", false
	}

	var b strings.Builder
	b.WriteString(NetscapeHeader)
	b.WriteString("\n")
	for _, c := range picked {
		b.WriteString(formatNetscapeLine(c))
		b.WriteString("\n")
	}
	return b.String(), true
}

func formatNetscapeLine(c Cookie) string {
	domain := c.Domain
	if !strings.HasPrefix(domain, ".") {
		domain = "." + domain
	}
	path := c.Path
	if path == "" {
		path = "/"
	}
	secure := "FALSE"
	if c.Secure {
		secure = "TRUE"
	}
	return strings.Join([]string{
		domain,
		"TRUE",
		path,
		secure,
		strconv.FormatInt(c.Expires, 10),
		c.Name,
		c.Value,
	}, "\t")
}

// ParseNetscape reads a Netscape cookie file. Comment and blank lines are
// skipped; "#HttpOnly_" prefixed lines are read as cookies.
func ParseNetscape(r io.Reader) ([]Cookie, error) {
	var cookies []Cookie
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.HasPrefix(line, "#HttpOnly_") {
			line = strings.TrimPrefix(line, "#HttpOnly_")
		} else if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) != 7 {
			return nil, fmt.Errorf("line %d: expected 7 fields, got %d", lineNo, len(fields))
		}

		expires, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid expiration: %w", lineNo, err)
		}

		cookies = append(cookies, Cookie{
			Domain:  fields[0],
			Path:    fields[2],
			Secure:  strings.EqualFold(fields[3], "TRUE"),
			Expires: expires,
			Name:    fields[5],
			Value:   fields[6],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cookie file: %w", err)
	}
	return cookies, nil
}
