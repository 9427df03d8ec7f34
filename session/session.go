// Package session holds the authenticated browsing state shared by every request of a crawl.
package session

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/net/publicsuffix"
)

// Locale is the language/currency/region triple applied to the session.
type Locale struct {
	Language string
	Currency string
	Region   string
}

// Browser is a live browsing context able to clear anti-automation challenges.
type Browser interface {
	// Navigate loads url and returns the rendered page HTML.
	Navigate(ctx context.Context, url string) (string, error)
	// Cookies returns the cookies the browser would send to url.
	Cookies(ctx context.Context, url string) ([]*http.Cookie, error)
	Close() error
}

// Session is created once per crawl by the bootstrapper and shared by all requests.
// Cookies rotate as responses come back; tokens are fixed after bootstrap.
type Session struct {
	BaseURL *url.URL
	Locale  Locale

	mu        sync.RWMutex
	csrfToken string
	pageGUID  string

	jar     *cookiejar.Jar
	browser Browser

	closeOnce sync.Once
	closeErr  error
}

// New builds an empty session for baseURL. browser may be nil.
func New(baseURL string, locale Locale, browser Browser) (*Session, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return &Session{
		BaseURL: u,
		Locale:  locale,
		jar:     jar,
		browser: browser,
	}, nil
}

// SetTokens records the CSRF nonce and page GUID read during bootstrap.
func (s *Session) SetTokens(csrf, guid string) {
	s.mu.Lock()
	s.csrfToken = csrf
	s.pageGUID = guid
	s.mu.Unlock()
}

// CSRFToken returns the nonce sent as x-csrf-token.
func (s *Session) CSRFToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.csrfToken
}

// PageGUID returns the GUID sent as x-page-guid.
func (s *Session) PageGUID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pageGUID
}

// Ready reports whether both tokens are present.
func (s *Session) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.csrfToken != "" && s.pageGUID != ""
}

// SetCookies stores cookies for the base URL, replacing any with the same name.
func (s *Session) SetCookies(cookies []*http.Cookie) {
	if len(cookies) == 0 {
		return
	}
	s.jar.SetCookies(s.BaseURL, cookies)
}

// StoreCookies applies the Set-Cookie headers of a response.
func (s *Session) StoreCookies(h http.Header) {
	if h == nil {
		return
	}
	s.SetCookies((&http.Response{Header: h}).Cookies())
}

// Cookies returns the current cookies for the base URL.
func (s *Session) Cookies() []*http.Cookie {
	return s.jar.Cookies(s.BaseURL)
}

// CookieHeader renders the current jar as a Cookie request header value.
// It is read fresh for every request since the origin rotates cookies.
func (s *Session) CookieHeader() string {
	cookies := s.Cookies()
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// Close releases the browsing context. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.browser != nil {
			s.closeErr = s.browser.Close()
		}
	})
	return s.closeErr
}
