package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrMissingToken is returned when a session token cannot be found in the page.
var ErrMissingToken = errors.New("session token not found")

var (
	csrfPattern = regexp.MustCompile(`<meta name=["']csrf_nonce["'] content=["'](.+?)["']`)
	guidPattern = regexp.MustCompile(`page_guid"?\s*[:=]\s*["'](.+?)["']`)
)

// ExtractTokens reads the CSRF nonce and the page GUID from a rendered page.
func ExtractTokens(rawHTML string) (csrf, guid string, err error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return "", "", fmt.Errorf("parse page: %w", err)
	}

	csrf = strings.TrimSpace(doc.Find(`meta[name="csrf_nonce"]`).First().AttrOr("content", ""))
	if csrf == "" {
		if m := csrfPattern.FindStringSubmatch(rawHTML); m != nil {
			csrf = m[1]
		}
	}
	if csrf == "" {
		return "", "", fmt.Errorf("csrf_nonce: %w", ErrMissingToken)
	}

	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if m := guidPattern.FindStringSubmatch(s.Text()); m != nil {
			guid = m[1]
			return false
		}
		return true
	})
	if guid == "" {
		return "", "", fmt.Errorf("page_guid: %w", ErrMissingToken)
	}
	return csrf, guid, nil
}
