package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gocolly/colly/v2"

	"github.com/SPll31/etsyparser/config"
	"github.com/SPll31/etsyparser/session"
)

// Client talks to the site's JSON API on behalf of a session.
type Client struct {
	cfg  *config.Config
	http *httpClient
}

// NewClient builds the API client. Its parallelism equals the chunk size.
func NewClient(cfg *config.Config, metrics *Metrics, stats *runStats) (*Client, error) {
	hc, err := newHTTPClient(cfg.Timeout, cfg.ChunkSize, metrics, stats)
	if err != nil {
		return nil, err
	}
	return &Client{cfg: cfg, http: hc}, nil
}

// ApplyLocale stores the session's currency, language and region server side.
func (c *Client) ApplyLocale(ctx context.Context, sess *session.Session) error {
	_, err := c.postJSON(ctx, sess, phaseLocale, localePath, localePayload{
		Currency: sess.Locale.Currency,
		Language: sess.Locale.Language,
		Region:   sess.Locale.Region,
	})
	if err != nil {
		return fmt.Errorf("apply locale: %w", err)
	}
	return nil
}

// apiHeaders layers the XHR headers over the fingerprint. The cookie header is read from the jar per call.
func (c *Client) apiHeaders(sess *session.Session) http.Header {
	h := c.cfg.Fingerprint.HTTPHeader()
	// The collector only decodes gzip; let the transport negotiate encoding.
	h.Del("Accept-Encoding")

	root := rootURL(sess)
	h.Set("Accept", "*/*")
	h.Set("Content-Type", "application/json")
	h.Set("Origin", root)
	h.Set("Referer", root+"/")
	h.Set("X-Csrf-Token", sess.CSRFToken())
	h.Set("X-Page-Guid", sess.PageGUID())
	h.Set("X-Detected-Locale", c.cfg.LocaleHeader())
	h.Set("X-Etsy-Protection", "1")
	h.Set("X-Requested-With", "XMLHttpRequest")
	h.Set("Sec-Fetch-Dest", "empty")
	h.Set("Sec-Fetch-Mode", "cors")
	h.Del("Sec-Fetch-User")
	h.Del("Upgrade-Insecure-Requests")
	if cookie := sess.CookieHeader(); cookie != "" {
		h.Set("Cookie", cookie)
	}
	return h
}

// postJSON sends payload to path and keeps any cookies the origin rotates.
func (c *Client) postJSON(ctx context.Context, sess *session.Session, phase, path string, payload any) (*colly.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	resp, err := c.http.do(ctx, phase, http.MethodPost, rootURL(sess)+path, body, c.apiHeaders(sess))
	if resp != nil && resp.Headers != nil {
		sess.StoreCookies(*resp.Headers)
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}
