package session

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/SPll31/etsyparser/config"
)

// ChromeBrowser drives a single Chrome tab through chromedp.
type ChromeBrowser struct {
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc

	headers network.Headers
	settle  time.Duration
	timeout time.Duration
}

// NewChromeBrowser starts Chrome with the fingerprint's user agent and headers.
func NewChromeBrowser(fp config.Fingerprint, headless bool, settle, timeout time.Duration) (*ChromeBrowser, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(fp.UserAgent),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	// Start the browser on the long-lived tab context.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	headers := make(network.Headers)
	for name, values := range fp.HTTPHeader() {
		if name == "User-Agent" || len(values) == 0 {
			continue
		}
		headers[name] = values[0]
	}

	return &ChromeBrowser{
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		headers:     headers,
		settle:      settle,
		timeout:     timeout,
	}, nil
}

// Navigate loads url in the tab, waits for the body and the settle delay, and returns the page HTML.
func (b *ChromeBrowser) Navigate(ctx context.Context, url string) (string, error) {
	runCtx, cancel := b.callContext(ctx)
	defer cancel()

	var html string
	err := chromedp.Run(runCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(b.headers),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(b.settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("navigate %s: %w", url, err)
	}
	return html, nil
}

// Cookies reads the tab's cookies for url.
func (b *ChromeBrowser) Cookies(ctx context.Context, url string) ([]*http.Cookie, error) {
	runCtx, cancel := b.callContext(ctx)
	defer cancel()

	var raw []*network.Cookie
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = network.GetCookies().WithURLs([]string{url}).Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}

	cookies := make([]*http.Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   c.Domain,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		})
	}
	return cookies, nil
}

// Close shuts the tab and the Chrome process.
func (b *ChromeBrowser) Close() error {
	b.tabCancel()
	b.allocCancel()
	return nil
}

// callContext derives a timed context from the tab that also ends when ctx does.
func (b *ChromeBrowser) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithTimeout(b.tabCtx, b.timeout)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}
