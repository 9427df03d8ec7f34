package scraper

import (
	"context"
	"log/slog"
	"time"

	"github.com/SPll31/etsyparser/config"
	"github.com/SPll31/etsyparser/parser"
	"github.com/SPll31/etsyparser/session"
)

// BrowserFactory opens the browsing context used during bootstrap.
type BrowserFactory func(ctx context.Context, cfg *config.Config) (session.Browser, error)

// ChromeFactory launches Chrome through chromedp.
func ChromeFactory(_ context.Context, cfg *config.Config) (session.Browser, error) {
	b, err := session.NewChromeBrowser(cfg.Fingerprint, cfg.Headless, cfg.PageSettle, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Bootstrapper establishes an authenticated session.
type Bootstrapper struct {
	cfg        *config.Config
	client     *Client
	newBrowser BrowserFactory
	metrics    *Metrics
}

// NewBootstrapper returns a bootstrapper; a nil factory means Chrome.
func NewBootstrapper(cfg *config.Config, client *Client, factory BrowserFactory, metrics *Metrics) *Bootstrapper {
	if factory == nil {
		factory = ChromeFactory
	}
	return &Bootstrapper{
		cfg:        cfg,
		client:     client,
		newBrowser: factory,
		metrics:    metrics,
	}
}

// Bootstrap opens the browser, loads the root twice (the first load clears the challenge and
// seeds cookies), reads the tokens, copies the cookies and applies the locale preference.
// On any failure the browser is released and a *BootstrapError is returned.
func (b *Bootstrapper) Bootstrap(ctx context.Context) (*session.Session, error) {
	browser, err := b.newBrowser(ctx, b.cfg)
	if err != nil {
		return nil, &BootstrapError{Step: "browser", Err: err}
	}

	sess, err := session.New(b.cfg.BaseURL, session.Locale{
		Language: b.cfg.Language,
		Currency: b.cfg.Currency,
		Region:   b.cfg.Region,
	}, browser)
	if err != nil {
		browser.Close()
		return nil, &BootstrapError{Step: "session", Err: err}
	}

	fail := func(step string, err error) (*session.Session, error) {
		if cerr := sess.Close(); cerr != nil {
			slog.Warn("release browser", slog.Any("error", cerr))
		}
		return nil, &BootstrapError{Step: step, Err: err}
	}

	root := rootURL(sess) + "/"
	if _, err := b.navigate(ctx, browser, root); err != nil {
		return fail("challenge", err)
	}
	html, err := b.navigate(ctx, browser, root)
	if err != nil {
		return fail("navigate", err)
	}

	csrf, guid, err := parser.ExtractTokens(html)
	if err != nil {
		return fail("tokens", err)
	}
	sess.SetTokens(csrf, guid)

	cookies, err := browser.Cookies(ctx, root)
	if err != nil {
		return fail("cookies", err)
	}
	sess.SetCookies(cookies)
	slog.Debug("session tokens acquired", slog.Int("cookies", len(cookies)))

	if err := b.client.ApplyLocale(ctx, sess); err != nil {
		return fail("locale", err)
	}

	slog.Info("session ready",
		slog.String("locale", b.cfg.LocaleHeader()),
		slog.Int("cookies", len(sess.Cookies())),
	)
	return sess, nil
}

func (b *Bootstrapper) navigate(ctx context.Context, browser session.Browser, target string) (string, error) {
	b.metrics.IncRequest(phaseBootstrap)
	start := time.Now()
	html, err := browser.Navigate(ctx, target)
	b.metrics.ObserveDuration(phaseBootstrap, time.Since(start))
	return html, err
}
