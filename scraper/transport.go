package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"
)

const (
	ctxPhase    = "phase"
	ctxStart    = "start"
	ctxResponse = "response"
)

// runStats accumulates counters over one run, shared by every client.
type runStats struct {
	requests int64
	pages    int64
	errors   int64
	retries  int64

	mu           sync.Mutex
	errorsByType map[string]int
	failedPages  []string
}

func newRunStats() *runStats {
	return &runStats{errorsByType: make(map[string]int)}
}

func (rs *runStats) recordError(category string) {
	atomic.AddInt64(&rs.errors, 1)
	rs.mu.Lock()
	rs.errorsByType[category]++
	rs.mu.Unlock()
}

func (rs *runStats) recordFailedPage(label string) {
	rs.mu.Lock()
	rs.failedPages = append(rs.failedPages, label)
	rs.mu.Unlock()
}

func (rs *runStats) snapshotFailedPages() []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make([]string, len(rs.failedPages))
	copy(out, rs.failedPages)
	return out
}

func (rs *runStats) snapshotErrors() map[string]int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make(map[string]int, len(rs.errorsByType))
	for k, v := range rs.errorsByType {
		out[k] = v
	}
	return out
}

// httpClient issues blocking requests through a colly collector and hands back the response.
type httpClient struct {
	collector *colly.Collector
	metrics   *Metrics
	stats     *runStats
}

// newHTTPClient builds a synchronous collector. parallelism <= 0 leaves requests unthrottled.
func newHTTPClient(timeout time.Duration, parallelism int, metrics *Metrics, stats *runStats) (*httpClient, error) {
	collector := colly.NewCollector(colly.AllowURLRevisit())
	collector.SetRequestTimeout(timeout)
	collector.IgnoreRobotsTxt = true
	// Cookies come from the session on every request.
	collector.DisableCookies()
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if parallelism > 0 {
		if err := collector.Limit(&colly.LimitRule{
			DomainGlob:  "*",
			Parallelism: parallelism,
		}); err != nil {
			return nil, fmt.Errorf("configure rate limits: %w", err)
		}
	}

	hc := &httpClient{
		collector: collector,
		metrics:   metrics,
		stats:     stats,
	}
	hc.configureHandlers()
	return hc, nil
}

// useTransport swaps the round tripper, e.g. for a mock origin.
func (hc *httpClient) useTransport(rt http.RoundTripper) {
	hc.collector.WithTransport(rt)
}

func (hc *httpClient) configureHandlers() {
	hc.collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put(ctxStart, time.Now())
		current := atomic.AddInt64(&hc.stats.requests, 1)
		hc.metrics.IncRequest(r.Ctx.Get(ctxPhase))
		if current%50 == 0 {
			slog.Debug("request progress",
				slog.Int64("requests", current),
				slog.Int64("pages", atomic.LoadInt64(&hc.stats.pages)),
				slog.String("url", r.URL.String()),
			)
		}
	})

	hc.collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(ctxResponse, r)
		hc.observe(r)
	})

	hc.collector.OnError(func(r *colly.Response, err error) {
		if r == nil {
			return
		}
		r.Ctx.Put(ctxResponse, r)
		hc.observe(r)
	})
}

func (hc *httpClient) observe(r *colly.Response) {
	if start, ok := r.Ctx.GetAny(ctxStart).(time.Time); ok {
		hc.metrics.ObserveDuration(r.Ctx.Get(ctxPhase), time.Since(start))
	}
}

// do sends one request and returns the response or a classified error.
// The response is returned alongside status errors so callers can still read its headers.
func (hc *httpClient) do(ctx context.Context, phase, method, target string, body []byte, hdr http.Header) (*colly.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	rctx := colly.NewContext()
	rctx.Put(ctxPhase, phase)

	err := hc.collector.Request(method, target, reader, rctx, hdr.Clone())
	resp, _ := rctx.GetAny(ctxResponse).(*colly.Response)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		classified := classifyError(err, status)
		category := errorTypeLabel(classified)
		hc.stats.recordError(category)
		hc.metrics.IncError(category)
		slog.Debug("request error",
			slog.String("phase", phase),
			slog.String("url", target),
			slog.Int("status", status),
			slog.String("category", category),
			slog.Any("error", err),
		)
		return resp, classified
	}
	if resp == nil {
		return nil, fmt.Errorf("%s %s: no response", method, target)
	}
	return resp, nil
}
