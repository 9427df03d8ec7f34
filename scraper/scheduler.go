package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/SPll31/etsyparser/session"
)

// Scheduler issues search requests in fixed-size concurrent chunks with a cooldown between chunks.
type Scheduler struct {
	client           *Client
	chunkSize        int
	cooldown         time.Duration
	detectedLanguage string
	metrics          *Metrics
	stats            *runStats

	// dispatched is set once the first chunk has gone out; every later chunk waits the cooldown.
	dispatched atomic.Bool
}

// NewScheduler builds a scheduler over client.
func NewScheduler(client *Client, metrics *Metrics, stats *runStats) *Scheduler {
	cfg := client.cfg
	return &Scheduler{
		client:           client,
		chunkSize:        cfg.ChunkSize,
		cooldown:         cfg.ChunkCooldown,
		detectedLanguage: cfg.Fingerprint.DetectedLanguage,
		metrics:          metrics,
		stats:            stats,
	}
}

// FetchPage returns the HTML fragment for one keyword page.
// Transport errors and malformed responses are returned as *PageFetchFailed.
func (s *Scheduler) FetchPage(ctx context.Context, sess *session.Session, keyword string, page int) (string, error) {
	fail := func(err error) (string, error) {
		if ctx.Err() == nil {
			s.stats.recordFailedPage(fmt.Sprintf("%s#%d", keyword, page))
		}
		return "", &PageFetchFailed{Keyword: keyword, Page: page, Err: err}
	}

	payload := newSearchPayload(sess, s.detectedLanguage, keyword, page)
	resp, err := s.client.postJSON(ctx, sess, phaseSearch, searchPath, payload)
	if err != nil {
		return fail(err)
	}

	var decoded searchResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		s.stats.recordError("schema")
		s.metrics.IncError("schema")
		return fail(fmt.Errorf("%w: %v", ErrSchemaMismatch, err))
	}
	if decoded.Output == nil || decoded.Output.AsyncSearchResults == nil {
		s.stats.recordError("schema")
		s.metrics.IncError("schema")
		return fail(fmt.Errorf("%w: missing output.async_search_results", ErrSchemaMismatch))
	}

	atomic.AddInt64(&s.stats.pages, 1)
	s.metrics.IncPages()
	return *decoded.Output.AsyncSearchResults, nil
}

// ForEachPage fetches pages 1..maxPage and calls fn for each in ascending order.
// Each chunk is fetched concurrently; fn runs after its chunk completes. Every chunk except
// the scheduler's first waits the cooldown, so consecutive keywords are paced too. The
// context is checked before every chunk and the cooldown is interruptible.
func (s *Scheduler) ForEachPage(ctx context.Context, sess *session.Session, keyword string, maxPage int, fn func(page int, html string) error) error {
	chunk := s.chunkSize
	if chunk <= 0 {
		chunk = 1
	}

	for start := 1; start <= maxPage; start += chunk {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.dispatched.Swap(true) && s.cooldown > 0 {
			if err := sleepCtx(ctx, s.cooldown); err != nil {
				return err
			}
		}

		end := min(start+chunk-1, maxPage)
		slog.Debug("dispatching chunk",
			slog.String("keyword", keyword),
			slog.Int("from", start),
			slog.Int("to", end),
		)

		pages := make([]string, end-start+1)
		g, gctx := errgroup.WithContext(ctx)
		for page := start; page <= end; page++ {
			g.Go(func() error {
				html, err := s.FetchPage(gctx, sess, keyword, page)
				if err != nil {
					return err
				}
				pages[page-start] = html
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		for i, html := range pages {
			if err := fn(start+i, html); err != nil {
				return err
			}
		}
	}
	return nil
}

// FetchKeyword returns the fragments for pages 1..maxPage in page order.
func (s *Scheduler) FetchKeyword(ctx context.Context, sess *session.Session, keyword string, maxPage int) ([]string, error) {
	out := make([]string, 0, maxPage)
	err := s.ForEachPage(ctx, sess, keyword, maxPage, func(_ int, html string) error {
		out = append(out, html)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
