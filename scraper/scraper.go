package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/SPll31/etsyparser/config"
	"github.com/SPll31/etsyparser/models"
	"github.com/SPll31/etsyparser/parser"
	"github.com/SPll31/etsyparser/pipeline"
	"github.com/SPll31/etsyparser/session"
)

// Scraper drives bootstrap, pagination, extraction and image resolution across keywords.
type Scraper struct {
	cfg          *config.Config
	client       *Client
	bootstrapper *Bootstrapper
	scheduler    *Scheduler
	images       *ImageResolver
	Metrics      *Metrics

	stats *runStats
}

// NewScraper builds a scraper configured from cfg. A nil factory launches Chrome.
func NewScraper(cfg *config.Config, factory BrowserFactory) (*Scraper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	metrics := NewMetrics()
	stats := newRunStats()

	client, err := NewClient(cfg, metrics, stats)
	if err != nil {
		return nil, err
	}
	images, err := NewImageResolver(cfg, metrics, stats)
	if err != nil {
		return nil, err
	}

	return &Scraper{
		cfg:          cfg,
		client:       client,
		bootstrapper: NewBootstrapper(cfg, client, factory, metrics),
		scheduler:    NewScheduler(client, metrics, stats),
		images:       images,
		Metrics:      metrics,
		stats:        stats,
	}, nil
}

// useTransport routes every request through rt.
func (s *Scraper) useTransport(rt http.RoundTripper) {
	s.client.http.useTransport(rt)
	s.images.http.useTransport(rt)
}

// Bootstrap establishes a new session.
func (s *Scraper) Bootstrap(ctx context.Context) (*session.Session, error) {
	return s.bootstrapper.Bootstrap(ctx)
}

// Crawl collects records for every keyword in order. Repeated keywords are crawled once.
// A keyword failure aborts the crawl unless ContinueOnKeywordError is set, in which case it is
// recorded in the result's Failures. The partial result is returned alongside any error.
func (s *Scraper) Crawl(ctx context.Context, sess *session.Session, keywords []string) (*models.CrawlResult, error) {
	return s.crawl(ctx, sess, keywords, nil)
}

func (s *Scraper) crawl(ctx context.Context, sess *session.Session, keywords []string, sink func(string, []models.ListingRecord) error) (*models.CrawlResult, error) {
	result := models.NewCrawlResult()
	for _, keyword := range keywords {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if _, done := result.Records[keyword]; done {
			slog.Debug("skipping repeated keyword", slog.String("keyword", keyword))
			continue
		}
		if _, failed := result.Failures[keyword]; failed {
			continue
		}

		start := time.Now()
		records, err := s.CrawlKeyword(ctx, sess, keyword)
		if err != nil {
			if ctx.Err() == nil && s.cfg.ContinueOnKeywordError {
				slog.Error("keyword failed, continuing",
					slog.String("keyword", keyword),
					slog.Any("error", err),
				)
				result.Failures[keyword] = err
				continue
			}
			return result, err
		}

		result.Add(keyword, records)
		slog.Info("keyword complete",
			slog.String("keyword", keyword),
			slog.Int("records", len(records)),
			slog.Duration("elapsed", time.Since(start)),
		)
		if sink != nil {
			if err := sink(keyword, records); err != nil {
				return result, err
			}
		}
	}
	return result, nil
}

// CrawlKeyword returns the keyword's records ordered by page, then position.
func (s *Scraper) CrawlKeyword(ctx context.Context, sess *session.Session, keyword string) ([]models.ListingRecord, error) {
	var records []models.ListingRecord
	err := s.scheduler.ForEachPage(ctx, sess, keyword, s.cfg.MaxPages, func(page int, html string) error {
		stubs, err := parser.Extract(html, s.cfg.SellerName, page)
		if err != nil {
			return &PageFetchFailed{Keyword: keyword, Page: page, Err: err}
		}
		resolved, err := s.resolvePage(ctx, stubs)
		if err != nil {
			return err
		}
		slog.Debug("page parsed",
			slog.String("keyword", keyword),
			slog.Int("page", page),
			slog.Int("listings", len(stubs)),
		)
		records = append(records, resolved...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// resolvePage fetches every stub's image concurrently and returns records in stub order.
func (s *Scraper) resolvePage(ctx context.Context, stubs []models.ListingStub) ([]models.ListingRecord, error) {
	out := make([]models.ListingRecord, len(stubs))
	keep := make([]bool, len(stubs))

	g, gctx := errgroup.WithContext(ctx)
	if s.cfg.ImageConcurrency > 0 {
		g.SetLimit(s.cfg.ImageConcurrency)
	}

	for i, stub := range stubs {
		rec := models.ListingRecord{
			ListingStub: stub,
			Index:       parser.CompositeIndex(stub.Page, stub.Row()),
		}

		if stub.Image.Empty() {
			slog.Warn("listing has no image",
				slog.String("listing_id", stub.ListingID),
				slog.String("index", rec.Index),
				slog.Bool("skipped", s.cfg.SkipMissingImages),
			)
			if s.cfg.SkipMissingImages {
				continue
			}
			rec.ImageStatus = models.ImageMissing
			s.Metrics.IncListing(rec.ImageStatus)
			out[i], keep[i] = rec, true
			continue
		}

		g.Go(func() error {
			data, url, err := s.images.Resolve(gctx, stub.ListingID, stub.Image)
			rec.ImageURL = url
			if err != nil {
				var failed *ImageFetchFailed
				if !errors.As(err, &failed) {
					return err
				}
				slog.Warn("image fetch failed",
					slog.String("listing_id", stub.ListingID),
					slog.String("url", url),
					slog.Int("attempts", failed.Attempts),
					slog.Any("error", failed.Err),
				)
				rec.ImageStatus = models.ImageFailed
			} else {
				rec.Image = data
				rec.ImageStatus = models.ImageOK
			}
			s.Metrics.IncListing(rec.ImageStatus)
			out[i], keep[i] = rec, true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	records := make([]models.ListingRecord, 0, len(out))
	for i, rec := range out {
		if keep[i] {
			records = append(records, rec)
		}
	}
	return records, nil
}

// Run bootstraps a session, crawls every keyword streaming each finished keyword into p,
// and releases the session. The returned result is populated even when err is non-nil.
func (s *Scraper) Run(ctx context.Context, keywords []string, p *pipeline.Pipeline) (*models.ScraperResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	result := &models.ScraperResult{StartTime: start}

	sess, err := s.Bootstrap(ctx)
	if err != nil {
		s.fillResult(result, nil)
		return result, err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			slog.Error("release session", slog.Any("error", err))
		}
	}()

	var sink func(string, []models.ListingRecord) error
	if p != nil {
		sink = func(keyword string, records []models.ListingRecord) error {
			if err := p.Process(keyword, records); err != nil && !errors.Is(err, pipeline.ErrPipelineClosed) {
				return fmt.Errorf("pipeline: %w", err)
			}
			return nil
		}
	}

	crawled, err := s.crawl(ctx, sess, keywords, sink)
	s.fillResult(result, crawled)
	return result, err
}

func (s *Scraper) fillResult(result *models.ScraperResult, crawled *models.CrawlResult) {
	result.Result = crawled
	result.EndTime = time.Now()
	result.ErrorCount = int(atomic.LoadInt64(&s.stats.errors))
	result.FailedPages = s.stats.snapshotFailedPages()
	result.ErrorsByType = s.stats.snapshotErrors()
	result.RetryCount = int(atomic.LoadInt64(&s.stats.retries))
	result.RequestCount = int(atomic.LoadInt64(&s.stats.requests))
	result.PageCount = int(atomic.LoadInt64(&s.stats.pages))
	if crawled == nil {
		return
	}
	result.TotalCount = crawled.Total()
	for _, records := range crawled.Records {
		for _, rec := range records {
			switch rec.ImageStatus {
			case models.ImageMissing:
				result.MissingImages++
			case models.ImageFailed:
				result.FailedImages++
			}
		}
	}
}
