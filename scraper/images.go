package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/SPll31/etsyparser/config"
	"github.com/SPll31/etsyparser/models"
)

var errEmptyImage = errors.New("empty image body")

// ImageResolver picks a listing's image variant and downloads it with bounded retry.
type ImageResolver struct {
	http        *httpClient
	header      http.Header
	targetWidth string
	retry       retryPolicy
	limiter     *rate.Limiter
	cache       *lru.Cache[string, []byte]
}

// NewImageResolver builds a resolver from cfg. A zero cache size disables caching.
func NewImageResolver(cfg *config.Config, metrics *Metrics, stats *runStats) (*ImageResolver, error) {
	hc, err := newHTTPClient(cfg.Timeout, cfg.ImageConcurrency, metrics, stats)
	if err != nil {
		return nil, err
	}

	limit := rate.Inf
	burst := 1
	if cfg.ImageRPS > 0 {
		limit = rate.Limit(cfg.ImageRPS)
		burst = max(1, int(cfg.ImageRPS))
	}

	var cache *lru.Cache[string, []byte]
	if cfg.ImageCacheSize > 0 {
		cache, err = lru.New[string, []byte](cfg.ImageCacheSize)
		if err != nil {
			return nil, fmt.Errorf("create image cache: %w", err)
		}
	}

	header := cfg.Fingerprint.HTTPHeader()
	header.Del("Accept-Encoding")
	header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")
	header.Set("Sec-Fetch-Dest", "image")
	header.Set("Sec-Fetch-Mode", "no-cors")
	header.Set("Sec-Fetch-Site", "cross-site")
	header.Del("Sec-Fetch-User")
	header.Del("Upgrade-Insecure-Requests")

	return &ImageResolver{
		http:        hc,
		header:      header,
		targetWidth: cfg.TargetWidth,
		retry: retryPolicy{
			attempts:   cfg.ImageRetries,
			backoff:    cfg.ImageRetryBackoff,
			backoffMax: cfg.ImageRetryBackoffMax,
			metrics:    metrics,
			stats:      stats,
		},
		limiter: rate.NewLimiter(limit, burst),
		cache:   cache,
	}, nil
}

// SelectVariant returns the URL for targetWidth, else the widest numeric width, else the first entry.
// ok is false only for an empty descriptor.
func SelectVariant(desc models.ImageDescriptor, targetWidth string) (string, bool) {
	if desc.Empty() {
		return "", false
	}
	if url, ok := desc.Lookup(targetWidth); ok {
		return url, true
	}
	if url, ok := desc.Widest(); ok {
		return url, true
	}
	return desc.Variants[0].URL, true
}

// Resolve downloads the selected variant of desc. It returns the URL it chose even on failure.
// Exhausted or permanent failures are returned as *ImageFetchFailed.
func (r *ImageResolver) Resolve(ctx context.Context, listingID string, desc models.ImageDescriptor) ([]byte, string, error) {
	url, ok := SelectVariant(desc, r.targetWidth)
	if !ok {
		return nil, "", fmt.Errorf("listing %s has no image variants", listingID)
	}
	if _, exact := desc.Lookup(r.targetWidth); !exact {
		slog.Debug("target width unavailable",
			slog.String("listing_id", listingID),
			slog.String("target", r.targetWidth),
			slog.Any("widths", desc.Widths()),
		)
	}
	if r.cache != nil {
		if data, hit := r.cache.Get(url); hit {
			return data, url, nil
		}
	}

	var data []byte
	attempts, err := r.retry.run(ctx, func(attempt int) error {
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
		resp, err := r.http.do(ctx, phaseImage, http.MethodGet, url, nil, r.header)
		if err != nil {
			slog.Debug("image attempt failed",
				slog.String("listing_id", listingID),
				slog.Int("attempt", attempt),
				slog.Any("error", err),
			)
			return err
		}
		if len(resp.Body) == 0 {
			return errEmptyImage
		}
		data = resp.Body
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, url, ctxErr
		}
		return nil, url, &ImageFetchFailed{ListingID: listingID, URL: url, Attempts: attempts, Err: err}
	}

	if r.cache != nil {
		r.cache.Add(url, data)
	}
	return data, url, nil
}
