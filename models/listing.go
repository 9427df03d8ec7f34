// Package models defines data structures for the crawler.
package models

import (
	"sort"
	"strconv"
	"time"
)

// Image status values recorded on a ListingRecord.
const (
	ImageOK      = "ok"
	ImageMissing = "missing"
	ImageFailed  = "failed"
)

// ImageVariant is one srcset candidate. Width is the descriptor token with its
// unit stripped ("300w" -> "300"); density descriptors such as "2x" are kept verbatim.
type ImageVariant struct {
	Width string `json:"width"`
	URL   string `json:"url"`
}

// ImageDescriptor is a listing's responsive image set in the order the page lists it.
type ImageDescriptor struct {
	Variants []ImageVariant `json:"variants,omitempty"`
}

// Empty reports whether the descriptor carries no candidates.
func (d ImageDescriptor) Empty() bool {
	return len(d.Variants) == 0
}

// Lookup returns the URL keyed by width.
func (d ImageDescriptor) Lookup(width string) (string, bool) {
	for _, v := range d.Variants {
		if v.Width == width {
			return v.URL, true
		}
	}
	return "", false
}

// Widest returns the URL with the largest numeric width, if any width is numeric.
func (d ImageDescriptor) Widest() (string, bool) {
	best, bestURL := -1, ""
	for _, v := range d.Variants {
		n, err := strconv.Atoi(v.Width)
		if err != nil {
			continue
		}
		if n > best {
			best, bestURL = n, v.URL
		}
	}
	return bestURL, best >= 0
}

// Widths returns the numeric widths in ascending order.
func (d ImageDescriptor) Widths() []int {
	out := make([]int, 0, len(d.Variants))
	for _, v := range d.Variants {
		if n, err := strconv.Atoi(v.Width); err == nil {
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out
}

// ListingStub is a listing as it appears on one search results page.
type ListingStub struct {
	ListingID string `json:"listing_id"`
	Page      int    `json:"page"`
	// Position is the 0-based index among all listing anchors on the page, before seller filtering.
	Position int `json:"position"`
	// HasImage is false when the anchor has no image element at all.
	HasImage bool            `json:"has_image"`
	Image    ImageDescriptor `json:"image"`
}

// Row is the visual row the listing is rendered on; the site lays out four listings per row.
func (s ListingStub) Row() int {
	return s.Position/4 + 1
}

// ListingRecord is a stub with its resolved image. It is not modified after creation.
type ListingRecord struct {
	ListingStub
	Index       string `json:"index"`
	ImageURL    string `json:"image_url,omitempty"`
	ImageStatus string `json:"image_status"`
	Image       []byte `json:"-"`
}

// CrawlResult maps each keyword to its records, page ascending then position ascending.
type CrawlResult struct {
	// Keywords holds the keys of Records in scan order.
	Keywords []string
	Records  map[string][]ListingRecord
	// Failures holds keywords that were abandoned when the crawl continues past errors.
	Failures map[string]error
}

// NewCrawlResult returns an empty result.
func NewCrawlResult() *CrawlResult {
	return &CrawlResult{
		Records:  make(map[string][]ListingRecord),
		Failures: make(map[string]error),
	}
}

// Add appends records for keyword, registering the keyword on first sight.
func (r *CrawlResult) Add(keyword string, records []ListingRecord) {
	if _, ok := r.Records[keyword]; !ok {
		r.Keywords = append(r.Keywords, keyword)
		r.Records[keyword] = nil
	}
	r.Records[keyword] = append(r.Records[keyword], records...)
}

// Total returns the number of records across all keywords.
func (r *CrawlResult) Total() int {
	n := 0
	for _, recs := range r.Records {
		n += len(recs)
	}
	return n
}

// ScraperResult holds the overall result of a crawl run
type ScraperResult struct {
	Result        *CrawlResult
	StartTime     time.Time
	EndTime       time.Time
	TotalCount    int
	MissingImages int
	FailedImages  int
	ErrorCount    int
	FailedPages   []string
	ErrorsByType  map[string]int
	RetryCount    int
	RequestCount  int
	PageCount     int
}
