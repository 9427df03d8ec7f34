package config

import (
	"fmt"
	"net/url"
	"regexp"
	"time"
)

var (
	currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)
	regionPattern   = regexp.MustCompile(`^[A-Z]{2}$`)
)

// Config holds crawler configuration.
type Config struct {
	BaseURL    string
	SellerName string
	Language   string
	Currency   string
	Region     string

	// TargetWidth is the srcset width token preferred for listing images.
	TargetWidth string
	MaxPages    int
	KeywordFile string

	ChunkSize     int
	ChunkCooldown time.Duration
	Timeout       time.Duration
	PageSettle    time.Duration
	Headless      bool

	ImageRetries         int
	ImageRetryBackoff    time.Duration
	ImageRetryBackoffMax time.Duration
	// ImageConcurrency caps per-page image fetches. Zero means unbounded.
	ImageConcurrency int
	// ImageRPS caps image requests per second. Zero means unlimited.
	ImageRPS       float64
	ImageCacheSize int

	SkipMissingImages      bool
	ContinueOnKeywordError bool

	FingerprintFile string
	Fingerprint     Fingerprint

	OutputFile    string
	OutputFormat  string // xlsx, csv, json, dual or all
	ThumbnailSize int
	MetricsAddr   string
	Verbose       bool
}

// DefaultConfig returns the production defaults for the IDlingerieUK storefront.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:              "https://www.etsy.com",
		SellerName:           "IDlingerieUK",
		Language:             "en-GB",
		Currency:             "GBP",
		Region:               "GB",
		TargetWidth:          "794",
		MaxPages:             3,
		KeywordFile:          "keywords.txt",
		ChunkSize:            3,
		ChunkCooldown:        0,
		Timeout:              30 * time.Second,
		PageSettle:           2 * time.Second,
		Headless:             true,
		ImageRetries:         10,
		ImageRetryBackoff:    200 * time.Millisecond,
		ImageRetryBackoffMax: 2 * time.Second,
		ImageConcurrency:     0,
		ImageRPS:             0,
		ImageCacheSize:       512,
		Fingerprint:          DefaultFingerprint(),
		OutputFile:           "output/listings.xlsx",
		OutputFormat:         "xlsx",
		ThumbnailSize:        100,
		MetricsAddr:          "",
		Verbose:              false,
	}
}

// LocaleHeader renders the locale triple the way the origin expects it in X-Detected-Locale.
func (c *Config) LocaleHeader() string {
	return c.Currency + "|" + c.Language + "|" + c.Region
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.SellerName == "" {
		return fmt.Errorf("seller name cannot be empty")
	}
	if c.Language == "" {
		return fmt.Errorf("language cannot be empty")
	}
	if !currencyPattern.MatchString(c.Currency) {
		return fmt.Errorf("currency must be a three letter code, got %q", c.Currency)
	}
	if !regionPattern.MatchString(c.Region) {
		return fmt.Errorf("region must be a two letter code, got %q", c.Region)
	}
	if c.TargetWidth == "" {
		return fmt.Errorf("target width cannot be empty")
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.KeywordFile == "" {
		return fmt.Errorf("keyword file cannot be empty")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive")
	}
	if c.ChunkCooldown < 0 {
		return fmt.Errorf("chunk cooldown cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.PageSettle < 0 {
		return fmt.Errorf("page settle delay cannot be negative")
	}
	if c.ImageRetries <= 0 {
		return fmt.Errorf("image retries must be positive")
	}
	if c.ImageRetryBackoff < 0 {
		return fmt.Errorf("image retry backoff cannot be negative")
	}
	if c.ImageRetryBackoffMax < 0 {
		return fmt.Errorf("image retry backoff max cannot be negative")
	}
	if c.ImageRetryBackoffMax > 0 && c.ImageRetryBackoff > c.ImageRetryBackoffMax {
		return fmt.Errorf("image retry backoff (%s) cannot exceed image retry backoff max (%s)", c.ImageRetryBackoff, c.ImageRetryBackoffMax)
	}
	if c.ImageConcurrency < 0 {
		return fmt.Errorf("image concurrency cannot be negative")
	}
	if c.ImageRPS < 0 {
		return fmt.Errorf("image rps cannot be negative")
	}
	if c.ImageCacheSize < 0 {
		return fmt.Errorf("image cache size cannot be negative")
	}
	if err := c.Fingerprint.Validate(); err != nil {
		return fmt.Errorf("fingerprint: %w", err)
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	switch c.OutputFormat {
	case "xlsx", "csv", "json", "dual", "all":
	default:
		return fmt.Errorf("output format must be xlsx, csv, json, dual, or all")
	}
	if c.ThumbnailSize <= 0 {
		return fmt.Errorf("thumbnail size must be positive")
	}

	return nil
}
