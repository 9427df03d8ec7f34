package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvString returns the trimmed value of key and whether it was set to something non-empty.
func EnvString(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return "", false
	}
	return v, true
}

// EnvInt parses key as an integer.
func EnvInt(key string) (int, bool, error) {
	v, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return n, true, nil
}

// EnvBool parses key with strconv.ParseBool.
func EnvBool(key string) (bool, bool, error) {
	v, ok := EnvString(key)
	if !ok {
		return false, false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false, fmt.Errorf("%s: %w", key, err)
	}
	return b, true, nil
}

// EnvDuration accepts Go duration syntax ("1500ms") or a bare number of seconds ("2").
func EnvDuration(key string) (time.Duration, bool, error) {
	v, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), true, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return d, true, nil
}

// ApplyEnv overlays ETSY_* environment variables onto c.
func (c *Config) ApplyEnv() error {
	strs := map[string]*string{
		"ETSY_BASE_URL":         &c.BaseURL,
		"ETSY_SELLER":           &c.SellerName,
		"ETSY_LANGUAGE":         &c.Language,
		"ETSY_CURRENCY":         &c.Currency,
		"ETSY_REGION":           &c.Region,
		"ETSY_TARGET_WIDTH":     &c.TargetWidth,
		"ETSY_KEYWORDS":         &c.KeywordFile,
		"ETSY_FINGERPRINT_FILE": &c.FingerprintFile,
		"ETSY_OUTPUT":           &c.OutputFile,
		"ETSY_FORMAT":           &c.OutputFormat,
		"ETSY_METRICS_ADDR":     &c.MetricsAddr,
	}
	for key, dst := range strs {
		if v, ok := EnvString(key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"ETSY_MAX_PAGES":         &c.MaxPages,
		"ETSY_CHUNK_SIZE":        &c.ChunkSize,
		"ETSY_IMAGE_RETRIES":     &c.ImageRetries,
		"ETSY_IMAGE_CONCURRENCY": &c.ImageConcurrency,
		"ETSY_IMAGE_CACHE":       &c.ImageCacheSize,
		"ETSY_THUMBNAIL":         &c.ThumbnailSize,
	}
	for key, dst := range ints {
		v, ok, err := EnvInt(key)
		if err != nil {
			return err
		}
		if ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"ETSY_COOLDOWN":    &c.ChunkCooldown,
		"ETSY_TIMEOUT":     &c.Timeout,
		"ETSY_PAGE_SETTLE": &c.PageSettle,
	}
	for key, dst := range durations {
		v, ok, err := EnvDuration(key)
		if err != nil {
			return err
		}
		if ok {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"ETSY_SKIP_MISSING_IMAGES": &c.SkipMissingImages,
		"ETSY_CONTINUE_ON_ERROR":   &c.ContinueOnKeywordError,
		"ETSY_HEADLESS":            &c.Headless,
	}
	for key, dst := range bools {
		v, ok, err := EnvBool(key)
		if err != nil {
			return err
		}
		if ok {
			*dst = v
		}
	}

	if v, ok := EnvString("ETSY_IMAGE_RPS"); ok {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("ETSY_IMAGE_RPS: %w", err)
		}
		c.ImageRPS = rps
	}
	return nil
}
