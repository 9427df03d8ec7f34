package config

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
)

// Fingerprint is the device/header profile presented to the origin. The values are mimicry
// data only; swap the whole table with LoadFingerprint when the origin starts rejecting it.
type Fingerprint struct {
	UserAgent string            `json:"user_agent"`
	Headers   map[string]string `json:"headers"`
	// DetectedLanguage is sent as the search payload's detected_locale language.
	// Empty means "same as the configured language".
	DetectedLanguage string `json:"detected_language,omitempty"`
}

// DefaultFingerprint is an Edge 131 desktop profile on Windows.
func DefaultFingerprint() Fingerprint {
	return Fingerprint{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36 Edg/131.0.0.0",
		Headers: map[string]string{
			"Accept":                      "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7",
			"Accept-Encoding":             "gzip, deflate, br, zstd",
			"Accept-Language":             "en-GB,en;q=0.9",
			"Cache-Control":               "max-age=0",
			"Downlink":                    "8.25",
			"Dpr":                         "1.25",
			"Ect":                         "4g",
			"Priority":                    "u=0, i",
			"Rtt":                         "100",
			"Sec-Ch-Dpr":                  "1.25",
			"Sec-Ch-Ua":                   `"Microsoft Edge";v="131", "Chromium";v="131", "Not_A Brand";v="24"`,
			"Sec-Ch-Ua-Arch":              `"x86"`,
			"Sec-Ch-Ua-Bitness":           `"64"`,
			"Sec-Ch-Ua-Full-Version-List": `"Microsoft Edge";v="131.0.2903.99", "Chromium";v="131.0.6778.140", "Not_A Brand";v="24.0.0.0"`,
			"Sec-Ch-Ua-Mobile":            "?0",
			"Sec-Ch-Ua-Platform":          `"Windows"`,
			"Sec-Ch-Ua-Platform-Version":  `"15.0.0"`,
			"Sec-Fetch-Dest":              "document",
			"Sec-Fetch-Mode":              "navigate",
			"Sec-Fetch-Site":              "same-origin",
			"Sec-Fetch-User":              "?1",
			"Upgrade-Insecure-Requests":   "1",
		},
	}
}

// LoadFingerprint reads a Fingerprint from a JSON file.
func LoadFingerprint(path string) (Fingerprint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fingerprint{}, &ConfigLoadError{Path: path, Err: err}
	}
	var fp Fingerprint
	if err := json.Unmarshal(data, &fp); err != nil {
		return Fingerprint{}, &ConfigLoadError{Path: path, Err: fmt.Errorf("decode fingerprint: %w", err)}
	}
	if err := fp.Validate(); err != nil {
		return Fingerprint{}, &ConfigLoadError{Path: path, Err: err}
	}
	return fp, nil
}

// Validate checks that the profile can be sent at all.
func (f Fingerprint) Validate() error {
	if strings.TrimSpace(f.UserAgent) == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	for name := range f.Headers {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("header name cannot be empty")
		}
	}
	return nil
}

// HTTPHeader returns the table as canonicalised request headers, skipping empty values.
func (f Fingerprint) HTTPHeader() http.Header {
	h := make(http.Header, len(f.Headers)+1)
	for name, value := range f.Headers {
		if value == "" {
			continue
		}
		h.Set(name, value)
	}
	h.Set("User-Agent", f.UserAgent)
	return h
}
