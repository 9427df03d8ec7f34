package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "zero chunk size",
			mutate: func(cfg *Config) {
				cfg.ChunkSize = 0
			},
			wantErr: "chunk size",
		},
		{
			name: "zero max pages",
			mutate: func(cfg *Config) {
				cfg.MaxPages = 0
			},
			wantErr: "max pages",
		},
		{
			name: "empty base url",
			mutate: func(cfg *Config) {
				cfg.BaseURL = ""
			},
			wantErr: "base URL",
		},
		{
			name: "invalid url format",
			mutate: func(cfg *Config) {
				cfg.BaseURL = "http://"
			},
			wantErr: "base URL",
		},
		{
			name: "negative timeout",
			mutate: func(cfg *Config) {
				cfg.Timeout = -1 * time.Second
			},
			wantErr: "timeout",
		},
		{
			name: "missing seller",
			mutate: func(cfg *Config) {
				cfg.SellerName = ""
			},
			wantErr: "seller",
		},
		{
			name: "lowercase currency",
			mutate: func(cfg *Config) {
				cfg.Currency = "gbp"
			},
			wantErr: "currency",
		},
		{
			name: "long region",
			mutate: func(cfg *Config) {
				cfg.Region = "GBR"
			},
			wantErr: "region",
		},
		{
			name: "negative cooldown",
			mutate: func(cfg *Config) {
				cfg.ChunkCooldown = -time.Second
			},
			wantErr: "cooldown",
		},
		{
			name: "zero image retries",
			mutate: func(cfg *Config) {
				cfg.ImageRetries = 0
			},
			wantErr: "image retries",
		},
		{
			name: "backoff above max",
			mutate: func(cfg *Config) {
				cfg.ImageRetryBackoff = 5 * time.Second
				cfg.ImageRetryBackoffMax = time.Second
			},
			wantErr: "cannot exceed",
		},
		{
			name: "unknown format",
			mutate: func(cfg *Config) {
				cfg.OutputFormat = "parquet"
			},
			wantErr: "output format",
		},
		{
			name: "empty user agent",
			mutate: func(cfg *Config) {
				cfg.Fingerprint.UserAgent = " "
			},
			wantErr: "user agent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
	if cfg.ChunkSize != 3 {
		t.Fatalf("chunk size = %d, want 3", cfg.ChunkSize)
	}
	if cfg.ImageRetries != 10 {
		t.Fatalf("image retries = %d, want 10", cfg.ImageRetries)
	}
}

func TestLocaleHeader(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Currency = "USD"
	cfg.Language = "en-US"
	cfg.Region = "US"
	if got := cfg.LocaleHeader(); got != "USD|en-US|US" {
		t.Fatalf("locale header = %q", got)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("ETSY_SELLER", "OtherShop")
	t.Setenv("ETSY_MAX_PAGES", "7")
	t.Setenv("ETSY_COOLDOWN", "1.5")
	t.Setenv("ETSY_TIMEOUT", "45s")
	t.Setenv("ETSY_SKIP_MISSING_IMAGES", "true")
	t.Setenv("ETSY_IMAGE_RPS", "2.5")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.SellerName != "OtherShop" {
		t.Fatalf("seller = %q", cfg.SellerName)
	}
	if cfg.MaxPages != 7 {
		t.Fatalf("max pages = %d", cfg.MaxPages)
	}
	if cfg.ChunkCooldown != 1500*time.Millisecond {
		t.Fatalf("cooldown = %v", cfg.ChunkCooldown)
	}
	if cfg.Timeout != 45*time.Second {
		t.Fatalf("timeout = %v", cfg.Timeout)
	}
	if !cfg.SkipMissingImages {
		t.Fatalf("skip missing images not applied")
	}
	if cfg.ImageRPS != 2.5 {
		t.Fatalf("image rps = %v", cfg.ImageRPS)
	}
}

func TestApplyEnvRejectsGarbage(t *testing.T) {
	t.Setenv("ETSY_CHUNK_SIZE", "three")
	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err == nil || !strings.Contains(err.Error(), "ETSY_CHUNK_SIZE") {
		t.Fatalf("expected ETSY_CHUNK_SIZE error, got %v", err)
	}
}

func TestLoadKeywords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keywords.txt")
	content := "pyjamas\n\n  silk robe \r\nlace set\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write keywords: %v", err)
	}

	got, err := LoadKeywords(path)
	if err != nil {
		t.Fatalf("load keywords: %v", err)
	}
	want := []string{"pyjamas", "silk robe", "lace set"}
	if len(got) != len(want) {
		t.Fatalf("keywords = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("keyword[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLoadKeywordsMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.txt")
	_, err := LoadKeywords(path)

	var loadErr *ConfigLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected ConfigLoadError, got %v", err)
	}
	if loadErr.Path != path {
		t.Fatalf("path = %q, want %q", loadErr.Path, path)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected wrapped ErrNotExist, got %v", err)
	}
}

func TestLoadFingerprint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fp.json")
	body := `{"user_agent":"TestAgent/1.0","headers":{"accept-language":"de","Cookie":""}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write fingerprint: %v", err)
	}

	fp, err := LoadFingerprint(path)
	if err != nil {
		t.Fatalf("load fingerprint: %v", err)
	}
	h := fp.HTTPHeader()
	if h.Get("User-Agent") != "TestAgent/1.0" {
		t.Fatalf("user agent = %q", h.Get("User-Agent"))
	}
	if h.Get("Accept-Language") != "de" {
		t.Fatalf("accept-language = %q", h.Get("Accept-Language"))
	}
	if _, ok := h["Cookie"]; ok {
		t.Fatalf("empty header values should be skipped")
	}
}
