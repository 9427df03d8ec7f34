package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SPll31/etsyparser/config"
	"github.com/SPll31/etsyparser/models"
	"github.com/SPll31/etsyparser/pipeline"
)

func TestCrawlFlagsOverrideDefaults(t *testing.T) {
	cmd := newCrawlCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--pages", "5", "--seller", "OtherShop", "--cooldown", "750ms", "--format", "csv"}))

	pages, err := cmd.Flags().GetInt("pages")
	require.NoError(t, err)
	assert.Equal(t, 5, pages)

	cooldown, err := cmd.Flags().GetDuration("cooldown")
	require.NoError(t, err)
	assert.Equal(t, 750*time.Millisecond, cooldown)
}

func TestCrawlFlagsDefaultFromEnv(t *testing.T) {
	t.Setenv("ETSY_MAX_PAGES", "9")
	cmd := newCrawlCmd()
	require.NoError(t, cmd.ParseFlags(nil))

	pages, err := cmd.Flags().GetInt("pages")
	require.NoError(t, err)
	assert.Equal(t, 9, pages)
}

func TestCreateWriter(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		format string
		want   any
	}{
		{format: "xlsx", want: &pipeline.XLSXWriter{}},
		{format: "csv", want: &pipeline.CSVWriter{}},
		{format: "json", want: &pipeline.JSONWriter{}},
		{format: "dual", want: &pipeline.MultiWriter{}},
		{format: "all", want: &pipeline.MultiWriter{}},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.OutputFormat = tt.format
			cfg.OutputFile = filepath.Join(dir, tt.format, "listings.out")

			w, err := createWriter(cfg)
			require.NoError(t, err)
			assert.IsType(t, tt.want, w)
			require.NoError(t, w.Close())
		})
	}

	cfg := config.DefaultConfig()
	cfg.OutputFormat = "parquet"
	_, err := createWriter(cfg)
	assert.Error(t, err)
}

func TestCreateWriterXLSXForcesExtension(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.OutputFormat = "xlsx"
	cfg.OutputFile = filepath.Join(dir, "results.out")

	w, err := createWriter(cfg)
	require.NoError(t, err)
	require.NoError(t, w.WriteKeyword("robe", nil))
	require.NoError(t, w.Close())
	require.NoError(t, w.Validate())

	_, err = os.Stat(filepath.Join(dir, "results.xlsx"))
	assert.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "results.xlsx"), withExt(cfg.OutputFile, ".xlsx"))
}

func TestWatchSignals(t *testing.T) {
	t.Run("signal", func(t *testing.T) {
		sigCh := make(chan os.Signal, 1)
		ctx, stop := watchSignals(context.Background(), sigCh)
		defer stop()

		sigCh <- os.Interrupt
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
			t.Fatal("context not cancelled by signal")
		}
		assert.ErrorIs(t, context.Cause(ctx), errShutdownSignal)
	})

	t.Run("normal exit", func(t *testing.T) {
		sigCh := make(chan os.Signal, 1)
		ctx, stop := watchSignals(context.Background(), sigCh)
		stop()

		<-ctx.Done()
		assert.ErrorIs(t, context.Cause(ctx), context.Canceled)
		assert.NotErrorIs(t, context.Cause(ctx), errShutdownSignal)
	})
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	result := &models.ScraperResult{RequestCount: 10, ErrorCount: 1, PageCount: 4, MissingImages: 2}
	metrics := map[string]interface{}{
		"keywords":          int64(2),
		"processed_records": int64(7),
		"validation_errors": map[string]int{},
	}

	printSummary(&buf, result, time.Second, "out.xlsx", metrics)

	out := buf.String()
	assert.Contains(t, out, "Listings:      7")
	assert.Contains(t, out, "Success rate:  90.00%")
	assert.Contains(t, out, "No image:      2")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(out), "-"))
}
