package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/SPll31/etsyparser/config"
	"github.com/SPll31/etsyparser/models"
	"github.com/SPll31/etsyparser/pipeline"
	"github.com/SPll31/etsyparser/scraper"
)

func newCrawlCmd() *cobra.Command {
	cfg := config.DefaultConfig()
	envErr := cfg.ApplyEnv()

	cmd := &cobra.Command{
		Use:   "crawl [keyword...]",
		Short: "Crawl every keyword and write the seller's listings",
		Long: `Crawl bootstraps a browser session, searches each keyword page by page and writes
one section per keyword. Keywords given as arguments replace the keyword file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if envErr != nil {
				return fmt.Errorf("environment: %w", envErr)
			}
			cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)
			return runCrawl(cmd.Context(), cfg, args, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "Site root")
	f.StringVar(&cfg.SellerName, "seller", cfg.SellerName, "Seller name to keep (substring match on the listing card)")
	f.StringVar(&cfg.Language, "language", cfg.Language, "Session language")
	f.StringVar(&cfg.Currency, "currency", cfg.Currency, "Session currency (ISO 4217)")
	f.StringVar(&cfg.Region, "region", cfg.Region, "Session region (ISO 3166 alpha-2)")
	f.StringVar(&cfg.TargetWidth, "image-width", cfg.TargetWidth, "Preferred srcset width")
	f.IntVar(&cfg.MaxPages, "pages", cfg.MaxPages, "Result pages per keyword")
	f.StringVarP(&cfg.KeywordFile, "keywords", "k", cfg.KeywordFile, "Keyword file, one search per line")
	f.IntVar(&cfg.ChunkSize, "chunk", cfg.ChunkSize, "Pages fetched concurrently")
	f.DurationVar(&cfg.ChunkCooldown, "cooldown", cfg.ChunkCooldown, "Pause between page chunks")
	f.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Per-request timeout")
	f.DurationVar(&cfg.PageSettle, "settle", cfg.PageSettle, "Wait after each browser navigation")
	f.BoolVar(&cfg.Headless, "headless", cfg.Headless, "Run the browser headless")
	f.IntVar(&cfg.ImageRetries, "image-retries", cfg.ImageRetries, "Attempts per image")
	f.DurationVar(&cfg.ImageRetryBackoff, "image-backoff", cfg.ImageRetryBackoff, "Initial image retry backoff")
	f.DurationVar(&cfg.ImageRetryBackoffMax, "image-backoff-max", cfg.ImageRetryBackoffMax, "Maximum image retry backoff")
	f.IntVar(&cfg.ImageConcurrency, "image-concurrency", cfg.ImageConcurrency, "Concurrent image fetches per page (0 = unbounded)")
	f.Float64Var(&cfg.ImageRPS, "image-rps", cfg.ImageRPS, "Image requests per second (0 = unlimited)")
	f.IntVar(&cfg.ImageCacheSize, "image-cache", cfg.ImageCacheSize, "Images kept in memory across keywords (0 = off)")
	f.BoolVar(&cfg.SkipMissingImages, "skip-missing-images", cfg.SkipMissingImages, "Drop listings without an image instead of recording them")
	f.BoolVar(&cfg.ContinueOnKeywordError, "continue-on-error", cfg.ContinueOnKeywordError, "Record a failed keyword and move on")
	f.StringVar(&cfg.FingerprintFile, "fingerprint", cfg.FingerprintFile, "JSON file with the user agent and headers to present")
	f.StringVarP(&cfg.OutputFile, "output", "o", cfg.OutputFile, "Output file path")
	f.StringVar(&cfg.OutputFormat, "format", cfg.OutputFormat, "Output format: xlsx, csv, json, dual, or all")
	f.IntVar(&cfg.ThumbnailSize, "thumbnail", cfg.ThumbnailSize, "Thumbnail edge in pixels for xlsx output")
	f.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	f.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Enable verbose logging")

	return cmd
}

func runCrawl(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if cfg.FingerprintFile != "" {
		fp, err := config.LoadFingerprint(cfg.FingerprintFile)
		if err != nil {
			return err
		}
		cfg.Fingerprint = fp
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.OutputFormat == "xlsx" {
		cfg.OutputFile = withExt(cfg.OutputFile, ".xlsx")
	}

	keywords := args
	if len(keywords) == 0 {
		var err error
		if keywords, err = config.LoadKeywords(cfg.KeywordFile); err != nil {
			return err
		}
	}

	slog.Info("starting crawl",
		slog.String("seller", cfg.SellerName),
		slog.Int("keywords", len(keywords)),
		slog.Int("pages", cfg.MaxPages),
		slog.String("locale", cfg.LocaleHeader()),
	)

	s, err := scraper.NewScraper(cfg, nil)
	if err != nil {
		return fmt.Errorf("initialising scraper: %w", err)
	}

	writer, err := createWriter(cfg)
	if err != nil {
		return fmt.Errorf("creating writer: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	ctx, stop := watchSignals(ctx, sigCh)
	defer func() {
		signal.Stop(sigCh)
		stop()
	}()

	metricsServer := startMetricsServer(cfg.MetricsAddr, s.Metrics)

	p := pipeline.NewPipeline(writer)
	p.Start()
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	startTime := time.Now()
	result, runErr := s.Run(ctx, keywords, p)

	// Keywords finished before a failure are still written.
	pipeErr := p.Close()
	closeErr := writer.Close()

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	if runErr != nil {
		slog.Error("crawl failed", slog.Any("error", runErr))
	}
	if pipeErr != nil {
		return fmt.Errorf("pipeline shutdown: %w", pipeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close writer: %w", closeErr)
	}
	if err := writer.Validate(); err != nil {
		return fmt.Errorf("output validation: %w", err)
	}

	printSummary(out, result, time.Since(startTime), cfg.OutputFile, p.GetMetrics())
	return runErr
}

var errShutdownSignal = errors.New("shutdown signal")

// watchSignals returns a context cancelled with errShutdownSignal when sigCh delivers.
// Calling stop cancels it with context.Canceled and logs nothing.
func watchSignals(parent context.Context, sigCh <-chan os.Signal) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	go func() {
		select {
		case sig := <-sigCh:
			slog.Info("shutdown signal received, finishing the current keyword", slog.String("signal", sig.String()))
			cancel(fmt.Errorf("%w: %s", errShutdownSignal, sig))
		case <-ctx.Done():
		}
	}()
	return ctx, func() { cancel(context.Canceled) }
}

func startMetricsServer(addr string, metrics *scraper.Metrics) *http.Server {
	if addr == "" || metrics == nil {
		return nil
	}
	srv := &http.Server{
		Addr:    addr,
		Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))
	return srv
}

func createWriter(cfg *config.Config) (pipeline.OutputWriter, error) {
	filename := cfg.OutputFile
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))

	switch cfg.OutputFormat {
	case "xlsx":
		return pipeline.NewXLSXWriter(withExt(filename, ".xlsx"), cfg.ThumbnailSize)
	case "json":
		return pipeline.NewJSONWriter(filename)
	case "csv":
		return pipeline.NewCSVWriter(filename)
	case "dual":
		return pipeline.NewDualWriter(stem+".csv", stem+".jsonl")
	case "all":
		return pipeline.NewAllWriter(filename, cfg.ThumbnailSize)
	default:
		return nil, fmt.Errorf("unsupported format: %s", cfg.OutputFormat)
	}
}

// withExt replaces the extension of name with ext.
func withExt(name, ext string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + ext
}

func printSummary(out io.Writer, result *models.ScraperResult, duration time.Duration, outputFile string, metrics map[string]interface{}) {
	separator := "--------------------------------------------------"
	fmt.Fprintln(out, "\n"+separator)
	fmt.Fprintln(out, "Crawl complete")

	written := int64(0)
	if processed, ok := metrics["processed_records"].(int64); ok {
		written = processed
	}
	keywords := int64(0)
	if n, ok := metrics["keywords"].(int64); ok {
		keywords = n
	}

	fmt.Fprintf(out, "  Keywords:      %d\n", keywords)
	fmt.Fprintf(out, "  Listings:      %d\n", written)
	if result != nil {
		fmt.Fprintf(out, "  Pages:         %d\n", result.PageCount)
		fmt.Fprintf(out, "  No image:      %d\n", result.MissingImages)
		fmt.Fprintf(out, "  Image failed:  %d\n", result.FailedImages)
		successRate := 0.0
		if result.RequestCount > 0 {
			successRate = float64(result.RequestCount-result.ErrorCount) / float64(result.RequestCount) * 100
		}
		fmt.Fprintf(out, "  Success rate:  %.2f%%\n", successRate)
		fmt.Fprintf(out, "  Errors:        %d\n", result.ErrorCount)
		fmt.Fprintf(out, "  Retries:       %d\n", result.RetryCount)
		fmt.Fprintf(out, "  Failed pages:  %d\n", len(result.FailedPages))
		if len(result.ErrorsByType) > 0 {
			fmt.Fprintf(out, "  Error types:   %v\n", result.ErrorsByType)
		}
		if result.Result != nil && len(result.Result.Failures) > 0 {
			fmt.Fprintf(out, "  Skipped:       %d keyword(s)\n", len(result.Result.Failures))
		}
	}
	if valErrors, ok := metrics["validation_errors"].(map[string]int); ok && len(valErrors) > 0 {
		fmt.Fprintf(out, "  Validation:    %v\n", valErrors)
	}
	fmt.Fprintf(out, "  Duration:      %v\n", duration)
	fmt.Fprintf(out, "  Output file:   %s\n", outputFile)
	fmt.Fprintln(out, separator)
}
