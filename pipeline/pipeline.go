// Package pipeline validates crawled records and hands them to output writers in keyword order.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/SPll31/etsyparser/models"
	"github.com/SPll31/etsyparser/parser"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
)

// OutputWriter defines the interface for data output. WriteKeyword is called once per
// keyword, in crawl order, with records already validated and de-duplicated.
type OutputWriter interface {
	WriteKeyword(keyword string, records []models.ListingRecord) error
	Close() error
	Validate() error
}

type keywordBatch struct {
	keyword string
	records []models.ListingRecord
}

// Pipeline coordinates validation, de-duplication, and output writing.
// A single worker writes batches so the output keeps the order keywords were submitted in.
type Pipeline struct {
	writer  OutputWriter
	batchCh chan keywordBatch

	wg      sync.WaitGroup
	started bool

	seen map[string]struct{}

	metrics metrics

	mu     sync.Mutex // guards started/closed/err
	closed bool
	err    error

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline with a small keyword buffer.
func NewPipeline(writer OutputWriter) *Pipeline {
	return &Pipeline{
		writer:   writer,
		batchCh:  make(chan keywordBatch, 16),
		seen:     make(map[string]struct{}),
		metrics:  newMetrics(),
		shutdown: make(chan struct{}),
	}
}

// Start launches the writer goroutine. Calling it again has no effect.
func (p *Pipeline) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.started {
		return
	}
	p.started = true
	p.wg.Add(1)
	go p.worker()
}

// Process enqueues one keyword's records. An empty slice still produces a keyword section.
func (p *Pipeline) Process(keyword string, records []models.ListingRecord) error {
	closed, err := p.state()
	if err != nil {
		return err
	}
	if closed {
		return ErrPipelineClosed
	}

	batch := keywordBatch{
		keyword: keyword,
		records: make([]models.ListingRecord, len(records)),
	}
	copy(batch.records, records)
	return p.enqueue(batch)
}

// Close waits for the worker to drain and prevents more submissions.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
	}
	p.mu.Unlock()

	p.closeOnce.Do(func() {
		close(p.batchCh)
	})

	p.wg.Wait()
	p.signalShutdown()
	return p.Err()
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

// StartMetricsReporting emits periodic progress logs.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				metrics := p.GetMetrics()
				validation := metrics["validation_errors"].(map[string]int)
				slog.Info("pipeline progress",
					slog.Int64("keywords", metrics["keywords"].(int64)),
					slog.Int64("records", metrics["processed_records"].(int64)),
					slog.Int64("missing_images", metrics["missing_images"].(int64)),
					slog.Int64("failed_images", metrics["failed_images"].(int64)),
					slog.Int("validation_error_kinds", len(validation)),
				)
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) worker() {
	defer p.wg.Done()

	for batch := range p.batchCh {
		if p.Err() != nil {
			continue
		}
		prepared := p.prepare(batch)
		if err := p.writer.WriteKeyword(batch.keyword, prepared); err != nil {
			p.setErr(fmt.Errorf("write keyword %q: %w", batch.keyword, err))
			continue
		}
		p.metrics.incrementKeywords()
	}
}

func (p *Pipeline) prepare(batch keywordBatch) []models.ListingRecord {
	out := make([]models.ListingRecord, 0, len(batch.records))
	for i := range batch.records {
		rec := &batch.records[i]
		if err := parser.ValidateRecord(rec); err != nil {
			slog.Debug("dropping invalid record", slog.String("keyword", batch.keyword), slog.Any("error", err))
			p.metrics.addValidation("invalid_record")
			continue
		}

		// The same listing on another page is its own row.
		key := batch.keyword + "\x00" + rec.Index + "\x00" + rec.ListingID
		if _, ok := p.seen[key]; ok {
			p.metrics.addValidation("duplicate_listing")
			continue
		}
		p.seen[key] = struct{}{}

		p.metrics.incrementProcessed(rec.ImageStatus)
		out = append(out, *rec)
	}
	return out
}

func (p *Pipeline) enqueue(batch keywordBatch) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrPipelineClosed
		}
	}()

	select {
	case <-p.shutdown:
		return ErrPipelineClosed
	case p.batchCh <- batch:
		return nil
	}
}

func (p *Pipeline) setErr(err error) {
	if err == nil {
		return
	}

	p.mu.Lock()
	if p.err != nil {
		p.mu.Unlock()
		return
	}
	p.err = err
	p.closed = true
	p.mu.Unlock()

	p.signalShutdown()
}

func (p *Pipeline) state() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed, p.err
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

type metrics struct {
	mu         sync.Mutex
	keywords   int64
	processed  int64
	missing    int64
	failed     int64
	validation map[string]int
}

func newMetrics() metrics {
	return metrics{
		validation: make(map[string]int),
	}
}

func (m *metrics) incrementKeywords() {
	m.mu.Lock()
	m.keywords++
	m.mu.Unlock()
}

func (m *metrics) incrementProcessed(imageStatus string) {
	m.mu.Lock()
	m.processed++
	switch imageStatus {
	case models.ImageMissing:
		m.missing++
	case models.ImageFailed:
		m.failed++
	}
	m.mu.Unlock()
}

func (m *metrics) addValidation(kind string) {
	m.mu.Lock()
	m.validation[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyValidation := make(map[string]int, len(m.validation))
	for k, v := range m.validation {
		copyValidation[k] = v
	}

	return map[string]interface{}{
		"keywords":          m.keywords,
		"processed_records": m.processed,
		"missing_images":    m.missing,
		"failed_images":     m.failed,
		"validation_errors": copyValidation,
	}
}
