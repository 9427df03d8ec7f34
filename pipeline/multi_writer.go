package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/SPll31/etsyparser/models"
)

// MultiWriter fans each keyword out to several writers.
type MultiWriter struct {
	writers []OutputWriter
	mu      sync.Mutex
}

// NewMultiWriter wraps writers. Every writer sees every keyword, in order.
func NewMultiWriter(writers ...OutputWriter) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// NewDualWriter writes CSV and JSONL side by side.
func NewDualWriter(csvFilename, jsonFilename string) (*MultiWriter, error) {
	csvWriter, err := NewCSVWriter(csvFilename)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV writer: %w", err)
	}

	jsonWriter, err := NewJSONWriter(jsonFilename)
	if err != nil {
		csvWriter.Close()
		return nil, fmt.Errorf("failed to create JSON writer: %w", err)
	}

	return NewMultiWriter(csvWriter, jsonWriter), nil
}

// NewAllWriter writes XLSX, CSV and JSONL next to each other, sharing base as the file stem.
func NewAllWriter(base string, thumbnail int) (*MultiWriter, error) {
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	xlsx, err := NewXLSXWriter(stem+".xlsx", thumbnail)
	if err != nil {
		return nil, fmt.Errorf("failed to create XLSX writer: %w", err)
	}
	dual, err := NewDualWriter(stem+".csv", stem+".jsonl")
	if err != nil {
		xlsx.Close()
		return nil, err
	}
	return NewMultiWriter(append([]OutputWriter{xlsx}, dual.writers...)...), nil
}

// WriteKeyword forwards to every writer, stopping at the first failure.
func (mw *MultiWriter) WriteKeyword(keyword string, records []models.ListingRecord) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	for _, w := range mw.writers {
		if err := w.WriteKeyword(keyword, records); err != nil {
			return fmt.Errorf("%T: %w", w, err)
		}
	}
	return nil
}

// Close closes every writer and joins their errors.
func (mw *MultiWriter) Close() error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	var errs []error
	for _, w := range mw.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%T close: %w", w, err))
		}
	}
	return errors.Join(errs...)
}

// Validate validates every output.
func (mw *MultiWriter) Validate() error {
	var errs []error
	for _, w := range mw.writers {
		if err := w.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%T validation: %w", w, err))
		}
	}
	return errors.Join(errs...)
}
