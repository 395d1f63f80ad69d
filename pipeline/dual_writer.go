package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

// MultiWriter fans every batch out to several writers in order.
type MultiWriter struct {
	writers []namedWriter
	mu      sync.Mutex
}

type namedWriter struct {
	name string
	OutputWriter
}

// NewMultiWriter combines writers; names label errors.
func NewMultiWriter(writers map[string]OutputWriter, order ...string) *MultiWriter {
	mw := &MultiWriter{}
	for _, name := range order {
		if w, ok := writers[name]; ok && w != nil {
			mw.writers = append(mw.writers, namedWriter{name: name, OutputWriter: w})
		}
	}
	return mw
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

	return NewMultiWriter(map[string]OutputWriter{
		"CSV":  csvWriter,
		"JSON": jsonWriter,
	}, "CSV", "JSON"), nil
}

// DualFilenames derives the CSV and JSONL paths from a single output file.
func DualFilenames(outputFile string) (string, string) {
	base := strings.TrimSuffix(outputFile, ".jsonl")
	base = strings.TrimSuffix(base, ".json")
	base = strings.TrimSuffix(base, ".csv")
	return base + ".csv", base + ".jsonl"
}

// Write writes products to every writer, stopping at the first failure.
func (mw *MultiWriter) Write(products []*models.Product) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	for _, w := range mw.writers {
		if err := w.Write(products); err != nil {
			return fmt.Errorf("%s write failed: %w", w.name, err)
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
			errs = append(errs, fmt.Errorf("%s close failed: %w", w.name, err))
		}
	}
	return errors.Join(errs...)
}

// Validate validates every writer.
func (mw *MultiWriter) Validate() error {
	var errs []error
	for _, w := range mw.writers {
		if err := w.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s validation failed: %w", w.name, err))
		}
	}
	return errors.Join(errs...)
}
