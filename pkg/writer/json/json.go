// Package json implements a Writer that persists extraction results to a JSON file.
package json

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/mailscout/mailscout/pkg/api"
	"github.com/mailscout/mailscout/pkg/writer/buffered"
)

// Writer appends extraction results to a JSON array file with buffered batching.
type Writer struct {
	filePath string
	results  []*api.ExtractionResult
	mu       sync.Mutex
	buffered *buffered.Writer
	logger   *slog.Logger
}

// Config holds configuration for the JSON writer.
type Config struct {
	// FilePath is the path to the JSON output file.
	FilePath string
	// BatchSize is the number of results to buffer before writing.
	BatchSize int
	// FlushInterval is the interval between automatic flushes (seconds).
	FlushInterval int
}

// New creates a new JSON writer. Existing results in the output file are
// loaded so that repeated runs keep appending to the same array.
func New(cfg Config, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	w := &Writer{
		filePath: cfg.FilePath,
		results:  make([]*api.ExtractionResult, 0),
		logger:   logger,
	}

	if err := w.loadExisting(); err != nil {
		logger.Warn("could not load existing results", "error", err)
	}

	bufCfg := buffered.Config{
		BatchSize: cfg.BatchSize,
	}
	if cfg.FlushInterval > 0 {
		bufCfg.FlushInterval = time.Duration(cfg.FlushInterval) * time.Second
	}
	w.buffered = buffered.New(w.flushBatch, bufCfg, logger.With("component", "json_buffer"))

	logger.Info("json writer initialized", "file", cfg.FilePath, "existing_count", len(w.results))
	return w, nil
}

// loadExisting loads existing results from the JSON file if it exists.
func (w *Writer) loadExisting() error {
	data, err := os.ReadFile(w.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if len(data) == 0 {
		return nil
	}

	return json.Unmarshal(data, &w.results)
}

// Write consumes extraction results from the input channel and writes them to JSON.
func (w *Writer) Write(ctx context.Context, in <-chan *api.ExtractionResult) error {
	return w.buffered.Write(ctx, in)
}

// flushBatch appends a batch of results and rewrites the JSON file.
func (w *Writer) flushBatch(results []*api.ExtractionResult) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.results = append(w.results, results...)

	// Rewrite the entire array; JSON has no append form.
	data, err := json.MarshalIndent(w.results, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling json: %w", err)
	}

	if err := os.WriteFile(w.filePath, data, 0o600); err != nil {
		return fmt.Errorf("writing json file: %w", err)
	}

	w.logger.Debug("wrote results to json",
		"batch_count", len(results),
		"total_count", len(w.results),
	)
	return nil
}

// ResultCount returns the total number of results written.
func (w *Writer) ResultCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.results)
}
