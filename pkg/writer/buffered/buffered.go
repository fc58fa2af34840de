// Package buffered provides a batching layer shared by result writers.
package buffered

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mailscout/mailscout/pkg/api"
)

// DefaultBatchSize is the default number of results to buffer before flushing.
const DefaultBatchSize = 10

// DefaultFlushInterval is the default interval between automatic flushes.
const DefaultFlushInterval = 30 * time.Second

// Flusher is called with the buffered results when a flush is due.
type Flusher func(results []*api.ExtractionResult) error

// Config holds configuration for buffered writing.
type Config struct {
	// BatchSize is the number of results to buffer before flushing.
	// Defaults to DefaultBatchSize.
	BatchSize int
	// FlushInterval is the interval between automatic flushes.
	// Defaults to DefaultFlushInterval.
	FlushInterval time.Duration
}

// Writer buffers extraction results and flushes them in batches: when the
// buffer fills, on a timer, and finally on shutdown or channel close.
type Writer struct {
	buffer  []*api.ExtractionResult
	mu      sync.Mutex
	flusher Flusher
	config  Config
	logger  *slog.Logger
}

// New creates a buffered writer around the given flusher.
func New(flusher Flusher, cfg Config, logger *slog.Logger) *Writer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Writer{
		buffer:  make([]*api.ExtractionResult, 0, cfg.BatchSize),
		flusher: flusher,
		config:  cfg,
		logger:  logger,
	}
}

// Write consumes results from in and batches them through the flusher. It
// returns when the context is canceled or the channel closes, flushing the
// remainder first.
func (w *Writer) Write(ctx context.Context, in <-chan *api.ExtractionResult) error {
	ticker := time.NewTicker(w.config.FlushInterval)
	defer ticker.Stop()

	w.logger.Info("buffered writer started",
		"batch_size", w.config.BatchSize,
		"flush_interval", w.config.FlushInterval,
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("buffered writer stopping, flushing remaining buffer")
			if err := w.flush(); err != nil {
				w.logger.Error("failed to flush on shutdown", "error", err)
			}
			return ctx.Err()

		case <-ticker.C:
			if err := w.flush(); err != nil {
				w.logger.Error("failed to flush on interval", "error", err)
			}

		case res, ok := <-in:
			if !ok {
				w.logger.Info("input channel closed, flushing remaining buffer")
				return w.flush()
			}

			w.mu.Lock()
			w.buffer = append(w.buffer, res)
			full := len(w.buffer) >= w.config.BatchSize
			w.mu.Unlock()

			if full {
				if err := w.flush(); err != nil {
					w.logger.Error("failed to flush full buffer", "error", err)
				}
			}
		}
	}
}

// flush hands the buffered results to the flusher.
func (w *Writer) flush() error {
	w.mu.Lock()
	if len(w.buffer) == 0 {
		w.mu.Unlock()
		return nil
	}
	toFlush := make([]*api.ExtractionResult, len(w.buffer))
	copy(toFlush, w.buffer)
	w.buffer = w.buffer[:0]
	w.mu.Unlock()

	if err := w.flusher(toFlush); err != nil {
		return err
	}

	w.logger.Debug("flushed results", "count", len(toFlush))
	return nil
}

// BufferLen returns the current number of buffered results.
func (w *Writer) BufferLen() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buffer)
}
