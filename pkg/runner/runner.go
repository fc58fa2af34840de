// Package runner applies the extraction pipeline across batches of emails
// with bounded concurrency.
package runner

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/mailscout/mailscout/pkg/api"
	"github.com/mailscout/mailscout/pkg/extract"
	"github.com/mailscout/mailscout/pkg/filter"
)

// DefaultWorkers bounds in-flight extractions when Config.Workers is unset.
const DefaultWorkers = 4

// EmailError records a failure while processing one email. One bad email
// never aborts the batch.
type EmailError struct {
	EmailID string
	Err     error
}

func (e EmailError) Error() string {
	return fmt.Sprintf("email %s: %v", e.EmailID, e.Err)
}

func (e EmailError) Unwrap() error { return e.Err }

// Config holds runner configuration.
type Config struct {
	// Workers is the maximum number of emails processed concurrently.
	// Defaults to DefaultWorkers.
	Workers int
}

// Runner fans a batch of emails over the extraction pipeline. Filters are
// read-only configuration shared by all workers; each email's state is
// private to its own pipeline invocation, so no locks are needed.
type Runner struct {
	filters  []*filter.EmailFilter
	pipeline *extract.Pipeline
	workers  int
	logger   *slog.Logger
}

// New creates a Runner over a compiled filter set.
func New(filters []*filter.EmailFilter, cfg Config, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	return &Runner{
		filters:  filters,
		pipeline: extract.NewPipeline(logger.With("component", "pipeline")),
		workers:  workers,
		logger:   logger,
	}
}

// Run processes every email in the batch and returns the extraction results
// alongside per-email errors. Emails matching no filter are skipped silently;
// a panic while extracting one email is recovered and recorded as that
// email's error. Cancellation is honored at the per-email boundary: once an
// email's extraction starts it runs to completion.
func (r *Runner) Run(ctx context.Context, emails []*api.EmailMessage) ([]*api.ExtractionResult, []EmailError) {
	type outcome struct {
		result *api.ExtractionResult
		err    *EmailError
	}

	outcomes := make(chan outcome, len(emails))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for _, msg := range emails {
		if ctx.Err() != nil {
			break
		}

		msg := msg
		g.Go(func() error {
			res, err := r.processOne(msg)
			switch {
			case err != nil:
				outcomes <- outcome{err: &EmailError{EmailID: msg.ID, Err: err}}
			case res != nil:
				outcomes <- outcome{result: res}
			}
			return nil
		})
	}

	// Workers never return errors through the group; the channel is the
	// single append-only aggregation point.
	_ = g.Wait()
	close(outcomes)

	var (
		results []*api.ExtractionResult
		errs    []EmailError
	)
	for o := range outcomes {
		if o.err != nil {
			errs = append(errs, *o.err)
			continue
		}
		results = append(results, o.result)
	}

	r.logger.Info("batch complete",
		"emails", len(emails),
		"matched", len(results),
		"failed", len(errs),
	)

	return results, errs
}

// Process is the streaming form of Run: it consumes emails from in until the
// channel closes or the context is canceled, fanning them over the worker
// pool and sending results to out. The error semantics match Run's, with
// per-email failures logged instead of collected. It closes out on return so
// a downstream Writer sees end of stream.
func (r *Runner) Process(ctx context.Context, in <-chan *api.EmailMessage, out chan<- *api.ExtractionResult) error {
	defer close(out)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case msg, ok := <-in:
			if !ok {
				break loop
			}
			g.Go(func() error {
				res, err := r.processOne(msg)
				if err != nil {
					r.logger.Error("extraction failed", "email_id", msg.ID, "error", err)
					return nil
				}
				if res == nil {
					return nil
				}
				select {
				case out <- res:
				case <-gctx.Done():
				}
				return nil
			})
		}
	}

	_ = g.Wait()
	return ctx.Err()
}

// processOne selects a filter for one email and runs the pipeline. A nil
// result with nil error means no filter matched.
func (r *Runner) processOne(msg *api.EmailMessage) (res *api.ExtractionResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			res = nil
			err = fmt.Errorf("extraction panic: %v", rec)
		}
	}()

	f := extract.SelectFilter(r.filters, msg)
	if f == nil {
		r.logger.Debug("no filter matched", "email_id", msg.ID, "subject", msg.Subject)
		return nil, nil
	}

	return r.pipeline.Run(f, msg), nil
}
