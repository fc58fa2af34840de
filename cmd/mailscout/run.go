package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/api/gmail/v1"

	"github.com/mailscout/mailscout/pkg/api"
	"github.com/mailscout/mailscout/pkg/client"
	"github.com/mailscout/mailscout/pkg/config"
	"github.com/mailscout/mailscout/pkg/filter"
	gmailreader "github.com/mailscout/mailscout/pkg/reader/gmail"
	mboxreader "github.com/mailscout/mailscout/pkg/reader/mbox"
	"github.com/mailscout/mailscout/pkg/runner"
	"github.com/mailscout/mailscout/pkg/webhook"
	jsonwriter "github.com/mailscout/mailscout/pkg/writer/json"
	pgwriter "github.com/mailscout/mailscout/pkg/writer/postgres"
)

// run starts the extraction daemon and blocks until the source is exhausted
// or a shutdown signal arrives.
func run(logger *slog.Logger, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	filters, err := filter.LoadFile(cfg.FiltersFile)
	if err != nil {
		return fmt.Errorf("loading filters: %w", err)
	}

	logger.Info("configuration loaded",
		"reader", cfg.Reader,
		"writer", cfg.Writer,
		"filters", len(filters),
	)

	reader, err := newReader(cfg, filters, logger)
	if err != nil {
		return err
	}

	writer, err := newWriter(cfg, logger)
	if err != nil {
		return err
	}

	var endpoints []*webhook.Endpoint
	if cfg.WebhooksFile != "" {
		endpoints, err = webhook.LoadEndpoints(cfg.WebhooksFile)
		if err != nil {
			return fmt.Errorf("loading webhooks: %w", err)
		}
		logger.Info("webhooks loaded", "count", len(endpoints))
	}

	r := runner.New(filters, runner.Config{Workers: cfg.Workers}, logger.With("component", "runner"))

	// Setup context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	emails := make(chan *api.EmailMessage, 100)
	extracted := make(chan *api.ExtractionResult, 100)
	results := extracted

	// With webhooks configured, tee results through the notifier on the way
	// to the writer.
	if len(endpoints) > 0 {
		notifier := webhook.New(webhook.Config{}, logger.With("component", "webhook"))
		teed := make(chan *api.ExtractionResult, 100)
		results = teed
		go func() {
			defer close(teed)
			for res := range extracted {
				teed <- res
				delivered := notifier.NotifyAll(ctx, endpoints, webhook.EventEmailProcessed, res)
				for id, err := range delivered {
					if err != nil {
						logger.Error("webhook delivery failed", "webhook_id", id, "email_id", res.EmailID, "error", err)
					}
				}
			}
		}()
	}

	writerDone := make(chan error, 1)
	go func() {
		writerDone <- writer.Write(ctx, results)
	}()

	runnerDone := make(chan error, 1)
	go func() {
		runnerDone <- r.Process(ctx, emails, extracted)
	}()

	logger.Info("starting mailscout")
	if err := reader.Read(ctx, emails); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("reader error", "error", err)
	}

	if err := <-runnerDone; err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("runner error", "error", err)
	}
	if err := <-writerDone; err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("writer error", "error", err)
	}

	logger.Info("mailscout stopped")
	return nil
}

func newReader(cfg *config.Config, filters []*filter.EmailFilter, logger *slog.Logger) (api.Reader, error) {
	switch cfg.Reader {
	case config.ReaderGmail:
		httpClient, err := client.New(cfg.SecretsFilePath, gmail.GmailReadonlyScope)
		if err != nil {
			return nil, fmt.Errorf("creating http client: %w", err)
		}
		rcfg := gmailreader.Config{
			Filters:    filters,
			MaxResults: int64(cfg.MaxResults),
		}
		if cfg.PollInterval > 0 {
			rcfg.Interval = time.Duration(cfg.PollInterval) * time.Second
		}
		return gmailreader.New(httpClient, rcfg, logger.With("component", "gmail_reader"))
	case config.ReaderMbox:
		return mboxreader.New(cfg.MboxFile, logger.With("component", "mbox_reader")), nil
	default:
		return nil, fmt.Errorf("unknown reader %q", cfg.Reader)
	}
}

func newWriter(cfg *config.Config, logger *slog.Logger) (api.Writer, error) {
	switch cfg.Writer {
	case config.WriterJSON:
		return jsonwriter.New(jsonwriter.Config{
			FilePath:      cfg.JSONOutputFile,
			BatchSize:     cfg.BatchSize,
			FlushInterval: cfg.FlushInterval,
		}, logger.With("component", "json_writer"))
	case config.WriterPostgres:
		pcfg := pgwriter.Config{
			Host:      cfg.PostgresHost,
			Port:      cfg.PostgresPort,
			Database:  cfg.PostgresDB,
			User:      cfg.PostgresUser,
			Password:  cfg.PostgresPassword,
			SSLMode:   cfg.PostgresSSLMode,
			BatchSize: cfg.BatchSize,
		}
		if cfg.FlushInterval > 0 {
			pcfg.FlushInterval = time.Duration(cfg.FlushInterval) * time.Second
		}
		return pgwriter.New(pcfg, logger.With("component", "postgres_writer"))
	default:
		return nil, fmt.Errorf("unknown writer %q", cfg.Writer)
	}
}
