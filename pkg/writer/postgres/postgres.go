// Package postgres provides a PostgreSQL writer for extraction result storage.
package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mailscout/mailscout/pkg/api"
)

//go:embed 001_create_extractions.sql
var migrationSQL string

// Config holds the PostgreSQL writer configuration.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	// BatchSize is the number of results to buffer before writing.
	BatchSize int
	// FlushInterval is the time between automatic flushes.
	FlushInterval time.Duration

	// MaxPoolSize is the maximum number of connections in the pool.
	MaxPoolSize int
}

// Writer writes extraction results to a PostgreSQL database.
type Writer struct {
	pool          *pgxpool.Pool
	logger        *slog.Logger
	batchSize     int
	flushInterval time.Duration
}

// New creates a new PostgreSQL writer and runs the schema migration.
func New(cfg Config, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 10
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = 30 * time.Second
	}
	if cfg.MaxPoolSize == 0 {
		cfg.MaxPoolSize = 10
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxPoolSize)
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("connected to PostgreSQL",
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.Database,
	)

	w := &Writer{
		pool:          pool,
		logger:        logger,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
	}

	if err := w.runMigrations(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return w, nil
}

// runMigrations runs the database migrations.
func (w *Writer) runMigrations(ctx context.Context) error {
	w.logger.Info("running database migrations")

	if _, err := w.pool.Exec(ctx, migrationSQL); err != nil {
		return fmt.Errorf("executing migration: %w", err)
	}

	w.logger.Info("migrations completed successfully")
	return nil
}

// Write consumes extraction results from the channel and writes them to
// PostgreSQL in batches with periodic flushes.
func (w *Writer) Write(ctx context.Context, in <-chan *api.ExtractionResult) error {
	batch := make([]*api.ExtractionResult, 0, w.batchSize)
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}

		if err := w.writeBatch(ctx, batch); err != nil {
			return err
		}

		w.logger.Info("wrote extraction batch",
			"count", len(batch),
		)

		batch = batch[:0]
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			if err := flush(); err != nil {
				w.logger.Error("failed to flush final batch", "error", err)
			}
			return ctx.Err()

		case res, ok := <-in:
			if !ok {
				return flush()
			}

			batch = append(batch, res)
			if len(batch) >= w.batchSize {
				if err := flush(); err != nil {
					return err
				}
			}

		case <-ticker.C:
			if err := flush(); err != nil {
				return err
			}
		}
	}
}

// writeBatch writes a batch of extraction results to the database.
// Duplicate (email_id, filter_id) pairs are upserted so reprocessing an
// email replaces its previous extraction.
func (w *Writer) writeBatch(ctx context.Context, results []*api.ExtractionResult) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, res := range results {
		extractedAt := res.ExtractedAt
		if extractedAt.IsZero() {
			extractedAt = time.Now()
		}

		batch.Queue(`
			INSERT INTO extractions (
				email_id, filter_id, filter_name, received_at, extracted_at
			) VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (email_id, filter_id) DO UPDATE SET
				filter_name = EXCLUDED.filter_name,
				received_at = EXCLUDED.received_at,
				extracted_at = EXCLUDED.extracted_at,
				updated_at = NOW()
			RETURNING id
		`,
			res.EmailID,
			res.FilterID,
			res.FilterName,
			res.ReceivedAt,
			extractedAt,
		)
	}

	batchResults := tx.SendBatch(ctx, batch)
	defer batchResults.Close()

	ids := make([]string, len(results))
	for i := range results {
		if err := batchResults.QueryRow().Scan(&ids[i]); err != nil {
			return fmt.Errorf("inserting extraction %d: %w", i, err)
		}
	}
	if err := batchResults.Close(); err != nil {
		return fmt.Errorf("closing batch results: %w", err)
	}

	for i, res := range results {
		if err := w.replaceFields(ctx, tx, ids[i], res.Fields); err != nil {
			return fmt.Errorf("storing fields for extraction %s: %w", ids[i], err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// replaceFields replaces the field rows for an extraction. On upsert the
// old field set is dropped first so stale fields do not survive.
func (w *Writer) replaceFields(ctx context.Context, tx pgx.Tx, extractionID string, fields map[string]string) error {
	if _, err := tx.Exec(ctx, `DELETE FROM extraction_fields WHERE extraction_id = $1`, extractionID); err != nil {
		return fmt.Errorf("deleting old fields: %w", err)
	}

	if len(fields) == 0 {
		return nil
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	valueStrings := make([]string, 0, len(names))
	valueArgs := make([]interface{}, 0, len(names)*3)
	argIndex := 1

	for _, name := range names {
		valueStrings = append(valueStrings, fmt.Sprintf("($%d, $%d, $%d)", argIndex, argIndex+1, argIndex+2))
		valueArgs = append(valueArgs, extractionID, name, fields[name])
		argIndex += 3
	}

	query := fmt.Sprintf(`
		INSERT INTO extraction_fields (extraction_id, name, value)
		VALUES %s
	`, strings.Join(valueStrings, ","))

	if _, err := tx.Exec(ctx, query, valueArgs...); err != nil {
		return fmt.Errorf("executing field insert: %w", err)
	}

	return nil
}

// Close closes the database connection pool.
func (w *Writer) Close() {
	if w.pool != nil {
		w.pool.Close()
		w.logger.Info("closed PostgreSQL connection pool")
	}
}
