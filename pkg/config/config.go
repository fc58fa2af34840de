// Package config loads the daemon configuration from the environment and an
// optional JSON config file.
package config

import (
	"fmt"
	"os"

	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ClientSecretFile is the default path to the Google OAuth credentials JSON file.
const ClientSecretFile = "data/client_secret.json"

// Reader kinds.
const (
	ReaderGmail = "gmail"
	ReaderMbox  = "mbox"
)

// Writer kinds.
const (
	WriterJSON     = "json"
	WriterPostgres = "postgres"
)

// Config holds the application configuration. Fields are populated from
// environment variables, optionally overlaid on a JSON config file.
type Config struct {
	// Reader selects the email source: "gmail" or "mbox".
	Reader string `koanf:"READER"`
	// Writer selects the result sink: "json" or "postgres".
	Writer string `koanf:"WRITER"`

	// FiltersFile is the path to the filter definitions JSON file.
	FiltersFile string `koanf:"FILTERS_FILE"`
	// WebhooksFile is the path to the webhook endpoints JSON file (optional).
	WebhooksFile string `koanf:"WEBHOOKS_FILE"`

	// MboxFile is the mbox path when Reader is "mbox".
	MboxFile string `koanf:"MBOX_FILE"`

	// SecretsFilePath is the Google OAuth credentials file when Reader is "gmail".
	SecretsFilePath string `koanf:"SECRETS_FILE_PATH"`
	// PollInterval is the Gmail poll interval in seconds.
	PollInterval int `koanf:"POLL_INTERVAL"`
	// MaxResults caps messages fetched per Gmail query.
	MaxResults int `koanf:"MAX_RESULTS"`

	// Workers is the extraction worker count.
	Workers int `koanf:"WORKERS"`

	// JSONOutputFile is the output path when Writer is "json".
	JSONOutputFile string `koanf:"JSON_OUTPUT_FILE"`

	// BatchSize is the sink batch size.
	BatchSize int `koanf:"BATCH_SIZE"`
	// FlushInterval is the sink flush interval in seconds.
	FlushInterval int `koanf:"FLUSH_INTERVAL"`

	// Postgres settings, used when Writer is "postgres".
	PostgresHost     string `koanf:"POSTGRES_HOST"`
	PostgresPort     int    `koanf:"POSTGRES_PORT"`
	PostgresDB       string `koanf:"POSTGRES_DB"`
	PostgresUser     string `koanf:"POSTGRES_USER"`
	PostgresPassword string `koanf:"POSTGRES_PASSWORD"`
	PostgresSSLMode  string `koanf:"POSTGRES_SSLMODE"`
}

// Load reads configuration from the optional JSON file at path (skipped when
// empty or missing) and then from environment variables, which take
// precedence.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), kjson.Parser()); err != nil {
				return nil, fmt.Errorf("loading config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider("", ".", nil), nil); err != nil {
		return nil, fmt.Errorf("loading config from environment: %w", err)
	}

	cfg := defaults()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Reader:          ReaderMbox,
		Writer:          WriterJSON,
		FiltersFile:     "filters.json",
		SecretsFilePath: ClientSecretFile,
		JSONOutputFile:  "results.json",
	}
}

// Validate checks the configuration for missing or inconsistent settings.
func (c *Config) Validate() error {
	switch c.Reader {
	case ReaderGmail:
	case ReaderMbox:
		if c.MboxFile == "" {
			return fmt.Errorf("MBOX_FILE is required when READER=mbox")
		}
	default:
		return fmt.Errorf("unknown reader %q (want %q or %q)", c.Reader, ReaderGmail, ReaderMbox)
	}

	switch c.Writer {
	case WriterJSON:
		if c.JSONOutputFile == "" {
			return fmt.Errorf("JSON_OUTPUT_FILE is required when WRITER=json")
		}
	case WriterPostgres:
		if c.PostgresHost == "" || c.PostgresDB == "" || c.PostgresUser == "" {
			return fmt.Errorf("POSTGRES_HOST, POSTGRES_DB and POSTGRES_USER are required when WRITER=postgres")
		}
	default:
		return fmt.Errorf("unknown writer %q (want %q or %q)", c.Writer, WriterJSON, WriterPostgres)
	}

	if c.FiltersFile == "" {
		return fmt.Errorf("FILTERS_FILE is required")
	}

	return nil
}
