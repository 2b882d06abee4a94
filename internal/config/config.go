package config

import (
	"github.com/kelseyhightower/envconfig"
)

// Config holds the server's environment-driven settings.
type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENV" default:"development"`
	DBHost      string `envconfig:"DB_HOST" required:"true"`
	DBPort      int    `envconfig:"DB_PORT" default:"5432"`
	DBUser      string `envconfig:"DB_USER" required:"true"`
	DBPassword  string `envconfig:"DB_PASSWORD" required:"true"`
	DBName      string `envconfig:"DB_NAME" required:"true"`
	JWTSecret   string `envconfig:"JWT_SECRET" required:"true"`

	// Import pipeline settings
	MaxConcurrentImports int  `envconfig:"MAX_CONCURRENT_IMPORTS" default:"3"`
	MaxBatchRows         int  `envconfig:"MAX_BATCH_ROWS" default:"10000"`
	FailOnFirstBatch     bool `envconfig:"FAIL_IMPORT_ON_FIRST_BATCH_QUOTA" default:"true"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ImporterConfig holds the CLI importer's settings. It is separate from
// Config so the importer never needs the server-only database variables.
type ImporterConfig struct {
	ServerURL string `envconfig:"IMPORT_SERVER_URL" default:"http://localhost:8080"`
	Token     string `envconfig:"IMPORT_TOKEN"`

	BatchSize        int `envconfig:"IMPORT_BATCH_SIZE" default:"5000"`
	ChunkBuffer      int `envconfig:"IMPORT_CHUNK_BUFFER" default:"2"`
	ProgressInterval int `envconfig:"IMPORT_PROGRESS_INTERVAL" default:"10000"`
	MaxRetries       int `envconfig:"IMPORT_MAX_RETRIES" default:"5"`
	BackoffInitialMs int `envconfig:"IMPORT_BACKOFF_INITIAL_MS" default:"1000"`
	BackoffMaxMs     int `envconfig:"IMPORT_BACKOFF_MAX_MS" default:"30000"`
	PollIntervalSec  int `envconfig:"IMPORT_POLL_INTERVAL_SEC" default:"5"`
}

func LoadImporter() (*ImporterConfig, error) {
	var cfg ImporterConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
