package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the whole application configuration.
// Populated from environment variables (optionally seeded by a .env file).
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Redis    RedisConfig
	MinIO    MinIOConfig
	ISBNdb   ISBNdbConfig
	Import   ImportConfig
	Activity ActivityConfig
	Job      JobConfig
}

type AppConfig struct {
	Name        string
	Environment string // development, staging, production
	Port        string
	Version     string
	CORSOrigins []string
	AdminAPIKey string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MinConns int
}

type RedisConfig struct {
	Host     string
	Password string
	DB       int
}

type MinIOConfig struct {
	Endpoint  string // localhost:9000
	AccessKey string
	SecretKey string
	Bucket    string // bookcatalog
	UseSSL    bool
}

// =====================================================
// ISBNDB CONFIGURATION
// =====================================================

// ISBNdbConfig configures the metadata provider client.
// BatchSize and BatchDelay are imposed by the provider, not tuning knobs.
type ISBNdbConfig struct {
	APIKey       string
	BaseURL      string
	BatchSize    int
	BatchDelay   time.Duration
	RatePerSec   float64
	MaxRetries   int
	InitialDelay time.Duration
	Timeout      time.Duration
	CacheTTL     time.Duration
}

// =====================================================
// IMPORT CONFIGURATION
// =====================================================

// AuthorLinkMode selects how book authors are stored. Resolved once at startup.
type AuthorLinkMode string

const (
	// AuthorLinkJoin writes book_authors rows and the denormalized books.author_id.
	AuthorLinkJoin AuthorLinkMode = "join"
	// AuthorLinkColumn writes only books.author_id.
	AuthorLinkColumn AuthorLinkMode = "column"
)

type ImportConfig struct {
	ItemDelay      time.Duration
	CoverFolder    string
	CoverRequired  bool
	AuthorLinkMode AuthorLinkMode
	MaxISBNs       int
	// RefetchLimit caps how many identifiers missing from the bulk response
	// are retried one at a time. 0 disables the single lookups.
	RefetchLimit int
}

type ActivityConfig struct {
	Window    time.Duration
	BatchSize int
}

// JobConfig configures scheduled background jobs
type JobConfig struct {
	RetryFailedCron  string
	RetryFailedLimit int
	QueueRedisAddr   string
}

// Load reads config from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "Bookcatalog API"),
			Environment: getEnv("APP_ENV", "development"),
			Port:        getEnv("APP_PORT", "8080"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
			CORSOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),
			AdminAPIKey: getEnv("ADMIN_API_KEY", ""),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "bookcatalog"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 25),
			MinConns: getEnvInt("DB_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: getEnv("MINIO_SECRET_KEY", "minioadmin"),
			Bucket:    getEnv("MINIO_BUCKET", "bookcatalog"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		ISBNdb: ISBNdbConfig{
			APIKey:       getEnv("ISBNDB_API_KEY", ""),
			BaseURL:      getEnv("ISBNDB_BASE_URL", "https://api2.isbndb.com"),
			BatchSize:    getEnvInt("ISBNDB_BATCH_SIZE", 100),
			BatchDelay:   getEnvDuration("ISBNDB_BATCH_DELAY", 1100*time.Millisecond),
			RatePerSec:   getEnvFloat("ISBNDB_RATE_PER_SEC", 1),
			MaxRetries:   getEnvInt("ISBNDB_MAX_RETRIES", 3),
			InitialDelay: getEnvDuration("ISBNDB_INITIAL_DELAY", time.Second),
			Timeout:      getEnvDuration("ISBNDB_TIMEOUT", 30*time.Second),
			CacheTTL:     getEnvDuration("ISBNDB_CACHE_TTL", 24*time.Hour),
		},
		Import: ImportConfig{
			ItemDelay:      getEnvDuration("IMPORT_ITEM_DELAY", 500*time.Millisecond),
			CoverFolder:    getEnv("IMPORT_COVER_FOLDER", "bookcovers"),
			CoverRequired:  getEnvBool("IMPORT_COVER_REQUIRED", false),
			AuthorLinkMode: AuthorLinkMode(getEnv("IMPORT_AUTHOR_LINK_MODE", string(AuthorLinkJoin))),
			MaxISBNs:       getEnvInt("IMPORT_MAX_ISBNS", 1000),
			RefetchLimit:   getEnvInt("IMPORT_REFETCH_LIMIT", 25),
		},
		Activity: ActivityConfig{
			Window:    getEnvDuration("ACTIVITY_WINDOW", 24*time.Hour),
			BatchSize: getEnvInt("ACTIVITY_BATCH_SIZE", 100),
		},
		Job: JobConfig{
			RetryFailedCron:  getEnv("JOB_RETRY_FAILED_IMPORTS_CRON", "0 */6 * * *"),
			RetryFailedLimit: getEnvInt("JOB_RETRY_FAILED_IMPORTS_LIMIT", 20),
		},
	}
	cfg.Job.QueueRedisAddr = cfg.Redis.Host

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that the config is usable
func (c *Config) Validate() error {
	if c.ISBNdb.BatchSize <= 0 {
		return fmt.Errorf("ISBNDB_BATCH_SIZE must be positive, got %d", c.ISBNdb.BatchSize)
	}
	if c.ISBNdb.MaxRetries < 0 {
		return fmt.Errorf("ISBNDB_MAX_RETRIES must not be negative")
	}
	if c.ISBNdb.RatePerSec <= 0 {
		return fmt.Errorf("ISBNDB_RATE_PER_SEC must be positive")
	}
	if c.Activity.BatchSize <= 0 {
		return fmt.Errorf("ACTIVITY_BATCH_SIZE must be positive, got %d", c.Activity.BatchSize)
	}
	if c.Import.MaxISBNs <= 0 {
		return fmt.Errorf("IMPORT_MAX_ISBNS must be positive")
	}
	if c.Import.RefetchLimit < 0 {
		return fmt.Errorf("IMPORT_REFETCH_LIMIT must not be negative")
	}

	switch c.Import.AuthorLinkMode {
	case AuthorLinkJoin, AuthorLinkColumn:
	default:
		return fmt.Errorf("IMPORT_AUTHOR_LINK_MODE must be %q or %q, got %q",
			AuthorLinkJoin, AuthorLinkColumn, c.Import.AuthorLinkMode)
	}

	if c.App.Environment == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD must be set in production")
		}
		if c.ISBNdb.APIKey == "" {
			return fmt.Errorf("ISBNDB_API_KEY must be set in production")
		}
		if c.App.AdminAPIKey == "" {
			return fmt.Errorf("ADMIN_API_KEY must be set in production")
		}
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvList(key string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
