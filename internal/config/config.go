package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Index backends
const (
	IndexPostgres = "postgres"
	IndexBadger   = "badger"
)

// Content backends
const (
	ContentS3     = "s3"
	ContentLocal  = "local"
	ContentMemory = "memory"
)

type Config struct {
	Port        string
	Environment string
	CORSOrigins string
	MetricsAddr string // empty disables the metrics listener

	// Namespace index
	IndexBackend string
	DatabaseURL  string
	TablePrefix  string
	BadgerDir    string // empty = in-memory

	// Content store
	ContentBackend  string
	S3Endpoint      string
	S3Bucket        string
	S3AccessKey     string
	S3SecretKey     string
	S3Region        string
	LocalContentDir string
	ContentTimeout  time.Duration
	PresignTTL      time.Duration

	// Quota
	DefaultQuotaBytes int64 // 0 = unlimited
	QuotaPlansFile    string
	MaxUploadSize     int64

	// Tree manager
	TxRetryAttempts int
	MaxTreeDepth    int

	// Auth
	JWKSURL   string
	JWTSecret string
	JWTIssuer string

	// Logging
	LogDir      string
	LogMaxFiles int

	// Debug flags
	Debug bool // exposes internal error detail in responses
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: env,
		CORSOrigins: getEnv("CORS_ORIGINS", "http://localhost:3000"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),

		IndexBackend: getEnv("INDEX_BACKEND", IndexPostgres),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		TablePrefix:  getTablePrefix(env),
		BadgerDir:    getEnv("BADGER_DIR", ""),

		ContentBackend:  getEnv("CONTENT_BACKEND", ContentS3),
		S3Endpoint:      getEnv("S3_ENDPOINT", ""),
		S3Bucket:        getEnv("S3_BUCKET", "drivestore"),
		S3AccessKey:     getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:     getEnv("S3_SECRET_KEY", ""),
		S3Region:        getEnv("S3_REGION", "us-east-1"),
		LocalContentDir: getEnv("LOCAL_CONTENT_DIR", "./data/content"),
		ContentTimeout:  getEnvDuration("CONTENT_TIMEOUT", 30*time.Second),
		PresignTTL:      getEnvDuration("PRESIGN_TTL", 15*time.Minute),

		DefaultQuotaBytes: getEnvInt64("DEFAULT_QUOTA_BYTES", DefaultQuotaBytes),
		QuotaPlansFile:    getEnv("QUOTA_PLANS_FILE", ""),
		MaxUploadSize:     getEnvInt64("MAX_UPLOAD_SIZE", DefaultMaxUploadSize),

		TxRetryAttempts: int(getEnvInt64("TX_RETRY_ATTEMPTS", DefaultTxRetryAttempts)),
		MaxTreeDepth:    int(getEnvInt64("MAX_TREE_DEPTH", DefaultMaxTreeDepth)),

		JWKSURL:   getEnv("JWKS_URL", ""),
		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTIssuer: getEnv("JWT_ISSUER", ""),

		LogDir:      getEnv("LOG_DIR", ""),
		LogMaxFiles: int(getEnvInt64("LOG_MAX_FILES", 10)),

		// Debug flags - default to true in dev/test, false in production
		Debug: getEnv("DEBUG", getDefaultDebug(env)) == "true",
	}
}

// Validate checks settings that would otherwise fail at first use
func (c *Config) Validate() error {
	switch c.IndexBackend {
	case IndexPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres index")
		}
	case IndexBadger:
	default:
		return fmt.Errorf("unknown INDEX_BACKEND %q", c.IndexBackend)
	}

	switch c.ContentBackend {
	case ContentS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for the s3 content store")
		}
	case ContentLocal, ContentMemory:
	default:
		return fmt.Errorf("unknown CONTENT_BACKEND %q", c.ContentBackend)
	}

	if c.DefaultQuotaBytes < 0 {
		return fmt.Errorf("DEFAULT_QUOTA_BYTES must not be negative")
	}
	if c.TxRetryAttempts < 1 {
		return fmt.Errorf("TX_RETRY_ATTEMPTS must be at least 1")
	}
	if c.MaxTreeDepth < 1 {
		return fmt.Errorf("MAX_TREE_DEPTH must be at least 1")
	}
	if c.ContentTimeout <= 0 {
		return fmt.Errorf("CONTENT_TIMEOUT must be positive")
	}
	return nil
}

// getDefaultDebug returns the default debug setting based on environment
func getDefaultDebug(env string) string {
	if env == "prod" {
		return "false"
	}
	return "true"
}

// getTablePrefix returns the table prefix based on environment
func getTablePrefix(env string) string {
	// Allow manual override via TABLE_PREFIX env var
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}

	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: invalid %s=%q, using %d\n", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: invalid %s=%q, using %s\n", key, value, defaultValue)
		return defaultValue
	}
	return d
}
