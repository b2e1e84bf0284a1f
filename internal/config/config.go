package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// Server
	Port    int
	DevMode bool
	AppURL  string

	// Database
	DatabasePath string

	// Ledger (external double-entry accounting service)
	LedgerURL   string
	LedgerToken string

	// Encryption key for InstitutionLink credential material (>= 32 chars)
	EncryptionKey string

	// Auth
	JWTAccessSecret  string
	JWTRefreshSecret string
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration

	// Aggregator (hosted multi-institution bank sync API)
	AggregatorClientID     string
	AggregatorClientSecret string
	AggregatorEnv          string
	AggregatorWebhookURL   string

	// Optional integrations
	LLMAPIKey            string
	PushURL              string
	PushTopic            string
	PropertyValuationKey string
	StripeSecretKey      string
	StripeWebhookSecret  string

	// File uploads / downloads
	UploadDir   string
	DownloadDir string

	// Backup (S3-compatible)
	BackupBucket    string
	BackupRegion    string
	BackupAccessKey string
	BackupSecretKey string
	BackupEndpoint  string

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:    getEnvAsInt("PORT", 8080),
		DevMode: getEnvAsBool("DEV_MODE", false),
		AppURL:  getEnv("APP_URL", "http://localhost:8080"),

		DatabasePath: getEnv("DATABASE_PATH", "./data/finhub.db"),

		LedgerURL:   getEnv("LEDGER_URL", ""),
		LedgerToken: getEnv("LEDGER_TOKEN", ""),

		EncryptionKey: getEnv("ENCRYPTION_KEY", ""),

		JWTAccessSecret:  getEnv("JWT_ACCESS_SECRET", ""),
		JWTRefreshSecret: getEnv("JWT_REFRESH_SECRET", ""),
		AccessTokenTTL:   getEnvAsDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:  getEnvAsDuration("REFRESH_TOKEN_TTL", 30*24*time.Hour),

		AggregatorClientID:     getEnv("AGGREGATOR_CLIENT_ID", ""),
		AggregatorClientSecret: getEnv("AGGREGATOR_CLIENT_SECRET", ""),
		AggregatorEnv:          getEnv("AGGREGATOR_ENV", "sandbox"),
		AggregatorWebhookURL:   getEnv("AGGREGATOR_WEBHOOK_URL", ""),

		LLMAPIKey:            getEnv("LLM_API_KEY", ""),
		PushURL:              getEnv("PUSH_URL", ""),
		PushTopic:            getEnv("PUSH_TOPIC", "finhub-alerts"),
		PropertyValuationKey: getEnv("PROPERTY_VALUATION_API_KEY", ""),
		StripeSecretKey:      getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret:  getEnv("STRIPE_WEBHOOK_SECRET", ""),

		UploadDir:   getEnv("UPLOAD_DIR", "./uploads"),
		DownloadDir: getEnv("DOWNLOAD_DIR", "./downloads"),

		BackupBucket:    getEnv("BACKUP_BUCKET", ""),
		BackupRegion:    getEnv("BACKUP_REGION", "auto"),
		BackupAccessKey: getEnv("BACKUP_ACCESS_KEY", ""),
		BackupSecretKey: getEnv("BACKUP_SECRET_KEY", ""),
		BackupEndpoint:  getEnv("BACKUP_ENDPOINT", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if len(c.EncryptionKey) < 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be at least 32 characters")
	}
	if c.JWTAccessSecret == "" || c.JWTRefreshSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET are required")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
