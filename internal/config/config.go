package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type Config struct {
	// Storage backend selection
	DataBackend  string
	SQLiteDBPath string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Attachments
	BlobBackend string
	BlobDir     string
	BlobBaseURL string
	GCSBucket   string

	// Google Sheets ledger mirror
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Worker
	DuesReportSchedule string

	// Services
	RecurringHorizon int
	CacheSize        int
	CacheTTL         time.Duration

	LogLevel string
}

func Load() *Config {
	cfg := &Config{
		DataBackend:  getEnv("DATA_BACKEND", "sqlite"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/dues.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "dues"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ledger_events"),

		BlobBackend: getEnv("BLOB_BACKEND", "none"),
		BlobDir:     getEnv("BLOB_DIR", "./data/attachments"),
		BlobBaseURL: getEnv("BLOB_BASE_URL", ""),
		GCSBucket:   getEnv("GCS_BUCKET", ""),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Ledger"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),

		DuesReportSchedule: getEnv("DUES_REPORT_SCHEDULE", "0 6 * * *"),

		RecurringHorizon: getEnvInt("RECURRING_HORIZON", 12),
		CacheSize:        getEnvInt("CACHE_SIZE", 500),
		CacheTTL:         getEnvDuration("CACHE_TTL", 5*time.Minute),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

// MirrorEnabled reports whether the Google Sheets mirror is configured.
func (c *Config) MirrorEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate data backend
	validBackends := []string{"memory", "sqlite"}
	if !oneOf(c.DataBackend, validBackends) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	// Validate SQLite configuration if backend is sqlite
	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			// Check if directory exists or can be created
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Validate attachment storage
	validBlobs := []string{"none", "disk", "gcs"}
	switch {
	case !oneOf(c.BlobBackend, validBlobs):
		errors = append(errors, fmt.Sprintf("invalid blob backend '%s': must be one of %v", c.BlobBackend, validBlobs))
	case c.BlobBackend == "disk" && c.BlobDir == "":
		errors = append(errors, "BLOB_DIR is required when using disk blob backend")
	case c.BlobBackend == "gcs":
		if c.GCSBucket == "" {
			errors = append(errors, "GCS_BUCKET is required when using gcs blob backend")
		}
		errors = append(errors, c.validateServiceAccount("gcs blob backend")...)
	}
	if c.BlobBaseURL != "" {
		if u, err := url.Parse(c.BlobBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errors = append(errors, fmt.Sprintf("invalid BLOB_BASE_URL '%s': must be an http(s) URL", c.BlobBaseURL))
		}
	}

	// Validate Google Sheets mirror if enabled
	if c.MirrorEnabled() {
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when the ledger mirror is enabled")
		}
		errors = append(errors, c.validateServiceAccount("ledger mirror")...)
	}

	// Validate worker configuration
	if _, err := cron.ParseStandard(c.DuesReportSchedule); err != nil {
		errors = append(errors, fmt.Sprintf("invalid dues report schedule '%s': %v", c.DuesReportSchedule, err))
	}

	if c.RecurringHorizon < 1 || c.RecurringHorizon > 120 {
		errors = append(errors, fmt.Sprintf("invalid recurring horizon %d: must be between 1 and 120 months", c.RecurringHorizon))
	}
	if c.CacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid cache size %d: must be at least 1", c.CacheSize))
	}
	if c.CacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must be at least 1 second", c.CacheTTL))
	}

	validLevels := []string{"debug", "info", "warn", "warning", "error"}
	if !oneOf(strings.ToLower(c.LogLevel), validLevels) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func (c *Config) validateServiceAccount(what string) []string {
	var errors []string
	if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" && os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
		errors = append(errors, fmt.Sprintf("either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided for %s", what))
	}
	if c.GoogleServiceAccountFile != "" {
		if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
	}
	return errors
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
