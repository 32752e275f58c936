package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port       string
	AdminToken string

	// Database
	SQLiteDBPath string

	// Catalog backend: "memory" reads seed files from DataDirectory,
	// "sheets" reads the Google spreadsheet.
	CatalogBackend string
	DataDirectory  string

	// Google Sheets
	GoogleSpreadsheetID      string
	GoogleProductsSheet      string
	GooglePricesSheet        string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
	// OAuth user credentials (see cmd/oauth-init), used without a service account
	GoogleOAuthClientJSON string
	GoogleOAuthClientFile string
	GoogleOAuthTokenJSON  string
	GoogleOAuthTokenFile  string

	// Catalog caching
	CatalogTTL             time.Duration
	CatalogRefreshInterval time.Duration
	PriceFetchTimeout      time.Duration

	// AMQP (optional; empty URL disables publishing)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Statistics cache
	StatsCacheTTL  time.Duration
	StatsCacheSize int

	// Worker
	AuditLogPath string

	LogLevel string
}

func Load() *Config {
	cfg := &Config{
		Port:       getEnv("PORT", "8081"),
		AdminToken: os.Getenv("ADMIN_TOKEN"),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/ordini.db"),

		CatalogBackend: getEnv("CATALOG_BACKEND", "memory"),
		DataDirectory:  getEnv("DATA_DIRECTORY", "data"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleProductsSheet:      getEnv("GOOGLE_PRODUCTS_SHEET", "Products"),
		GooglePricesSheet:        getEnv("GOOGLE_PRICES_SHEET", "Prices"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		GoogleOAuthClientJSON:    getEnv("GOOGLE_OAUTH_CLIENT_JSON", ""),
		GoogleOAuthClientFile:    getEnv("GOOGLE_OAUTH_CLIENT_FILE", ""),
		GoogleOAuthTokenJSON:     getEnv("GOOGLE_OAUTH_TOKEN_JSON", ""),
		GoogleOAuthTokenFile:     getEnv("GOOGLE_OAUTH_TOKEN_FILE", ""),

		CatalogTTL:             getEnvDuration("CATALOG_TTL", 5*time.Minute),
		CatalogRefreshInterval: getEnvDuration("CATALOG_REFRESH_INTERVAL", 4*time.Minute),
		PriceFetchTimeout:      getEnvDuration("PRICE_FETCH_TIMEOUT", 10*time.Second),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "ordini"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "order_completed"),

		StatsCacheTTL:  getEnvDuration("STATS_CACHE_TTL", time.Minute),
		StatsCacheSize: getEnvInt("STATS_CACHE_SIZE", 64),

		AuditLogPath: getEnv("AUDIT_LOG_PATH", "./data/completions.log"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

// Validate validates the configuration and returns every problem in one error
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate SQLite path
	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	// Validate catalog backend
	validBackends := []string{"memory", "sheets"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.CatalogBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid catalog backend '%s': must be one of %v", c.CatalogBackend, validBackends))
	}

	if c.CatalogBackend == "sheets" {
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
		}
		files := []struct{ label, path string }{
			{"service account", c.GoogleServiceAccountFile},
			{"OAuth client", c.GoogleOAuthClientFile},
			{"OAuth token", c.GoogleOAuthTokenFile},
		}
		for _, f := range files {
			if f.path == "" {
				continue
			}
			if _, err := os.Stat(f.path); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google %s file does not exist: %s", f.label, f.path))
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

	// Validate timings
	if c.PriceFetchTimeout < time.Second || c.PriceFetchTimeout > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid price fetch timeout %v: must be between 1s and 60s", c.PriceFetchTimeout))
	}
	if c.CatalogTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid catalog TTL %v: must be at least 1 second", c.CatalogTTL))
	} else if c.CatalogTTL > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid catalog TTL %v: must be at most 24 hours", c.CatalogTTL))
	}
	if c.CatalogRefreshInterval < 0 {
		errors = append(errors, fmt.Sprintf("invalid catalog refresh interval %v: must not be negative", c.CatalogRefreshInterval))
	}
	if c.StatsCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid stats cache TTL %v: must not be negative", c.StatsCacheTTL))
	}
	if c.StatsCacheSize < 1 || c.StatsCacheSize > 10000 {
		errors = append(errors, fmt.Sprintf("invalid stats cache size %d: must be between 1 and 10000", c.StatsCacheSize))
	}

	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// AMQPEnabled reports whether completion events go to RabbitMQ.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
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
