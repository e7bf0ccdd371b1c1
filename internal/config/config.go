// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// DefaultEnvFile is read by Load when present.
const DefaultEnvFile = ".env"

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// License store
	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`
	DatabaseURL string `env:"DATABASE_URL"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns  int32  `env:"DB_MIN_CONNS" envDefault:"2"`

	// Licenses seeded into the memory store, "KEY:max,KEY2:max".
	DevLicenses string `env:"DEV_LICENSES"`

	// Cache (Redis). Only needed for the license lock, rate limiting and audit.
	RedisURL string `env:"REDIS_URL"`

	// Activation audit trail (Redis stream to PostgreSQL)
	AuditEnabled   bool `env:"AUDIT_ENABLED" envDefault:"false"`
	AuditBatchSize int  `env:"AUDIT_BATCH_SIZE" envDefault:"200"`

	// Activation
	StoreTimeout         time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
	ActivationMaxRetries int           `env:"ACTIVATION_MAX_RETRIES" envDefault:"3"`
	StrictLookupErrors   bool          `env:"STRICT_LOOKUP_ERRORS" envDefault:"true"`
	LicenseLockEnabled   bool          `env:"LICENSE_LOCK_ENABLED" envDefault:"false"`
	LicenseLockTTL       time.Duration `env:"LICENSE_LOCK_TTL" envDefault:"10s"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Per-IP rate limiting of the activation endpoint
	RateLimitEnabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"false"`
	RateLimitRPS     int  `env:"RATE_LIMIT_RPS" envDefault:"10"`
	RateLimitBurst   int  `env:"RATE_LIMIT_BURST" envDefault:"20"`

	// Comma-separated list of allowed origins, "*" for any.
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// NeedsRedis reports whether any enabled feature uses Redis.
func (c *Config) NeedsRedis() bool {
	return c.LicenseLockEnabled || c.RateLimitEnabled || c.AuditEnabled
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// GetDevLicenses parses DevLicenses into key to device limit.
func (c *Config) GetDevLicenses() (map[string]int, error) {
	licenses := make(map[string]int)
	for _, entry := range strings.Split(c.DevLicenses, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		idx := strings.LastIndex(entry, ":")
		if idx <= 0 {
			return nil, fmt.Errorf("DEV_LICENSES entry %q: want KEY:max", entry)
		}
		maxDevices, err := strconv.Atoi(entry[idx+1:])
		if err != nil || maxDevices < 0 {
			return nil, fmt.Errorf("DEV_LICENSES entry %q: invalid device limit", entry)
		}
		licenses[entry[:idx]] = maxDevices
	}
	return licenses, nil
}

// Validate checks cross-field constraints env tags cannot express.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	case StoreDriverMemory:
		if c.IsProduction() {
			return errors.New("STORE_DRIVER=memory is not allowed in production")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	if c.DevLicenses != "" {
		if c.StoreDriver != StoreDriverMemory {
			return errors.New("DEV_LICENSES requires STORE_DRIVER=memory")
		}
		if _, err := c.GetDevLicenses(); err != nil {
			return err
		}
	}

	if c.NeedsRedis() && c.RedisURL == "" {
		return errors.New("REDIS_URL is required when LICENSE_LOCK_ENABLED, RATE_LIMIT_ENABLED or AUDIT_ENABLED is set")
	}
	if c.AuditEnabled {
		if c.StoreDriver != StoreDriverPostgres {
			return errors.New("AUDIT_ENABLED requires STORE_DRIVER=postgres")
		}
		if c.AuditBatchSize <= 0 {
			return errors.New("AUDIT_BATCH_SIZE must be positive")
		}
	}
	if c.StoreTimeout <= 0 {
		return errors.New("STORE_TIMEOUT must be positive")
	}
	if c.ActivationMaxRetries < 0 {
		return errors.New("ACTIVATION_MAX_RETRIES must not be negative")
	}
	if c.LicenseLockEnabled && c.LicenseLockTTL <= 0 {
		return errors.New("LICENSE_LOCK_TTL must be positive")
	}
	if c.RateLimitEnabled && (c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0) {
		return errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if c.MaxRequestBodySize <= 0 {
		return errors.New("MAX_REQUEST_BODY_SIZE must be positive")
	}
	return nil
}

// Load reads DefaultEnvFile if present, then parses environment variables.
func Load() (*Config, error) {
	return LoadFile(DefaultEnvFile)
}

// LoadFile is Load with an explicit env file. Variables already set in the
// environment take precedence over the file. A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
