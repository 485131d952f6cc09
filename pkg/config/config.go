// Package config loads and validates the resultsd configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultListen is the default HTTP listen address.
	DefaultListen = ":8080"

	// DefaultMaxPageSize bounds server-side work per read request.
	DefaultMaxPageSize = 100

	// DefaultSQLitePath is the default result database location.
	DefaultSQLitePath = "./results.db"

	// DefaultImportInterval is how often the legacy importer scans
	// blob storage when no interval is configured.
	DefaultImportInterval = "5m"
)

// Config is the root configuration for resultsd.
type Config struct {
	Global       GlobalConfig        `yaml:"global"`
	Server       ServerConfig        `yaml:"server"`
	Auth         AuthConfig          `yaml:"auth"`
	Database     DatabaseConfig      `yaml:"database"`
	Query        QueryConfig         `yaml:"query"`
	LegacyImport *LegacyImportConfig `yaml:"legacy_import,omitempty"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Listen      string          `yaml:"listen"`
	CORSOrigins []string        `yaml:"cors_origins,omitempty"`
	RateLimit   RateLimitConfig `yaml:"rate_limit,omitempty"`
}

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	Enabled bool          `yaml:"enabled"`
	Ingest  RateLimitTier `yaml:"ingest,omitempty"`
	Read    RateLimitTier `yaml:"read,omitempty"`
}

// RateLimitTier defines request limits for a specific tier.
type RateLimitTier struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// AuthConfig selects how upload credentials are verified. The service
// never mints tokens itself: "remote" delegates verification to an
// external authenticator over HTTP, "static" checks against
// config-seeded bcrypt hashes.
type AuthConfig struct {
	Mode   string            `yaml:"mode"`
	Tokens []StaticAuthToken `yaml:"tokens,omitempty"`
	Remote RemoteAuthConfig  `yaml:"remote,omitempty"`
}

// StaticAuthToken defines one accepted upload credential. Hash is a
// bcrypt hash of the raw token.
type StaticAuthToken struct {
	Hash      string `yaml:"hash"`
	Principal string `yaml:"principal"`
}

// RemoteAuthConfig points at the external token verification endpoint.
type RemoteAuthConfig struct {
	Endpoint string `yaml:"endpoint"`
	Timeout  string `yaml:"timeout,omitempty"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite,omitempty"`
	Postgres PostgresConfig `yaml:"postgres,omitempty"`
}

// SQLiteConfig contains SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty"`
}

// QueryConfig contains read endpoint settings.
type QueryConfig struct {
	MaxPageSize int `yaml:"max_page_size"`
}

// LegacyImportConfig configures the background importer that replays
// pre-migration per-user result blobs through the ingestion pipeline.
type LegacyImportConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Interval    string              `yaml:"interval,omitempty"`
	Concurrency int                 `yaml:"concurrency,omitempty"`
	S3          *S3StorageConfig    `yaml:"s3,omitempty"`
	Local       *LocalStorageConfig `yaml:"local,omitempty"`
}

// S3StorageConfig contains S3 settings for reading legacy blobs.
type S3StorageConfig struct {
	EndpointURL     string `yaml:"endpoint_url,omitempty"`
	Region          string `yaml:"region,omitempty"`
	Bucket          string `yaml:"bucket"`
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
	ForcePathStyle  bool   `yaml:"force_path_style"`
	Prefix          string `yaml:"prefix,omitempty"`
}

// LocalStorageConfig reads legacy blobs from a local directory.
type LocalStorageConfig struct {
	Dir string `yaml:"dir"`
}

// Load reads and parses a configuration file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults sets default values for unspecified configuration options.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}

	if c.Auth.Mode == "" {
		c.Auth.Mode = "static"
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}

	if c.Database.Driver == "sqlite" && c.Database.SQLite.Path == "" {
		c.Database.SQLite.Path = DefaultSQLitePath
	}

	if c.Query.MaxPageSize == 0 {
		c.Query.MaxPageSize = DefaultMaxPageSize
	}

	if c.LegacyImport != nil && c.LegacyImport.Interval == "" {
		c.LegacyImport.Interval = DefaultImportInterval
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.SQLite.Path == "" {
			return fmt.Errorf("database.sqlite.path is required")
		}
	case "postgres":
		if c.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}

		if c.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	switch c.Auth.Mode {
	case "static":
		if len(c.Auth.Tokens) == 0 {
			return fmt.Errorf("auth.tokens must not be empty in static mode")
		}

		for i, tok := range c.Auth.Tokens {
			if tok.Hash == "" {
				return fmt.Errorf("auth.tokens[%d]: hash is required", i)
			}
		}
	case "remote":
		if c.Auth.Remote.Endpoint == "" {
			return fmt.Errorf("auth.remote.endpoint is required")
		}

		if c.Auth.Remote.Timeout != "" {
			if _, err := time.ParseDuration(c.Auth.Remote.Timeout); err != nil {
				return fmt.Errorf("parsing auth.remote.timeout: %w", err)
			}
		}
	default:
		return fmt.Errorf("unsupported auth mode: %s", c.Auth.Mode)
	}

	if c.Query.MaxPageSize <= 0 {
		return fmt.Errorf("query.max_page_size must be positive")
	}

	if c.Server.RateLimit.Enabled {
		if c.Server.RateLimit.Ingest.RequestsPerMinute <= 0 {
			return fmt.Errorf("server.rate_limit.ingest.requests_per_minute must be positive")
		}

		if c.Server.RateLimit.Read.RequestsPerMinute <= 0 {
			return fmt.Errorf("server.rate_limit.read.requests_per_minute must be positive")
		}
	}

	if c.LegacyImport != nil && c.LegacyImport.Enabled {
		if err := c.validateLegacyImport(); err != nil {
			return err
		}
	}

	return nil
}

func (c *Config) validateLegacyImport() error {
	li := c.LegacyImport

	if li.S3 == nil && li.Local == nil {
		return fmt.Errorf("legacy_import requires an s3 or local storage section")
	}

	if li.S3 != nil && li.Local != nil {
		return fmt.Errorf("legacy_import: only one of s3 and local may be configured")
	}

	if li.S3 != nil && li.S3.Bucket == "" {
		return fmt.Errorf("legacy_import.s3.bucket is required")
	}

	if li.Local != nil && li.Local.Dir == "" {
		return fmt.Errorf("legacy_import.local.dir is required")
	}

	if _, err := time.ParseDuration(li.Interval); err != nil {
		return fmt.Errorf("parsing legacy_import.interval: %w", err)
	}

	if li.Concurrency < 0 {
		return fmt.Errorf("legacy_import.concurrency must not be negative")
	}

	return nil
}

// ImportInterval returns the parsed legacy import interval. Call after
// Validate.
func (c *Config) ImportInterval() time.Duration {
	if c.LegacyImport == nil {
		return 0
	}

	d, _ := time.ParseDuration(c.LegacyImport.Interval)

	return d
}

// RemoteAuthTimeout returns the parsed remote auth timeout, or zero if
// unset. Call after Validate.
func (c *Config) RemoteAuthTimeout() time.Duration {
	if c.Auth.Remote.Timeout == "" {
		return 0
	}

	d, _ := time.ParseDuration(c.Auth.Remote.Timeout)

	return d
}
