package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/tracker/pkg/observability"
	"github.com/platinummonkey/tracker/pkg/rbac"
	"github.com/platinummonkey/tracker/pkg/storage"
)

// ConfigFileEnv names the optional YAML overlay file
const ConfigFileEnv = "TRACKER_CONFIG_FILE"

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Redis         RedisConfig         `yaml:"redis"`
	Auth          AuthConfig          `yaml:"auth"`
	Invitations   InvitationConfig    `yaml:"invitations"`
	Jobs          JobsConfig          `yaml:"jobs"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

// StorageConfig selects and configures the database
type StorageConfig struct {
	Driver      storage.Driver `yaml:"driver"`
	SQLitePath  string         `yaml:"sqlite_path"`
	PostgresURL string         `yaml:"postgres_url"`
	// ResolverURL connects as the role that may read every membership.
	// Empty means the resolver calls the SECURITY DEFINER function over
	// the primary pool instead.
	ResolverURL string        `yaml:"resolver_url"`
	MaxConns    int           `yaml:"max_conns"`
	MinConns    int           `yaml:"min_conns"`
	Timeout     time.Duration `yaml:"timeout"`
	// RowSecurity binds every statement to the caller so Postgres RLS
	// policies apply.
	RowSecurity bool `yaml:"row_security"`
}

// RedisConfig enables the distributed rate limiter when URL is set
type RedisConfig struct {
	URL        string `yaml:"url"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	MaxRetries int    `yaml:"max_retries"`
	PoolSize   int    `yaml:"pool_size"`
	// FailOpen lets requests through while Redis is unreachable
	FailOpen bool `yaml:"fail_open"`
}

// AuthConfig holds API token settings
type AuthConfig struct {
	TokenCacheSize   int           `yaml:"token_cache_size"`
	TokenCacheTTL    time.Duration `yaml:"token_cache_ttl"`
	RateLimitEnabled bool          `yaml:"rate_limit_enabled"`
}

// InvitationConfig holds invitation settings
type InvitationConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// JobsConfig holds cron schedules for background maintenance
type JobsConfig struct {
	Enabled                 bool   `yaml:"enabled"`
	InvitationPurgeSchedule string `yaml:"invitation_purge_schedule"`
	TokenCleanupSchedule    string `yaml:"token_cleanup_schedule"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`

	OTelEnabled        bool    `yaml:"otel_enabled"`
	OTelEndpoint       string  `yaml:"otel_endpoint"`
	OTelServiceName    string  `yaml:"otel_service_name"`
	OTelServiceVersion string  `yaml:"otel_service_version"`
	OTelInsecure       bool    `yaml:"otel_insecure"`
	OTelSampleRatio    float64 `yaml:"otel_sample_ratio"`
}

// Level returns the parsed log level
func (o ObservabilityConfig) Level() observability.LogLevel {
	return observability.ParseLogLevel(o.LogLevel)
}

// OTel returns the settings InitOTel expects
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
	}
}

// ResolveMode picks how the membership resolver reaches privileged data.
// SQLite has no roles, so it always queries the tables directly.
func (s StorageConfig) ResolveMode() rbac.ResolveMode {
	if s.Driver == storage.DriverPostgres && s.ResolverURL == "" {
		return rbac.ResolveDefinerFunction
	}
	return rbac.ResolveUnion
}

// Default returns the built-in defaults
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RequestTimeout:  30 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Storage: StorageConfig{
			Driver:     storage.DriverSQLite,
			SQLitePath: "tracker.db",
			MaxConns:   20,
			MinConns:   2,
			Timeout:    5 * time.Second,
		},
		Redis: RedisConfig{
			FailOpen: true,
		},
		Auth: AuthConfig{
			TokenCacheSize:   10000,
			TokenCacheTTL:    30 * time.Second,
			RateLimitEnabled: true,
		},
		Invitations: InvitationConfig{
			TTL: 7 * 24 * time.Hour,
		},
		Jobs: JobsConfig{
			Enabled:                 true,
			InvitationPurgeSchedule: "@every 1h",
			TokenCleanupSchedule:    "30 3 * * *",
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "tracker",
			OTelServiceVersion: "dev",
			OTelInsecure:       true,
			OTelSampleRatio:    1.0,
		},
	}
}

// LoadConfig loads configuration using the overlay file named by
// TRACKER_CONFIG_FILE, if any.
func LoadConfig() (*Config, error) {
	return Load(os.Getenv(ConfigFileEnv))
}

// Load layers defaults, the YAML file at path (skipped when empty) and
// TRACKER_* environment variables, in that order, then validates.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	s := &c.Server
	s.Addr = getEnv("TRACKER_ADDR", s.Addr)
	s.ReadTimeout = getEnvDuration("TRACKER_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("TRACKER_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("TRACKER_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("TRACKER_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.RequestTimeout = getEnvDuration("TRACKER_REQUEST_TIMEOUT", s.RequestTimeout)
	s.MaxBodyBytes = getEnvInt64("TRACKER_MAX_BODY_BYTES", s.MaxBodyBytes)
	s.CORSOrigins = getEnvList("TRACKER_CORS_ORIGINS", s.CORSOrigins)

	st := &c.Storage
	st.Driver = storage.Driver(getEnv("TRACKER_STORAGE_DRIVER", string(st.Driver)))
	st.SQLitePath = getEnv("TRACKER_SQLITE_PATH", st.SQLitePath)
	st.PostgresURL = getEnv("TRACKER_POSTGRES_URL", st.PostgresURL)
	st.ResolverURL = getEnv("TRACKER_RESOLVER_URL", st.ResolverURL)
	st.MaxConns = getEnvInt("TRACKER_POSTGRES_MAX_CONNS", st.MaxConns)
	st.MinConns = getEnvInt("TRACKER_POSTGRES_MIN_CONNS", st.MinConns)
	st.Timeout = getEnvDuration("TRACKER_POSTGRES_TIMEOUT", st.Timeout)
	st.RowSecurity = getEnvBool("TRACKER_ROW_SECURITY", st.RowSecurity)

	r := &c.Redis
	r.URL = getEnv("TRACKER_REDIS_URL", r.URL)
	r.Password = getEnv("TRACKER_REDIS_PASSWORD", r.Password)
	r.DB = getEnvInt("TRACKER_REDIS_DB", r.DB)
	r.MaxRetries = getEnvInt("TRACKER_REDIS_MAX_RETRIES", r.MaxRetries)
	r.PoolSize = getEnvInt("TRACKER_REDIS_POOL_SIZE", r.PoolSize)
	r.FailOpen = getEnvBool("TRACKER_REDIS_FAIL_OPEN", r.FailOpen)

	a := &c.Auth
	a.TokenCacheSize = getEnvInt("TRACKER_TOKEN_CACHE_SIZE", a.TokenCacheSize)
	a.TokenCacheTTL = getEnvDuration("TRACKER_TOKEN_CACHE_TTL", a.TokenCacheTTL)
	a.RateLimitEnabled = getEnvBool("TRACKER_RATE_LIMIT_ENABLED", a.RateLimitEnabled)

	c.Invitations.TTL = getEnvDuration("TRACKER_INVITATION_TTL", c.Invitations.TTL)

	j := &c.Jobs
	j.Enabled = getEnvBool("TRACKER_JOBS_ENABLED", j.Enabled)
	j.InvitationPurgeSchedule = getEnv("TRACKER_INVITATION_PURGE_SCHEDULE", j.InvitationPurgeSchedule)
	j.TokenCleanupSchedule = getEnv("TRACKER_TOKEN_CLEANUP_SCHEDULE", j.TokenCleanupSchedule)

	o := &c.Observability
	o.LogLevel = getEnv("TRACKER_LOG_LEVEL", o.LogLevel)
	o.MetricsEnabled = getEnvBool("TRACKER_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("TRACKER_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("TRACKER_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("TRACKER_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("TRACKER_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("TRACKER_OTEL_INSECURE", o.OTelInsecure)
	o.OTelSampleRatio = getEnvFloat("TRACKER_OTEL_SAMPLE_RATIO", o.OTelSampleRatio)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server address is required")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	if err := c.Storage.Driver.Validate(); err != nil {
		return err
	}
	switch c.Storage.Driver {
	case storage.DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("sqlite path is required for the sqlite3 driver")
		}
		if c.Storage.RowSecurity {
			return errors.New("row security requires the postgres driver")
		}
	case storage.DriverPostgres:
		if c.Storage.PostgresURL == "" {
			return errors.New("postgres URL is required for the postgres driver")
		}
		if c.Storage.MaxConns <= 0 {
			return errors.New("postgres max connections must be positive")
		}
	}

	if c.Auth.TokenCacheSize < 0 {
		return errors.New("token cache size cannot be negative")
	}
	if c.Invitations.TTL <= 0 {
		return errors.New("invitation TTL must be positive")
	}

	switch strings.ToLower(c.Observability.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Observability.LogLevel)
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return errors.New("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return errors.New("OpenTelemetry service name is required when OTel is enabled")
		}
		if c.Observability.OTelSampleRatio < 0 || c.Observability.OTelSampleRatio > 1 {
			return errors.New("OpenTelemetry sample ratio must be between 0 and 1")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma-separated environment variable or a default
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
