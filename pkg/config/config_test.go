package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tracker/pkg/observability"
	"github.com/platinummonkey/tracker/pkg/rbac"
	"github.com/platinummonkey/tracker/pkg/storage"
)

// TestGetEnv tests the getEnv helper function
func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns env value when set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when env not set",
			key:          "TEST_VAR_NOT_SET",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvBool tests the getEnvBool helper function
func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue bool
		want         bool
	}{
		{"returns true for 'true'", "true", false, true},
		{"returns true for 'TRUE'", "TRUE", false, true},
		{"returns true for '1'", "1", false, true},
		{"returns false for 'false'", "false", true, false},
		{"returns false for anything else", "yes", true, false},
		{"returns default when unset", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv("TEST_BOOL", tt.envValue)
			}
			if got := getEnvBool("TEST_BOOL", tt.defaultValue); got != tt.want {
				t.Errorf("getEnvBool() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvNumbers tests the numeric helpers, which fall back on parse errors
func TestGetEnvNumbers(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BAD_INT", "forty-two")
	t.Setenv("TEST_INT64", "1048576")
	t.Setenv("TEST_FLOAT", "0.25")
	t.Setenv("TEST_DURATION", "90s")
	t.Setenv("TEST_BAD_DURATION", "soon")

	assert.Equal(t, 42, getEnvInt("TEST_INT", 7))
	assert.Equal(t, 7, getEnvInt("TEST_BAD_INT", 7))
	assert.Equal(t, int64(1048576), getEnvInt64("TEST_INT64", 1))
	assert.Equal(t, 0.25, getEnvFloat("TEST_FLOAT", 1))
	assert.Equal(t, 90*time.Second, getEnvDuration("TEST_DURATION", time.Second))
	assert.Equal(t, time.Second, getEnvDuration("TEST_BAD_DURATION", time.Second))
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("TEST_LIST", " https://a.example , ,https://b.example")
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, getEnvList("TEST_LIST", nil))
	assert.Equal(t, []string{"x"}, getEnvList("TEST_LIST_UNSET", []string{"x"}))
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, storage.DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, 7*24*time.Hour, cfg.Invitations.TTL)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.Level())
	assert.True(t, cfg.Jobs.Enabled)
	assert.True(t, cfg.Redis.FailOpen)
	assert.Equal(t, rbac.ResolveUnion, cfg.Storage.ResolveMode())
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker.yaml")
	writeFile(t, path, `
server:
  addr: ":9000"
  cors_origins: ["https://app.example"]
storage:
  driver: postgres
  postgres_url: postgres://tracker@db/tracker
  row_security: true
invitations:
  ttl: 72h
redis:
  url: redis://cache:6379
observability:
  log_level: warn
`)
	t.Setenv("TRACKER_REDIS_FAIL_OPEN", "false")
	t.Setenv("TRACKER_ADDR", ":9100")
	t.Setenv("TRACKER_TOKEN_CACHE_SIZE", "0")

	cfg, err := Load(path)
	require.NoError(t, err)

	// Environment wins over the file, the file over defaults
	assert.Equal(t, ":9100", cfg.Server.Addr)
	assert.Equal(t, []string{"https://app.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, storage.DriverPostgres, cfg.Storage.Driver)
	assert.True(t, cfg.Storage.RowSecurity)
	assert.Equal(t, 72*time.Hour, cfg.Invitations.TTL)
	assert.Equal(t, observability.WarnLevel, cfg.Observability.Level())
	assert.Zero(t, cfg.Auth.TokenCacheSize)
	assert.Equal(t, "redis://cache:6379", cfg.Redis.URL)
	assert.False(t, cfg.Redis.FailOpen)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, rbac.ResolveDefinerFunction, cfg.Storage.ResolveMode())
}

func TestLoadConfig_UsesConfigFileEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker.yaml")
	writeFile(t, path, "observability:\n  log_level: debug\n")
	t.Setenv(ConfigFileEnv, path)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.Level())
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	bad := filepath.Join(dir, "bad.yaml")
	writeFile(t, bad, "server: [not, a, map")
	_, err = Load(bad)
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"missing addr", func(c *Config) { c.Server.Addr = "" }, "server address is required"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mysql" }, "mysql"},
		{"postgres without url", func(c *Config) { c.Storage.Driver = storage.DriverPostgres }, "postgres URL is required"},
		{"sqlite without path", func(c *Config) { c.Storage.SQLitePath = "" }, "sqlite path is required"},
		{"row security on sqlite", func(c *Config) { c.Storage.RowSecurity = true }, "row security requires the postgres driver"},
		{"zero invitation ttl", func(c *Config) { c.Invitations.TTL = 0 }, "invitation TTL must be positive"},
		{"negative cache", func(c *Config) { c.Auth.TokenCacheSize = -1 }, "token cache size cannot be negative"},
		{"bad log level", func(c *Config) { c.Observability.LogLevel = "loud" }, "invalid log level"},
		{"otel without endpoint", func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelEndpoint = ""
		}, "OpenTelemetry endpoint is required"},
		{"otel bad ratio", func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelSampleRatio = 2
		}, "sample ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestObservabilityConfig_OTel(t *testing.T) {
	o := Default().Observability
	o.OTelEnabled = true
	otel := o.OTel()
	assert.True(t, otel.Enabled)
	assert.Equal(t, "tracker", otel.ServiceName)
	assert.Equal(t, "localhost:4317", otel.Endpoint)
	assert.Equal(t, 1.0, otel.SampleRatio)
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker.yaml")
	writeFile(t, path, "observability:\n  log_level: info\n")

	logger := observability.NewLogger(observability.ErrorLevel, &syncBuffer{})
	w, err := NewWatcher(path, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reloaded := make(chan *Config, 8)
	go w.Run(ctx, func(cfg *Config) { reloaded <- cfg })

	// An invalid file is skipped
	writeFile(t, path, "observability:\n  log_level: loud\n")
	writeFile(t, path, "observability:\n  log_level: debug\n")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-reloaded:
			if cfg.Observability.Level() == observability.DebugLevel {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for config reload")
		}
	}
}

func TestWatch_UpdatesLogLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker.yaml")
	writeFile(t, path, "observability:\n  log_level: error\n")

	out := &syncBuffer{}
	logger := observability.NewLogger(observability.ErrorLevel, out)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, Watch(ctx, path, logger))

	writeFile(t, path, "observability:\n  log_level: debug\n")

	require.Eventually(t, func() bool {
		logger.Debug("probe")
		return bytes.Contains(out.Bytes(), []byte(`"msg":"probe"`))
	}, 5*time.Second, 20*time.Millisecond)
}

func TestNewWatcher_MissingDirectory(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "nope", "tracker.yaml"), observability.NewLogger(observability.ErrorLevel, nil))
	assert.Error(t, err)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}
