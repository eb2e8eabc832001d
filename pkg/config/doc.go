// Package config loads tracker configuration.
//
// Values are layered: built-in defaults, then an optional YAML overlay file
// (named by TRACKER_CONFIG_FILE or the --config flag), then TRACKER_*
// environment variables. The result is validated before use.
//
// # Environment
//
// Server:
//
//	TRACKER_ADDR=":8080"
//	TRACKER_READ_TIMEOUT="15s"
//	TRACKER_WRITE_TIMEOUT="15s"
//	TRACKER_SHUTDOWN_TIMEOUT="30s"
//	TRACKER_REQUEST_TIMEOUT="30s"
//	TRACKER_CORS_ORIGINS="https://app.example,https://admin.example"
//
// Storage:
//
//	TRACKER_STORAGE_DRIVER="postgres"   # postgres or sqlite3
//	TRACKER_SQLITE_PATH="tracker.db"
//	TRACKER_POSTGRES_URL="postgres://tracker_app@db/tracker"
//	TRACKER_RESOLVER_URL="postgres://tracker_resolver@db/tracker"
//	TRACKER_ROW_SECURITY="true"
//
// Redis (enables the distributed rate limiter):
//
//	TRACKER_REDIS_URL="redis://localhost:6379/0"
//
// Tokens, invitations and jobs:
//
//	TRACKER_TOKEN_CACHE_SIZE="10000"
//	TRACKER_TOKEN_CACHE_TTL="30s"
//	TRACKER_INVITATION_TTL="168h"
//	TRACKER_INVITATION_PURGE_SCHEDULE="@every 1h"
//	TRACKER_TOKEN_CLEANUP_SCHEDULE="30 3 * * *"
//
// Observability:
//
//	TRACKER_LOG_LEVEL="info"   # debug, info, warn, error
//	TRACKER_OTEL_ENABLED="true"
//	TRACKER_OTEL_ENDPOINT="otel-collector:4317"
//
// # Overlay file
//
//	server:
//	  addr: ":8080"
//	storage:
//	  driver: postgres
//	  postgres_url: postgres://tracker_app@db/tracker
//	  row_security: true
//	observability:
//	  log_level: debug
//
// # Reloading
//
// Watch follows the overlay file with fsnotify and applies a new log level
// without a restart. Other settings take effect on the next start.
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//	if path := os.Getenv(config.ConfigFileEnv); path != "" {
//		config.Watch(ctx, path, logger)
//	}
package config
