package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// ConnectionManager manages the application pool and the privileged
// resolver pool. The resolver pool is only ever handed to the membership
// resolver; nothing else may query through it.
type ConnectionManager struct {
	primary  *sql.DB
	resolver *sql.DB
	shared   bool
	config   ConnectionConfig
}

// ConnectionConfig holds database connection configuration
type ConnectionConfig struct {
	PrimaryURL  string
	ResolverURL string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// NewConnectionManager opens the primary pool and, when ResolverURL is set,
// a separate resolver pool. Without ResolverURL the resolver shares the
// primary pool and relies on the SECURITY DEFINER function for privilege.
func NewConnectionManager(config ConnectionConfig) (*ConnectionManager, error) {
	primary, err := openPool(config.PrimaryURL, config.MaxConns, config)
	if err != nil {
		return nil, fmt.Errorf("failed to open primary connection: %w", err)
	}

	if config.ResolverURL == "" {
		return newConnectionManager(primary, nil, config), nil
	}

	// Resolution is one short query per request; a quarter of the primary
	// pool is plenty.
	resolverConns := config.MaxConns / 4
	if resolverConns < 2 {
		resolverConns = 2
	}
	resolver, err := openPool(config.ResolverURL, resolverConns, config)
	if err != nil {
		primary.Close()
		return nil, fmt.Errorf("failed to open resolver connection: %w", err)
	}

	return newConnectionManager(primary, resolver, config), nil
}

func newConnectionManager(primary, resolver *sql.DB, config ConnectionConfig) *ConnectionManager {
	cm := &ConnectionManager{
		primary:  primary,
		resolver: resolver,
		config:   config,
	}
	if resolver == nil {
		cm.resolver = primary
		cm.shared = true
	}
	return cm
}

func openPool(url string, maxConns int, config ConnectionConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(config.MinConns)
	db.SetConnMaxLifetime(config.MaxLifetime)
	db.SetConnMaxIdleTime(config.MaxIdleTime)

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping: %w", err)
	}
	return db, nil
}

// Primary returns the application connection pool
func (cm *ConnectionManager) Primary() *sql.DB {
	return cm.primary
}

// Resolver returns the privileged pool for accessible-project resolution
func (cm *ConnectionManager) Resolver() *sql.DB {
	return cm.resolver
}

// SharedResolver reports whether the resolver uses the primary pool
func (cm *ConnectionManager) SharedResolver() bool {
	return cm.shared
}

// HealthCheck pings both pools
func (cm *ConnectionManager) HealthCheck(ctx context.Context) error {
	if err := cm.primary.PingContext(ctx); err != nil {
		return fmt.Errorf("primary unhealthy: %w", err)
	}
	if !cm.shared {
		if err := cm.resolver.PingContext(ctx); err != nil {
			return fmt.Errorf("resolver unhealthy: %w", err)
		}
	}
	return nil
}

// ConnectionStats holds statistics for both pools
type ConnectionStats struct {
	Primary  sql.DBStats
	Resolver sql.DBStats
}

// Stats returns connection pool statistics
func (cm *ConnectionManager) Stats() ConnectionStats {
	return ConnectionStats{
		Primary:  cm.primary.Stats(),
		Resolver: cm.resolver.Stats(),
	}
}

// Close closes all database connections
func (cm *ConnectionManager) Close() error {
	var errs []error

	if err := cm.primary.Close(); err != nil {
		errs = append(errs, fmt.Errorf("primary close error: %w", err))
	}
	if !cm.shared {
		if err := cm.resolver.Close(); err != nil {
			errs = append(errs, fmt.Errorf("resolver close error: %w", err))
		}
	}

	return errors.Join(errs...)
}
