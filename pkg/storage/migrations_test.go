package storage

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tracker/pkg/observability"
)

func TestGetMigrations_Ordered(t *testing.T) {
	for _, driver := range []Driver{DriverPostgres, DriverSQLite} {
		t.Run(string(driver), func(t *testing.T) {
			migrations := GetMigrations(driver)
			require.NotEmpty(t, migrations)
			for i, m := range migrations {
				assert.Equal(t, i+1, m.Version)
				assert.NotEmpty(t, m.Description)
				assert.NotEmpty(t, m.SQL)
			}
		})
	}
}

func TestPostgresMigrations_InstallDefinerFunction(t *testing.T) {
	var found bool
	for _, m := range GetMigrations(DriverPostgres) {
		if bytes.Contains([]byte(m.SQL), []byte("SECURITY DEFINER")) {
			found = true
		}
	}
	assert.True(t, found)
}

// The assignee may hand a ticket off, so the new row is only checked for
// project access.
func TestPostgresMigrations_TicketUpdateChecksNewRowSeparately(t *testing.T) {
	var policy string
	for _, m := range GetMigrations(DriverPostgres) {
		start := strings.Index(m.SQL, "CREATE POLICY tickets_update")
		if start < 0 {
			continue
		}
		rest := m.SQL[start:]
		if end := strings.Index(rest, ";"); end >= 0 {
			rest = rest[:end]
		}
		policy = rest
	}
	require.NotEmpty(t, policy)

	using, check, ok := strings.Cut(policy, "WITH CHECK")
	require.True(t, ok, policy)
	assert.Contains(t, using, "assignee_id")
	assert.NotContains(t, check, "assignee_id")
	assert.Contains(t, check, "tracker_accessible_project_ids")
}

func TestDriver_Validate(t *testing.T) {
	assert.NoError(t, DriverPostgres.Validate())
	assert.NoError(t, DriverSQLite.Validate())
	assert.Error(t, Driver("mysql").Validate())
}

func TestRunMigrations_SQLite(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	defer db.Close()

	var buf bytes.Buffer
	logger := observability.NewLogger(observability.InfoLevel, &buf)

	require.NoError(t, RunMigrations(ctx, db, DriverSQLite, logger))
	assert.Contains(t, buf.String(), "Running migration")

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tracker_migrations").Scan(&count))
	assert.Equal(t, len(GetMigrations(DriverSQLite)), count)

	// Second run is a no-op
	buf.Reset()
	require.NoError(t, RunMigrations(ctx, db, DriverSQLite, logger))
	assert.Zero(t, buf.Len())

	for _, table := range []string{"users", "projects", "project_members", "project_invitations", "tickets", "comments", "ticket_events", "api_tokens"} {
		var name string
		err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = $1", table).Scan(&name)
		require.NoError(t, err, table)
	}
}

func TestOpenSQLite_ForeignKeysEnforced(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	defer db.Close()

	var enabled int
	require.NoError(t, db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&enabled))
	assert.Equal(t, 1, enabled)
}

func TestRunMigrations_UnknownDriver(t *testing.T) {
	err := RunMigrations(context.Background(), nil, Driver("oracle"), observability.NewLogger(observability.InfoLevel, nil))
	require.Error(t, err)
}
