package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/tracker/pkg/observability"
)

// Driver names a database/sql driver the schema supports
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite3"
)

// Validate checks the driver is supported
func (d Driver) Validate() error {
	switch d {
	case DriverPostgres, DriverSQLite:
		return nil
	}
	return fmt.Errorf("unsupported storage driver %q", string(d))
}

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns the ordered migrations for driver
func GetMigrations(driver Driver) []Migration {
	if driver == DriverPostgres {
		return postgresMigrations
	}
	return sqliteMigrations
}

var postgresMigrations = []Migration{
	{
		Version:     1,
		Description: "Create users and api_tokens tables",
		SQL: `
			CREATE TABLE IF NOT EXISTS users (
				id UUID PRIMARY KEY,
				display_name VARCHAR(255) NOT NULL,
				handle VARCHAR(64) NOT NULL UNIQUE,
				created_at TIMESTAMPTZ NOT NULL
			);

			CREATE TABLE IF NOT EXISTS api_tokens (
				id UUID PRIMARY KEY,
				user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				token_hash CHAR(64) NOT NULL UNIQUE,
				token_prefix VARCHAR(32) NOT NULL,
				name VARCHAR(255) NOT NULL,
				scopes TEXT NOT NULL DEFAULT '',
				expires_at TIMESTAMPTZ,
				last_used_at TIMESTAMPTZ,
				created_at TIMESTAMPTZ NOT NULL,
				revoked_at TIMESTAMPTZ
			);

			CREATE INDEX IF NOT EXISTS idx_api_tokens_user_id ON api_tokens(user_id);
		`,
	},
	{
		Version:     2,
		Description: "Create projects, project_members and project_invitations tables",
		SQL: `
			CREATE TABLE IF NOT EXISTS projects (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				owner_id UUID NOT NULL REFERENCES users(id),
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_projects_owner_id ON projects(owner_id);

			CREATE TABLE IF NOT EXISTS project_members (
				project_id UUID NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
				user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				role VARCHAR(16) NOT NULL CHECK (role IN ('admin', 'developer', 'viewer')),
				invited_by UUID REFERENCES users(id) ON DELETE SET NULL,
				joined_at TIMESTAMPTZ NOT NULL,
				PRIMARY KEY (project_id, user_id)
			);

			CREATE INDEX IF NOT EXISTS idx_project_members_user_id ON project_members(user_id);

			CREATE TABLE IF NOT EXISTS project_invitations (
				id UUID PRIMARY KEY,
				project_id UUID NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
				user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				role VARCHAR(16) NOT NULL CHECK (role IN ('admin', 'developer', 'viewer')),
				token VARCHAR(128) NOT NULL UNIQUE,
				invited_by UUID NOT NULL REFERENCES users(id),
				expires_at TIMESTAMPTZ NOT NULL,
				accepted_at TIMESTAMPTZ,
				created_at TIMESTAMPTZ NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_project_invitations_project_id ON project_invitations(project_id);
		`,
	},
	{
		Version:     3,
		Description: "Create tickets, comments and ticket_events tables",
		SQL: `
			CREATE TABLE IF NOT EXISTS tickets (
				id UUID PRIMARY KEY,
				project_id UUID NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
				title VARCHAR(500) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				type VARCHAR(16) NOT NULL CHECK (type IN ('bug', 'feature', 'task')),
				priority VARCHAR(16) NOT NULL CHECK (priority IN ('low', 'medium', 'high', 'critical')),
				status VARCHAR(16) NOT NULL CHECK (status IN ('todo', 'in_progress', 'done')),
				reporter_id UUID NOT NULL REFERENCES users(id),
				assignee_id UUID REFERENCES users(id) ON DELETE SET NULL,
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_tickets_project_id ON tickets(project_id);

			CREATE TABLE IF NOT EXISTS comments (
				id UUID PRIMARY KEY,
				ticket_id UUID NOT NULL REFERENCES tickets(id) ON DELETE CASCADE,
				author_id UUID NOT NULL REFERENCES users(id),
				parent_id UUID REFERENCES comments(id) ON DELETE SET NULL,
				content TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_comments_ticket_id ON comments(ticket_id, created_at, id);

			CREATE TABLE IF NOT EXISTS ticket_events (
				id UUID PRIMARY KEY,
				ticket_id UUID NOT NULL REFERENCES tickets(id) ON DELETE CASCADE,
				actor_id UUID NOT NULL REFERENCES users(id),
				kind VARCHAR(32) NOT NULL,
				from_value TEXT NOT NULL DEFAULT '',
				to_value TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_ticket_events_ticket_id ON ticket_events(ticket_id, created_at);
		`,
	},
	{
		Version:     4,
		Description: "Install accessible-project resolver function",
		SQL: `
			CREATE OR REPLACE FUNCTION tracker_accessible_project_ids(uid UUID)
			RETURNS TABLE (project_id UUID)
			LANGUAGE sql
			STABLE
			SECURITY DEFINER
			SET search_path = public
			AS $$
				SELECT p.id FROM projects p WHERE p.owner_id = uid
				UNION
				SELECT m.project_id FROM project_members m WHERE m.user_id = uid
			$$;

			REVOKE ALL ON FUNCTION tracker_accessible_project_ids(UUID) FROM PUBLIC;

			CREATE OR REPLACE FUNCTION tracker_current_user_id()
			RETURNS UUID
			LANGUAGE sql
			STABLE
			AS $$
				SELECT NULLIF(current_setting('tracker.user_id', true), '')::uuid
			$$;
		`,
	},
	{
		Version:     5,
		Description: "Enable row-level security policies",
		SQL: `
			ALTER TABLE projects ENABLE ROW LEVEL SECURITY;
			ALTER TABLE project_members ENABLE ROW LEVEL SECURITY;
			ALTER TABLE tickets ENABLE ROW LEVEL SECURITY;
			ALTER TABLE comments ENABLE ROW LEVEL SECURITY;

			CREATE POLICY projects_select ON projects FOR SELECT
				USING (id IN (SELECT project_id FROM tracker_accessible_project_ids(tracker_current_user_id())));
			CREATE POLICY projects_insert ON projects FOR INSERT
				WITH CHECK (owner_id = tracker_current_user_id());
			CREATE POLICY projects_update ON projects FOR UPDATE
				USING (owner_id = tracker_current_user_id());
			CREATE POLICY projects_delete ON projects FOR DELETE
				USING (owner_id = tracker_current_user_id());

			CREATE POLICY members_select ON project_members FOR SELECT
				USING (project_id IN (SELECT project_id FROM tracker_accessible_project_ids(tracker_current_user_id())));
			CREATE POLICY members_insert ON project_members FOR INSERT
				WITH CHECK (
					user_id = tracker_current_user_id()
					OR EXISTS (SELECT 1 FROM projects p WHERE p.id = project_id AND p.owner_id = tracker_current_user_id())
				);
			CREATE POLICY members_update ON project_members FOR UPDATE
				USING (EXISTS (SELECT 1 FROM projects p WHERE p.id = project_id AND p.owner_id = tracker_current_user_id()));
			CREATE POLICY members_delete ON project_members FOR DELETE
				USING (EXISTS (SELECT 1 FROM projects p WHERE p.id = project_id AND p.owner_id = tracker_current_user_id()));

			CREATE POLICY tickets_select ON tickets FOR SELECT
				USING (project_id IN (SELECT project_id FROM tracker_accessible_project_ids(tracker_current_user_id())));
			CREATE POLICY tickets_insert ON tickets FOR INSERT
				WITH CHECK (
					reporter_id = tracker_current_user_id()
					AND project_id IN (SELECT project_id FROM tracker_accessible_project_ids(tracker_current_user_id()))
				);
			CREATE POLICY tickets_update ON tickets FOR UPDATE
				USING (
					assignee_id = tracker_current_user_id()
					OR EXISTS (SELECT 1 FROM projects p WHERE p.id = project_id AND p.owner_id = tracker_current_user_id())
				)
				WITH CHECK (project_id IN (SELECT project_id FROM tracker_accessible_project_ids(tracker_current_user_id())));
			CREATE POLICY tickets_delete ON tickets FOR DELETE
				USING (EXISTS (SELECT 1 FROM projects p WHERE p.id = project_id AND p.owner_id = tracker_current_user_id()));

			CREATE POLICY comments_select ON comments FOR SELECT
				USING (EXISTS (
					SELECT 1 FROM tickets t
					WHERE t.id = ticket_id
					AND t.project_id IN (SELECT project_id FROM tracker_accessible_project_ids(tracker_current_user_id()))
				));
			CREATE POLICY comments_insert ON comments FOR INSERT
				WITH CHECK (
					author_id = tracker_current_user_id()
					AND EXISTS (
						SELECT 1 FROM tickets t
						WHERE t.id = ticket_id
						AND t.project_id IN (SELECT project_id FROM tracker_accessible_project_ids(tracker_current_user_id()))
					)
				);
			CREATE POLICY comments_update ON comments FOR UPDATE
				USING (author_id = tracker_current_user_id());
			CREATE POLICY comments_delete ON comments FOR DELETE
				USING (author_id = tracker_current_user_id());
		`,
	},
}

var sqliteMigrations = []Migration{
	{
		Version:     1,
		Description: "Create users and api_tokens tables",
		SQL: `
			CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				display_name TEXT NOT NULL,
				handle TEXT NOT NULL UNIQUE,
				created_at TIMESTAMP NOT NULL
			);

			CREATE TABLE IF NOT EXISTS api_tokens (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				token_hash TEXT NOT NULL UNIQUE,
				token_prefix TEXT NOT NULL,
				name TEXT NOT NULL,
				scopes TEXT NOT NULL DEFAULT '',
				expires_at TIMESTAMP,
				last_used_at TIMESTAMP,
				created_at TIMESTAMP NOT NULL,
				revoked_at TIMESTAMP
			);

			CREATE INDEX IF NOT EXISTS idx_api_tokens_user_id ON api_tokens(user_id);
		`,
	},
	{
		Version:     2,
		Description: "Create projects, project_members and project_invitations tables",
		SQL: `
			CREATE TABLE IF NOT EXISTS projects (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				owner_id TEXT NOT NULL REFERENCES users(id),
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_projects_owner_id ON projects(owner_id);

			CREATE TABLE IF NOT EXISTS project_members (
				project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
				user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				role TEXT NOT NULL CHECK (role IN ('admin', 'developer', 'viewer')),
				invited_by TEXT REFERENCES users(id) ON DELETE SET NULL,
				joined_at TIMESTAMP NOT NULL,
				PRIMARY KEY (project_id, user_id)
			);

			CREATE INDEX IF NOT EXISTS idx_project_members_user_id ON project_members(user_id);

			CREATE TABLE IF NOT EXISTS project_invitations (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
				user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				role TEXT NOT NULL CHECK (role IN ('admin', 'developer', 'viewer')),
				token TEXT NOT NULL UNIQUE,
				invited_by TEXT NOT NULL REFERENCES users(id),
				expires_at TIMESTAMP NOT NULL,
				accepted_at TIMESTAMP,
				created_at TIMESTAMP NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_project_invitations_project_id ON project_invitations(project_id);
		`,
	},
	{
		Version:     3,
		Description: "Create tickets, comments and ticket_events tables",
		SQL: `
			CREATE TABLE IF NOT EXISTS tickets (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
				title TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				type TEXT NOT NULL CHECK (type IN ('bug', 'feature', 'task')),
				priority TEXT NOT NULL CHECK (priority IN ('low', 'medium', 'high', 'critical')),
				status TEXT NOT NULL CHECK (status IN ('todo', 'in_progress', 'done')),
				reporter_id TEXT NOT NULL REFERENCES users(id),
				assignee_id TEXT REFERENCES users(id) ON DELETE SET NULL,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_tickets_project_id ON tickets(project_id);

			CREATE TABLE IF NOT EXISTS comments (
				id TEXT PRIMARY KEY,
				ticket_id TEXT NOT NULL REFERENCES tickets(id) ON DELETE CASCADE,
				author_id TEXT NOT NULL REFERENCES users(id),
				parent_id TEXT REFERENCES comments(id) ON DELETE SET NULL,
				content TEXT NOT NULL,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_comments_ticket_id ON comments(ticket_id, created_at, id);

			CREATE TABLE IF NOT EXISTS ticket_events (
				id TEXT PRIMARY KEY,
				ticket_id TEXT NOT NULL REFERENCES tickets(id) ON DELETE CASCADE,
				actor_id TEXT NOT NULL REFERENCES users(id),
				kind TEXT NOT NULL,
				from_value TEXT NOT NULL DEFAULT '',
				to_value TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_ticket_events_ticket_id ON ticket_events(ticket_id, created_at);
		`,
	},
}

// RunMigrations applies every pending migration for driver, one
// transaction per migration, recording each in tracker_migrations.
func RunMigrations(ctx context.Context, db *sql.DB, driver Driver, logger *observability.Logger) error {
	if err := driver.Validate(); err != nil {
		return err
	}

	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS tracker_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM tracker_migrations")
	if err != nil {
		return fmt.Errorf("failed to query applied migrations: %w", err)
	}
	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}
	rows.Close()

	for _, migration := range GetMigrations(driver) {
		if applied[migration.Version] {
			continue
		}

		log := logger.WithFields(map[string]interface{}{
			"version": migration.Version,
			"driver":  string(driver),
		})
		log.Infof("Running migration: %s", migration.Description)

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO tracker_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}

		log.Info("Migration completed")
	}

	return nil
}
