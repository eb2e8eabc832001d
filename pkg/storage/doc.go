// Package storage owns the relational schema shared by every tracker
// component and the helpers that open database handles for it.
//
// Two drivers are supported:
//
//   - postgres (lib/pq): production. Migrations additionally install the
//     tracker_accessible_project_ids SECURITY DEFINER function and the
//     row-level security policies that call it.
//   - sqlite3 (mattn/go-sqlite3): single-node development and tests. The
//     schema is identical minus the Postgres-only security objects.
//
// Queries elsewhere in the module use $N placeholders, which both drivers
// accept as long as each parameter first appears in ascending order.
//
// Migrations are applied in order inside one transaction each and recorded
// in tracker_migrations:
//
//	if err := storage.RunMigrations(ctx, db, storage.DriverPostgres, logger); err != nil {
//	    return err
//	}
package storage
