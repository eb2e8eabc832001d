package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/platinummonkey/tracker/pkg/contextkeys"
	"github.com/platinummonkey/tracker/pkg/observability"
	"github.com/platinummonkey/tracker/pkg/rbac"
	"github.com/platinummonkey/tracker/pkg/storage"
	"github.com/platinummonkey/tracker/pkg/tracker"
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the SQL repository behind Service. It does no authorization of
// its own. Queries use $N placeholders and run unchanged on Postgres and
// SQLite.
type Store struct {
	db          *sql.DB
	metrics     *observability.Metrics
	rowSecurity bool
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithRowSecurity runs every store call in a transaction that first sets
// tracker.user_id to the caller in ctx, so the Postgres row-level policies
// apply. Only valid on Postgres.
func WithRowSecurity() StoreOption {
	return func(s *Store) {
		s.rowSecurity = true
	}
}

// NewStore creates a store on db
func NewStore(db *sql.DB, metrics *observability.Metrics, opts ...StoreOption) *Store {
	s := &Store{db: db, metrics: metrics}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying handle
func (s *Store) DB() *sql.DB {
	return s.db
}

// read runs fn outside a transaction unless row security is enabled
func (s *Store) read(ctx context.Context, op string, fn func(q querier) error) error {
	if !s.rowSecurity {
		err := fn(s.db)
		s.record(op, err)
		return err
	}
	return s.tx(ctx, op, fn)
}

// tx runs fn in a transaction, committing when it returns nil
func (s *Store) tx(ctx context.Context, op string, fn func(q querier) error) (err error) {
	defer func() { s.record(op, err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if s.rowSecurity {
		user := contextkeys.GetUserID(ctx)
		if _, err := tx.ExecContext(ctx, `SELECT set_config('tracker.user_id', $1, true)`, user); err != nil {
			return fmt.Errorf("failed to set session user: %w", err)
		}
	}

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// record counts a store call; expected outcomes are not failures
func (s *Store) record(op string, err error) {
	if tracker.IsNotFound(err) || tracker.IsConflict(err) || tracker.IsValidation(err) {
		err = nil
	}
	s.metrics.RecordStorageOperation(op, err)
}

// requireAffected maps a write that touched no rows to ErrNotFound
func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return tracker.ErrNotFound
	}
	return nil
}

// constraintError translates driver constraint failures into tracker errors
func constraintError(err error, field string) error {
	switch {
	case storage.IsUniqueViolation(err):
		return fmt.Errorf("%w: %s already exists", tracker.ErrConflict, field)
	case storage.IsForeignKeyViolation(err):
		return tracker.NewValidationError(field, "references an unknown entity")
	}
	return err
}

// placeholders returns "$from, $from+1, ..." for n arguments
func placeholders(from, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(parts, ", ")
}

func uuidPtr(id uuid.NullUUID) *uuid.UUID {
	if !id.Valid {
		return nil
	}
	v := id.UUID
	return &v
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

// UpsertUser inserts u or refreshes its display name and handle
func (s *Store) UpsertUser(ctx context.Context, u *tracker.User) error {
	return s.tx(ctx, "upsert_user", func(q querier) error {
		err := q.QueryRowContext(ctx, `
			INSERT INTO users (id, display_name, handle, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE
			SET display_name = excluded.display_name, handle = excluded.handle
			RETURNING created_at
		`, u.ID, u.DisplayName, u.Handle, u.CreatedAt).Scan(&u.CreatedAt)
		if err != nil {
			return constraintError(fmt.Errorf("failed to upsert user: %w", err), "handle")
		}
		return nil
	})
}

// GetUser loads a user by id
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*tracker.User, error) {
	u := &tracker.User{}
	err := s.read(ctx, "get_user", func(q querier) error {
		err := q.QueryRowContext(ctx, `
			SELECT id, display_name, handle, created_at
			FROM users
			WHERE id = $1
		`, id).Scan(&u.ID, &u.DisplayName, &u.Handle, &u.CreatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return tracker.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// LoadEntity loads the authorization view of the entity ref names
func (s *Store) LoadEntity(ctx context.Context, ref rbac.EntityRef) (rbac.Entity, error) {
	switch ref.Kind {
	case rbac.KindProject:
		p, err := s.GetProject(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		return rbac.ProjectOf(p), nil

	case rbac.KindMembership:
		p, err := s.GetProject(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		if _, err := s.GetMembership(ctx, ref.ID, ref.MemberID); err != nil {
			return nil, err
		}
		return rbac.MembershipOf(p, ref.MemberID), nil

	case rbac.KindTicket:
		p, t, err := s.ticketWithProject(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		return rbac.TicketOf(p, t), nil

	case rbac.KindComment:
		c, err := s.GetComment(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		p, t, err := s.ticketWithProject(ctx, c.TicketID)
		if err != nil {
			return nil, err
		}
		return rbac.CommentOf(p, t, c), nil
	}
	return nil, tracker.NewValidationError("entity_type", "unknown entity type %q", string(ref.Kind))
}

func (s *Store) ticketWithProject(ctx context.Context, ticketID uuid.UUID) (*tracker.Project, *tracker.Ticket, error) {
	t, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	p, err := s.GetProject(ctx, t.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	return p, t, nil
}
