package rbac

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/platinummonkey/tracker/pkg/contextkeys"
	"github.com/platinummonkey/tracker/pkg/observability"
)

var tracer = otel.Tracer("github.com/platinummonkey/tracker/pkg/rbac")

// Resolver computes the set of projects a user may access. It is the only
// component allowed to derive project access; nothing else re-implements
// the owner/member union.
type Resolver interface {
	AccessibleProjects(ctx context.Context, user uuid.UUID) (ProjectSet, error)
}

// ResolveMode selects how SQLResolver reaches the privileged data
type ResolveMode int

const (
	// ResolveUnion runs the flat owner/member union directly. The handle
	// must not be subject to row-level filtering.
	ResolveUnion ResolveMode = iota

	// ResolveDefinerFunction calls tracker_accessible_project_ids, the
	// SECURITY DEFINER function installed by the Postgres migrations.
	ResolveDefinerFunction
)

const (
	unionQuery = `
		SELECT id FROM projects WHERE owner_id = $1
		UNION
		SELECT project_id FROM project_members WHERE user_id = $1`

	definerQuery = `SELECT project_id FROM tracker_accessible_project_ids($1)`
)

// SQLResolver resolves accessible projects with a single non-recursive
// query issued on a dedicated privileged connection pool.
type SQLResolver struct {
	db      *sql.DB
	mode    ResolveMode
	metrics *observability.Metrics
}

// NewSQLResolver creates a resolver on the privileged handle db
func NewSQLResolver(db *sql.DB, mode ResolveMode, metrics *observability.Metrics) *SQLResolver {
	return &SQLResolver{
		db:      db,
		mode:    mode,
		metrics: metrics,
	}
}

// AccessibleProjects returns the projects user owns plus the projects
// where user holds a membership row. A user with neither gets an empty set.
func (r *SQLResolver) AccessibleProjects(ctx context.Context, user uuid.UUID) (ProjectSet, error) {
	cache := requestCacheFrom(ctx)
	if set, ok := cache.get(user); ok {
		return set, nil
	}

	ctx, span := tracer.Start(ctx, "rbac.AccessibleProjects")
	defer span.End()

	start := time.Now()
	set, err := r.query(ctx, user)
	r.metrics.ObserveResolver(time.Since(start), len(set), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("projects", len(set)))

	cache.put(user, set)
	return set, nil
}

func (r *SQLResolver) query(ctx context.Context, user uuid.UUID) (ProjectSet, error) {
	query := unionQuery
	if r.mode == ResolveDefinerFunction {
		query = definerQuery
	}

	rows, err := r.db.QueryContext(ctx, query, user)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve accessible projects: %w", err)
	}
	defer rows.Close()

	set := make(ProjectSet)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan project id: %w", err)
		}
		set[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accessible projects: %w", err)
	}
	return set, nil
}

// StaticResolver serves a fixed user → projects mapping
type StaticResolver map[uuid.UUID]ProjectSet

func (s StaticResolver) AccessibleProjects(_ context.Context, user uuid.UUID) (ProjectSet, error) {
	if set, ok := s[user]; ok {
		return set, nil
	}
	return ProjectSet{}, nil
}

// requestCache memoizes resolutions for the lifetime of one request
type requestCache struct {
	mu   sync.Mutex
	sets map[uuid.UUID]ProjectSet
}

// WithRequestCache attaches an empty resolution memo to ctx. Resolutions
// made through SQLResolver with the returned context are computed once.
func WithRequestCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, contextkeys.ResolverCacheKey, &requestCache{
		sets: make(map[uuid.UUID]ProjectSet),
	})
}

// ResetRequestCache drops every memoized resolution in ctx. Writes that
// change ownership or membership call it so later checks in the same
// request see committed state.
func ResetRequestCache(ctx context.Context) {
	c := requestCacheFrom(ctx)
	if c == nil {
		return
	}
	c.mu.Lock()
	c.sets = make(map[uuid.UUID]ProjectSet)
	c.mu.Unlock()
}

func requestCacheFrom(ctx context.Context) *requestCache {
	c, _ := ctx.Value(contextkeys.ResolverCacheKey).(*requestCache)
	return c
}

func (c *requestCache) get(user uuid.UUID) (ProjectSet, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.sets[user]
	return set, ok
}

func (c *requestCache) put(user uuid.UUID, set ProjectSet) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.sets[user] = set
	c.mu.Unlock()
}
