package rbac

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/tracker/pkg/observability"
)

// Checker decides whether a user may perform an operation on an entity
type Checker interface {
	CanPerform(ctx context.Context, user uuid.UUID, op Operation, entity Entity) (Decision, error)
}

// Evaluator implements the project/membership/ticket/comment policy table.
// Anything not matched by a rule is denied. It never mutates state; the
// only error source is the Resolver.
type Evaluator struct {
	resolver Resolver
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewEvaluator creates an evaluator backed by resolver
func NewEvaluator(resolver Resolver, metrics *observability.Metrics) *Evaluator {
	return &Evaluator{
		resolver: resolver,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Resolver returns the resolver backing the evaluator
func (e *Evaluator) Resolver() Resolver {
	return e.resolver
}

// CanPerform evaluates op on entity for user
func (e *Evaluator) CanPerform(ctx context.Context, user uuid.UUID, op Operation, entity Entity) (Decision, error) {
	if entity == nil {
		return e.finish(deny("no entity"), "", op), nil
	}

	ctx, span := tracer.Start(ctx, "rbac.CanPerform", trace.WithAttributes(
		attribute.String("entity", string(entity.Kind())),
		attribute.String("operation", string(op)),
	))
	defer span.End()

	var (
		d   Decision
		err error
	)
	switch en := entity.(type) {
	case ProjectEntity:
		d, err = e.project(ctx, user, op, en)
	case MembershipEntity:
		d, err = e.membership(ctx, user, op, en)
	case TicketEntity:
		d, err = e.ticket(ctx, user, op, en)
	case CommentEntity:
		d, err = e.comment(ctx, user, op, en)
	default:
		d = deny(fmt.Sprintf("unsupported entity %T", entity))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "policy evaluation failed")
		return Decision{Allowed: false, Reason: "evaluation failed", CheckedAt: e.now()}, err
	}

	span.SetAttributes(attribute.Bool("allowed", d.Allowed))
	return e.finish(d, entity.Kind(), op), nil
}

func (e *Evaluator) finish(d Decision, kind EntityKind, op Operation) Decision {
	d.CheckedAt = e.now()
	e.metrics.RecordAuthzDecision(string(kind), string(op), d.Allowed)
	return d
}

// canAccess is the single project-access test every rule goes through
func (e *Evaluator) canAccess(ctx context.Context, user, project uuid.UUID) (bool, error) {
	set, err := e.resolver.AccessibleProjects(ctx, user)
	if err != nil {
		return false, err
	}
	return set.Contains(project), nil
}

func (e *Evaluator) accessDecision(ctx context.Context, user, project uuid.UUID) (Decision, error) {
	ok, err := e.canAccess(ctx, user, project)
	if err != nil {
		return Decision{}, err
	}
	if ok {
		return allow("project is accessible"), nil
	}
	return deny("project is not accessible"), nil
}

func ownerDecision(user uuid.UUID, p ProjectEntity) Decision {
	if user == p.Owner {
		return allow("caller owns the project")
	}
	return deny("caller does not own the project")
}

func (e *Evaluator) project(ctx context.Context, user uuid.UUID, op Operation, p ProjectEntity) (Decision, error) {
	switch op {
	case OpRead:
		return e.accessDecision(ctx, user, p.ID)
	case OpCreate:
		// The creator always becomes the owner; a request naming anyone
		// else as owner is not a create this rule covers.
		if p.Owner == user {
			return allow("caller becomes owner"), nil
		}
		return deny("owner must be the caller"), nil
	case OpUpdate, OpDelete:
		return ownerDecision(user, p), nil
	}
	return deny("unknown operation"), nil
}

func (e *Evaluator) membership(ctx context.Context, user uuid.UUID, op Operation, m MembershipEntity) (Decision, error) {
	switch op {
	case OpRead:
		return e.accessDecision(ctx, user, m.Project.ID)
	case OpCreate:
		if user == m.Project.Owner {
			return allow("caller owns the project"), nil
		}
		if m.UserID == user {
			return allow("caller is accepting an invitation"), nil
		}
		return deny("only the owner may add other users"), nil
	case OpUpdate, OpDelete:
		return ownerDecision(user, m.Project), nil
	}
	return deny("unknown operation"), nil
}

func (e *Evaluator) ticket(ctx context.Context, user uuid.UUID, op Operation, t TicketEntity) (Decision, error) {
	switch op {
	case OpRead:
		return e.accessDecision(ctx, user, t.Project.ID)
	case OpCreate:
		if t.Reporter != user {
			return deny("reporter must be the caller"), nil
		}
		return e.accessDecision(ctx, user, t.Project.ID)
	case OpUpdate:
		if t.Assignee != nil && *t.Assignee == user {
			return allow("caller is the assignee"), nil
		}
		if user == t.Project.Owner {
			return allow("caller owns the project"), nil
		}
		return deny("caller is neither assignee nor owner"), nil
	case OpDelete:
		return ownerDecision(user, t.Project), nil
	}
	return deny("unknown operation"), nil
}

func (e *Evaluator) comment(ctx context.Context, user uuid.UUID, op Operation, c CommentEntity) (Decision, error) {
	switch op {
	case OpRead:
		return e.ticket(ctx, user, OpRead, c.Ticket)
	case OpCreate:
		if c.Author != user {
			return deny("author must be the caller"), nil
		}
		return e.ticket(ctx, user, OpRead, c.Ticket)
	case OpUpdate, OpDelete:
		if c.Author == user {
			return allow("caller is the author"), nil
		}
		return deny("caller is not the author"), nil
	}
	return deny("unknown operation"), nil
}
