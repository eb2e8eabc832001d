package rbac

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/platinummonkey/tracker/pkg/httputil"
	"github.com/platinummonkey/tracker/pkg/middleware"
	"github.com/platinummonkey/tracker/pkg/tracker"
)

// EntityRef names an entity to check. For memberships ID is the project
// and MemberID the member. For create checks ID names the parent the new
// entity would be created in: the project for tickets and memberships, the
// ticket for comments.
type EntityRef struct {
	Kind     EntityKind
	ID       uuid.UUID
	MemberID uuid.UUID
}

// EntityLoader loads the authorization view of stored entities. It returns
// tracker.ErrNotFound when the entity does not exist.
type EntityLoader interface {
	LoadEntity(ctx context.Context, ref EntityRef) (Entity, error)
}

// Handlers exposes the evaluator and resolver over HTTP
type Handlers struct {
	checker  Checker
	resolver Resolver
	loader   EntityLoader
}

// NewHandlers creates new authorization handlers
func NewHandlers(checker Checker, resolver Resolver, loader EntityLoader) *Handlers {
	return &Handlers{checker: checker, resolver: resolver, loader: loader}
}

// RegisterRoutes registers the authorization routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/authz/check", h.Check).Methods(http.MethodPost)
	router.HandleFunc("/me/projects", h.AccessibleProjects).Methods(http.MethodGet)
}

// AccessibleProjects lists the ids of every project the caller may access
func (h *Handlers) AccessibleProjects(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetAuthContext(r).UserID()
	if caller == uuid.Nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	set, err := h.resolver.AccessibleProjects(r.Context(), caller)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"project_ids": set.IDs(),
	})
}

type checkRequest struct {
	Operation  string `json:"operation"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	MemberID   string `json:"member_id,omitempty"`
}

// Check answers whether the caller may perform an operation on an entity.
// Entities the caller cannot read are reported as not found.
func (h *Handlers) Check(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := middleware.GetAuthContext(r).UserID()
	if caller == uuid.Nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req checkRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	op, err := ParseOperation(req.Operation)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	kind, err := ParseEntityKind(req.EntityType)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}

	// Project creation has no parent to load
	if kind == KindProject && op == OpCreate {
		h.decide(w, r, caller, op, ProjectEntity{ID: uuid.New(), Owner: caller})
		return
	}

	ref := EntityRef{Kind: kind}
	if ref.ID, err = uuid.Parse(req.EntityID); err != nil {
		httputil.WriteServiceError(w, r, tracker.NewValidationError("entity_id", "invalid id %q", req.EntityID))
		return
	}
	if (kind == KindMembership && op != OpCreate) || req.MemberID != "" {
		if ref.MemberID, err = uuid.Parse(req.MemberID); err != nil {
			httputil.WriteServiceError(w, r, tracker.NewValidationError("member_id", "invalid id %q", req.MemberID))
			return
		}
	}

	if op == OpCreate {
		h.checkCreate(w, r, caller, ref)
		return
	}

	entity, err := h.loader.LoadEntity(ctx, ref)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	if !h.readable(w, r, caller, entity) {
		return
	}
	h.decide(w, r, caller, op, entity)
}

// checkCreate evaluates creating a new child of ref with the caller as its
// reporter, author or member.
func (h *Handlers) checkCreate(w http.ResponseWriter, r *http.Request, caller uuid.UUID, ref EntityRef) {
	parentKind := KindProject
	if ref.Kind == KindComment {
		parentKind = KindTicket
	}
	parent, err := h.loader.LoadEntity(r.Context(), EntityRef{Kind: parentKind, ID: ref.ID})
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}

	var entity Entity
	switch p := parent.(type) {
	case ProjectEntity:
		// Self-inserts for invitees are decided by AcceptInvitation, which
		// holds the token. Here an unreadable project looks missing.
		if !h.readable(w, r, caller, p) {
			return
		}
		if ref.Kind == KindMembership {
			member := ref.MemberID
			if member == uuid.Nil {
				member = caller
			}
			entity = MembershipEntity{Project: p, UserID: member}
		} else {
			entity = TicketEntity{Project: p, ID: uuid.New(), Reporter: caller}
		}
	case TicketEntity:
		if !h.readable(w, r, caller, p) {
			return
		}
		entity = CommentEntity{Ticket: p, ID: uuid.New(), Author: caller}
	default:
		httputil.WriteServiceError(w, r, tracker.NewValidationError("entity_type", "cannot create %s", ref.Kind))
		return
	}
	h.decide(w, r, caller, OpCreate, entity)
}

// readable writes a not-found response and returns false when the caller
// cannot read entity.
func (h *Handlers) readable(w http.ResponseWriter, r *http.Request, caller uuid.UUID, entity Entity) bool {
	decision, err := h.checker.CanPerform(r.Context(), caller, OpRead, entity)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return false
	}
	if !decision.Allowed {
		httputil.WriteServiceError(w, r, tracker.ErrNotFound)
		return false
	}
	return true
}

func (h *Handlers) decide(w http.ResponseWriter, r *http.Request, caller uuid.UUID, op Operation, entity Entity) {
	decision, err := h.checker.CanPerform(r.Context(), caller, op, entity)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, decision)
}
