package rbac

import (
	"bytes"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/tracker/pkg/tracker"
)

// Operation is an action a caller performs on an entity
type Operation string

const (
	OpRead   Operation = "read"
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Operations lists every operation the evaluator understands
var Operations = []Operation{OpRead, OpCreate, OpUpdate, OpDelete}

// ParseOperation parses an operation name
func ParseOperation(s string) (Operation, error) {
	op := Operation(s)
	switch op {
	case OpRead, OpCreate, OpUpdate, OpDelete:
		return op, nil
	}
	return "", tracker.NewValidationError("operation", "unknown operation %q", s)
}

// EntityKind identifies a protected entity type
type EntityKind string

const (
	KindProject    EntityKind = "project"
	KindMembership EntityKind = "membership"
	KindTicket     EntityKind = "ticket"
	KindComment    EntityKind = "comment"
)

// ParseEntityKind parses an entity kind name
func ParseEntityKind(s string) (EntityKind, error) {
	k := EntityKind(s)
	switch k {
	case KindProject, KindMembership, KindTicket, KindComment:
		return k, nil
	}
	return "", tracker.NewValidationError("entity_type", "unknown entity type %q", s)
}

// Entity is anything the evaluator can decide on. Each implementation
// carries exactly the attributes its rules read, including the owner of
// the project it belongs to.
type Entity interface {
	Kind() EntityKind
}

// ProjectEntity is the authorization view of a project
type ProjectEntity struct {
	ID    uuid.UUID
	Owner uuid.UUID
}

func (ProjectEntity) Kind() EntityKind { return KindProject }

// MembershipEntity is the authorization view of a (project, user) membership
type MembershipEntity struct {
	Project ProjectEntity
	UserID  uuid.UUID
}

func (MembershipEntity) Kind() EntityKind { return KindMembership }

// TicketEntity is the authorization view of a ticket
type TicketEntity struct {
	Project  ProjectEntity
	ID       uuid.UUID
	Reporter uuid.UUID
	Assignee *uuid.UUID
}

func (TicketEntity) Kind() EntityKind { return KindTicket }

// CommentEntity is the authorization view of a comment
type CommentEntity struct {
	Ticket TicketEntity
	ID     uuid.UUID
	Author uuid.UUID
}

func (CommentEntity) Kind() EntityKind { return KindComment }

// ProjectOf builds the authorization view of a project
func ProjectOf(p *tracker.Project) ProjectEntity {
	return ProjectEntity{ID: p.ID, Owner: p.Owner}
}

// MembershipOf builds the authorization view of a membership of userID in p
func MembershipOf(p *tracker.Project, userID uuid.UUID) MembershipEntity {
	return MembershipEntity{Project: ProjectOf(p), UserID: userID}
}

// TicketOf builds the authorization view of a ticket in p
func TicketOf(p *tracker.Project, t *tracker.Ticket) TicketEntity {
	return TicketEntity{
		Project:  ProjectOf(p),
		ID:       t.ID,
		Reporter: t.Reporter,
		Assignee: t.Assignee,
	}
}

// CommentOf builds the authorization view of a comment on t in p
func CommentOf(p *tracker.Project, t *tracker.Ticket, c *tracker.Comment) CommentEntity {
	return CommentEntity{Ticket: TicketOf(p, t), ID: c.ID, Author: c.Author}
}

// Decision is the outcome of a policy evaluation
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Reason    string    `json:"reason"`
	CheckedAt time.Time `json:"checked_at"`
}

func allow(reason string) Decision { return Decision{Allowed: true, Reason: reason} }
func deny(reason string) Decision  { return Decision{Allowed: false, Reason: reason} }

// ProjectSet is the set of project ids a user may access
type ProjectSet map[uuid.UUID]struct{}

// NewProjectSet builds a set from ids
func NewProjectSet(ids ...uuid.UUID) ProjectSet {
	s := make(ProjectSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Contains reports whether id is in the set
func (s ProjectSet) Contains(id uuid.UUID) bool {
	_, ok := s[id]
	return ok
}

// Len returns the number of projects in the set
func (s ProjectSet) Len() int { return len(s) }

// IDs returns the members of the set in byte order
func (s ProjectSet) IDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
	return ids
}
