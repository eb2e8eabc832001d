package tracker

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is the advisory role a member holds within a project.
// Ownership outranks any role; roles do not currently gate any operation.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleDeveloper Role = "developer"
	RoleViewer    Role = "viewer"
)

// Validate checks that the role is one of the known values
func (r Role) Validate() error {
	switch r {
	case RoleAdmin, RoleDeveloper, RoleViewer:
		return nil
	}
	return NewValidationError("role", "unknown role %q", string(r))
}

// ParseRole parses a role name, case-insensitively
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, r.Validate()
}

// TicketType classifies a ticket
type TicketType string

const (
	TicketTypeBug     TicketType = "bug"
	TicketTypeFeature TicketType = "feature"
	TicketTypeTask    TicketType = "task"
)

// Validate checks that the type is one of the known values
func (t TicketType) Validate() error {
	switch t {
	case TicketTypeBug, TicketTypeFeature, TicketTypeTask:
		return nil
	}
	return NewValidationError("type", "unknown ticket type %q", string(t))
}

// ParseTicketType parses a ticket type name
func ParseTicketType(s string) (TicketType, error) {
	t := TicketType(strings.ToLower(strings.TrimSpace(s)))
	return t, t.Validate()
}

// Priority is the urgency of a ticket
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Validate checks that the priority is one of the known values
func (p Priority) Validate() error {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return nil
	}
	return NewValidationError("priority", "unknown priority %q", string(p))
}

// ParsePriority parses a priority name
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	return p, p.Validate()
}

// Status is a ticket's position in the workflow
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

// Statuses lists every workflow state in board order
var Statuses = []Status{StatusTodo, StatusInProgress, StatusDone}

// Validate checks that the status is one of the known values
func (s Status) Validate() error {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return nil
	}
	return NewValidationError("status", "unknown status %q", string(s))
}

// ParseStatus parses a status name
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	return st, st.Validate()
}

// User is an authenticated principal. The identifier is issued by the
// identity provider and never changes.
type User struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	Handle      string    `json:"handle"`
	CreatedAt   time.Time `json:"created_at"`
}

// Project is the tenancy boundary. Owner is permanent.
type Project struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Owner       uuid.UUID `json:"owner"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Membership grants a user access to a project they do not own
type Membership struct {
	ProjectID uuid.UUID  `json:"project_id"`
	UserID    uuid.UUID  `json:"user_id"`
	Role      Role       `json:"role"`
	InvitedBy *uuid.UUID `json:"invited_by,omitempty"`
	JoinedAt  time.Time  `json:"joined_at"`
}

// Invitation is a pending offer of membership. Accepting it performs the
// membership self-insert on behalf of the invited user.
type Invitation struct {
	ID         uuid.UUID  `json:"id"`
	ProjectID  uuid.UUID  `json:"project_id"`
	UserID     uuid.UUID  `json:"user_id"`
	Role       Role       `json:"role"`
	Token      string     `json:"token,omitempty"`
	InvitedBy  uuid.UUID  `json:"invited_by"`
	ExpiresAt  time.Time  `json:"expires_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// IsExpired reports whether the invitation can no longer be accepted
func (i *Invitation) IsExpired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

// Ticket is a unit of work inside a project
type Ticket struct {
	ID          uuid.UUID  `json:"id"`
	ProjectID   uuid.UUID  `json:"project_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Type        TicketType `json:"type"`
	Priority    Priority   `json:"priority"`
	Status      Status     `json:"status"`
	Reporter    uuid.UUID  `json:"reporter"`
	Assignee    *uuid.UUID `json:"assignee,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Validate checks the ticket's enum fields and required attributes
func (t *Ticket) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return NewValidationError("title", "title is required")
	}
	if err := t.Type.Validate(); err != nil {
		return err
	}
	if err := t.Priority.Validate(); err != nil {
		return err
	}
	return t.Status.Validate()
}

// Comment is a message on a ticket. Parent is informational only and may
// point at a comment on another ticket.
type Comment struct {
	ID        uuid.UUID  `json:"id"`
	TicketID  uuid.UUID  `json:"ticket_id"`
	Author    uuid.UUID  `json:"author"`
	Parent    *uuid.UUID `json:"parent,omitempty"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// EventKind identifies what changed on a ticket
type EventKind string

const (
	EventCreated       EventKind = "created"
	EventStatusChanged EventKind = "status_changed"
	EventReassigned    EventKind = "reassigned"
)

// TicketEvent records a workflow change on a ticket
type TicketEvent struct {
	ID        uuid.UUID `json:"id"`
	TicketID  uuid.UUID `json:"ticket_id"`
	Actor     uuid.UUID `json:"actor"`
	Kind      EventKind `json:"kind"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
