package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/tracker/pkg/comments"
	"github.com/platinummonkey/tracker/pkg/contextkeys"
	"github.com/platinummonkey/tracker/pkg/observability"
	"github.com/platinummonkey/tracker/pkg/rbac"
	"github.com/platinummonkey/tracker/pkg/tracker"
	"github.com/platinummonkey/tracker/pkg/workflow"
)

// DefaultInvitationTTL is how long an invitation stays acceptable
const DefaultInvitationTTL = 7 * 24 * time.Hour

// Service enforces the access policy in front of the Store. Every
// operation takes the authenticated caller. Entities the caller cannot
// read are reported as tracker.ErrNotFound; tracker.ErrAccessDenied means
// the caller can read the entity but may not perform the operation.
type Service struct {
	store         *Store
	checker       rbac.Checker
	resolver      rbac.Resolver
	metrics       *observability.Metrics
	invitationTTL time.Duration
	now           func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithInvitationTTL overrides DefaultInvitationTTL
func WithInvitationTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.invitationTTL = ttl
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates a service. checker and resolver are normally the same
// Evaluator and the Resolver behind it.
func New(store *Store, checker rbac.Checker, resolver rbac.Resolver, metrics *observability.Metrics, opts ...Option) *Service {
	s := &Service{
		store:         store,
		checker:       checker,
		resolver:      resolver,
		metrics:       metrics,
		invitationTTL: DefaultInvitationTTL,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying store
func (s *Service) Store() *Store {
	return s.store
}

// actingAs tags ctx with the caller for the store's row-level session
func actingAs(ctx context.Context, caller uuid.UUID) context.Context {
	return contextkeys.WithUserID(ctx, caller.String())
}

// authorize applies the hiding rule: an entity the caller cannot read is
// not found, whatever op is asked for.
func (s *Service) authorize(ctx context.Context, caller uuid.UUID, op rbac.Operation, entity rbac.Entity) error {
	read, err := s.checker.CanPerform(ctx, caller, rbac.OpRead, entity)
	if err != nil {
		return fmt.Errorf("failed to check access: %w", err)
	}
	if !read.Allowed {
		return tracker.ErrNotFound
	}
	if op == rbac.OpRead {
		return nil
	}
	return s.decide(ctx, caller, op, entity)
}

// decide checks op alone, for operations that have no readable entity yet
func (s *Service) decide(ctx context.Context, caller uuid.UUID, op rbac.Operation, entity rbac.Entity) error {
	d, err := s.checker.CanPerform(ctx, caller, op, entity)
	if err != nil {
		return fmt.Errorf("failed to check access: %w", err)
	}
	if !d.Allowed {
		return fmt.Errorf("%w: %s", tracker.ErrAccessDenied, d.Reason)
	}
	return nil
}

// EnsureUser records an authenticated principal, refreshing the display
// name and handle of a known one.
func (s *Service) EnsureUser(ctx context.Context, u *tracker.User) error {
	if u.ID == uuid.Nil {
		return tracker.NewValidationError("id", "user id is required")
	}
	u.Handle = strings.TrimSpace(u.Handle)
	if u.Handle == "" {
		return tracker.NewValidationError("handle", "handle is required")
	}
	if strings.TrimSpace(u.DisplayName) == "" {
		u.DisplayName = u.Handle
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	return s.store.UpsertUser(ctx, u)
}

// GetUser loads a user. The user directory is not project scoped.
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*tracker.User, error) {
	return s.store.GetUser(ctx, id)
}

// NewProject is the input to CreateProject
type NewProject struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ProjectPatch is a partial project update. Nil fields are left unchanged.
type ProjectPatch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// CreateProject creates a project owned by caller
func (s *Service) CreateProject(ctx context.Context, caller uuid.UUID, in NewProject) (*tracker.Project, error) {
	ctx = actingAs(ctx, caller)
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, tracker.NewValidationError("name", "name is required")
	}

	now := s.now()
	p := &tracker.Project{
		ID:          uuid.New(),
		Name:        name,
		Description: in.Description,
		Owner:       caller,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.decide(ctx, caller, rbac.OpCreate, rbac.ProjectOf(p)); err != nil {
		return nil, err
	}
	if err := s.store.CreateProject(ctx, p); err != nil {
		return nil, err
	}
	rbac.ResetRequestCache(ctx)

	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"project_id": p.ID.String(),
		"owner_id":   caller.String(),
	}).Info("project created")
	return p, nil
}

func (s *Service) loadProject(ctx context.Context, caller, id uuid.UUID, op rbac.Operation) (*tracker.Project, error) {
	p, err := s.store.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, caller, op, rbac.ProjectOf(p)); err != nil {
		return nil, err
	}
	return p, nil
}

// GetProject loads a project the caller can access
func (s *Service) GetProject(ctx context.Context, caller, id uuid.UUID) (*tracker.Project, error) {
	ctx = actingAs(ctx, caller)
	return s.loadProject(ctx, caller, id, rbac.OpRead)
}

// ListProjects lists every project the caller owns or is a member of
func (s *Service) ListProjects(ctx context.Context, caller uuid.UUID) ([]*tracker.Project, error) {
	ctx = actingAs(ctx, caller)
	set, err := s.resolver.AccessibleProjects(ctx, caller)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve projects: %w", err)
	}
	return s.store.ListProjects(ctx, set.IDs())
}

// UpdateProject changes a project's name or description. Owner only.
func (s *Service) UpdateProject(ctx context.Context, caller, id uuid.UUID, patch ProjectPatch) (*tracker.Project, error) {
	ctx = actingAs(ctx, caller)
	p, err := s.loadProject(ctx, caller, id, rbac.OpUpdate)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, tracker.NewValidationError("name", "name cannot be empty")
		}
		p.Name = name
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	p.UpdatedAt = s.now()

	if err := s.store.UpdateProject(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// DeleteProject removes a project and everything in it. Owner only.
func (s *Service) DeleteProject(ctx context.Context, caller, id uuid.UUID) error {
	ctx = actingAs(ctx, caller)
	if _, err := s.loadProject(ctx, caller, id, rbac.OpDelete); err != nil {
		return err
	}
	if err := s.store.DeleteProject(ctx, id); err != nil {
		return err
	}
	rbac.ResetRequestCache(ctx)

	observability.FromContext(ctx).WithField("project_id", id.String()).Info("project deleted")
	return nil
}

// AddMember adds userID to a project directly. Owner only; an existing
// membership is tracker.ErrConflict.
func (s *Service) AddMember(ctx context.Context, caller, projectID, userID uuid.UUID, role tracker.Role) (*tracker.Membership, error) {
	ctx = actingAs(ctx, caller)
	if err := role.Validate(); err != nil {
		return nil, err
	}
	p, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, caller, rbac.OpCreate, rbac.MembershipOf(p, userID)); err != nil {
		return nil, err
	}
	if userID == p.Owner {
		return nil, fmt.Errorf("%w: user owns the project", tracker.ErrConflict)
	}

	m := &tracker.Membership{
		ProjectID: projectID,
		UserID:    userID,
		Role:      role,
		InvitedBy: &caller,
		JoinedAt:  s.now(),
	}
	if err := s.store.AddMember(ctx, m); err != nil {
		return nil, err
	}
	rbac.ResetRequestCache(ctx)
	return m, nil
}

// ListMembers lists a project's members
func (s *Service) ListMembers(ctx context.Context, caller, projectID uuid.UUID) ([]*tracker.Membership, error) {
	ctx = actingAs(ctx, caller)
	if _, err := s.loadProject(ctx, caller, projectID, rbac.OpRead); err != nil {
		return nil, err
	}
	return s.store.ListMembers(ctx, projectID)
}

func (s *Service) loadMembership(ctx context.Context, caller, projectID, userID uuid.UUID, op rbac.Operation) (*tracker.Membership, error) {
	entity, err := s.store.LoadEntity(ctx, rbac.EntityRef{Kind: rbac.KindMembership, ID: projectID, MemberID: userID})
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, caller, op, entity); err != nil {
		return nil, err
	}
	return s.store.GetMembership(ctx, projectID, userID)
}

// UpdateMemberRole changes a member's role. Owner only.
func (s *Service) UpdateMemberRole(ctx context.Context, caller, projectID, userID uuid.UUID, role tracker.Role) (*tracker.Membership, error) {
	ctx = actingAs(ctx, caller)
	if err := role.Validate(); err != nil {
		return nil, err
	}
	m, err := s.loadMembership(ctx, caller, projectID, userID, rbac.OpUpdate)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateMemberRole(ctx, projectID, userID, role); err != nil {
		return nil, err
	}
	m.Role = role
	return m, nil
}

// RemoveMember revokes a membership. Owner only. The removed user keeps
// access only if they own the project.
func (s *Service) RemoveMember(ctx context.Context, caller, projectID, userID uuid.UUID) error {
	ctx = actingAs(ctx, caller)
	if _, err := s.loadMembership(ctx, caller, projectID, userID, rbac.OpDelete); err != nil {
		return err
	}
	if err := s.store.RemoveMember(ctx, projectID, userID); err != nil {
		return err
	}
	rbac.ResetRequestCache(ctx)

	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"project_id": projectID.String(),
		"user_id":    userID.String(),
	}).Info("member removed")
	return nil
}

// InviteMember offers userID a membership. Owner only. Inviting an
// existing member, or someone already invited, is tracker.ErrConflict.
func (s *Service) InviteMember(ctx context.Context, caller, projectID, userID uuid.UUID, role tracker.Role) (*tracker.Invitation, error) {
	ctx = actingAs(ctx, caller)
	if err := role.Validate(); err != nil {
		return nil, err
	}
	p, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, caller, rbac.OpCreate, rbac.MembershipOf(p, userID)); err != nil {
		return nil, err
	}
	if userID == p.Owner {
		return nil, fmt.Errorf("%w: user owns the project", tracker.ErrConflict)
	}

	token, err := generateInvitationToken()
	if err != nil {
		return nil, err
	}
	now := s.now()
	inv := &tracker.Invitation{
		ID:        uuid.New(),
		ProjectID: projectID,
		UserID:    userID,
		Role:      role,
		Token:     token,
		InvitedBy: caller,
		ExpiresAt: now.Add(s.invitationTTL),
		CreatedAt: now,
	}
	if err := s.store.CreateInvitation(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// ListInvitations lists a project's pending invitations. Owner only,
// since they carry acceptance tokens.
func (s *Service) ListInvitations(ctx context.Context, caller, projectID uuid.UUID) ([]*tracker.Invitation, error) {
	ctx = actingAs(ctx, caller)
	if _, err := s.loadProject(ctx, caller, projectID, rbac.OpUpdate); err != nil {
		return nil, err
	}
	return s.store.ListInvitations(ctx, projectID)
}

// RevokeInvitation withdraws a pending invitation. Owner only.
func (s *Service) RevokeInvitation(ctx context.Context, caller, projectID, invitationID uuid.UUID) error {
	ctx = actingAs(ctx, caller)
	p, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	inv, err := s.store.GetInvitation(ctx, invitationID)
	if err != nil {
		return err
	}
	if inv.ProjectID != projectID {
		return tracker.ErrNotFound
	}
	if err := s.authorize(ctx, caller, rbac.OpDelete, rbac.MembershipOf(p, inv.UserID)); err != nil {
		return err
	}
	return s.store.RevokeInvitation(ctx, invitationID)
}

// AcceptInvitation turns the caller's invitation into a membership. This
// is the membership self-insert; the token stands in for read access the
// caller does not have yet.
func (s *Service) AcceptInvitation(ctx context.Context, caller uuid.UUID, token string) (*tracker.Membership, error) {
	ctx = actingAs(ctx, caller)
	inv, err := s.store.GetInvitationByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv.UserID != caller {
		return nil, tracker.ErrNotFound
	}
	if inv.AcceptedAt != nil {
		return nil, fmt.Errorf("%w: invitation already accepted", tracker.ErrConflict)
	}
	now := s.now()
	if inv.IsExpired(now) {
		return nil, tracker.NewValidationError("token", "invitation has expired")
	}

	entity := rbac.MembershipEntity{Project: rbac.ProjectEntity{ID: inv.ProjectID}, UserID: caller}
	if err := s.decide(ctx, caller, rbac.OpCreate, entity); err != nil {
		return nil, err
	}

	invitedBy := inv.InvitedBy
	m := &tracker.Membership{
		ProjectID: inv.ProjectID,
		UserID:    caller,
		Role:      inv.Role,
		InvitedBy: &invitedBy,
		JoinedAt:  now,
	}
	if err := s.store.AcceptInvitation(ctx, inv, m); err != nil {
		return nil, err
	}
	rbac.ResetRequestCache(ctx)
	return m, nil
}

// PurgeExpiredInvitations deletes invitations that can no longer be
// accepted and returns how many were removed.
func (s *Service) PurgeExpiredInvitations(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.store.PurgeExpiredInvitations(ctx, now)
	if err != nil {
		return 0, err
	}
	s.metrics.RecordInvitationsPurged(n)
	return n, nil
}

func generateInvitationToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate invitation token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// NewTicket is the input to CreateTicket. Type defaults to task and
// Priority to medium.
type NewTicket struct {
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Type        tracker.TicketType `json:"type"`
	Priority    tracker.Priority   `json:"priority"`
	Assignee    *uuid.UUID         `json:"assignee,omitempty"`
}

// CreateTicket files a ticket in a project the caller can access. The
// caller is always the reporter.
func (s *Service) CreateTicket(ctx context.Context, caller, projectID uuid.UUID, in NewTicket) (*tracker.Ticket, error) {
	ctx = actingAs(ctx, caller)
	p, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	t := &tracker.Ticket{
		ID:          uuid.New(),
		ProjectID:   projectID,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Type:        in.Type,
		Priority:    in.Priority,
		Status:      tracker.StatusTodo,
		Reporter:    caller,
		Assignee:    in.Assignee,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if t.Type == "" {
		t.Type = tracker.TicketTypeTask
	}
	if t.Priority == "" {
		t.Priority = tracker.PriorityMedium
	}

	if err := s.authorize(ctx, caller, rbac.OpCreate, rbac.TicketOf(p, t)); err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	events := []tracker.TicketEvent{{
		ID:        uuid.New(),
		TicketID:  t.ID,
		Actor:     caller,
		Kind:      tracker.EventCreated,
		To:        string(t.Status),
		CreatedAt: now,
	}}
	if err := s.store.CreateTicket(ctx, t, events); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) loadTicket(ctx context.Context, caller, id uuid.UUID, op rbac.Operation) (*tracker.Project, *tracker.Ticket, error) {
	p, t, err := s.store.ticketWithProject(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if err := s.authorize(ctx, caller, op, rbac.TicketOf(p, t)); err != nil {
		return nil, nil, err
	}
	return p, t, nil
}

// GetTicket loads a ticket in a project the caller can access
func (s *Service) GetTicket(ctx context.Context, caller, id uuid.UUID) (*tracker.Ticket, error) {
	ctx = actingAs(ctx, caller)
	_, t, err := s.loadTicket(ctx, caller, id, rbac.OpRead)
	return t, err
}

// ListTickets lists a project's tickets, optionally filtered by status
func (s *Service) ListTickets(ctx context.Context, caller, projectID uuid.UUID, status *tracker.Status) ([]*tracker.Ticket, error) {
	ctx = actingAs(ctx, caller)
	if status != nil {
		if err := status.Validate(); err != nil {
			return nil, err
		}
	}
	if _, err := s.loadProject(ctx, caller, projectID, rbac.OpRead); err != nil {
		return nil, err
	}
	return s.store.ListTickets(ctx, projectID, status)
}

// UpdateTicket applies patch through the workflow. Only the assignee or
// the project owner may update a ticket.
func (s *Service) UpdateTicket(ctx context.Context, caller, id uuid.UUID, patch workflow.TicketPatch) (*tracker.Ticket, error) {
	ctx = actingAs(ctx, caller)
	_, t, err := s.loadTicket(ctx, caller, id, rbac.OpUpdate)
	if err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return t, nil
	}

	next, events, err := workflow.Apply(*t, patch, caller, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateTicket(ctx, &next, events); err != nil {
		return nil, err
	}
	return &next, nil
}

// DeleteTicket removes a ticket with its comments. Owner only.
func (s *Service) DeleteTicket(ctx context.Context, caller, id uuid.UUID) error {
	ctx = actingAs(ctx, caller)
	if _, _, err := s.loadTicket(ctx, caller, id, rbac.OpDelete); err != nil {
		return err
	}
	return s.store.DeleteTicket(ctx, id)
}

// ListTicketEvents lists a ticket's workflow history
func (s *Service) ListTicketEvents(ctx context.Context, caller, id uuid.UUID) ([]tracker.TicketEvent, error) {
	ctx = actingAs(ctx, caller)
	if _, _, err := s.loadTicket(ctx, caller, id, rbac.OpRead); err != nil {
		return nil, err
	}
	return s.store.ListTicketEvents(ctx, id)
}

// NewComment is the input to CreateComment. Parent is informational and
// may name a comment on another ticket.
type NewComment struct {
	Content string     `json:"content"`
	Parent  *uuid.UUID `json:"parent,omitempty"`
}

// CreateComment posts a comment on a ticket the caller can read
func (s *Service) CreateComment(ctx context.Context, caller, ticketID uuid.UUID, in NewComment) (*tracker.Comment, error) {
	ctx = actingAs(ctx, caller)
	p, t, err := s.store.ticketWithProject(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	c := &tracker.Comment{
		ID:        uuid.New(),
		TicketID:  ticketID,
		Author:    caller,
		Parent:    in.Parent,
		Content:   in.Content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.authorize(ctx, caller, rbac.OpCreate, rbac.CommentOf(p, t, c)); err != nil {
		return nil, err
	}
	if strings.TrimSpace(c.Content) == "" {
		return nil, tracker.NewValidationError("content", "content is required")
	}
	if err := s.checkParent(ctx, caller, in.Parent); err != nil {
		return nil, err
	}
	if err := s.store.CreateComment(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// checkParent accepts a parent on any ticket the caller can read. A parent
// the caller cannot see is reported exactly like one that does not exist.
func (s *Service) checkParent(ctx context.Context, caller uuid.UUID, parent *uuid.UUID) error {
	if parent == nil {
		return nil
	}
	_, err := s.loadComment(ctx, caller, *parent, rbac.OpRead)
	if tracker.IsNotFound(err) {
		return tracker.NewValidationError("parent", "references an unknown entity")
	}
	return err
}

func (s *Service) loadComment(ctx context.Context, caller, id uuid.UUID, op rbac.Operation) (*tracker.Comment, error) {
	c, err := s.store.GetComment(ctx, id)
	if err != nil {
		return nil, err
	}
	p, t, err := s.store.ticketWithProject(ctx, c.TicketID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, caller, op, rbac.CommentOf(p, t, c)); err != nil {
		return nil, err
	}
	return c, nil
}

// GetComment loads a comment on a ticket the caller can read
func (s *Service) GetComment(ctx context.Context, caller, id uuid.UUID) (*tracker.Comment, error) {
	ctx = actingAs(ctx, caller)
	return s.loadComment(ctx, caller, id, rbac.OpRead)
}

// ListComments lists a ticket's comments in display order
func (s *Service) ListComments(ctx context.Context, caller, ticketID uuid.UUID) ([]tracker.Comment, error) {
	ctx = actingAs(ctx, caller)
	if _, _, err := s.loadTicket(ctx, caller, ticketID, rbac.OpRead); err != nil {
		return nil, err
	}
	list, err := s.store.ListComments(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	comments.Sort(list)
	return list, nil
}

// CommentThread returns a ticket's comments nested under their parents
func (s *Service) CommentThread(ctx context.Context, caller, ticketID uuid.UUID) ([]*comments.Node, error) {
	list, err := s.ListComments(ctx, caller, ticketID)
	if err != nil {
		return nil, err
	}
	return comments.Thread(list), nil
}

// UpdateComment replaces a comment's content. Author only.
func (s *Service) UpdateComment(ctx context.Context, caller, id uuid.UUID, content string) (*tracker.Comment, error) {
	ctx = actingAs(ctx, caller)
	c, err := s.loadComment(ctx, caller, id, rbac.OpUpdate)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, tracker.NewValidationError("content", "content is required")
	}
	c.Content = content
	c.UpdatedAt = s.now()
	if err := s.store.UpdateComment(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteComment removes a comment. Author only.
func (s *Service) DeleteComment(ctx context.Context, caller, id uuid.UUID) error {
	ctx = actingAs(ctx, caller)
	if _, err := s.loadComment(ctx, caller, id, rbac.OpDelete); err != nil {
		return err
	}
	return s.store.DeleteComment(ctx, id)
}
