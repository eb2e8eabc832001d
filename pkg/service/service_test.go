package service

import (
	"context"
	"database/sql"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tracker/pkg/observability"
	"github.com/platinummonkey/tracker/pkg/rbac"
	"github.com/platinummonkey/tracker/pkg/storage"
	"github.com/platinummonkey/tracker/pkg/tracker"
	"github.com/platinummonkey/tracker/pkg/workflow"
)

type fixture struct {
	ctx      context.Context
	db       *sql.DB
	svc      *Service
	resolver rbac.Resolver
	metrics  *observability.Metrics
	clock    time.Time

	alice, bob, carol uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := storage.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.RunMigrations(ctx, db, storage.DriverSQLite, observability.NewLogger(observability.ErrorLevel, nil)))

	f := &fixture{
		db:      db,
		metrics: observability.NewMetrics(prometheus.NewRegistry()),
		clock:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	// Every request in these tests shares one memo, so a missing reset
	// after a membership write shows up as stale access.
	f.ctx = rbac.WithRequestCache(observability.WithLogger(ctx, observability.NewLogger(observability.ErrorLevel, io.Discard)))
	f.resolver = rbac.NewSQLResolver(db, rbac.ResolveUnion, f.metrics)
	f.svc = New(NewStore(db, f.metrics), rbac.NewEvaluator(f.resolver, f.metrics), f.resolver, f.metrics,
		WithClock(func() time.Time {
			f.clock = f.clock.Add(time.Second)
			return f.clock
		}))

	f.alice = f.user(t, "alice")
	f.bob = f.user(t, "bob")
	f.carol = f.user(t, "carol")
	return f
}

func (f *fixture) user(t *testing.T, handle string) uuid.UUID {
	t.Helper()
	u := &tracker.User{ID: uuid.New(), Handle: handle}
	require.NoError(t, f.svc.EnsureUser(f.ctx, u))
	return u.ID
}

func (f *fixture) accessible(t *testing.T, user, project uuid.UUID) bool {
	t.Helper()
	set, err := f.resolver.AccessibleProjects(f.ctx, user)
	require.NoError(t, err)
	return set.Contains(project)
}

func (f *fixture) project(t *testing.T, owner uuid.UUID, name string) *tracker.Project {
	t.Helper()
	p, err := f.svc.CreateProject(f.ctx, owner, NewProject{Name: name})
	require.NoError(t, err)
	return p
}

func (f *fixture) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.QueryRowContext(f.ctx, "SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func statusPtr(s tracker.Status) *tracker.Status { return &s }

func TestScenario_CheckoutBugs(t *testing.T) {
	f := newFixture(t)
	ctx := f.ctx

	p := f.project(t, f.alice, "Checkout Bugs")
	assert.Equal(t, f.alice, p.Owner)

	inv, err := f.svc.InviteMember(ctx, f.alice, p.ID, f.bob, tracker.RoleDeveloper)
	require.NoError(t, err)
	m, err := f.svc.AcceptInvitation(ctx, f.bob, inv.Token)
	require.NoError(t, err)
	assert.Equal(t, tracker.RoleDeveloper, m.Role)
	require.NotNil(t, m.InvitedBy)
	assert.Equal(t, f.alice, *m.InvitedBy)

	ticket, err := f.svc.CreateTicket(ctx, f.bob, p.ID, NewTicket{Title: "Card declined on retry", Type: tracker.TicketTypeBug})
	require.NoError(t, err)
	assert.Equal(t, tracker.StatusTodo, ticket.Status)
	assert.Equal(t, f.bob, ticket.Reporter)

	// Bob reported it but is not yet the assignee
	_, err = f.svc.UpdateTicket(ctx, f.bob, ticket.ID, workflow.TicketPatch{Status: statusPtr(tracker.StatusInProgress)})
	assert.ErrorIs(t, err, tracker.ErrAccessDenied)

	bob := f.bob
	ticket, err = f.svc.UpdateTicket(ctx, f.alice, ticket.ID, workflow.TicketPatch{Assignee: &bob})
	require.NoError(t, err)
	require.NotNil(t, ticket.Assignee)
	assert.Equal(t, f.bob, *ticket.Assignee)

	ticket, err = f.svc.UpdateTicket(ctx, f.bob, ticket.ID, workflow.TicketPatch{Status: statusPtr(tracker.StatusInProgress)})
	require.NoError(t, err)
	assert.Equal(t, tracker.StatusInProgress, ticket.Status)

	ticket, err = f.svc.UpdateTicket(ctx, f.bob, ticket.ID, workflow.TicketPatch{Status: statusPtr(tracker.StatusDone)})
	require.NoError(t, err)
	assert.Equal(t, tracker.StatusDone, ticket.Status)

	// Carol cannot tell the ticket exists
	_, err = f.svc.GetTicket(ctx, f.carol, ticket.ID)
	assert.ErrorIs(t, err, tracker.ErrNotFound)
	_, missing := f.svc.GetTicket(ctx, f.carol, uuid.New())
	assert.Equal(t, missing.Error(), err.Error())

	events, err := f.svc.ListTicketEvents(ctx, f.alice, ticket.ID)
	require.NoError(t, err)
	var kinds []tracker.EventKind
	for _, e := range events {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []tracker.EventKind{
		tracker.EventCreated, tracker.EventReassigned, tracker.EventStatusChanged, tracker.EventStatusChanged,
	}, kinds)
}

func TestScenario_OwnerDeletesProject(t *testing.T) {
	f := newFixture(t)
	ctx := f.ctx

	p := f.project(t, f.alice, "Checkout Bugs")
	_, err := f.svc.AddMember(ctx, f.alice, p.ID, f.bob, tracker.RoleDeveloper)
	require.NoError(t, err)
	ticket, err := f.svc.CreateTicket(ctx, f.bob, p.ID, NewTicket{Title: "Coupon applied twice", Type: tracker.TicketTypeBug})
	require.NoError(t, err)
	_, err = f.svc.CreateComment(ctx, f.bob, ticket.ID, NewComment{Content: "Reproduced on staging"})
	require.NoError(t, err)

	err = f.svc.DeleteProject(ctx, f.bob, p.ID)
	assert.ErrorIs(t, err, tracker.ErrAccessDenied)

	require.NoError(t, f.svc.DeleteProject(ctx, f.alice, p.ID))

	assert.False(t, f.accessible(t, f.bob, p.ID))
	assert.False(t, f.accessible(t, f.alice, p.ID))
	_, err = f.svc.GetProject(ctx, f.bob, p.ID)
	assert.ErrorIs(t, err, tracker.ErrNotFound)
	_, err = f.svc.GetTicket(ctx, f.bob, ticket.ID)
	assert.ErrorIs(t, err, tracker.ErrNotFound)
	_, err = f.svc.ListMembers(ctx, f.bob, p.ID)
	assert.ErrorIs(t, err, tracker.ErrNotFound)

	for _, table := range []string{"projects", "project_members", "tickets", "comments", "ticket_events"} {
		assert.Zero(t, f.count(t, table), table)
	}
}

func TestAccessibleProjects_OwnerOrMember(t *testing.T) {
	f := newFixture(t)
	ctx := f.ctx

	p := f.project(t, f.alice, "Payments")
	assert.True(t, f.accessible(t, f.alice, p.ID))
	assert.False(t, f.accessible(t, f.bob, p.ID))

	_, err := f.svc.AddMember(ctx, f.alice, p.ID, f.bob, tracker.RoleViewer)
	require.NoError(t, err)
	assert.True(t, f.accessible(t, f.bob, p.ID))

	projects, err := f.svc.ListProjects(ctx, f.bob)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, p.ID, projects[0].ID)

	require.NoError(t, f.svc.RemoveMember(ctx, f.alice, p.ID, f.bob))
	assert.False(t, f.accessible(t, f.bob, p.ID))
	assert.True(t, f.accessible(t, f.alice, p.ID))

	projects, err = f.svc.ListProjects(ctx, f.bob)
	require.NoError(t, err)
	assert.Empty(t, projects)
}

func TestDuplicateMembership_Conflict(t *testing.T) {
	f := newFixture(t)
	ctx := f.ctx
	p := f.project(t, f.alice, "Payments")

	inv, err := f.svc.InviteMember(ctx, f.alice, p.ID, f.bob, tracker.RoleDeveloper)
	require.NoError(t, err)
	_, err = f.svc.InviteMember(ctx, f.alice, p.ID, f.bob, tracker.RoleViewer)
	assert.ErrorIs(t, err, tracker.ErrConflict)

	_, err = f.svc.AcceptInvitation(ctx, f.bob, inv.Token)
	require.NoError(t, err)
	_, err = f.svc.AcceptInvitation(ctx, f.bob, inv.Token)
	assert.ErrorIs(t, err, tracker.ErrConflict)

	_, err = f.svc.AddMember(ctx, f.alice, p.ID, f.bob, tracker.RoleDeveloper)
	assert.ErrorIs(t, err, tracker.ErrConflict)
	_, err = f.svc.InviteMember(ctx, f.alice, p.ID, f.bob, tracker.RoleDeveloper)
	assert.ErrorIs(t, err, tracker.ErrConflict)

	_, err = f.svc.AddMember(ctx, f.alice, p.ID, f.carol, tracker.RoleDeveloper)
	require.NoError(t, err)
	_, err = f.svc.AddMember(ctx, f.alice, p.ID, f.carol, tracker.RoleDeveloper)
	assert.ErrorIs(t, err, tracker.ErrConflict)

	_, err = f.svc.AddMember(ctx, f.alice, p.ID, f.alice, tracker.RoleAdmin)
	assert.ErrorIs(t, err, tracker.ErrConflict)

	members, err := f.svc.ListMembers(ctx, f.alice, p.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestUpdateTicket_AllStatusPairs(t *testing.T) {
	f := newFixture(t)
	ctx := f.ctx
	p := f.project(t, f.alice, "Payments")
	_, err := f.svc.AddMember(ctx, f.alice, p.ID, f.bob, tracker.RoleDeveloper)
	require.NoError(t, err)
	_, err = f.svc.AddMember(ctx, f.alice, p.ID, f.carol, tracker.RoleDeveloper)
	require.NoError(t, err)

	bob := f.bob
	ticket, err := f.svc.CreateTicket(ctx, f.alice, p.ID, NewTicket{Title: "Refund flow", Assignee: &bob})
	require.NoError(t, err)

	for _, updater := range []uuid.UUID{f.alice, f.bob} {
		for _, from := range tracker.Statuses {
			for _, to := range tracker.Statuses {
				_, err := f.svc.UpdateTicket(ctx, f.alice, ticket.ID, workflow.TicketPatch{Status: statusPtr(from)})
				require.NoError(t, err)
				got, err := f.svc.UpdateTicket(ctx, updater, ticket.ID, workflow.TicketPatch{Status: statusPtr(to)})
				require.NoError(t, err, "%s -> %s", from, to)
				assert.Equal(t, to, got.Status)
			}
		}
	}

	_, err = f.svc.UpdateTicket(ctx, f.carol, ticket.ID, workflow.TicketPatch{Status: statusPtr(tracker.StatusDone)})
	assert.ErrorIs(t, err, tracker.ErrAccessDenied)

	outsider := f.user(t, "dave")
	_, err = f.svc.UpdateTicket(ctx, outsider, ticket.ID, workflow.TicketPatch{Status: statusPtr(tracker.StatusDone)})
	assert.ErrorIs(t, err, tracker.ErrNotFound)

	_, err = f.svc.UpdateTicket(ctx, f.alice, ticket.ID, workflow.TicketPatch{Status: statusPtr("blocked")})
	assert.True(t, tracker.IsValidation(err))
}

func TestTicketLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := f.ctx
	p := f.project(t, f.alice, "Payments")
	_, err := f.svc.AddMember(ctx, f.alice, p.ID, f.bob, tracker.RoleDeveloper)
	require.NoError(t, err)

	_, err = f.svc.CreateTicket(ctx, f.bob, p.ID, NewTicket{Title: "  "})
	assert.True(t, tracker.IsValidation(err))
	_, err = f.svc.CreateTicket(ctx, f.bob, p.ID, NewTicket{Title: "Bad type", Type: "epic"})
	assert.True(t, tracker.IsValidation(err))
	_, err = f.svc.CreateTicket(ctx, f.carol, p.ID, NewTicket{Title: "Hidden"})
	assert.ErrorIs(t, err, tracker.ErrNotFound)

	first, err := f.svc.CreateTicket(ctx, f.bob, p.ID, NewTicket{Title: "First"})
	require.NoError(t, err)
	assert.Equal(t, tracker.TicketTypeTask, first.Type)
	assert.Equal(t, tracker.PriorityMedium, first.Priority)
	second, err := f.svc.CreateTicket(ctx, f.bob, p.ID, NewTicket{Title: "Second", Priority: tracker.PriorityHigh})
	require.NoError(t, err)

	_, err = f.svc.UpdateTicket(ctx, f.alice, second.ID, workflow.TicketPatch{Status: statusPtr(tracker.StatusDone)})
	require.NoError(t, err)

	all, err := f.svc.ListTickets(ctx, f.bob, p.ID, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[0].ID)

	done, err := f.svc.ListTickets(ctx, f.bob, p.ID, statusPtr(tracker.StatusDone))
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, second.ID, done[0].ID)

	_, err = f.svc.ListTickets(ctx, f.bob, p.ID, statusPtr("later"))
	assert.True(t, tracker.IsValidation(err))

	// Only the owner deletes tickets, even the reporter may not
	err = f.svc.DeleteTicket(ctx, f.bob, first.ID)
	assert.ErrorIs(t, err, tracker.ErrAccessDenied)
	require.NoError(t, f.svc.DeleteTicket(ctx, f.alice, first.ID))
	_, err = f.svc.GetTicket(ctx, f.alice, first.ID)
	assert.ErrorIs(t, err, tracker.ErrNotFound)

	// An empty patch changes nothing and records nothing
	unchanged, err := f.svc.UpdateTicket(ctx, f.alice, second.ID, workflow.TicketPatch{})
	require.NoError(t, err)
	assert.Equal(t, tracker.StatusDone, unchanged.Status)
	events, err := f.svc.ListTicketEvents(ctx, f.bob, second.ID)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestCreateComment_HiddenParentLooksUnknown(t *testing.T) {
	f := newFixture(t)
	ctx := f.ctx

	private := f.project(t, f.carol, "Carol only")
	secretTicket, err := f.svc.CreateTicket(ctx, f.carol, private.ID, NewTicket{Title: "Payroll"})
	require.NoError(t, err)
	secret, err := f.svc.CreateComment(ctx, f.carol, secretTicket.ID, NewComment{Content: "internal"})
	require.NoError(t, err)

	p := f.project(t, f.bob, "Bob's")
	ticket, err := f.svc.CreateTicket(ctx, f.bob, p.ID, NewTicket{Title: "Login"})
	require.NoError(t, err)

	_, hiddenErr := f.svc.CreateComment(ctx, f.bob, ticket.ID, NewComment{Content: "re", Parent: &secret.ID})
	unknown := uuid.New()
	_, unknownErr := f.svc.CreateComment(ctx, f.bob, ticket.ID, NewComment{Content: "re", Parent: &unknown})

	require.Error(t, hiddenErr)
	assert.True(t, tracker.IsValidation(hiddenErr))
	assert.Equal(t, unknownErr.Error(), hiddenErr.Error())

	list, err := f.svc.ListComments(ctx, f.bob, ticket.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	// Once the project is shared the same parent is accepted
	_, err = f.svc.AddMember(ctx, f.carol, private.ID, f.bob, tracker.RoleViewer)
	require.NoError(t, err)
	reply, err := f.svc.CreateComment(ctx, f.bob, ticket.ID, NewComment{Content: "re", Parent: &secret.ID})
	require.NoError(t, err)
	assert.Equal(t, secret.ID, *reply.Parent)
}

func TestComments(t *testing.T) {
	f := newFixture(t)
	ctx := f.ctx
	p := f.project(t, f.alice, "Payments")
	_, err := f.svc.AddMember(ctx, f.alice, p.ID, f.bob, tracker.RoleDeveloper)
	require.NoError(t, err)
	ticket, err := f.svc.CreateTicket(ctx, f.alice, p.ID, NewTicket{Title: "Receipt email"})
	require.NoError(t, err)
	other, err := f.svc.CreateTicket(ctx, f.alice, p.ID, NewTicket{Title: "Invoice PDF"})
	require.NoError(t, err)

	root, err := f.svc.CreateComment(ctx, f.bob, ticket.ID, NewComment{Content: "Seen in prod"})
	require.NoError(t, err)
	reply, err := f.svc.CreateComment(ctx, f.alice, ticket.ID, NewComment{Content: "Which region?", Parent: &root.ID})
	require.NoError(t, err)
	elsewhere, err := f.svc.CreateComment(ctx, f.alice, other.ID, NewComment{Content: "Related", Parent: &root.ID})
	require.NoError(t, err)
	assert.Equal(t, root.ID, *elsewhere.Parent)

	_, err = f.svc.CreateComment(ctx, f.bob, ticket.ID, NewComment{Content: " "})
	assert.True(t, tracker.IsValidation(err))
	_, err = f.svc.CreateComment(ctx, f.carol, ticket.ID, NewComment{Content: "hi"})
	assert.ErrorIs(t, err, tracker.ErrNotFound)
	unknown := uuid.New()
	_, err = f.svc.CreateComment(ctx, f.bob, ticket.ID, NewComment{Content: "orphan", Parent: &unknown})
	assert.True(t, tracker.IsValidation(err))

	list, err := f.svc.ListComments(ctx, f.bob, ticket.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, root.ID, list[0].ID)
	assert.Equal(t, reply.ID, list[1].ID)

	thread, err := f.svc.CommentThread(ctx, f.bob, ticket.ID)
	require.NoError(t, err)
	require.Len(t, thread, 1)
	require.Len(t, thread[0].Children, 1)
	assert.Equal(t, reply.ID, thread[0].Children[0].Comment.ID)

	// Authors edit their own comments; the owner does not get a pass
	_, err = f.svc.UpdateComment(ctx, f.alice, root.ID, "edited")
	assert.ErrorIs(t, err, tracker.ErrAccessDenied)
	edited, err := f.svc.UpdateComment(ctx, f.bob, root.ID, "Seen in prod (eu-west)")
	require.NoError(t, err)
	assert.True(t, edited.UpdatedAt.After(edited.CreatedAt))

	_, err = f.svc.GetComment(ctx, f.carol, root.ID)
	assert.ErrorIs(t, err, tracker.ErrNotFound)

	err = f.svc.DeleteComment(ctx, f.alice, root.ID)
	assert.ErrorIs(t, err, tracker.ErrAccessDenied)
	require.NoError(t, f.svc.DeleteComment(ctx, f.bob, root.ID))

	got, err := f.svc.GetComment(ctx, f.bob, reply.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Parent)
}

func TestInvitations(t *testing.T) {
	f := newFixture(t)
	ctx := f.ctx
	p := f.project(t, f.alice, "Payments")

	_, err := f.svc.InviteMember(ctx, f.bob, p.ID, f.carol, tracker.RoleViewer)
	assert.ErrorIs(t, err, tracker.ErrNotFound)
	_, err = f.svc.InviteMember(ctx, f.alice, p.ID, f.bob, "owner")
	assert.True(t, tracker.IsValidation(err))

	inv, err := f.svc.InviteMember(ctx, f.alice, p.ID, f.bob, tracker.RoleDeveloper)
	require.NoError(t, err)
	assert.Len(t, inv.Token, 64)

	// Pending invitations grant nothing
	assert.False(t, f.accessible(t, f.bob, p.ID))

	// The token only works for the invited user
	_, err = f.svc.AcceptInvitation(ctx, f.carol, inv.Token)
	assert.ErrorIs(t, err, tracker.ErrNotFound)
	_, err = f.svc.AcceptInvitation(ctx, f.bob, "nope")
	assert.ErrorIs(t, err, tracker.ErrNotFound)

	invitations, err := f.svc.ListInvitations(ctx, f.alice, p.ID)
	require.NoError(t, err)
	require.Len(t, invitations, 1)
	assert.Equal(t, inv.ID, invitations[0].ID)

	require.NoError(t, f.svc.RevokeInvitation(ctx, f.alice, p.ID, inv.ID))
	_, err = f.svc.AcceptInvitation(ctx, f.bob, inv.Token)
	assert.ErrorIs(t, err, tracker.ErrNotFound)

	inv, err = f.svc.InviteMember(ctx, f.alice, p.ID, f.bob, tracker.RoleDeveloper)
	require.NoError(t, err)
	_, err = f.svc.AcceptInvitation(ctx, f.bob, inv.Token)
	require.NoError(t, err)
	assert.True(t, f.accessible(t, f.bob, p.ID))

	// Members can read but not manage invitations
	_, err = f.svc.ListInvitations(ctx, f.bob, p.ID)
	assert.ErrorIs(t, err, tracker.ErrAccessDenied)
}

func TestInvitations_Expiry(t *testing.T) {
	f := newFixture(t)
	ctx := f.ctx
	f.svc.invitationTTL = time.Minute
	p := f.project(t, f.alice, "Payments")

	inv, err := f.svc.InviteMember(ctx, f.alice, p.ID, f.bob, tracker.RoleDeveloper)
	require.NoError(t, err)

	f.clock = f.clock.Add(2 * time.Minute)
	_, err = f.svc.AcceptInvitation(ctx, f.bob, inv.Token)
	assert.True(t, tracker.IsValidation(err))

	// An expired invitation no longer blocks a new one
	_, err = f.svc.InviteMember(ctx, f.alice, p.ID, f.bob, tracker.RoleDeveloper)
	require.NoError(t, err)

	purged, err := f.svc.PurgeExpiredInvitations(ctx, f.clock)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.InvitationsPurgedTotal))
	assert.Equal(t, 1, f.count(t, "project_invitations"))
}

func TestMembers_OwnerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := f.ctx
	p := f.project(t, f.alice, "Payments")
	_, err := f.svc.AddMember(ctx, f.alice, p.ID, f.bob, tracker.RoleDeveloper)
	require.NoError(t, err)

	_, err = f.svc.AddMember(ctx, f.bob, p.ID, f.carol, tracker.RoleDeveloper)
	assert.ErrorIs(t, err, tracker.ErrAccessDenied)
	_, err = f.svc.AddMember(ctx, f.carol, p.ID, f.carol, tracker.RoleDeveloper)
	assert.ErrorIs(t, err, tracker.ErrNotFound)

	_, err = f.svc.UpdateMemberRole(ctx, f.bob, p.ID, f.bob, tracker.RoleAdmin)
	assert.ErrorIs(t, err, tracker.ErrAccessDenied)
	m, err := f.svc.UpdateMemberRole(ctx, f.alice, p.ID, f.bob, tracker.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, tracker.RoleAdmin, m.Role)

	_, err = f.svc.UpdateMemberRole(ctx, f.alice, p.ID, f.carol, tracker.RoleAdmin)
	assert.ErrorIs(t, err, tracker.ErrNotFound)

	err = f.svc.RemoveMember(ctx, f.bob, p.ID, f.bob)
	assert.ErrorIs(t, err, tracker.ErrAccessDenied)

	_, err = f.svc.AddMember(ctx, f.alice, p.ID, uuid.New(), tracker.RoleDeveloper)
	assert.True(t, tracker.IsValidation(err))
}

func TestProjects_UpdateAndValidation(t *testing.T) {
	f := newFixture(t)
	ctx := f.ctx

	_, err := f.svc.CreateProject(ctx, f.alice, NewProject{Name: "   "})
	assert.True(t, tracker.IsValidation(err))

	p := f.project(t, f.alice, "Payments")
	_, err = f.svc.AddMember(ctx, f.alice, p.ID, f.bob, tracker.RoleDeveloper)
	require.NoError(t, err)

	name := "Payments v2"
	_, err = f.svc.UpdateProject(ctx, f.bob, p.ID, ProjectPatch{Name: &name})
	assert.ErrorIs(t, err, tracker.ErrAccessDenied)
	_, err = f.svc.UpdateProject(ctx, f.carol, p.ID, ProjectPatch{Name: &name})
	assert.ErrorIs(t, err, tracker.ErrNotFound)

	updated, err := f.svc.UpdateProject(ctx, f.alice, p.ID, ProjectPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)

	got, err := f.svc.GetProject(ctx, f.bob, p.ID)
	require.NoError(t, err)
	assert.Equal(t, name, got.Name)

	blank := ""
	_, err = f.svc.UpdateProject(ctx, f.alice, p.ID, ProjectPatch{Name: &blank})
	assert.True(t, tracker.IsValidation(err))
}

func TestEnsureUser(t *testing.T) {
	f := newFixture(t)
	ctx := f.ctx

	u, err := f.svc.GetUser(ctx, f.alice)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Handle)
	assert.Equal(t, "alice", u.DisplayName)

	require.NoError(t, f.svc.EnsureUser(ctx, &tracker.User{ID: f.alice, Handle: "alice", DisplayName: "Alice A."}))
	u, err = f.svc.GetUser(ctx, f.alice)
	require.NoError(t, err)
	assert.Equal(t, "Alice A.", u.DisplayName)

	err = f.svc.EnsureUser(ctx, &tracker.User{ID: uuid.New(), Handle: "alice"})
	assert.ErrorIs(t, err, tracker.ErrConflict)
	err = f.svc.EnsureUser(ctx, &tracker.User{ID: uuid.New()})
	assert.True(t, tracker.IsValidation(err))

	_, err = f.svc.GetUser(ctx, uuid.New())
	assert.ErrorIs(t, err, tracker.ErrNotFound)
}

func TestLoadEntity(t *testing.T) {
	f := newFixture(t)
	ctx := f.ctx
	store := f.svc.Store()
	p := f.project(t, f.alice, "Payments")
	_, err := f.svc.AddMember(ctx, f.alice, p.ID, f.bob, tracker.RoleDeveloper)
	require.NoError(t, err)
	ticket, err := f.svc.CreateTicket(ctx, f.bob, p.ID, NewTicket{Title: "T"})
	require.NoError(t, err)
	c, err := f.svc.CreateComment(ctx, f.bob, ticket.ID, NewComment{Content: "c"})
	require.NoError(t, err)

	e, err := store.LoadEntity(ctx, rbac.EntityRef{Kind: rbac.KindComment, ID: c.ID})
	require.NoError(t, err)
	ce := e.(rbac.CommentEntity)
	assert.Equal(t, f.bob, ce.Author)
	assert.Equal(t, f.alice, ce.Ticket.Project.Owner)
	assert.Equal(t, f.bob, ce.Ticket.Reporter)

	e, err = store.LoadEntity(ctx, rbac.EntityRef{Kind: rbac.KindMembership, ID: p.ID, MemberID: f.bob})
	require.NoError(t, err)
	assert.Equal(t, rbac.MembershipOf(p, f.bob), e)

	_, err = store.LoadEntity(ctx, rbac.EntityRef{Kind: rbac.KindMembership, ID: p.ID, MemberID: f.carol})
	assert.ErrorIs(t, err, tracker.ErrNotFound)
	_, err = store.LoadEntity(ctx, rbac.EntityRef{Kind: rbac.KindTicket, ID: uuid.New()})
	assert.ErrorIs(t, err, tracker.ErrNotFound)
	_, err = store.LoadEntity(ctx, rbac.EntityRef{Kind: "attachment", ID: uuid.New()})
	assert.True(t, tracker.IsValidation(err))
}
