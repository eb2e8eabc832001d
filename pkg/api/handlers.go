package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/platinummonkey/tracker/pkg/httputil"
	"github.com/platinummonkey/tracker/pkg/middleware"
	"github.com/platinummonkey/tracker/pkg/service"
	"github.com/platinummonkey/tracker/pkg/tracker"
	"github.com/platinummonkey/tracker/pkg/workflow"
)

// Handlers exposes the tracker service over HTTP
type Handlers struct {
	svc *service.Service
}

// NewHandlers creates handlers backed by svc
func NewHandlers(svc *service.Service) *Handlers {
	return &Handlers{svc: svc}
}

// RegisterRoutes registers project, membership, ticket and comment routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	// Projects
	router.HandleFunc("/projects", h.ListProjects).Methods(http.MethodGet)
	router.HandleFunc("/projects", h.CreateProject).Methods(http.MethodPost)
	router.HandleFunc("/projects/{id}", h.GetProject).Methods(http.MethodGet)
	router.HandleFunc("/projects/{id}", h.UpdateProject).Methods(http.MethodPatch)
	router.HandleFunc("/projects/{id}", h.DeleteProject).Methods(http.MethodDelete)

	// Members
	router.HandleFunc("/projects/{id}/members", h.ListMembers).Methods(http.MethodGet)
	router.HandleFunc("/projects/{id}/members", h.AddMember).Methods(http.MethodPost)
	router.HandleFunc("/projects/{id}/members/{user_id}", h.UpdateMember).Methods(http.MethodPatch)
	router.HandleFunc("/projects/{id}/members/{user_id}", h.RemoveMember).Methods(http.MethodDelete)

	// Invitations
	router.HandleFunc("/projects/{id}/invitations", h.ListInvitations).Methods(http.MethodGet)
	router.HandleFunc("/projects/{id}/invitations", h.CreateInvitation).Methods(http.MethodPost)
	router.HandleFunc("/projects/{id}/invitations/{invitation_id}", h.RevokeInvitation).Methods(http.MethodDelete)
	router.HandleFunc("/invitations/{token}/accept", h.AcceptInvitation).Methods(http.MethodPost)

	// Tickets
	router.HandleFunc("/projects/{id}/tickets", h.ListTickets).Methods(http.MethodGet)
	router.HandleFunc("/projects/{id}/tickets", h.CreateTicket).Methods(http.MethodPost)
	router.HandleFunc("/tickets/{id}", h.GetTicket).Methods(http.MethodGet)
	router.HandleFunc("/tickets/{id}", h.UpdateTicket).Methods(http.MethodPatch)
	router.HandleFunc("/tickets/{id}", h.DeleteTicket).Methods(http.MethodDelete)
	router.HandleFunc("/tickets/{id}/events", h.ListTicketEvents).Methods(http.MethodGet)

	// Comments
	router.HandleFunc("/tickets/{id}/comments", h.ListComments).Methods(http.MethodGet)
	router.HandleFunc("/tickets/{id}/comments", h.CreateComment).Methods(http.MethodPost)
	router.HandleFunc("/tickets/{id}/thread", h.CommentThread).Methods(http.MethodGet)
	router.HandleFunc("/comments/{id}", h.GetComment).Methods(http.MethodGet)
	router.HandleFunc("/comments/{id}", h.UpdateComment).Methods(http.MethodPatch)
	router.HandleFunc("/comments/{id}", h.DeleteComment).Methods(http.MethodDelete)
}

// caller returns the authenticated user, writing a 401 when there is none
func caller(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id := middleware.GetAuthContext(r).UserID()
	if id == uuid.Nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return uuid.Nil, false
	}
	return id, true
}

// callerAndID resolves the caller and the {id} path parameter
func callerAndID(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	user, ok := caller(w, r)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	return user, id, true
}

// ListProjects lists the caller's accessible projects
func (h *Handlers) ListProjects(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(w, r)
	if !ok {
		return
	}
	projects, err := h.svc.ListProjects(r.Context(), user)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, projects)
}

// CreateProject creates a project owned by the caller
func (h *Handlers) CreateProject(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(w, r)
	if !ok {
		return
	}
	var req service.NewProject
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	project, err := h.svc.CreateProject(r.Context(), user, req)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteCreated(w, project)
}

// GetProject returns one project
func (h *Handlers) GetProject(w http.ResponseWriter, r *http.Request) {
	user, id, ok := callerAndID(w, r)
	if !ok {
		return
	}
	project, err := h.svc.GetProject(r.Context(), user, id)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, project)
}

// UpdateProject renames or re-describes a project
func (h *Handlers) UpdateProject(w http.ResponseWriter, r *http.Request) {
	user, id, ok := callerAndID(w, r)
	if !ok {
		return
	}
	var req service.ProjectPatch
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	project, err := h.svc.UpdateProject(r.Context(), user, id, req)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, project)
}

// DeleteProject deletes a project and everything in it
func (h *Handlers) DeleteProject(w http.ResponseWriter, r *http.Request) {
	user, id, ok := callerAndID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteProject(r.Context(), user, id); err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

type memberRequest struct {
	UserID uuid.UUID    `json:"user_id"`
	Role   tracker.Role `json:"role"`
}

type roleRequest struct {
	Role tracker.Role `json:"role"`
}

// ListMembers lists a project's members
func (h *Handlers) ListMembers(w http.ResponseWriter, r *http.Request) {
	user, id, ok := callerAndID(w, r)
	if !ok {
		return
	}
	members, err := h.svc.ListMembers(r.Context(), user, id)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, members)
}

// AddMember adds a member directly
func (h *Handlers) AddMember(w http.ResponseWriter, r *http.Request) {
	user, id, ok := callerAndID(w, r)
	if !ok {
		return
	}
	var req memberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	member, err := h.svc.AddMember(r.Context(), user, id, req.UserID, req.Role)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteCreated(w, member)
}

// UpdateMember changes a member's role
func (h *Handlers) UpdateMember(w http.ResponseWriter, r *http.Request) {
	user, id, ok := callerAndID(w, r)
	if !ok {
		return
	}
	memberID, ok := httputil.ParsePathUUIDOrError(w, r, "user_id")
	if !ok {
		return
	}
	var req roleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	member, err := h.svc.UpdateMemberRole(r.Context(), user, id, memberID, req.Role)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, member)
}

// RemoveMember removes a member
func (h *Handlers) RemoveMember(w http.ResponseWriter, r *http.Request) {
	user, id, ok := callerAndID(w, r)
	if !ok {
		return
	}
	memberID, ok := httputil.ParsePathUUIDOrError(w, r, "user_id")
	if !ok {
		return
	}
	if err := h.svc.RemoveMember(r.Context(), user, id, memberID); err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// ListInvitations lists a project's pending invitations
func (h *Handlers) ListInvitations(w http.ResponseWriter, r *http.Request) {
	user, id, ok := callerAndID(w, r)
	if !ok {
		return
	}
	invitations, err := h.svc.ListInvitations(r.Context(), user, id)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, invitations)
}

// CreateInvitation invites a user to a project
func (h *Handlers) CreateInvitation(w http.ResponseWriter, r *http.Request) {
	user, id, ok := callerAndID(w, r)
	if !ok {
		return
	}
	var req memberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	invitation, err := h.svc.InviteMember(r.Context(), user, id, req.UserID, req.Role)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteCreated(w, invitation)
}

// RevokeInvitation withdraws a pending invitation
func (h *Handlers) RevokeInvitation(w http.ResponseWriter, r *http.Request) {
	user, id, ok := callerAndID(w, r)
	if !ok {
		return
	}
	invitationID, ok := httputil.ParsePathUUIDOrError(w, r, "invitation_id")
	if !ok {
		return
	}
	if err := h.svc.RevokeInvitation(r.Context(), user, id, invitationID); err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// AcceptInvitation accepts the caller's invitation
func (h *Handlers) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(w, r)
	if !ok {
		return
	}
	token, ok := httputil.ParsePathStringOrError(w, r, "token")
	if !ok {
		return
	}
	member, err := h.svc.AcceptInvitation(r.Context(), user, token)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteCreated(w, member)
}

// ListTickets lists a project's tickets. ?status= filters by status.
func (h *Handlers) ListTickets(w http.ResponseWriter, r *http.Request) {
	user, id, ok := callerAndID(w, r)
	if !ok {
		return
	}
	var status *tracker.Status
	if raw := httputil.ParseQueryString(r, "status", ""); raw != "" {
		st, err := tracker.ParseStatus(raw)
		if err != nil {
			httputil.WriteServiceError(w, r, err)
			return
		}
		status = &st
	}
	tickets, err := h.svc.ListTickets(r.Context(), user, id, status)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, tickets)
}

// CreateTicket files a ticket with the caller as reporter
func (h *Handlers) CreateTicket(w http.ResponseWriter, r *http.Request) {
	user, id, ok := callerAndID(w, r)
	if !ok {
		return
	}
	var req service.NewTicket
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	ticket, err := h.svc.CreateTicket(r.Context(), user, id, req)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteCreated(w, ticket)
}

// GetTicket returns one ticket
func (h *Handlers) GetTicket(w http.ResponseWriter, r *http.Request) {
	user, id, ok := callerAndID(w, r)
	if !ok {
		return
	}
	ticket, err := h.svc.GetTicket(r.Context(), user, id)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, ticket)
}

// UpdateTicket applies a partial update through the workflow
func (h *Handlers) UpdateTicket(w http.ResponseWriter, r *http.Request) {
	user, id, ok := callerAndID(w, r)
	if !ok {
		return
	}
	var patch workflow.TicketPatch
	if !httputil.ParseJSONOrError(w, r, &patch) {
		return
	}
	ticket, err := h.svc.UpdateTicket(r.Context(), user, id, patch)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, ticket)
}

// DeleteTicket deletes a ticket
func (h *Handlers) DeleteTicket(w http.ResponseWriter, r *http.Request) {
	user, id, ok := callerAndID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteTicket(r.Context(), user, id); err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// ListTicketEvents returns a ticket's workflow history
func (h *Handlers) ListTicketEvents(w http.ResponseWriter, r *http.Request) {
	user, id, ok := callerAndID(w, r)
	if !ok {
		return
	}
	events, err := h.svc.ListTicketEvents(r.Context(), user, id)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, events)
}

type commentPatch struct {
	Content string `json:"content"`
}

// ListComments lists a ticket's comments in display order
func (h *Handlers) ListComments(w http.ResponseWriter, r *http.Request) {
	user, id, ok := callerAndID(w, r)
	if !ok {
		return
	}
	list, err := h.svc.ListComments(r.Context(), user, id)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

// CreateComment posts a comment
func (h *Handlers) CreateComment(w http.ResponseWriter, r *http.Request) {
	user, id, ok := callerAndID(w, r)
	if !ok {
		return
	}
	var req service.NewComment
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	comment, err := h.svc.CreateComment(r.Context(), user, id, req)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteCreated(w, comment)
}

// CommentThread returns a ticket's comments nested by parent
func (h *Handlers) CommentThread(w http.ResponseWriter, r *http.Request) {
	user, id, ok := callerAndID(w, r)
	if !ok {
		return
	}
	thread, err := h.svc.CommentThread(r.Context(), user, id)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, thread)
}

// GetComment returns one comment
func (h *Handlers) GetComment(w http.ResponseWriter, r *http.Request) {
	user, id, ok := callerAndID(w, r)
	if !ok {
		return
	}
	comment, err := h.svc.GetComment(r.Context(), user, id)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, comment)
}

// UpdateComment edits a comment's content
func (h *Handlers) UpdateComment(w http.ResponseWriter, r *http.Request) {
	user, id, ok := callerAndID(w, r)
	if !ok {
		return
	}
	var req commentPatch
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	comment, err := h.svc.UpdateComment(r.Context(), user, id, req.Content)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, comment)
}

// DeleteComment deletes a comment
func (h *Handlers) DeleteComment(w http.ResponseWriter, r *http.Request) {
	user, id, ok := callerAndID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteComment(r.Context(), user, id); err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}
