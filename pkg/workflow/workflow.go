// Package workflow implements the ticket status state machine and the
// field-update rules applied alongside it.
//
// The board is deliberately permissive: any of todo, in_progress and done
// may move to any other (or stay put) in one step, so a card can be dropped
// in any column. Who may update a ticket at all is decided by the policy
// evaluator, not here.
package workflow

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/tracker/pkg/tracker"
)

// Transition is a directed status change
type Transition struct {
	From tracker.Status `json:"from"`
	To   tracker.Status `json:"to"`
}

// CanTransition reports whether a ticket may move from one status to
// another. Every pair of known statuses is legal, including no-ops.
func CanTransition(from, to tracker.Status) bool {
	return from.Validate() == nil && to.Validate() == nil
}

// Transitions lists every legal transition, no-ops included
func Transitions() []Transition {
	out := make([]Transition, 0, len(tracker.Statuses)*len(tracker.Statuses))
	for _, from := range tracker.Statuses {
		for _, to := range tracker.Statuses {
			out = append(out, Transition{From: from, To: to})
		}
	}
	return out
}

// TicketPatch is a partial update. Nil fields are left unchanged.
// ClearAssignee unassigns the ticket and wins over Assignee.
type TicketPatch struct {
	Title         *string             `json:"title,omitempty"`
	Description   *string             `json:"description,omitempty"`
	Type          *tracker.TicketType `json:"type,omitempty"`
	Priority      *tracker.Priority   `json:"priority,omitempty"`
	Status        *tracker.Status     `json:"status,omitempty"`
	Assignee      *uuid.UUID          `json:"assignee,omitempty"`
	ClearAssignee bool                `json:"clear_assignee,omitempty"`
}

// Validate checks every field present in the patch
func (p *TicketPatch) Validate() error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return tracker.NewValidationError("title", "title cannot be empty")
	}
	if p.Type != nil {
		if err := p.Type.Validate(); err != nil {
			return err
		}
	}
	if p.Priority != nil {
		if err := p.Priority.Validate(); err != nil {
			return err
		}
	}
	if p.Status != nil {
		if err := p.Status.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// IsEmpty reports whether the patch changes nothing
func (p *TicketPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Type == nil &&
		p.Priority == nil && p.Status == nil && p.Assignee == nil && !p.ClearAssignee
}

// Apply returns ticket with patch applied, plus the workflow events the
// change produces. The input ticket is not modified. Assignees are not
// checked for project membership.
func Apply(ticket tracker.Ticket, patch TicketPatch, actor uuid.UUID, now time.Time) (tracker.Ticket, []tracker.TicketEvent, error) {
	if err := patch.Validate(); err != nil {
		return ticket, nil, err
	}

	var events []tracker.TicketEvent
	event := func(kind tracker.EventKind, from, to string) {
		events = append(events, tracker.TicketEvent{
			ID:        uuid.New(),
			TicketID:  ticket.ID,
			Actor:     actor,
			Kind:      kind,
			From:      from,
			To:        to,
			CreatedAt: now,
		})
	}

	next := ticket
	if patch.Title != nil {
		next.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		next.Description = *patch.Description
	}
	if patch.Type != nil {
		next.Type = *patch.Type
	}
	if patch.Priority != nil {
		next.Priority = *patch.Priority
	}
	if patch.Status != nil && *patch.Status != ticket.Status {
		if !CanTransition(ticket.Status, *patch.Status) {
			return ticket, nil, tracker.NewValidationError("status",
				"cannot move from %q to %q", ticket.Status, *patch.Status)
		}
		next.Status = *patch.Status
		event(tracker.EventStatusChanged, string(ticket.Status), string(next.Status))
	}

	switch {
	case patch.ClearAssignee:
		next.Assignee = nil
	case patch.Assignee != nil:
		a := *patch.Assignee
		next.Assignee = &a
	}
	if assigneeString(ticket.Assignee) != assigneeString(next.Assignee) {
		event(tracker.EventReassigned, assigneeString(ticket.Assignee), assigneeString(next.Assignee))
	}

	next.UpdatedAt = now
	return next, events, nil
}

func assigneeString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
