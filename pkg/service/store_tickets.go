package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/platinummonkey/tracker/pkg/tracker"
)

const ticketColumns = `id, project_id, title, description, type, priority, status, reporter_id, assignee_id, created_at, updated_at`

func scanTicket(row interface{ Scan(...any) error }) (*tracker.Ticket, error) {
	t := &tracker.Ticket{}
	var assignee uuid.NullUUID
	err := row.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.Type, &t.Priority,
		&t.Status, &t.Reporter, &assignee, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Assignee = uuidPtr(assignee)
	return t, nil
}

// CreateTicket inserts t together with its creation events
func (s *Store) CreateTicket(ctx context.Context, t *tracker.Ticket, events []tracker.TicketEvent) error {
	return s.tx(ctx, "create_ticket", func(q querier) error {
		_, err := q.ExecContext(ctx, `
			INSERT INTO tickets (id, project_id, title, description, type, priority, status, reporter_id, assignee_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, t.ID, t.ProjectID, t.Title, t.Description, t.Type, t.Priority, t.Status,
			t.Reporter, nullUUID(t.Assignee), t.CreatedAt, t.UpdatedAt)
		if err != nil {
			return constraintError(fmt.Errorf("failed to create ticket: %w", err), "assignee")
		}
		return insertEvents(ctx, q, events)
	})
}

// GetTicket loads a ticket by id
func (s *Store) GetTicket(ctx context.Context, id uuid.UUID) (*tracker.Ticket, error) {
	var t *tracker.Ticket
	err := s.read(ctx, "get_ticket", func(q querier) error {
		var err error
		t, err = scanTicket(q.QueryRowContext(ctx, `
			SELECT `+ticketColumns+`
			FROM tickets
			WHERE id = $1
		`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return tracker.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get ticket: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ListTickets lists a project's tickets, oldest first, optionally only
// those in status
func (s *Store) ListTickets(ctx context.Context, projectID uuid.UUID, status *tracker.Status) ([]*tracker.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE project_id = $1`
	args := []any{projectID}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	tickets := []*tracker.Ticket{}
	err := s.read(ctx, "list_tickets", func(q querier) error {
		rows, err := q.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to list tickets: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			t, err := scanTicket(rows)
			if err != nil {
				return fmt.Errorf("failed to scan ticket: %w", err)
			}
			tickets = append(tickets, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

// UpdateTicket writes every mutable field of t in one statement and
// appends events. The last committed write wins.
func (s *Store) UpdateTicket(ctx context.Context, t *tracker.Ticket, events []tracker.TicketEvent) error {
	return s.tx(ctx, "update_ticket", func(q querier) error {
		result, err := q.ExecContext(ctx, `
			UPDATE tickets
			SET title = $1, description = $2, type = $3, priority = $4, status = $5, assignee_id = $6, updated_at = $7
			WHERE id = $8
		`, t.Title, t.Description, t.Type, t.Priority, t.Status, nullUUID(t.Assignee), t.UpdatedAt, t.ID)
		if err != nil {
			return constraintError(fmt.Errorf("failed to update ticket: %w", err), "assignee")
		}
		if err := requireAffected(result); err != nil {
			return err
		}
		return insertEvents(ctx, q, events)
	})
}

// DeleteTicket removes a ticket with its comments and events
func (s *Store) DeleteTicket(ctx context.Context, id uuid.UUID) error {
	return s.tx(ctx, "delete_ticket", func(q querier) error {
		result, err := q.ExecContext(ctx, `DELETE FROM tickets WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete ticket: %w", err)
		}
		return requireAffected(result)
	})
}

func insertEvents(ctx context.Context, q querier, events []tracker.TicketEvent) error {
	for _, e := range events {
		_, err := q.ExecContext(ctx, `
			INSERT INTO ticket_events (id, ticket_id, actor_id, kind, from_value, to_value, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, e.ID, e.TicketID, e.Actor, e.Kind, e.From, e.To, e.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to record ticket event: %w", err)
		}
	}
	return nil
}

// ListTicketEvents lists a ticket's workflow history, oldest first
func (s *Store) ListTicketEvents(ctx context.Context, ticketID uuid.UUID) ([]tracker.TicketEvent, error) {
	events := []tracker.TicketEvent{}
	err := s.read(ctx, "list_ticket_events", func(q querier) error {
		rows, err := q.QueryContext(ctx, `
			SELECT id, ticket_id, actor_id, kind, from_value, to_value, created_at
			FROM ticket_events
			WHERE ticket_id = $1
			ORDER BY created_at ASC
		`, ticketID)
		if err != nil {
			return fmt.Errorf("failed to list ticket events: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var e tracker.TicketEvent
			if err := rows.Scan(&e.ID, &e.TicketID, &e.Actor, &e.Kind, &e.From, &e.To, &e.CreatedAt); err != nil {
				return fmt.Errorf("failed to scan ticket event: %w", err)
			}
			events = append(events, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

const commentColumns = `id, ticket_id, author_id, parent_id, content, created_at, updated_at`

func scanComment(row interface{ Scan(...any) error }) (*tracker.Comment, error) {
	c := &tracker.Comment{}
	var parent uuid.NullUUID
	err := row.Scan(&c.ID, &c.TicketID, &c.Author, &parent, &c.Content, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Parent = uuidPtr(parent)
	return c, nil
}

// CreateComment inserts c
func (s *Store) CreateComment(ctx context.Context, c *tracker.Comment) error {
	return s.tx(ctx, "create_comment", func(q querier) error {
		_, err := q.ExecContext(ctx, `
			INSERT INTO comments (id, ticket_id, author_id, parent_id, content, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, c.ID, c.TicketID, c.Author, nullUUID(c.Parent), c.Content, c.CreatedAt, c.UpdatedAt)
		if err != nil {
			return constraintError(fmt.Errorf("failed to create comment: %w", err), "parent")
		}
		return nil
	})
}

// GetComment loads a comment by id
func (s *Store) GetComment(ctx context.Context, id uuid.UUID) (*tracker.Comment, error) {
	var c *tracker.Comment
	err := s.read(ctx, "get_comment", func(q querier) error {
		var err error
		c, err = scanComment(q.QueryRowContext(ctx, `
			SELECT `+commentColumns+`
			FROM comments
			WHERE id = $1
		`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return tracker.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get comment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListComments lists a ticket's comments by creation time, then id
func (s *Store) ListComments(ctx context.Context, ticketID uuid.UUID) ([]tracker.Comment, error) {
	list := []tracker.Comment{}
	err := s.read(ctx, "list_comments", func(q querier) error {
		rows, err := q.QueryContext(ctx, `
			SELECT `+commentColumns+`
			FROM comments
			WHERE ticket_id = $1
			ORDER BY created_at ASC, id ASC
		`, ticketID)
		if err != nil {
			return fmt.Errorf("failed to list comments: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			c, err := scanComment(rows)
			if err != nil {
				return fmt.Errorf("failed to scan comment: %w", err)
			}
			list = append(list, *c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}

// UpdateComment writes c's content and updated_at
func (s *Store) UpdateComment(ctx context.Context, c *tracker.Comment) error {
	return s.tx(ctx, "update_comment", func(q querier) error {
		result, err := q.ExecContext(ctx, `
			UPDATE comments SET content = $1, updated_at = $2 WHERE id = $3
		`, c.Content, c.UpdatedAt, c.ID)
		if err != nil {
			return fmt.Errorf("failed to update comment: %w", err)
		}
		return requireAffected(result)
	})
}

// DeleteComment removes a comment. Replies keep existing with no parent.
func (s *Store) DeleteComment(ctx context.Context, id uuid.UUID) error {
	return s.tx(ctx, "delete_comment", func(q querier) error {
		result, err := q.ExecContext(ctx, `DELETE FROM comments WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete comment: %w", err)
		}
		return requireAffected(result)
	})
}
