package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/tracker/pkg/tracker"
)

const projectColumns = `id, name, description, owner_id, created_at, updated_at`

func scanProject(row interface{ Scan(...any) error }) (*tracker.Project, error) {
	p := &tracker.Project{}
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Owner, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// CreateProject inserts p
func (s *Store) CreateProject(ctx context.Context, p *tracker.Project) error {
	return s.tx(ctx, "create_project", func(q querier) error {
		_, err := q.ExecContext(ctx, `
			INSERT INTO projects (id, name, description, owner_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, p.ID, p.Name, p.Description, p.Owner, p.CreatedAt, p.UpdatedAt)
		if err != nil {
			return constraintError(fmt.Errorf("failed to create project: %w", err), "owner")
		}
		return nil
	})
}

// GetProject loads a project by id
func (s *Store) GetProject(ctx context.Context, id uuid.UUID) (*tracker.Project, error) {
	var p *tracker.Project
	err := s.read(ctx, "get_project", func(q querier) error {
		var err error
		p, err = scanProject(q.QueryRowContext(ctx, `
			SELECT `+projectColumns+`
			FROM projects
			WHERE id = $1
		`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return tracker.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get project: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListProjects loads the projects in ids, oldest first
func (s *Store) ListProjects(ctx context.Context, ids []uuid.UUID) ([]*tracker.Project, error) {
	projects := []*tracker.Project{}
	if len(ids) == 0 {
		return projects, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	err := s.read(ctx, "list_projects", func(q querier) error {
		rows, err := q.QueryContext(ctx, `
			SELECT `+projectColumns+`
			FROM projects
			WHERE id IN (`+placeholders(1, len(ids))+`)
			ORDER BY created_at ASC, id ASC
		`, args...)
		if err != nil {
			return fmt.Errorf("failed to list projects: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			p, err := scanProject(rows)
			if err != nil {
				return fmt.Errorf("failed to scan project: %w", err)
			}
			projects = append(projects, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return projects, nil
}

// UpdateProject writes p's name, description and updated_at
func (s *Store) UpdateProject(ctx context.Context, p *tracker.Project) error {
	return s.tx(ctx, "update_project", func(q querier) error {
		result, err := q.ExecContext(ctx, `
			UPDATE projects
			SET name = $1, description = $2, updated_at = $3
			WHERE id = $4
		`, p.Name, p.Description, p.UpdatedAt, p.ID)
		if err != nil {
			return fmt.Errorf("failed to update project: %w", err)
		}
		return requireAffected(result)
	})
}

// DeleteProject removes a project. Memberships, invitations, tickets,
// comments and ticket events go with it through ON DELETE CASCADE.
func (s *Store) DeleteProject(ctx context.Context, id uuid.UUID) error {
	return s.tx(ctx, "delete_project", func(q querier) error {
		result, err := q.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete project: %w", err)
		}
		return requireAffected(result)
	})
}

// AddMember inserts a membership. An existing membership for the same
// (project, user) pair is ErrConflict.
func (s *Store) AddMember(ctx context.Context, m *tracker.Membership) error {
	return s.tx(ctx, "add_member", func(q querier) error {
		return insertMember(ctx, q, m)
	})
}

func insertMember(ctx context.Context, q querier, m *tracker.Membership) error {
	result, err := q.ExecContext(ctx, `
		INSERT INTO project_members (project_id, user_id, role, invited_by, joined_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (project_id, user_id) DO NOTHING
	`, m.ProjectID, m.UserID, m.Role, nullUUID(m.InvitedBy), m.JoinedAt)
	if err != nil {
		return constraintError(fmt.Errorf("failed to add member: %w", err), "user_id")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: user is already a member", tracker.ErrConflict)
	}
	return nil
}

const memberColumns = `project_id, user_id, role, invited_by, joined_at`

func scanMember(row interface{ Scan(...any) error }) (*tracker.Membership, error) {
	m := &tracker.Membership{}
	var invitedBy uuid.NullUUID
	if err := row.Scan(&m.ProjectID, &m.UserID, &m.Role, &invitedBy, &m.JoinedAt); err != nil {
		return nil, err
	}
	m.InvitedBy = uuidPtr(invitedBy)
	return m, nil
}

// GetMembership loads the membership of userID in projectID
func (s *Store) GetMembership(ctx context.Context, projectID, userID uuid.UUID) (*tracker.Membership, error) {
	var m *tracker.Membership
	err := s.read(ctx, "get_member", func(q querier) error {
		var err error
		m, err = scanMember(q.QueryRowContext(ctx, `
			SELECT `+memberColumns+`
			FROM project_members
			WHERE project_id = $1 AND user_id = $2
		`, projectID, userID))
		if errors.Is(err, sql.ErrNoRows) {
			return tracker.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get member: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListMembers lists a project's memberships in join order
func (s *Store) ListMembers(ctx context.Context, projectID uuid.UUID) ([]*tracker.Membership, error) {
	members := []*tracker.Membership{}
	err := s.read(ctx, "list_members", func(q querier) error {
		rows, err := q.QueryContext(ctx, `
			SELECT `+memberColumns+`
			FROM project_members
			WHERE project_id = $1
			ORDER BY joined_at ASC, user_id ASC
		`, projectID)
		if err != nil {
			return fmt.Errorf("failed to list members: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			m, err := scanMember(rows)
			if err != nil {
				return fmt.Errorf("failed to scan member: %w", err)
			}
			members = append(members, m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return members, nil
}

// UpdateMemberRole changes a member's role
func (s *Store) UpdateMemberRole(ctx context.Context, projectID, userID uuid.UUID, role tracker.Role) error {
	return s.tx(ctx, "update_member", func(q querier) error {
		result, err := q.ExecContext(ctx, `
			UPDATE project_members SET role = $1 WHERE project_id = $2 AND user_id = $3
		`, role, projectID, userID)
		if err != nil {
			return fmt.Errorf("failed to update member role: %w", err)
		}
		return requireAffected(result)
	})
}

// RemoveMember deletes a membership
func (s *Store) RemoveMember(ctx context.Context, projectID, userID uuid.UUID) error {
	return s.tx(ctx, "remove_member", func(q querier) error {
		result, err := q.ExecContext(ctx, `
			DELETE FROM project_members WHERE project_id = $1 AND user_id = $2
		`, projectID, userID)
		if err != nil {
			return fmt.Errorf("failed to remove member: %w", err)
		}
		return requireAffected(result)
	})
}

const invitationColumns = `id, project_id, user_id, role, token, invited_by, expires_at, accepted_at, created_at`

func scanInvitation(row interface{ Scan(...any) error }) (*tracker.Invitation, error) {
	inv := &tracker.Invitation{}
	var acceptedAt sql.NullTime
	err := row.Scan(&inv.ID, &inv.ProjectID, &inv.UserID, &inv.Role, &inv.Token,
		&inv.InvitedBy, &inv.ExpiresAt, &acceptedAt, &inv.CreatedAt)
	if err != nil {
		return nil, err
	}
	if acceptedAt.Valid {
		t := acceptedAt.Time
		inv.AcceptedAt = &t
	}
	return inv, nil
}

// CreateInvitation stores inv. Inviting an existing member, or a user
// with a pending invitation to the same project, is ErrConflict.
func (s *Store) CreateInvitation(ctx context.Context, inv *tracker.Invitation) error {
	return s.tx(ctx, "create_invitation", func(q querier) error {
		var exists int
		err := q.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM project_members WHERE project_id = $1 AND user_id = $2
		`, inv.ProjectID, inv.UserID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check membership: %w", err)
		}
		if exists > 0 {
			return fmt.Errorf("%w: user is already a member", tracker.ErrConflict)
		}

		err = q.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM project_invitations
			WHERE project_id = $1 AND user_id = $2 AND accepted_at IS NULL AND expires_at > $3
		`, inv.ProjectID, inv.UserID, inv.CreatedAt).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check pending invitations: %w", err)
		}
		if exists > 0 {
			return fmt.Errorf("%w: user already has a pending invitation", tracker.ErrConflict)
		}

		_, err = q.ExecContext(ctx, `
			INSERT INTO project_invitations (id, project_id, user_id, role, token, invited_by, expires_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, inv.ID, inv.ProjectID, inv.UserID, inv.Role, inv.Token, inv.InvitedBy, inv.ExpiresAt, inv.CreatedAt)
		if err != nil {
			return constraintError(fmt.Errorf("failed to create invitation: %w", err), "user_id")
		}
		return nil
	})
}

// GetInvitation loads an invitation by id
func (s *Store) GetInvitation(ctx context.Context, id uuid.UUID) (*tracker.Invitation, error) {
	return s.getInvitation(ctx, "get_invitation", `WHERE id = $1`, id)
}

// GetInvitationByToken loads an invitation by its token
func (s *Store) GetInvitationByToken(ctx context.Context, token string) (*tracker.Invitation, error) {
	return s.getInvitation(ctx, "get_invitation", `WHERE token = $1`, token)
}

func (s *Store) getInvitation(ctx context.Context, op, where string, arg any) (*tracker.Invitation, error) {
	var inv *tracker.Invitation
	err := s.read(ctx, op, func(q querier) error {
		var err error
		inv, err = scanInvitation(q.QueryRowContext(ctx, `
			SELECT `+invitationColumns+`
			FROM project_invitations
			`+where, arg))
		if errors.Is(err, sql.ErrNoRows) {
			return tracker.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get invitation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// ListInvitations lists a project's pending invitations, newest first
func (s *Store) ListInvitations(ctx context.Context, projectID uuid.UUID) ([]*tracker.Invitation, error) {
	invitations := []*tracker.Invitation{}
	err := s.read(ctx, "list_invitations", func(q querier) error {
		rows, err := q.QueryContext(ctx, `
			SELECT `+invitationColumns+`
			FROM project_invitations
			WHERE project_id = $1 AND accepted_at IS NULL
			ORDER BY created_at DESC
		`, projectID)
		if err != nil {
			return fmt.Errorf("failed to list invitations: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			inv, err := scanInvitation(rows)
			if err != nil {
				return fmt.Errorf("failed to scan invitation: %w", err)
			}
			invitations = append(invitations, inv)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return invitations, nil
}

// AcceptInvitation marks inv accepted and inserts the membership it
// offers, atomically.
func (s *Store) AcceptInvitation(ctx context.Context, inv *tracker.Invitation, m *tracker.Membership) error {
	return s.tx(ctx, "accept_invitation", func(q querier) error {
		result, err := q.ExecContext(ctx, `
			UPDATE project_invitations SET accepted_at = $1 WHERE id = $2 AND accepted_at IS NULL
		`, m.JoinedAt, inv.ID)
		if err != nil {
			return fmt.Errorf("failed to accept invitation: %w", err)
		}
		if err := requireAffected(result); err != nil {
			return err
		}
		return insertMember(ctx, q, m)
	})
}

// RevokeInvitation deletes a pending invitation
func (s *Store) RevokeInvitation(ctx context.Context, id uuid.UUID) error {
	return s.tx(ctx, "revoke_invitation", func(q querier) error {
		result, err := q.ExecContext(ctx, `
			DELETE FROM project_invitations WHERE id = $1 AND accepted_at IS NULL
		`, id)
		if err != nil {
			return fmt.Errorf("failed to revoke invitation: %w", err)
		}
		return requireAffected(result)
	})
}

// PurgeExpiredInvitations deletes unaccepted invitations that expired
// before now and returns how many were removed.
func (s *Store) PurgeExpiredInvitations(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := s.tx(ctx, "purge_invitations", func(q querier) error {
		result, err := q.ExecContext(ctx, `
			DELETE FROM project_invitations WHERE accepted_at IS NULL AND expires_at <= $1
		`, now)
		if err != nil {
			return fmt.Errorf("failed to purge expired invitations: %w", err)
		}
		n, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		return nil
	})
	return n, err
}
