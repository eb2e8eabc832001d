package jobs

import (
	"context"
	"time"

	"github.com/platinummonkey/tracker/pkg/observability"
)

// InvitationPurger deletes invitations that expired before now
type InvitationPurger interface {
	PurgeExpiredInvitations(ctx context.Context, now time.Time) (int64, error)
}

// TokenCleaner deletes expired API tokens
type TokenCleaner interface {
	CleanupExpiredTokens(ctx context.Context) (int64, error)
}

// Schedules names the cron schedule of each maintenance job. An empty
// schedule leaves that job out.
type Schedules struct {
	InvitationPurge string
	TokenCleanup    string
}

// RegisterMaintenance adds the invitation purge and token cleanup jobs
func RegisterMaintenance(s *Scheduler, schedules Schedules, invitations InvitationPurger, tokens TokenCleaner) error {
	if schedules.InvitationPurge != "" && invitations != nil {
		if err := s.Add("purge_invitations", schedules.InvitationPurge, PurgeInvitations(invitations, s.logger)); err != nil {
			return err
		}
	}
	if schedules.TokenCleanup != "" && tokens != nil {
		if err := s.Add("cleanup_tokens", schedules.TokenCleanup, CleanupTokens(tokens, s.logger)); err != nil {
			return err
		}
	}
	return nil
}

// PurgeInvitations returns a job that removes expired pending invitations
func PurgeInvitations(p InvitationPurger, logger *observability.Logger) Func {
	return func(ctx context.Context) error {
		n, err := p.PurgeExpiredInvitations(ctx, time.Now().UTC())
		if err != nil {
			return err
		}
		if n > 0 {
			logger.WithField("count", n).Info("purged expired invitations")
		}
		return nil
	}
}

// CleanupTokens returns a job that removes expired API tokens
func CleanupTokens(c TokenCleaner, logger *observability.Logger) Func {
	return func(ctx context.Context) error {
		n, err := c.CleanupExpiredTokens(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.WithField("count", n).Info("removed expired API tokens")
		}
		return nil
	}
}
