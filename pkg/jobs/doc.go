// Package jobs schedules background maintenance with robfig/cron.
//
// Two jobs keep the tables lean: expired pending invitations are purged
// and expired API tokens are deleted. Both are idempotent, so running
// several replicas with the same schedule is harmless.
//
//	s := jobs.NewScheduler(logger, metrics)
//	err := jobs.RegisterMaintenance(s, jobs.Schedules{
//		InvitationPurge: "@every 1h",
//		TokenCleanup:    "30 3 * * *",
//	}, svc, tokens)
//	s.Start(ctx)
package jobs
