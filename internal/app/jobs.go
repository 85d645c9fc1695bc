package app

import (
	"context"
	"time"

	"github.com/garyellow/visadesk/internal/config"
	"github.com/garyellow/visadesk/internal/maintenance"
	"github.com/garyellow/visadesk/internal/sentry"
	"github.com/garyellow/visadesk/internal/warmup"
)

const auditCleanupInterval = 24 * time.Hour

// startBackgroundJobs starts all background goroutines tracked by the WaitGroup.
func (a *Application) startBackgroundJobs(ctx context.Context) {
	a.wg.Go(func() {
		defer sentry.Recover(ctx, "warmup")
		a.runWarmup(ctx)
	})
	if a.dispatcher != nil {
		a.wg.Go(func() {
			defer sentry.Recover(ctx, "notify-dispatcher")
			a.dispatcher.Run(ctx)
		})
	}
	if a.cfg.Notify.ReminderInterval > 0 {
		a.wg.Go(func() {
			a.every(ctx, maintenance.JobReminders, a.cfg.Notify.ReminderInterval, true, a.sendReminders)
		})
	}
	if a.cfg.CleanupInterval > 0 {
		a.wg.Go(func() {
			a.every(ctx, maintenance.JobSessionCleanup, a.cfg.CleanupInterval, false, a.cleanupSessions)
		})
	}
	if a.cfg.AuditRetention > 0 {
		a.wg.Go(func() {
			a.every(ctx, maintenance.JobAuditCleanup, auditCleanupInterval, false, a.cleanupAudit)
		})
	}
	a.wg.Go(func() {
		a.every(ctx, "metrics_gauges", config.MetricsUpdateInterval, false, a.updateGauges)
	})
}

func (a *Application) runWarmup(ctx context.Context) {
	_, err := warmup.Run(ctx, a.db, warmup.Options{
		Seed:    a.cfg.SeedOnStart,
		Logger:  a.logger,
		Metrics: a.metrics,
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		a.readinessState.MarkFailed()
		a.logger.WithError(err).Error("Warmup failed, service stays unready")
		sentry.CaptureException(ctx, err, map[string]string{"job": "warmup"})
		return
	}
	a.readinessState.MarkReady()
}

// every runs fn once per interval until ctx is done. Shared jobs are
// claimed through the scheduler first so only one instance runs each round.
func (a *Application) every(ctx context.Context, job string, interval time.Duration, shared bool, fn func(context.Context) error) {
	log := a.logger.WithField("job", job)
	log.DebugContext(ctx, "Background job started", "interval", interval)
	defer log.Debug("Background job stopped")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if shared {
			// Ticks drift, so the claim window is a little shorter than the interval.
			claimed, err := a.scheduler.Claim(ctx, job, interval*9/10)
			if err != nil {
				log.WithError(err).WarnContext(ctx, "Job claim failed")
				continue
			}
			if !claimed {
				log.DebugContext(ctx, "Job already ran elsewhere")
				continue
			}
		}
		a.runJob(ctx, job, fn)
	}
}

func (a *Application) runJob(ctx context.Context, job string, fn func(context.Context) error) {
	defer sentry.Recover(ctx, job)
	start := time.Now()
	err := fn(ctx)
	a.metrics.RecordJob(job, time.Since(start).Seconds())
	if err != nil && ctx.Err() == nil {
		a.logger.WithError(err).WithField("job", job).WarnContext(ctx, "Background job failed")
	}
}

func (a *Application) sendReminders(ctx context.Context) error {
	queued, err := a.notifier.SendReminders(ctx, a.db, a.cfg.Notify.ReminderLeadTime)
	if queued > 0 {
		a.logger.WithField("queued", queued).InfoContext(ctx, "Document reminders queued")
	}
	return err
}

func (a *Application) cleanupSessions(ctx context.Context) error {
	n, err := a.db.DeleteExpiredSessions(ctx, a.cfg.SessionTTL)
	if n > 0 {
		a.logger.WithField("deleted", n).DebugContext(ctx, "Expired sessions removed")
	}
	return err
}

func (a *Application) cleanupAudit(ctx context.Context) error {
	n, err := a.db.DeleteVerificationAttemptsBefore(ctx, time.Now().Add(-a.cfg.AuditRetention))
	if n > 0 {
		a.logger.WithField("deleted", n).InfoContext(ctx, "Old verification attempts purged")
	}
	return err
}

func (a *Application) updateGauges(ctx context.Context) error {
	if _, err := warmup.RecordApplicationGauges(ctx, a.db, a.metrics); err != nil {
		return err
	}
	n, err := a.db.CountVerifiedSessions(ctx)
	if err != nil {
		return err
	}
	a.metrics.SetActiveSessions(n)
	return nil
}
