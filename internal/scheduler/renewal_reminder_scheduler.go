package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/lgu-bplo/bizpermit-backend/internal/app/service"
	"github.com/lgu-bplo/bizpermit-backend/pkg/logger"
	"github.com/lgu-bplo/bizpermit-backend/pkg/redis"
	"github.com/robfig/cron/v3"
)

const (
	reminderLockKey = "renewal-reminders"
	reminderTimeout = 10 * time.Minute
)

// RenewalReminderScheduler runs the renewal reminder job on a cron schedule.
// With several instances running, the Redis lock keeps it to one run.
type RenewalReminderScheduler struct {
	cron      *cron.Cron
	spec      string
	reminders service.RenewalReminderService
	locker    *redis.Locker
}

func NewRenewalReminderScheduler(spec string, reminders service.RenewalReminderService, locker *redis.Locker) *RenewalReminderScheduler {
	return &RenewalReminderScheduler{
		cron:      cron.New(),
		spec:      spec,
		reminders: reminders,
		locker:    locker,
	}
}

func (s *RenewalReminderScheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.RunOnce); err != nil {
		logger.Error("Failed to add cron job for renewal reminders", err, map[string]interface{}{
			"spec": s.spec,
		})
		return err
	}

	s.cron.Start()
	logger.Info("Renewal reminder scheduler started", map[string]interface{}{
		"spec": s.spec,
	})
	return nil
}

// RunOnce runs the job immediately if no other instance holds the lock.
func (s *RenewalReminderScheduler) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), reminderTimeout)
	defer cancel()

	release, err := s.locker.Acquire(ctx, reminderLockKey, reminderTimeout)
	if err != nil {
		if errors.Is(err, redis.ErrLockHeld) {
			logger.Info("Renewal reminders already running elsewhere, skipping")
			return
		}
		logger.Error("Failed to acquire renewal reminder lock", err)
		return
	}
	defer release()

	logger.Info("Starting scheduled renewal reminders")
	sent, err := s.reminders.SendReminders(ctx)
	if err != nil {
		logger.Error("Renewal reminder run failed", err, map[string]interface{}{
			"sent": sent,
		})
		return
	}
	logger.Info("Scheduled renewal reminders finished", map[string]interface{}{
		"sent": sent,
	})
}

func (s *RenewalReminderScheduler) Stop() {
	logger.Info("Stopping renewal reminder scheduler...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("Renewal reminder scheduler stopped")
}
