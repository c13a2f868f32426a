package service

import (
	"context"
	"fmt"

	"github.com/lgu-bplo/bizpermit-backend/internal/app/model"
	"github.com/lgu-bplo/bizpermit-backend/internal/app/repository"
	"github.com/lgu-bplo/bizpermit-backend/pkg/logger"
)

// systemActor reads the renewal queue on behalf of scheduled jobs.
var systemActor = model.Actor{UserID: 0, Role: model.RoleAdmin}

type RenewalReminderService interface {
	SendReminders(ctx context.Context) (int, error)
}

type renewalReminderService struct {
	permits   PermitService
	notifRepo repository.NotificationRepository
	notifier  Notifier
}

func NewRenewalReminderService(permits PermitService, notifRepo repository.NotificationRepository, notifier Notifier) RenewalReminderService {
	return &renewalReminderService{
		permits:   permits,
		notifRepo: notifRepo,
		notifier:  notifier,
	}
}

// SendReminders notifies the applicant of every permit in the renewal queue.
// Each permit gets one reminder per expiry date, however often this runs.
func (s *renewalReminderService) SendReminders(ctx context.Context) (int, error) {
	sent := 0
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		result, err := s.permits.RenewalQueue(ctx, systemActor, page)
		if err != nil {
			return sent, err
		}

		for i := range result.Rows {
			ok, err := s.remind(ctx, &result.Rows[i])
			if err != nil {
				logger.Warn("Failed to send renewal reminder", map[string]interface{}{
					"permit_id": result.Rows[i].ID,
					"error":     err.Error(),
				})
				continue
			}
			if ok {
				sent++
			}
		}

		if page >= result.TotalPages {
			break
		}
	}

	logger.Info("Renewal reminders sent", map[string]interface{}{
		"sent": sent,
	})
	return sent, nil
}

func (s *renewalReminderService) remind(ctx context.Context, v *PermitView) (bool, error) {
	if v.SubmittedBy == 0 || v.ExpiryDate == nil {
		return false, nil
	}

	number := ""
	if v.PermitNumber != nil {
		number = *v.PermitNumber
	}
	title := fmt.Sprintf("Renewal due: %s expires %s", number, v.ExpiryDate.Format("2006-01-02"))

	exists, err := s.notifRepo.ExistsForPermit(v.SubmittedBy, v.ID, model.NotificationTypeRenewalReminder, title)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	permitID := v.ID
	msg := NotificationMessage{
		Type:     model.NotificationTypeRenewalReminder,
		Title:    title,
		Content:  fmt.Sprintf("The business permit of %s expires on %s (%s). Please file for renewal at the licensing office.",
			v.BusinessName, v.ExpiryDate.Format("2006-01-02"), v.DaysRemaining),
		Link:     fmt.Sprintf("/permits/%d", v.ID),
		PermitID: &permitID,
	}
	if err := s.notifier.Notify(ctx, v.SubmittedBy, msg); err != nil {
		return false, err
	}
	return true, nil
}
