package service

import (
	"context"
	"testing"

	"github.com/lgu-bplo/bizpermit-backend/internal/app/model"
	"github.com/lgu-bplo/bizpermit-backend/internal/app/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendReminders_OncePerExpiry(t *testing.T) {
	f := setupPermitFixture(t)
	notifRepo := repository.NewNotificationRepository(f.db)
	inbox := NewNotificationService(notifRepo, nil, nil)
	reminders := NewRenewalReminderService(f.service, notifRepo, inbox)

	due := f.approvedPermit(t, f.day(20))
	overdue := f.approvedPermit(t, f.day(-3))
	f.approvedPermit(t, f.day(120))
	f.createPermit(t, model.PermitStatusRevoked, func(p *model.Permit) {
		p.ExpiryDate = f.day(5)
	})

	sent, err := reminders.SendReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	sent, err = reminders.SendReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sent)

	list, total, err := notifRepo.GetNotifications(applicantActor.UserID, nil, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	permitIDs := []uint{}
	for _, n := range list {
		assert.Equal(t, model.NotificationTypeRenewalReminder, n.Type)
		require.NotNil(t, n.RelatedPermitID)
		permitIDs = append(permitIDs, *n.RelatedPermitID)
	}
	assert.ElementsMatch(t, []uint{due.ID, overdue.ID}, permitIDs)

	// eleven months on: the renewed permit is due again under its new
	// expiry and the 120-day permit has lapsed; the first reminder is not
	// repeated
	_, err = f.renewals.Renew(context.Background(), overdue.ID, RenewalRequest{ValidityYears: 1, ExpectedVersion: version(overdue.Version)}, staffActor)
	require.NoError(t, err)
	f.today = f.today.AddDate(0, 11, 0)

	sent, err = reminders.SendReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
}
