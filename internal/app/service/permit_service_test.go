package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/lgu-bplo/bizpermit-backend/internal/app/model"
	"github.com/lgu-bplo/bizpermit-backend/internal/app/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validApplication() SubmitApplicationInput {
	return SubmitApplicationInput{
		BusinessName:   "Kape ni Juan",
		BusinessTypeID: 2,
		Address:        "12 Rizal St., Barangay Poblacion",
		OwnerName:      "Juan Reyes",
		EmployeeCount:  3,
		FloorArea:      "24.5",
	}
}

func TestSubmitApplication_DefaultsFeeFromBusinessType(t *testing.T) {
	f := setupPermitFixture(t)

	permit, err := f.service.SubmitApplication(context.Background(), applicantActor, validApplication())
	require.NoError(t, err)

	assert.NotZero(t, permit.ID)
	assert.Equal(t, model.PermitStatusPending, permit.Status)
	assert.Equal(t, int64(1), permit.Version)
	assert.Equal(t, applicantActor.UserID, permit.SubmittedBy)
	assert.True(t, permit.ApplicationDate.Equal(f.today))
	assert.Equal(t, "750.00", permit.PermitFee.StringFixed(2))
	assert.Equal(t, "750.00", permit.TotalFee.StringFixed(2))
	assert.Equal(t, "24.50", permit.FloorArea.StringFixed(2))
	assert.Nil(t, permit.PermitNumber)
	require.NotNil(t, permit.BusinessType)
	assert.Equal(t, "Food Service", permit.BusinessType.Name)

	records, err := f.history.ListFor(permit.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, model.HistoryActionSubmitted, records[0].Action)
	assert.Equal(t, model.PermitStatusPending, records[0].NewStatus)

	messages := f.notifier.waitFor(t, 1)
	assert.Equal(t, "Application received", messages[0].Title)
}

func TestSubmitApplication_WithFeesAndResident(t *testing.T) {
	f := setupPermitFixture(t)
	resident := &model.Resident{
		FirstName:  "Maria",
		MiddleName: "Santos",
		LastName:   "Dela Cruz",
		Contact:    "09171234567",
		Email:      "maria@example.com",
	}
	require.NoError(t, f.db.Create(resident).Error)

	input := validApplication()
	input.OwnerName = ""
	input.ResidentID = &resident.ID
	input.Fees = &FeeInput{
		PermitFee:   "500",
		SanitaryFee: "500",
		GarbageFee:  "300",
		Additional:  map[string]FeeAmount{"signage": "120.25"},
	}

	permit, err := f.service.SubmitApplication(context.Background(), applicantActor, input)
	require.NoError(t, err)
	assert.Equal(t, "Maria Santos Dela Cruz", permit.OwnerName)
	assert.Equal(t, "09171234567", permit.OwnerContact)
	assert.Equal(t, "maria@example.com", permit.OwnerEmail)
	assert.Equal(t, "1420.25", permit.TotalFee.StringFixed(2))
	assert.Equal(t, "120.25", permit.AdditionalFees.Data()["signage"].StringFixed(2))
}

func TestSubmitApplication_Validation(t *testing.T) {
	tests := []struct {
		name    string
		edit    func(in *SubmitApplicationInput)
		wantErr error
	}{
		{"blank business name", func(in *SubmitApplicationInput) { in.BusinessName = " " }, ErrValidation},
		{"blank address", func(in *SubmitApplicationInput) { in.Address = "" }, ErrValidation},
		{"no owner", func(in *SubmitApplicationInput) { in.OwnerName = "" }, ErrValidation},
		{"unknown business type", func(in *SubmitApplicationInput) { in.BusinessTypeID = 999 }, ErrBusinessTypeNotFound},
		{"unknown resident", func(in *SubmitApplicationInput) {
			id := uint(999)
			in.ResidentID = &id
		}, ErrValidation},
		{"negative employees", func(in *SubmitApplicationInput) { in.EmployeeCount = -1 }, ErrValidation},
		{"bad floor area", func(in *SubmitApplicationInput) { in.FloorArea = "big" }, ErrValidation},
		{"negative fee", func(in *SubmitApplicationInput) {
			in.Fees = &FeeInput{PermitFee: "-100"}
		}, ErrInvalidFee},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupPermitFixture(t)
			input := validApplication()
			tt.edit(&input)

			_, err := f.service.SubmitApplication(context.Background(), applicantActor, input)
			assert.ErrorIs(t, err, tt.wantErr)

			var count int64
			require.NoError(t, f.db.Model(&model.Permit{}).Count(&count).Error)
			assert.Zero(t, count)
		})
	}
}

func TestGetPermit_Visibility(t *testing.T) {
	f := setupPermitFixture(t)
	permit := f.approvedPermit(t, f.day(10))
	ctx := context.Background()

	view, err := f.service.GetPermit(ctx, staffActor, permit.ID)
	require.NoError(t, err)
	assert.Equal(t, DisplayExpiringSoon, view.DisplayStatus)
	assert.Equal(t, "10 days remaining", view.DaysRemaining)
	assert.Equal(t, []PermitEvent{EventRenew, EventRecordPayment}, view.AllowedEvents)

	_, err = f.service.GetPermit(ctx, applicantActor, permit.ID)
	assert.NoError(t, err)

	_, err = f.service.GetPermit(ctx, strangerActor, permit.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.service.History(ctx, strangerActor, permit.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.service.GetPermit(ctx, staffActor, 9999)
	assert.ErrorIs(t, err, ErrPermitNotFound)
}

func TestHistory_NewestFirst(t *testing.T) {
	f := setupPermitFixture(t)
	ctx := context.Background()

	permit, err := f.service.SubmitApplication(ctx, applicantActor, validApplication())
	require.NoError(t, err)
	_, err = f.lifecycle.Transition(ctx, permit.ID, TransitionRequest{Event: EventMarkForReview, ExpectedVersion: version(1)}, staffActor)
	require.NoError(t, err)
	_, err = f.lifecycle.Transition(ctx, permit.ID, TransitionRequest{Event: EventApprove, ExpectedVersion: version(2)}, officerActor)
	require.NoError(t, err)

	records, err := f.service.History(ctx, applicantActor, permit.ID)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, model.HistoryActionApproved, records[0].Action)
	assert.Equal(t, model.HistoryActionMarkedReview, records[1].Action)
	assert.Equal(t, model.HistoryActionSubmitted, records[2].Action)
	assert.Equal(t, int64(3), records[0].Sequence)
}

func TestSearch_Pagination(t *testing.T) {
	f := setupPermitFixture(t)
	for i := 0; i < 21; i++ {
		f.createPermit(t, model.PermitStatusPending, func(p *model.Permit) {
			p.BusinessName = fmt.Sprintf("Store %02d", i)
			p.ApplicationDate = f.today.AddDate(0, 0, -i)
		})
	}

	first, err := f.service.Search(context.Background(), staffActor, SearchQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(21), first.TotalCount)
	assert.Equal(t, 15, first.PageSize)
	assert.Equal(t, 2, first.TotalPages)
	require.Len(t, first.Rows, 15)
	// newest application first by default
	assert.Equal(t, "Store 00", first.Rows[0].BusinessName)

	second, err := f.service.Search(context.Background(), staffActor, SearchQuery{Page: 2})
	require.NoError(t, err)
	require.Len(t, second.Rows, 6)
	assert.Equal(t, "Store 20", second.Rows[5].BusinessName)

	asc, err := f.service.Search(context.Background(), staffActor, SearchQuery{Sort: "business_name", Order: "asc"})
	require.NoError(t, err)
	assert.Equal(t, "Store 00", asc.Rows[0].BusinessName)
	assert.Equal(t, "Store 14", asc.Rows[14].BusinessName)
}

func TestSearch_RejectsBadSortAndOrder(t *testing.T) {
	f := setupPermitFixture(t)

	_, err := f.service.Search(context.Background(), staffActor, SearchQuery{Sort: "owner_email; DROP TABLE permits"})
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, err, repository.ErrInvalidSortKey)

	_, err = f.service.Search(context.Background(), staffActor, SearchQuery{Order: "sideways"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.service.Search(context.Background(), staffActor, SearchQuery{Status: "archived"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSearch_DisplayStatusMatchesRowLabels(t *testing.T) {
	f := setupPermitFixture(t)
	soon := f.approvedPermit(t, f.day(10))
	expired := f.approvedPermit(t, f.day(-1))
	active := f.approvedPermit(t, f.day(90))
	f.createPermit(t, model.PermitStatusPending, nil)

	tests := []struct {
		display DisplayStatus
		wantID  uint
	}{
		{DisplayExpiringSoon, soon.ID},
		{DisplayExpired, expired.ID},
		{DisplayActive, active.ID},
	}

	for _, tt := range tests {
		t.Run(string(tt.display), func(t *testing.T) {
			result, err := f.service.Search(context.Background(), staffActor, SearchQuery{DisplayStatus: string(tt.display)})
			require.NoError(t, err)
			require.Len(t, result.Rows, 1)
			assert.Equal(t, tt.wantID, result.Rows[0].ID)
			assert.Equal(t, tt.display, result.Rows[0].DisplayStatus)
		})
	}

	conflicting, err := f.service.Search(context.Background(), staffActor, SearchQuery{
		Status:        string(model.PermitStatusPending),
		DisplayStatus: string(DisplayExpired),
	})
	require.NoError(t, err)
	assert.Empty(t, conflicting.Rows)
	assert.Equal(t, int64(0), conflicting.TotalCount)
}

func TestSearch_ApplicantSeesOwnOnly(t *testing.T) {
	f := setupPermitFixture(t)
	f.createPermit(t, model.PermitStatusPending, nil)
	f.createPermit(t, model.PermitStatusApproved, nil)
	f.createPermit(t, model.PermitStatusPending, func(p *model.Permit) {
		p.SubmittedBy = strangerActor.UserID
	})

	mine, err := f.service.Search(context.Background(), applicantActor, SearchQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), mine.TotalCount)

	theirs, err := f.service.Search(context.Background(), strangerActor, SearchQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), theirs.TotalCount)

	all, err := f.service.Search(context.Background(), staffActor, SearchQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), all.TotalCount)
}

func TestSearch_TermsAndDates(t *testing.T) {
	f := setupPermitFixture(t)
	f.createPermit(t, model.PermitStatusApproved, func(p *model.Permit) {
		p.BusinessName = "Kape ni Juan"
		p.IssueDate = f.day(-20)
		p.ExpiryDate = f.day(345)
	})
	f.createPermit(t, model.PermitStatusApproved, func(p *model.Permit) {
		p.BusinessName = "Lola's Bakery"
		p.OwnerName = "Rosa Mendoza"
		p.IssueDate = f.day(-200)
		p.ExpiryDate = f.day(165)
	})
	f.createPermit(t, model.PermitStatusPending, func(p *model.Permit) {
		p.BusinessName = "Vulcanizing Shop"
	})

	byTerms, err := f.service.Search(context.Background(), staffActor, SearchQuery{Query: "kape, mendoza"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), byTerms.TotalCount)

	from := *f.day(-30)
	to := *f.day(-20)
	byIssue, err := f.service.Search(context.Background(), staffActor, SearchQuery{IssuedFrom: &from, IssuedTo: &to})
	require.NoError(t, err)
	require.Len(t, byIssue.Rows, 1)
	assert.Equal(t, "Kape ni Juan", byIssue.Rows[0].BusinessName)

	expiresTo := *f.day(200)
	byExpiry, err := f.service.Search(context.Background(), staffActor, SearchQuery{ExpiresTo: &expiresTo})
	require.NoError(t, err)
	require.Len(t, byExpiry.Rows, 1)
	assert.Equal(t, "Lola's Bakery", byExpiry.Rows[0].BusinessName)
}

func TestRenewalQueue(t *testing.T) {
	f := setupPermitFixture(t)
	overdue := f.approvedPermit(t, f.day(-5))
	soon := f.approvedPermit(t, f.day(10))
	edge := f.approvedPermit(t, f.day(60))
	f.approvedPermit(t, f.day(61))
	f.approvedPermit(t, f.day(200))
	f.createPermit(t, model.PermitStatusRejected, func(p *model.Permit) {
		p.ExpiryDate = f.day(3)
	})

	queue, err := f.service.RenewalQueue(context.Background(), staffActor, 1)
	require.NoError(t, err)
	require.Len(t, queue.Rows, 3)
	assert.Equal(t, overdue.ID, queue.Rows[0].ID)
	assert.Equal(t, soon.ID, queue.Rows[1].ID)
	assert.Equal(t, edge.ID, queue.Rows[2].ID)
	assert.Equal(t, DisplayExpired, queue.Rows[0].DisplayStatus)
	assert.Equal(t, DisplayExpiringSoon, queue.Rows[2].DisplayStatus)
}

func TestStats(t *testing.T) {
	f := setupPermitFixture(t)
	f.createPermit(t, model.PermitStatusPending, nil)
	f.createPermit(t, model.PermitStatusForReview, nil)
	f.approvedPermit(t, f.day(5))
	f.approvedPermit(t, f.day(-5))
	f.createPermit(t, model.PermitStatusApproved, func(p *model.Permit) {
		p.ExpiryDate = f.day(120)
		p.AmountPaid = decimal.RequireFromString("750.50")
	})
	f.createPermit(t, model.PermitStatusCancelled, nil)

	stats, err := f.service.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Pending)
	assert.Equal(t, int64(1), stats.ForReview)
	assert.Equal(t, int64(1), stats.Active)
	assert.Equal(t, int64(1), stats.ExpiringSoon)
	assert.Equal(t, int64(1), stats.Expired)
	assert.Equal(t, int64(1), stats.Cancelled)
	assert.Equal(t, int64(6), stats.Total)
	assert.Equal(t, "750.50", stats.TotalCollected.StringFixed(2))
}
