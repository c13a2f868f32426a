package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/lgu-bplo/bizpermit-backend/internal/app/model"
	"github.com/lgu-bplo/bizpermit-backend/internal/db"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupPermitTest(t *testing.T) (*gorm.DB, PermitRepository) {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)

	return testDB, NewPermitRepository(testDB)
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func newTestPermit(name, owner string, status model.PermitStatus) *model.Permit {
	return &model.Permit{
		BusinessName:    name,
		BusinessTypeID:  1,
		Address:         "Purok 3, Barangay San Isidro",
		OwnerName:       owner,
		SubmittedBy:     42,
		Status:          status,
		ApplicationDate: *date(2026, 1, 5),
		PaymentStatus:   model.PaymentStatusUnpaid,
		Version:         1,
	}
}

func TestPermitRepository_CreateAndFind(t *testing.T) {
	testDB, repo := setupPermitTest(t)
	defer db.CleanupTestDB(testDB)

	permit := newTestPermit("Aling Nena Store", "Nena Cruz", model.PermitStatusPending)
	permit.PermitFee = decimal.RequireFromString("500.00")
	require.NoError(t, repo.Create(permit))
	assert.NotZero(t, permit.ID)

	found, err := repo.FindByID(permit.ID)
	require.NoError(t, err)
	assert.Equal(t, "Aling Nena Store", found.BusinessName)
	assert.True(t, found.PermitFee.Equal(decimal.NewFromInt(500)))
	require.NotNil(t, found.BusinessType)
	assert.Equal(t, "Retail", found.BusinessType.Name)
	assert.Nil(t, found.PermitNumber)

	_, err = repo.FindByID(9999)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestPermitRepository_UpdateVersioned(t *testing.T) {
	testDB, repo := setupPermitTest(t)
	defer db.CleanupTestDB(testDB)

	permit := newTestPermit("Kape ni Juan", "Juan Reyes", model.PermitStatusPending)
	require.NoError(t, repo.Create(permit))

	t.Run("Matching version commits and bumps", func(t *testing.T) {
		permit.Status = model.PermitStatusForReview
		err := repo.UpdateVersioned(permit, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(2), permit.Version)

		stored, err := repo.FindByID(permit.ID)
		require.NoError(t, err)
		assert.Equal(t, model.PermitStatusForReview, stored.Status)
		assert.Equal(t, int64(2), stored.Version)
	})

	t.Run("Stale version is rejected", func(t *testing.T) {
		permit.Status = model.PermitStatusRejected
		err := repo.UpdateVersioned(permit, 1)
		assert.ErrorIs(t, err, ErrVersionConflict)

		stored, err := repo.FindByID(permit.ID)
		require.NoError(t, err)
		assert.Equal(t, model.PermitStatusForReview, stored.Status)
	})
}

func TestPermitRepository_Search(t *testing.T) {
	testDB, repo := setupPermitTest(t)
	defer db.CleanupTestDB(testDB)

	for i := 0; i < 20; i++ {
		p := newTestPermit(fmt.Sprintf("Store %02d", i), "Maria Santos", model.PermitStatusPending)
		require.NoError(t, repo.Create(p))
	}
	approved := newTestPermit("Bakery Uno", "Pedro Lim", model.PermitStatusApproved)
	number := "BP-2026-000099"
	approved.PermitNumber = &number
	approved.IssueDate = date(2026, 2, 1)
	approved.ExpiryDate = date(2027, 2, 1)
	approved.BusinessTypeID = 2
	require.NoError(t, repo.Create(approved))

	t.Run("Pagination", func(t *testing.T) {
		permits, total, err := repo.Search(PermitFilter{}, PermitSort{Key: "business_name"}, Page{Number: 1, Size: 15})
		require.NoError(t, err)
		assert.Equal(t, int64(21), total)
		assert.Len(t, permits, 15)
		assert.Equal(t, "Bakery Uno", permits[0].BusinessName)

		permits, _, err = repo.Search(PermitFilter{}, PermitSort{Key: "business_name"}, Page{Number: 2, Size: 15})
		require.NoError(t, err)
		assert.Len(t, permits, 6)
	})

	t.Run("Descending sort", func(t *testing.T) {
		permits, _, err := repo.Search(PermitFilter{}, PermitSort{Key: "business_name", Desc: true}, Page{Number: 1, Size: 1})
		require.NoError(t, err)
		require.Len(t, permits, 1)
		assert.Equal(t, "Store 19", permits[0].BusinessName)
	})

	t.Run("Unknown sort key", func(t *testing.T) {
		_, _, err := repo.Search(PermitFilter{}, PermitSort{Key: "id; DROP TABLE permits"}, Page{Number: 1, Size: 15})
		assert.ErrorIs(t, err, ErrInvalidSortKey)
	})

	t.Run("Terms match any column", func(t *testing.T) {
		permits, total, err := repo.Search(PermitFilter{Terms: []string{"pedro", "000099"}}, PermitSort{Key: "business_name"}, Page{Number: 1, Size: 15})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		assert.Equal(t, approved.ID, permits[0].ID)

		_, total, err = repo.Search(PermitFilter{Terms: []string{"bakery", "store 0"}}, PermitSort{Key: "business_name"}, Page{Number: 1, Size: 15})
		require.NoError(t, err)
		assert.Equal(t, int64(11), total)
	})

	t.Run("Wildcards are literal", func(t *testing.T) {
		_, total, err := repo.Search(PermitFilter{Terms: []string{"%"}}, PermitSort{Key: "business_name"}, Page{Number: 1, Size: 15})
		require.NoError(t, err)
		assert.Equal(t, int64(0), total)
	})

	t.Run("Status business type and expiry window", func(t *testing.T) {
		typeID := uint(2)
		filter := PermitFilter{
			Statuses:       []model.PermitStatus{model.PermitStatusApproved},
			BusinessTypeID: &typeID,
			ExpiryRanges:   []DateRange{{From: date(2027, 1, 1), Before: date(2027, 3, 1)}},
		}
		permits, total, err := repo.Search(filter, PermitSort{Key: "expiry_date"}, Page{Number: 1, Size: 15})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		assert.Equal(t, approved.ID, permits[0].ID)

		filter.ExpiryRanges = append(filter.ExpiryRanges, DateRange{Before: date(2027, 2, 1)})
		_, total, err = repo.Search(filter, PermitSort{Key: "expiry_date"}, Page{Number: 1, Size: 15})
		require.NoError(t, err)
		assert.Equal(t, int64(0), total)
	})

	t.Run("Sort by business type name", func(t *testing.T) {
		permits, _, err := repo.Search(PermitFilter{}, PermitSort{Key: "business_type", Desc: true}, Page{Number: 1, Size: 1})
		require.NoError(t, err)
		require.Len(t, permits, 1)
		// "Retail" sorts after "Food Service"
		assert.Equal(t, uint(1), permits[0].BusinessTypeID)
	})
}

func TestPermitRepository_Stats(t *testing.T) {
	testDB, repo := setupPermitTest(t)
	defer db.CleanupTestDB(testDB)

	today := *date(2026, 6, 1)

	require.NoError(t, repo.Create(newTestPermit("Pending One", "A", model.PermitStatusPending)))
	require.NoError(t, repo.Create(newTestPermit("Review One", "B", model.PermitStatusForReview)))

	expiries := []*time.Time{
		date(2026, 5, 31), // expired
		date(2026, 6, 1),  // expiring today
		date(2026, 7, 1),  // within 30 days
		date(2026, 9, 1),  // active
	}
	for i, exp := range expiries {
		p := newTestPermit(fmt.Sprintf("Approved %d", i), "C", model.PermitStatusApproved)
		p.IssueDate = date(2025, 6, 1)
		p.ExpiryDate = exp
		p.AmountPaid = decimal.RequireFromString("250.50")
		require.NoError(t, repo.Create(p))
	}

	stats, err := repo.Stats(today, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Pending)
	assert.Equal(t, int64(1), stats.ForReview)
	assert.Equal(t, int64(1), stats.Expired)
	assert.Equal(t, int64(2), stats.ExpiringSoon)
	assert.Equal(t, int64(1), stats.Active)
	assert.Equal(t, int64(6), stats.Total)
	assert.True(t, stats.TotalCollected.Equal(decimal.RequireFromString("1002.00")), stats.TotalCollected.String())
}

func TestPermitHistoryRepository_Append(t *testing.T) {
	testDB, permits := setupPermitTest(t)
	defer db.CleanupTestDB(testDB)
	repo := NewPermitHistoryRepository(testDB)

	permit := newTestPermit("Ledger Store", "D", model.PermitStatusPending)
	require.NoError(t, permits.Create(permit))

	actions := []model.HistoryAction{
		model.HistoryActionSubmitted,
		model.HistoryActionMarkedReview,
		model.HistoryActionApproved,
	}
	for _, action := range actions {
		rec := &model.PermitHistory{
			PermitID:  permit.ID,
			Action:    action,
			NewStatus: model.PermitStatusPending,
			ActorID:   7,
			ActorRole: model.RoleOfficer,
		}
		require.NoError(t, repo.Append(rec))
	}

	records, err := repo.ListFor(permit.ID)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, int64(3), records[0].Sequence)
	assert.Equal(t, model.HistoryActionApproved, records[0].Action)
	assert.Equal(t, int64(1), records[2].Sequence)

	dup := &model.PermitHistory{PermitID: permit.ID, Sequence: 1, Action: model.HistoryActionRenewed, NewStatus: model.PermitStatusApproved, ActorID: 7, ActorRole: model.RoleOfficer}
	assert.Error(t, testDB.Create(dup).Error)
}
