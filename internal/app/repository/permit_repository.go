package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/lgu-bplo/bizpermit-backend/internal/app/model"
	"github.com/lgu-bplo/bizpermit-backend/pkg/logger"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrInvalidSortKey  = errors.New("invalid sort key")
	ErrVersionConflict = errors.New("permit version changed since it was loaded")
)

// sortColumns is the allow-list of sortable keys. Caller input is only ever
// used as a map key, never interpolated into SQL.
var sortColumns = map[string]string{
	"business_name":    "permits.business_name",
	"permit_number":    "permits.permit_number",
	"issue_date":       "permits.issue_date",
	"expiry_date":      "permits.expiry_date",
	"business_type":    "business_types.name",
	"application_date": "permits.application_date",
}

// IsSortKey reports whether key is on the sort allow-list.
func IsSortKey(key string) bool {
	_, ok := sortColumns[key]
	return ok
}

// DateRange is a half-open interval [From, Before). Nil bounds are open.
type DateRange struct {
	From   *time.Time
	Before *time.Time
}

func (d DateRange) IsZero() bool {
	return d.From == nil && d.Before == nil
}

type PermitFilter struct {
	Statuses       []model.PermitStatus
	BusinessTypeID *uint
	SubmittedBy    *uint
	// Terms are OR-ed against business name, owner name and permit number.
	Terms        []string
	IssueRange   DateRange
	ExpiryRanges []DateRange // each range is AND-ed
}

type PermitSort struct {
	Key  string
	Desc bool
}

type Page struct {
	Number int // 1-based
	Size   int
}

func (p Page) Offset() int {
	if p.Number < 1 {
		return 0
	}
	return (p.Number - 1) * p.Size
}

// PermitStats are the dashboard counters. Active/ExpiringSoon/Expired split
// the approved permits by expiry date.
type PermitStats struct {
	Pending        int64           `json:"pending"`
	ForReview      int64           `json:"for_review"`
	Active         int64           `json:"active"`
	ExpiringSoon   int64           `json:"expiring_soon"`
	Expired        int64           `json:"expired"`
	Rejected       int64           `json:"rejected"`
	Revoked        int64           `json:"revoked"`
	Cancelled      int64           `json:"cancelled"`
	Total          int64           `json:"total"`
	TotalCollected decimal.Decimal `json:"total_collected"`
}

type PermitRepository interface {
	WithTx(tx *gorm.DB) PermitRepository
	Create(permit *model.Permit) error
	FindByID(id uint) (*model.Permit, error)
	FindByIDForUpdate(id uint) (*model.Permit, error)
	UpdateVersioned(permit *model.Permit, expectedVersion int64) error
	Search(filter PermitFilter, sort PermitSort, page Page) ([]model.Permit, int64, error)
	Stats(today time.Time, horizonDays int) (*PermitStats, error)
}

type permitRepository struct {
	db *gorm.DB
}

func NewPermitRepository(db *gorm.DB) PermitRepository {
	return &permitRepository{db: db}
}

func (r *permitRepository) WithTx(tx *gorm.DB) PermitRepository {
	return &permitRepository{db: tx}
}

func (r *permitRepository) Create(permit *model.Permit) error {
	logger.Debug("Creating permit in database", map[string]interface{}{
		"business_name":    permit.BusinessName,
		"business_type_id": permit.BusinessTypeID,
		"submitted_by":     permit.SubmittedBy,
	})

	if err := r.db.Omit(clause.Associations).Create(permit).Error; err != nil {
		logger.Error("Failed to create permit in database", err, map[string]interface{}{
			"business_name": permit.BusinessName,
			"submitted_by":  permit.SubmittedBy,
		})
		return err
	}

	logger.Debug("Permit created in database", map[string]interface{}{
		"permit_id": permit.ID,
	})
	return nil
}

func (r *permitRepository) FindByID(id uint) (*model.Permit, error) {
	var permit model.Permit
	if err := r.db.Preload("BusinessType").First(&permit, id).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Error("Failed to find permit by ID in database", err, map[string]interface{}{
				"permit_id": id,
			})
		}
		return nil, err
	}
	return &permit, nil
}

// FindByIDForUpdate loads the permit inside a transaction, taking a row lock
// where the dialect supports it. The version check in UpdateVersioned is what
// guarantees a single winner; the lock only makes losers wait instead of fail
// late.
func (r *permitRepository) FindByIDForUpdate(id uint) (*model.Permit, error) {
	query := r.db
	if r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var permit model.Permit
	if err := query.First(&permit, id).Error; err != nil {
		return nil, err
	}
	return &permit, nil
}

// UpdateVersioned writes the lifecycle and fee fields of permit if and only if
// the stored version still equals expectedVersion, then bumps the version.
// Descriptive fields and immutable identity fields are never written here.
func (r *permitRepository) UpdateVersioned(permit *model.Permit, expectedVersion int64) error {
	logger.Debug("Updating permit in database", map[string]interface{}{
		"permit_id": permit.ID,
		"status":    permit.Status,
		"version":   expectedVersion,
	})

	now := time.Now()
	result := r.db.Model(&model.Permit{}).
		Where("id = ? AND version = ?", permit.ID, expectedVersion).
		Updates(map[string]interface{}{
			"permit_number":    permit.PermitNumber,
			"status":           permit.Status,
			"issue_date":       permit.IssueDate,
			"expiry_date":      permit.ExpiryDate,
			"rejection_reason": permit.RejectionReason,
			"revoke_reason":    permit.RevokeReason,
			"cancel_reason":    permit.CancelReason,
			"is_renewal":       permit.IsRenewal,
			"renewal_count":    permit.RenewalCount,
			"permit_fee":       permit.PermitFee,
			"sanitary_fee":     permit.SanitaryFee,
			"garbage_fee":      permit.GarbageFee,
			"additional_fees":  permit.AdditionalFees,
			"total_fee":        permit.TotalFee,
			"amount_paid":      permit.AmountPaid,
			"payment_status":   permit.PaymentStatus,
			"version":          expectedVersion + 1,
			"updated_at":       now,
		})
	if result.Error != nil {
		logger.Error("Failed to update permit in database", result.Error, map[string]interface{}{
			"permit_id": permit.ID,
		})
		return result.Error
	}
	if result.RowsAffected == 0 {
		logger.Warn("Permit version conflict", map[string]interface{}{
			"permit_id":        permit.ID,
			"expected_version": expectedVersion,
		})
		return ErrVersionConflict
	}

	permit.Version = expectedVersion + 1
	permit.UpdatedAt = now
	return nil
}

func (r *permitRepository) Search(filter PermitFilter, sort PermitSort, page Page) ([]model.Permit, int64, error) {
	column, ok := sortColumns[sort.Key]
	if !ok {
		return nil, 0, ErrInvalidSortKey
	}

	logger.Debug("Searching permits", map[string]interface{}{
		"statuses": filter.Statuses,
		"terms":    filter.Terms,
		"sort":     sort.Key,
		"page":     page.Number,
	})

	query := r.applyFilter(
		r.db.Model(&model.Permit{}).
			Joins("LEFT JOIN business_types ON business_types.id = permits.business_type_id"),
		filter,
	)

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		logger.Error("Failed to count permits", err, nil)
		return nil, 0, err
	}

	var permits []model.Permit
	err := query.Session(&gorm.Session{}).
		Preload("BusinessType").
		Order(clause.OrderByColumn{Column: clause.Column{Name: column, Raw: true}, Desc: sort.Desc}).
		Order("permits.id ASC").
		Limit(page.Size).
		Offset(page.Offset()).
		Find(&permits).Error
	if err != nil {
		logger.Error("Failed to search permits", err, nil)
		return nil, 0, err
	}

	logger.Debug("Permits found", map[string]interface{}{
		"count": len(permits),
		"total": total,
	})
	return permits, total, nil
}

func (r *permitRepository) applyFilter(query *gorm.DB, filter PermitFilter) *gorm.DB {
	if len(filter.Statuses) > 0 {
		query = query.Where("permits.status IN ?", filter.Statuses)
	}
	if filter.BusinessTypeID != nil {
		query = query.Where("permits.business_type_id = ?", *filter.BusinessTypeID)
	}
	if filter.SubmittedBy != nil {
		query = query.Where("permits.submitted_by = ?", *filter.SubmittedBy)
	}

	if len(filter.Terms) > 0 {
		var clauses []string
		var args []interface{}
		for _, term := range filter.Terms {
			like := "%" + escapeLike(strings.ToLower(term)) + "%"
			clauses = append(clauses,
				`LOWER(permits.business_name) LIKE ? ESCAPE '\'`,
				`LOWER(permits.owner_name) LIKE ? ESCAPE '\'`,
				`LOWER(COALESCE(permits.permit_number, '')) LIKE ? ESCAPE '\'`,
			)
			args = append(args, like, like, like)
		}
		query = query.Where("("+strings.Join(clauses, " OR ")+")", args...)
	}

	query = applyRange(query, "permits.issue_date", filter.IssueRange)
	for _, rng := range filter.ExpiryRanges {
		query = applyRange(query, "permits.expiry_date", rng)
	}
	return query
}

func applyRange(query *gorm.DB, column string, rng DateRange) *gorm.DB {
	if rng.From != nil {
		query = query.Where(column+" >= ?", *rng.From)
	}
	if rng.Before != nil {
		query = query.Where(column+" < ?", *rng.Before)
	}
	return query
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *permitRepository) Stats(today time.Time, horizonDays int) (*PermitStats, error) {
	logger.Debug("Computing permit statistics", map[string]interface{}{
		"today":   today.Format("2006-01-02"),
		"horizon": horizonDays,
	})

	stats := &PermitStats{}

	var statusCounts []struct {
		Status model.PermitStatus
		Count  int64
	}
	if err := r.db.Model(&model.Permit{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&statusCounts).Error; err != nil {
		logger.Error("Failed to count permits by status", err)
		return nil, err
	}

	for _, sc := range statusCounts {
		stats.Total += sc.Count
		switch sc.Status {
		case model.PermitStatusPending:
			stats.Pending = sc.Count
		case model.PermitStatusForReview:
			stats.ForReview = sc.Count
		case model.PermitStatusRejected:
			stats.Rejected = sc.Count
		case model.PermitStatusRevoked:
			stats.Revoked = sc.Count
		case model.PermitStatusCancelled:
			stats.Cancelled = sc.Count
		}
	}

	horizonEnd := today.AddDate(0, 0, horizonDays+1)
	approved := r.db.Model(&model.Permit{}).Where("status = ?", model.PermitStatusApproved)

	if err := approved.Session(&gorm.Session{}).
		Where("expiry_date < ?", today).
		Count(&stats.Expired).Error; err != nil {
		logger.Error("Failed to count expired permits", err)
		return nil, err
	}
	if err := approved.Session(&gorm.Session{}).
		Where("expiry_date >= ? AND expiry_date < ?", today, horizonEnd).
		Count(&stats.ExpiringSoon).Error; err != nil {
		logger.Error("Failed to count expiring permits", err)
		return nil, err
	}
	if err := approved.Session(&gorm.Session{}).
		Where("expiry_date >= ?", horizonEnd).
		Count(&stats.Active).Error; err != nil {
		logger.Error("Failed to count active permits", err)
		return nil, err
	}

	var collected struct {
		Total decimal.Decimal
	}
	if err := r.db.Model(&model.Permit{}).
		Select("COALESCE(SUM(amount_paid), 0) as total").
		Scan(&collected).Error; err != nil {
		logger.Error("Failed to sum collected fees", err)
		return nil, err
	}
	stats.TotalCollected = collected.Total

	return stats, nil
}
