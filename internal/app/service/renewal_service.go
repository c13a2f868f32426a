package service

import (
	"context"
	"fmt"
	"time"

	"github.com/lgu-bplo/bizpermit-backend/config"
	"github.com/lgu-bplo/bizpermit-backend/internal/app/model"
	"github.com/lgu-bplo/bizpermit-backend/internal/app/repository"
	"github.com/lgu-bplo/bizpermit-backend/pkg/logger"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type RenewalRequest struct {
	ValidityYears int
	// Fees are the renewal fee components; nil reassesses the current ones.
	Fees            *FeeInput
	Notes           string
	ExpectedVersion *int64
}

type RenewalService interface {
	Renew(ctx context.Context, permitID uint, req RenewalRequest, actor model.Actor) (*model.Permit, error)
}

type renewalService struct {
	*permitCommitter
}

func NewRenewalService(
	db *gorm.DB,
	permitRepo repository.PermitRepository,
	historyRepo repository.PermitHistoryRepository,
	notifier Notifier,
	cfg config.PermitConfig,
) RenewalService {
	return &renewalService{
		permitCommitter: newPermitCommitter(db, permitRepo, historyRepo, notifier, cfg),
	}
}

// RenewedExpiry extends from the later of the current expiry and today, so
// early renewals keep their remaining days and late ones start fresh.
func RenewedExpiry(current *time.Time, today time.Time, years int) time.Time {
	base := CalendarDate(today)
	if current != nil && CalendarDate(*current).After(base) {
		base = CalendarDate(*current)
	}
	return base.AddDate(years, 0, 0)
}

func (s *renewalService) Renew(ctx context.Context, permitID uint, req RenewalRequest, actor model.Actor) (*model.Permit, error) {
	logger.Info("Permit renewal requested", map[string]interface{}{
		"permit_id":      permitID,
		"validity_years": req.ValidityYears,
		"actor_id":       actor.UserID,
	})

	if req.ValidityYears < 1 {
		return nil, fmt.Errorf("%w: validity period must be at least one year", ErrValidation)
	}

	var fees *model.FeeComponents
	if req.Fees != nil {
		parsed, err := ParseFeeComponents(*req.Fees)
		if err != nil {
			return nil, err
		}
		if _, err := CalculateTotal(parsed); err != nil {
			return nil, err
		}
		fees = &parsed
	}

	return s.commit(ctx, permitID, req.ExpectedVersion, actor, EventRenew,
		func(permit *model.Permit, today time.Time) (*model.PermitHistory, error) {
			components := permit.Fees()
			if fees != nil {
				components = *fees
			}
			total, err := applyFees(permit, components)
			if err != nil {
				return nil, err
			}

			previousExpiry := permit.ExpiryDate
			expiry := RenewedExpiry(previousExpiry, today, req.ValidityYears)
			issue := today

			permit.IssueDate = &issue
			permit.ExpiryDate = &expiry
			permit.RenewalCount++
			permit.IsRenewal = true
			permit.PaymentStatus = model.PaymentStatusUnpaid
			permit.AmountPaid = decimal.Zero
			if permit.PermitNumber == nil {
				number := FormatPermitNumber(s.cfg.NumberPrefix, issue, permit.ID)
				permit.PermitNumber = &number
			}

			meta := datatypes.JSONMap{
				"expiry_date":    expiry.Format("2006-01-02"),
				"renewal_count":  permit.RenewalCount,
				"validity_years": req.ValidityYears,
				"total_fee":      total.StringFixed(2),
			}
			if previousExpiry != nil {
				meta["previous_expiry_date"] = previousExpiry.Format("2006-01-02")
			}
			return &model.PermitHistory{Notes: req.Notes, Metadata: meta}, nil
		})
}
