package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lgu-bplo/bizpermit-backend/config"
	"github.com/lgu-bplo/bizpermit-backend/internal/app/model"
	"github.com/lgu-bplo/bizpermit-backend/internal/app/repository"
	"github.com/lgu-bplo/bizpermit-backend/pkg/logger"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TransitionRequest carries the event payload. Only the fields the event
// uses are read.
type TransitionRequest struct {
	Event  PermitEvent
	Reason string    // reject, revoke, cancel
	Notes  string    // stored on the history record
	Fees   *FeeInput // approve; nil keeps the assessed components
	Amount FeeAmount // record_payment
	// ExpectedVersion is the version the caller last read. It is required;
	// the transition fails with ErrConcurrentModification if the permit
	// moved on since.
	ExpectedVersion *int64
}

type PermitLifecycleService interface {
	Transition(ctx context.Context, permitID uint, req TransitionRequest, actor model.Actor) (*model.Permit, error)
}

// permitMutation applies an event's effects to a loaded permit and returns
// the history entry describing them. It must not touch the database.
type permitMutation func(permit *model.Permit, today time.Time) (*model.PermitHistory, error)

// permitCommitter is the single write path for permit lifecycle changes:
// load, guard, mutate, versioned update and history append in one
// transaction, then notify.
type permitCommitter struct {
	db          *gorm.DB
	permitRepo  repository.PermitRepository
	historyRepo repository.PermitHistoryRepository
	notifier    Notifier
	cfg         config.PermitConfig
	now         func() time.Time
}

func newPermitCommitter(
	db *gorm.DB,
	permitRepo repository.PermitRepository,
	historyRepo repository.PermitHistoryRepository,
	notifier Notifier,
	cfg config.PermitConfig,
) *permitCommitter {
	return &permitCommitter{
		db:          db,
		permitRepo:  permitRepo,
		historyRepo: historyRepo,
		notifier:    notifier,
		cfg:         cfg,
		now:         time.Now,
	}
}

func (c *permitCommitter) commit(
	ctx context.Context,
	permitID uint,
	expectedVersion *int64,
	actor model.Actor,
	event PermitEvent,
	mutate permitMutation,
) (*model.Permit, error) {
	// Without the caller's version two decisions on the same permit could
	// both pass the guard one after the other.
	if expectedVersion == nil {
		return nil, fmt.Errorf("%w: expected version is required", ErrValidation)
	}

	var (
		updated *model.Permit
		record  *model.PermitHistory
	)

	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		permits := c.permitRepo.WithTx(tx)

		permit, err := permits.FindByIDForUpdate(permitID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPermitNotFound
			}
			return err
		}

		if *expectedVersion != permit.Version {
			return fmt.Errorf("%w: expected version %d, found %d", ErrConcurrentModification, *expectedVersion, permit.Version)
		}
		if err := Authorize(event, actor, permit); err != nil {
			return err
		}
		if !CanTransition(permit.Status, event) {
			return fmt.Errorf("%w: cannot %s a %s permit", ErrInvalidTransition, event, permit.Status)
		}

		loadedVersion := permit.Version
		oldStatus := permit.Status

		rec, err := mutate(permit, CalendarDate(c.now()))
		if err != nil {
			return err
		}
		permit.Status = NextStatus(oldStatus, event)

		if err := permits.UpdateVersioned(permit, loadedVersion); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				return ErrConcurrentModification
			}
			return err
		}

		rec.PermitID = permit.ID
		rec.Action = historyAction(event)
		rec.OldStatus = oldStatus
		rec.NewStatus = permit.Status
		rec.ActorID = actor.UserID
		rec.ActorRole = actor.Role
		if err := c.historyRepo.WithTx(tx).Append(rec); err != nil {
			return err
		}

		updated = permit
		record = rec
		return nil
	})
	if err != nil {
		logger.Warn("Permit transition failed", map[string]interface{}{
			"permit_id": permitID,
			"event":     event,
			"actor_id":  actor.UserID,
			"error":     err.Error(),
		})
		return nil, err
	}

	logger.Info("Permit transition committed", map[string]interface{}{
		"permit_id":  updated.ID,
		"event":      event,
		"old_status": record.OldStatus,
		"new_status": record.NewStatus,
		"version":    updated.Version,
		"actor_id":   actor.UserID,
	})

	c.dispatch(updated, record)

	if reloaded, err := c.permitRepo.FindByID(updated.ID); err == nil {
		return reloaded, nil
	}
	return updated, nil
}

// dispatch hands the outcome to the notifier without waiting for it. A
// failed notification never affects the committed transition.
func (c *permitCommitter) dispatch(permit *model.Permit, record *model.PermitHistory) {
	if c.notifier == nil || permit.SubmittedBy == 0 {
		return
	}

	permitID := permit.ID
	msg := NotificationMessage{
		Type:     model.NotificationTypePermitStatus,
		Title:    statusNotificationTitle(record.Action, permit),
		Content:  statusNotificationContent(record, permit),
		Link:     fmt.Sprintf("/permits/%d", permit.ID),
		PermitID: &permitID,
	}
	userID := permit.SubmittedBy

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Panic while dispatching permit notification", fmt.Errorf("panic: %v", r), map[string]interface{}{
					"permit_id": permitID,
				})
			}
		}()
		if err := c.notifier.Notify(context.Background(), userID, msg); err != nil {
			logger.Warn("Failed to dispatch permit notification", map[string]interface{}{
				"permit_id": permitID,
				"user_id":   userID,
				"error":     err.Error(),
			})
		}
	}()
}

func statusNotificationTitle(action model.HistoryAction, permit *model.Permit) string {
	switch action {
	case model.HistoryActionSubmitted:
		return "Application received"
	case model.HistoryActionMarkedReview:
		return "Application under review"
	case model.HistoryActionApproved:
		return "Business permit approved"
	case model.HistoryActionRejected:
		return "Business permit application rejected"
	case model.HistoryActionRevoked:
		return "Business permit revoked"
	case model.HistoryActionCancelled:
		return "Application cancelled"
	case model.HistoryActionRenewed:
		return "Business permit renewed"
	case model.HistoryActionPaymentPosted:
		return "Payment recorded"
	}
	return "Permit updated"
}

func statusNotificationContent(record *model.PermitHistory, permit *model.Permit) string {
	var b strings.Builder
	b.WriteString(permit.BusinessName)
	switch record.Action {
	case model.HistoryActionApproved, model.HistoryActionRenewed:
		if permit.PermitNumber != nil {
			b.WriteString(" (" + *permit.PermitNumber + ")")
		}
		if permit.ExpiryDate != nil {
			b.WriteString(" is valid until " + permit.ExpiryDate.Format("2006-01-02"))
		}
		b.WriteString(". Total fee due: " + permit.TotalFee.StringFixed(2) + ".")
	case model.HistoryActionRejected:
		b.WriteString(": " + permit.RejectionReason)
	case model.HistoryActionRevoked:
		b.WriteString(": " + permit.RevokeReason)
	case model.HistoryActionCancelled:
		b.WriteString(": " + permit.CancelReason)
	case model.HistoryActionPaymentPosted:
		b.WriteString(": paid " + permit.AmountPaid.StringFixed(2) + " of " + permit.TotalFee.StringFixed(2) + ".")
	default:
		b.WriteString(" is now " + string(permit.Status) + ".")
	}
	return b.String()
}

type permitLifecycleService struct {
	*permitCommitter
}

func NewPermitLifecycleService(
	db *gorm.DB,
	permitRepo repository.PermitRepository,
	historyRepo repository.PermitHistoryRepository,
	notifier Notifier,
	cfg config.PermitConfig,
) PermitLifecycleService {
	return &permitLifecycleService{
		permitCommitter: newPermitCommitter(db, permitRepo, historyRepo, notifier, cfg),
	}
}

func (s *permitLifecycleService) Transition(ctx context.Context, permitID uint, req TransitionRequest, actor model.Actor) (*model.Permit, error) {
	logger.Info("Permit transition requested", map[string]interface{}{
		"permit_id": permitID,
		"event":     req.Event,
		"actor_id":  actor.UserID,
		"role":      actor.Role,
	})

	var mutate permitMutation
	switch req.Event {
	case EventMarkForReview:
		mutate = s.markForReview(req)
	case EventApprove:
		mutate = s.approve(req)
	case EventReject:
		mutate = s.reject(req)
	case EventRevoke:
		mutate = s.revoke(req)
	case EventCancel:
		mutate = s.cancel(req)
	case EventRecordPayment:
		mutate = s.recordPayment(req)
	case EventRenew:
		return nil, fmt.Errorf("%w: renewals go through the renewal endpoint", ErrValidation)
	default:
		return nil, fmt.Errorf("%w: unknown event %q", ErrValidation, req.Event)
	}

	return s.commit(ctx, permitID, req.ExpectedVersion, actor, req.Event, mutate)
}

func requireText(field, reason string) (string, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "", fmt.Errorf("%w: %s is required", ErrValidation, field)
	}
	return reason, nil
}

func (s *permitLifecycleService) markForReview(req TransitionRequest) permitMutation {
	return func(permit *model.Permit, today time.Time) (*model.PermitHistory, error) {
		return &model.PermitHistory{Notes: req.Notes}, nil
	}
}

func (s *permitLifecycleService) approve(req TransitionRequest) permitMutation {
	return func(permit *model.Permit, today time.Time) (*model.PermitHistory, error) {
		fees := permit.Fees()
		if req.Fees != nil {
			parsed, err := ParseFeeComponents(*req.Fees)
			if err != nil {
				return nil, err
			}
			fees = parsed
		}
		total, err := applyFees(permit, fees)
		if err != nil {
			return nil, err
		}

		issue := today
		expiry := today.AddDate(s.cfg.ValidityYears, 0, 0)
		permit.IssueDate = &issue
		permit.ExpiryDate = &expiry
		if permit.PermitNumber == nil {
			number := FormatPermitNumber(s.cfg.NumberPrefix, issue, permit.ID)
			permit.PermitNumber = &number
		}
		permit.RejectionReason = ""
		permit.PaymentStatus = model.PaymentStatusUnpaid
		permit.AmountPaid = decimal.Zero

		return &model.PermitHistory{
			Notes: req.Notes,
			Metadata: datatypes.JSONMap{
				"permit_number": *permit.PermitNumber,
				"issue_date":    issue.Format("2006-01-02"),
				"expiry_date":   expiry.Format("2006-01-02"),
				"total_fee":     total.StringFixed(2),
			},
		}, nil
	}
}

func (s *permitLifecycleService) reject(req TransitionRequest) permitMutation {
	return func(permit *model.Permit, today time.Time) (*model.PermitHistory, error) {
		reason, err := requireText("rejection reason", req.Reason)
		if err != nil {
			return nil, err
		}
		permit.RejectionReason = reason
		return &model.PermitHistory{
			Notes:    notesOr(req.Notes, reason),
			Metadata: datatypes.JSONMap{"reason": reason},
		}, nil
	}
}

func (s *permitLifecycleService) revoke(req TransitionRequest) permitMutation {
	return func(permit *model.Permit, today time.Time) (*model.PermitHistory, error) {
		reason, err := requireText("revoke reason", req.Reason)
		if err != nil {
			return nil, err
		}
		permit.RevokeReason = reason
		return &model.PermitHistory{
			Notes:    notesOr(req.Notes, reason),
			Metadata: datatypes.JSONMap{"reason": reason},
		}, nil
	}
}

func (s *permitLifecycleService) cancel(req TransitionRequest) permitMutation {
	return func(permit *model.Permit, today time.Time) (*model.PermitHistory, error) {
		reason, err := requireText("cancel reason", req.Reason)
		if err != nil {
			return nil, err
		}
		permit.CancelReason = reason
		return &model.PermitHistory{
			Notes:    notesOr(req.Notes, reason),
			Metadata: datatypes.JSONMap{"reason": reason},
		}, nil
	}
}

func (s *permitLifecycleService) recordPayment(req TransitionRequest) permitMutation {
	return func(permit *model.Permit, today time.Time) (*model.PermitHistory, error) {
		amount, err := ParseAmount("amount", req.Amount)
		if err != nil {
			return nil, err
		}
		if !amount.IsPositive() {
			return nil, fmt.Errorf("%w: payment amount must be greater than zero", ErrValidation)
		}

		paid := permit.AmountPaid.Add(amount)
		if paid.GreaterThan(permit.TotalFee) {
			return nil, fmt.Errorf("%w: payment of %s exceeds the outstanding balance of %s",
				ErrValidation, amount.StringFixed(2), permit.TotalFee.Sub(permit.AmountPaid).StringFixed(2))
		}
		permit.AmountPaid = paid
		permit.PaymentStatus = PaymentStatusFor(paid, permit.TotalFee)

		return &model.PermitHistory{
			Notes: req.Notes,
			Metadata: datatypes.JSONMap{
				"amount":         amount.StringFixed(2),
				"amount_paid":    paid.StringFixed(2),
				"payment_status": string(permit.PaymentStatus),
			},
		}, nil
	}
}

// PaymentStatusFor derives the payment status from the amount paid.
func PaymentStatusFor(paid, total decimal.Decimal) model.PaymentStatus {
	switch {
	case paid.IsZero():
		return model.PaymentStatusUnpaid
	case paid.LessThan(total):
		return model.PaymentStatusPartial
	default:
		return model.PaymentStatusPaid
	}
}

// FormatPermitNumber renders the human-facing permit number, e.g.
// BP-2026-000123. The id suffix makes it unique.
func FormatPermitNumber(prefix string, issued time.Time, id uint) string {
	return fmt.Sprintf("%s-%d-%06d", prefix, issued.Year(), id)
}

func notesOr(notes, fallback string) string {
	if strings.TrimSpace(notes) != "" {
		return notes
	}
	return fallback
}
