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
	"gorm.io/gorm"
)

// ResidentDirectory is the read-only view of the resident records system.
type ResidentDirectory interface {
	LookupResident(ctx context.Context, id uint) (*model.Resident, error)
}

type residentDirectory struct {
	repo repository.ResidentRepository
}

func NewResidentDirectory(repo repository.ResidentRepository) ResidentDirectory {
	return &residentDirectory{repo: repo}
}

func (d *residentDirectory) LookupResident(ctx context.Context, id uint) (*model.Resident, error) {
	return d.repo.FindByID(id)
}

type SubmitApplicationInput struct {
	BusinessName      string    `json:"business_name" binding:"required"`
	TradeName         string    `json:"trade_name"`
	BusinessTypeID    uint      `json:"business_type_id" binding:"required"`
	Address           string    `json:"address" binding:"required"`
	TIN               string    `json:"tin"`
	CapitalInvestment FeeAmount `json:"capital_investment"`
	EmployeeCount     int       `json:"employee_count"`
	FloorArea         FeeAmount `json:"floor_area"`
	ResidentID        *uint     `json:"resident_id"`
	OwnerName         string    `json:"owner_name"`
	OwnerContact      string    `json:"owner_contact"`
	OwnerEmail        string    `json:"owner_email"`
	// Fees defaults to the business type's base fee.
	Fees *FeeInput `json:"fees"`
}

type SearchQuery struct {
	Status         string
	DisplayStatus  string
	BusinessTypeID *uint
	Query          string // comma separated terms
	IssuedFrom     *time.Time
	IssuedTo       *time.Time // inclusive
	ExpiresFrom    *time.Time
	ExpiresTo      *time.Time // inclusive
	Sort           string
	Order          string
	Page           int
}

// PermitView is a permit as shown in listings, with its read-time status.
type PermitView struct {
	model.Permit
	DisplayStatus DisplayStatus `json:"display_status"`
	DaysRemaining string        `json:"days_remaining,omitempty"`
	AllowedEvents []PermitEvent `json:"allowed_events"`
}

type SearchResult struct {
	Rows       []PermitView `json:"rows"`
	TotalCount int64        `json:"total_count"`
	Page       int          `json:"page"`
	PageSize   int          `json:"page_size"`
	TotalPages int          `json:"total_pages"`
}

type PermitService interface {
	SubmitApplication(ctx context.Context, actor model.Actor, input SubmitApplicationInput) (*model.Permit, error)
	GetPermit(ctx context.Context, actor model.Actor, id uint) (*PermitView, error)
	Search(ctx context.Context, actor model.Actor, query SearchQuery) (*SearchResult, error)
	SearchAll(ctx context.Context, actor model.Actor, query SearchQuery) ([]PermitView, error)
	History(ctx context.Context, actor model.Actor, id uint) ([]model.PermitHistory, error)
	Stats(ctx context.Context) (*repository.PermitStats, error)
	RenewalQueue(ctx context.Context, actor model.Actor, page int) (*SearchResult, error)
}

type permitService struct {
	*permitCommitter
	businessTypeRepo repository.BusinessTypeRepository
	residents        ResidentDirectory
}

func NewPermitService(
	db *gorm.DB,
	permitRepo repository.PermitRepository,
	historyRepo repository.PermitHistoryRepository,
	businessTypeRepo repository.BusinessTypeRepository,
	residents ResidentDirectory,
	notifier Notifier,
	cfg config.PermitConfig,
) PermitService {
	return &permitService{
		permitCommitter:  newPermitCommitter(db, permitRepo, historyRepo, notifier, cfg),
		businessTypeRepo: businessTypeRepo,
		residents:        residents,
	}
}

func (s *permitService) SubmitApplication(ctx context.Context, actor model.Actor, input SubmitApplicationInput) (*model.Permit, error) {
	logger.Info("Submitting permit application", map[string]interface{}{
		"business_name":    input.BusinessName,
		"business_type_id": input.BusinessTypeID,
		"actor_id":         actor.UserID,
	})

	permit, err := s.buildApplication(ctx, actor, input)
	if err != nil {
		logger.Warn("Permit application rejected", map[string]interface{}{
			"actor_id": actor.UserID,
			"error":    err.Error(),
		})
		return nil, err
	}

	record := &model.PermitHistory{
		Action:    model.HistoryActionSubmitted,
		NewStatus: model.PermitStatusPending,
		ActorID:   actor.UserID,
		ActorRole: actor.Role,
		Notes:     "Application submitted",
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.permitRepo.WithTx(tx).Create(permit); err != nil {
			return err
		}
		record.PermitID = permit.ID
		return s.historyRepo.WithTx(tx).Append(record)
	})
	if err != nil {
		logger.Error("Failed to submit permit application", err, map[string]interface{}{
			"actor_id": actor.UserID,
		})
		return nil, err
	}

	logger.Info("Permit application submitted", map[string]interface{}{
		"permit_id": permit.ID,
		"total_fee": permit.TotalFee.StringFixed(2),
	})

	s.dispatch(permit, record)

	if created, err := s.permitRepo.FindByID(permit.ID); err == nil {
		return created, nil
	}
	return permit, nil
}

func (s *permitService) buildApplication(ctx context.Context, actor model.Actor, input SubmitApplicationInput) (*model.Permit, error) {
	if _, err := requireText("business name", input.BusinessName); err != nil {
		return nil, err
	}
	if _, err := requireText("address", input.Address); err != nil {
		return nil, err
	}
	if input.EmployeeCount < 0 {
		return nil, fmt.Errorf("%w: employee count must not be negative", ErrValidation)
	}

	businessType, err := s.businessTypeRepo.FindByID(input.BusinessTypeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrValidation, ErrBusinessTypeNotFound)
		}
		return nil, err
	}

	capital, err := parseMeasure("capital investment", input.CapitalInvestment)
	if err != nil {
		return nil, err
	}
	floorArea, err := parseMeasure("floor area", input.FloorArea)
	if err != nil {
		return nil, err
	}

	permit := &model.Permit{
		BusinessName:      strings.TrimSpace(input.BusinessName),
		TradeName:         strings.TrimSpace(input.TradeName),
		BusinessTypeID:    businessType.ID,
		Address:           strings.TrimSpace(input.Address),
		TIN:               strings.TrimSpace(input.TIN),
		CapitalInvestment: capital,
		EmployeeCount:     input.EmployeeCount,
		FloorArea:         floorArea,
		ResidentID:        input.ResidentID,
		OwnerName:         strings.TrimSpace(input.OwnerName),
		OwnerContact:      strings.TrimSpace(input.OwnerContact),
		OwnerEmail:        strings.TrimSpace(input.OwnerEmail),
		SubmittedBy:       actor.UserID,
		Status:            model.PermitStatusPending,
		ApplicationDate:   CalendarDate(s.now()),
		PaymentStatus:     model.PaymentStatusUnpaid,
		Version:           1,
	}

	if input.ResidentID != nil && s.residents != nil {
		resident, err := s.residents.LookupResident(ctx, *input.ResidentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("%w: resident %d not found", ErrValidation, *input.ResidentID)
			}
			return nil, err
		}
		if permit.OwnerName == "" {
			permit.OwnerName = resident.FullName()
		}
		if permit.OwnerContact == "" {
			permit.OwnerContact = resident.Contact
		}
		if permit.OwnerEmail == "" {
			permit.OwnerEmail = resident.Email
		}
	}
	if permit.OwnerName == "" {
		return nil, fmt.Errorf("%w: owner name is required", ErrValidation)
	}

	fees := model.FeeComponents{PermitFee: businessType.BaseFee}
	if input.Fees != nil {
		if fees, err = ParseFeeComponents(*input.Fees); err != nil {
			return nil, err
		}
	}
	if _, err := applyFees(permit, fees); err != nil {
		return nil, err
	}
	return permit, nil
}

func (s *permitService) GetPermit(ctx context.Context, actor model.Actor, id uint) (*PermitView, error) {
	permit, err := s.loadVisible(actor, id)
	if err != nil {
		return nil, err
	}
	view := s.view(permit, actor, s.cfg.RegistryHorizonDays)
	return &view, nil
}

func (s *permitService) History(ctx context.Context, actor model.Actor, id uint) ([]model.PermitHistory, error) {
	if _, err := s.loadVisible(actor, id); err != nil {
		return nil, err
	}
	return s.historyRepo.ListFor(id)
}

// loadVisible fetches a permit the actor is allowed to see. Applicants only
// see their own.
func (s *permitService) loadVisible(actor model.Actor, id uint) (*model.Permit, error) {
	permit, err := s.permitRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPermitNotFound
		}
		return nil, err
	}
	if !actor.IsStaff() && permit.SubmittedBy != actor.UserID {
		return nil, fmt.Errorf("%w: permit belongs to another applicant", ErrForbidden)
	}
	return permit, nil
}

func (s *permitService) view(permit *model.Permit, actor model.Actor, horizonDays int) PermitView {
	now := s.now()
	return PermitView{
		Permit:        *permit,
		DisplayStatus: DeriveDisplayStatus(permit.Status, permit.ExpiryDate, now, horizonDays),
		DaysRemaining: daysLabelFor(permit, now),
		AllowedEvents: AllowedEvents(permit, actor),
	}
}

// parseMeasure parses a non-negative descriptive quantity.
func parseMeasure(name string, raw FeeAmount) (decimal.Decimal, error) {
	d, err := ParseAmount(name, raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s must be a number with at most two decimals", ErrValidation, name)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %s must not be negative", ErrValidation, name)
	}
	return d, nil
}

func daysLabelFor(permit *model.Permit, now time.Time) string {
	if permit.Status != model.PermitStatusApproved {
		return ""
	}
	return DaysRemainingLabel(permit.ExpiryDate, now)
}

// buildFilter turns a query into a registry filter, sort and page.
func (s *permitService) buildFilter(actor model.Actor, query SearchQuery) (repository.PermitFilter, repository.PermitSort, error) {
	var filter repository.PermitFilter

	sortKey := query.Sort
	if sortKey == "" {
		sortKey = "application_date"
	}
	if !repository.IsSortKey(sortKey) {
		return filter, repository.PermitSort{}, fmt.Errorf("%w: %w %q", ErrValidation, repository.ErrInvalidSortKey, sortKey)
	}
	sort := repository.PermitSort{Key: sortKey, Desc: query.Sort == ""}
	switch strings.ToLower(query.Order) {
	case "":
	case "asc":
		sort.Desc = false
	case "desc":
		sort.Desc = true
	default:
		return filter, sort, fmt.Errorf("%w: order must be asc or desc", ErrValidation)
	}

	if query.Status != "" {
		status := model.PermitStatus(query.Status)
		if !status.Valid() {
			return filter, sort, fmt.Errorf("%w: unknown status %q", ErrValidation, query.Status)
		}
		filter.Statuses = []model.PermitStatus{status}
	}

	if query.DisplayStatus != "" {
		display, err := ParseDisplayStatus(query.DisplayStatus)
		if err != nil {
			return filter, sort, err
		}
		statuses, window := DerivedStatusWindow(display, s.now(), s.cfg.RegistryHorizonDays)
		filter.Statuses = intersectStatuses(filter.Statuses, statuses)
		if !window.IsZero() {
			filter.ExpiryRanges = append(filter.ExpiryRanges, window)
		}
	}

	filter.BusinessTypeID = query.BusinessTypeID
	if !actor.IsStaff() {
		userID := actor.UserID
		filter.SubmittedBy = &userID
	}

	for _, term := range strings.Split(query.Query, ",") {
		if term = strings.TrimSpace(term); term != "" {
			filter.Terms = append(filter.Terms, term)
		}
	}

	filter.IssueRange = inclusiveRange(query.IssuedFrom, query.IssuedTo)
	if rng := inclusiveRange(query.ExpiresFrom, query.ExpiresTo); !rng.IsZero() {
		filter.ExpiryRanges = append(filter.ExpiryRanges, rng)
	}

	return filter, sort, nil
}

// intersectStatuses narrows current by allowed. An empty current means no
// status filter yet. A non-empty result that matches nothing is encoded as
// an impossible status so the query returns no rows.
func intersectStatuses(current, allowed []model.PermitStatus) []model.PermitStatus {
	if len(current) == 0 {
		return allowed
	}
	var out []model.PermitStatus
	for _, c := range current {
		for _, a := range allowed {
			if c == a {
				out = append(out, c)
			}
		}
	}
	if len(out) == 0 {
		return []model.PermitStatus{"none"}
	}
	return out
}

func inclusiveRange(from, to *time.Time) repository.DateRange {
	var rng repository.DateRange
	if from != nil {
		f := CalendarDate(*from)
		rng.From = &f
	}
	if to != nil {
		before := CalendarDate(*to).AddDate(0, 0, 1)
		rng.Before = &before
	}
	return rng
}

func (s *permitService) Search(ctx context.Context, actor model.Actor, query SearchQuery) (*SearchResult, error) {
	filter, sort, err := s.buildFilter(actor, query)
	if err != nil {
		return nil, err
	}
	return s.searchPage(actor, filter, sort, query.Page, s.cfg.RegistryHorizonDays)
}

func (s *permitService) searchPage(actor model.Actor, filter repository.PermitFilter, sort repository.PermitSort, pageNumber, horizonDays int) (*SearchResult, error) {
	if pageNumber < 1 {
		pageNumber = 1
	}
	page := repository.Page{Number: pageNumber, Size: s.cfg.PageSize}

	permits, total, err := s.permitRepo.Search(filter, sort, page)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidSortKey) {
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		return nil, err
	}

	rows := make([]PermitView, 0, len(permits))
	for i := range permits {
		rows = append(rows, s.view(&permits[i], actor, horizonDays))
	}

	totalPages := int((total + int64(page.Size) - 1) / int64(page.Size))
	return &SearchResult{
		Rows:       rows,
		TotalCount: total,
		Page:       page.Number,
		PageSize:   page.Size,
		TotalPages: totalPages,
	}, nil
}

// SearchAll walks every page of a search. Used by exports.
func (s *permitService) SearchAll(ctx context.Context, actor model.Actor, query SearchQuery) ([]PermitView, error) {
	filter, sort, err := s.buildFilter(actor, query)
	if err != nil {
		return nil, err
	}

	var all []PermitView
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := s.searchPage(actor, filter, sort, page, s.cfg.RegistryHorizonDays)
		if err != nil {
			return nil, err
		}
		all = append(all, result.Rows...)
		if page >= result.TotalPages {
			return all, nil
		}
	}
}

func (s *permitService) Stats(ctx context.Context) (*repository.PermitStats, error) {
	return s.permitRepo.Stats(CalendarDate(s.now()), s.cfg.RegistryHorizonDays)
}

// RenewalQueue lists approved permits that are expired or expire within the
// renewal horizon, soonest first.
func (s *permitService) RenewalQueue(ctx context.Context, actor model.Actor, page int) (*SearchResult, error) {
	horizonEnd := CalendarDate(s.now()).AddDate(0, 0, s.cfg.RenewalHorizonDays+1)
	filter := repository.PermitFilter{
		Statuses:     []model.PermitStatus{model.PermitStatusApproved},
		ExpiryRanges: []repository.DateRange{{Before: &horizonEnd}},
	}
	return s.searchPage(actor, filter, repository.PermitSort{Key: "expiry_date"}, page, s.cfg.RenewalHorizonDays)
}
