package controller

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lgu-bplo/bizpermit-backend/internal/app/service"
	apperrors "github.com/lgu-bplo/bizpermit-backend/internal/errors"
	"github.com/lgu-bplo/bizpermit-backend/internal/middleware"
)

type PermitController struct {
	permits              service.PermitService
	lifecycle            service.PermitLifecycleService
	renewals             service.RenewalService
	reports              service.ReportService
	defaultValidityYears int
}

func NewPermitController(
	permits service.PermitService,
	lifecycle service.PermitLifecycleService,
	renewals service.RenewalService,
	reports service.ReportService,
	defaultValidityYears int,
) *PermitController {
	return &PermitController{
		permits:              permits,
		lifecycle:            lifecycle,
		renewals:             renewals,
		reports:              reports,
		defaultValidityYears: defaultValidityYears,
	}
}

type TransitionRequest struct {
	Event           string            `json:"event" binding:"required"`
	Reason          string            `json:"reason"`
	Notes           string            `json:"notes"`
	Fees            *service.FeeInput `json:"fees"`
	Amount          service.FeeAmount `json:"amount"`
	ExpectedVersion *int64            `json:"expected_version" binding:"required"`
}

type RenewRequest struct {
	ValidityYears   *int              `json:"validity_years"`
	Fees            *service.FeeInput `json:"fees"`
	Notes           string            `json:"notes"`
	ExpectedVersion *int64            `json:"expected_version" binding:"required"`
}

// SubmitApplication handles POST /api/v1/permits
func (ctrl *PermitController) SubmitApplication(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	actor, ok := middleware.GetActor(c)
	if !ok {
		apperrors.Unauthorized(c, "")
		return
	}

	var input service.SubmitApplicationInput
	if err := c.ShouldBindJSON(&input); err != nil {
		log.Warn("Invalid permit application", map[string]interface{}{
			"error": err.Error(),
		})
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, err.Error())
		return
	}

	permit, err := ctrl.permits.SubmitApplication(c.Request.Context(), actor, input)
	if err != nil {
		apperrors.RespondServiceError(c, err, "submit permit")
		return
	}

	log.Info("Permit application submitted", map[string]interface{}{
		"permit_id": permit.ID,
		"user_id":   actor.UserID,
	})
	c.JSON(http.StatusCreated, gin.H{
		"message": "Application submitted",
		"permit":  permit,
	})
}

// ListPermits handles GET /api/v1/permits
func (ctrl *PermitController) ListPermits(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		apperrors.Unauthorized(c, "")
		return
	}

	query, err := parseSearchQuery(c)
	if err != nil {
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, err.Error())
		return
	}

	result, err := ctrl.permits.Search(c.Request.Context(), actor, query)
	if err != nil {
		apperrors.RespondServiceError(c, err, "search permits")
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetStats handles GET /api/v1/permits/stats
func (ctrl *PermitController) GetStats(c *gin.Context) {
	stats, err := ctrl.permits.Stats(c.Request.Context())
	if err != nil {
		apperrors.RespondServiceError(c, err, "permit stats")
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

// ListRenewals handles GET /api/v1/permits/renewals
func (ctrl *PermitController) ListRenewals(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		apperrors.Unauthorized(c, "")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	result, err := ctrl.permits.RenewalQueue(c.Request.Context(), actor, page)
	if err != nil {
		apperrors.RespondServiceError(c, err, "renewal queue")
		return
	}
	c.JSON(http.StatusOK, result)
}

// ExportPermits handles GET /api/v1/permits/export. Accepts the same filters
// as ListPermits and returns the whole result as XLSX.
func (ctrl *PermitController) ExportPermits(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	actor, ok := middleware.GetActor(c)
	if !ok {
		apperrors.Unauthorized(c, "")
		return
	}

	query, err := parseSearchQuery(c)
	if err != nil {
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, err.Error())
		return
	}

	export, err := ctrl.reports.ExportRegistry(c.Request.Context(), actor, query)
	if err != nil {
		apperrors.RespondServiceError(c, err, "export permits")
		return
	}

	if export.Archived != nil {
		c.Header("X-Archive-Key", export.Archived.Key)
		c.Header("X-Archive-URL", export.Archived.DownloadURL)
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.Filename))
	log.Info("Permit registry exported", map[string]interface{}{
		"rows": export.Rows,
	})
	c.Data(http.StatusOK, export.ContentType, export.Content)
}

// GetPermit handles GET /api/v1/permits/:id
func (ctrl *PermitController) GetPermit(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		apperrors.Unauthorized(c, "")
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	view, err := ctrl.permits.GetPermit(c.Request.Context(), actor, id)
	if err != nil {
		apperrors.RespondServiceError(c, err, "get permit")
		return
	}
	c.JSON(http.StatusOK, gin.H{"permit": view})
}

// GetHistory handles GET /api/v1/permits/:id/history
func (ctrl *PermitController) GetHistory(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		apperrors.Unauthorized(c, "")
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	history, err := ctrl.permits.History(c.Request.Context(), actor, id)
	if err != nil {
		apperrors.RespondServiceError(c, err, "permit history")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"history": history,
		"count":   len(history),
	})
}

// Transition handles POST /api/v1/permits/:id/transitions
func (ctrl *PermitController) Transition(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	actor, ok := middleware.GetActor(c)
	if !ok {
		apperrors.Unauthorized(c, "")
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, err.Error())
		return
	}
	event, err := service.ParseEvent(req.Event)
	if err != nil {
		apperrors.RespondServiceError(c, err, "transition")
		return
	}

	permit, err := ctrl.lifecycle.Transition(c.Request.Context(), id, service.TransitionRequest{
		Event:           event,
		Reason:          req.Reason,
		Notes:           req.Notes,
		Fees:            req.Fees,
		Amount:          req.Amount,
		ExpectedVersion: req.ExpectedVersion,
	}, actor)
	if err != nil {
		apperrors.RespondServiceError(c, err, "transition")
		return
	}

	log.Info("Permit transitioned", map[string]interface{}{
		"permit_id": permit.ID,
		"event":     event,
		"status":    permit.Status,
	})
	c.JSON(http.StatusOK, gin.H{"permit": permit})
}

// Renew handles POST /api/v1/permits/:id/renew
func (ctrl *PermitController) Renew(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	actor, ok := middleware.GetActor(c)
	if !ok {
		apperrors.Unauthorized(c, "")
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req RenewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, err.Error())
		return
	}
	years := ctrl.defaultValidityYears
	if req.ValidityYears != nil {
		years = *req.ValidityYears
	}

	permit, err := ctrl.renewals.Renew(c.Request.Context(), id, service.RenewalRequest{
		ValidityYears:   years,
		Fees:            req.Fees,
		Notes:           req.Notes,
		ExpectedVersion: req.ExpectedVersion,
	}, actor)
	if err != nil {
		apperrors.RespondServiceError(c, err, "renew permit")
		return
	}

	log.Info("Permit renewed", map[string]interface{}{
		"permit_id":     permit.ID,
		"renewal_count": permit.RenewalCount,
	})
	c.JSON(http.StatusOK, gin.H{"permit": permit})
}

func parseIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		apperrors.BadRequest(c, apperrors.ValidationInvalidID, "Invalid ID")
		return 0, false
	}
	return uint(id), true
}

func parseSearchQuery(c *gin.Context) (service.SearchQuery, error) {
	query := service.SearchQuery{
		Status:        c.Query("status"),
		DisplayStatus: c.Query("display_status"),
		Query:         c.Query("q"),
		Sort:          c.Query("sort"),
		Order:         c.Query("order"),
	}

	if raw := c.Query("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return query, fmt.Errorf("page must be a positive integer")
		}
		query.Page = page
	}

	if raw := c.Query("business_type_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return query, fmt.Errorf("business_type_id must be an integer")
		}
		typeID := uint(id)
		query.BusinessTypeID = &typeID
	}

	dates := []struct {
		name string
		dst  **time.Time
	}{
		{"issued_from", &query.IssuedFrom},
		{"issued_to", &query.IssuedTo},
		{"expires_from", &query.ExpiresFrom},
		{"expires_to", &query.ExpiresTo},
	}
	for _, d := range dates {
		raw := c.Query(d.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return query, fmt.Errorf("%s must be a date in YYYY-MM-DD format", d.name)
		}
		*d.dst = &t
	}

	return query, nil
}
