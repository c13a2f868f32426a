package controller

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lgu-bplo/bizpermit-backend/config"
	"github.com/lgu-bplo/bizpermit-backend/internal/app/model"
	"github.com/lgu-bplo/bizpermit-backend/internal/app/repository"
	"github.com/lgu-bplo/bizpermit-backend/internal/app/service"
	"github.com/lgu-bplo/bizpermit-backend/internal/db"
	apperrors "github.com/lgu-bplo/bizpermit-backend/internal/errors"
	"github.com/lgu-bplo/bizpermit-backend/internal/middleware"
	"github.com/lgu-bplo/bizpermit-backend/pkg/util"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testJWTSecret = "test-secret"

func setupPermitControllerTest(t *testing.T) (*gin.Engine, *gorm.DB) {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.CleanupTestDB(testDB)
	})

	cfg := config.DefaultPermitConfig()
	permitRepo := repository.NewPermitRepository(testDB)
	historyRepo := repository.NewPermitHistoryRepository(testDB)
	businessTypeRepo := repository.NewBusinessTypeRepository(testDB)
	notificationRepo := repository.NewNotificationRepository(testDB)

	notifications := service.NewNotificationService(notificationRepo, nil, nil)
	permits := service.NewPermitService(
		testDB,
		permitRepo,
		historyRepo,
		businessTypeRepo,
		service.NewResidentDirectory(repository.NewResidentRepository(testDB)),
		nil,
		cfg,
	)
	lifecycle := service.NewPermitLifecycleService(testDB, permitRepo, historyRepo, nil, cfg)
	renewals := service.NewRenewalService(testDB, permitRepo, historyRepo, nil, cfg)
	reports := service.NewReportService(permits, nil)

	permitController := NewPermitController(permits, lifecycle, renewals, reports, cfg.ValidityYears)
	businessTypeController := NewBusinessTypeController(service.NewBusinessTypeService(businessTypeRepo))
	notificationController := NewNotificationController(notifications)
	auth := middleware.NewAuthMiddleware(testJWTSecret)
	staff := auth.RequireRole(model.RoleAdmin, model.RoleOfficer, model.RoleStaff)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/business-types", businessTypeController.ListBusinessTypes)

	permitRoutes := router.Group("/permits", auth.Authenticate())
	permitRoutes.POST("", permitController.SubmitApplication)
	permitRoutes.GET("", permitController.ListPermits)
	permitRoutes.GET("/stats", staff, permitController.GetStats)
	permitRoutes.GET("/renewals", staff, permitController.ListRenewals)
	permitRoutes.GET("/export", staff, permitController.ExportPermits)
	permitRoutes.GET("/:id", permitController.GetPermit)
	permitRoutes.GET("/:id/history", permitController.GetHistory)
	permitRoutes.POST("/:id/transitions", permitController.Transition)
	permitRoutes.POST("/:id/renew", staff, permitController.Renew)

	notificationRoutes := router.Group("/notifications", auth.Authenticate())
	notificationRoutes.GET("", notificationController.GetNotifications)
	notificationRoutes.PATCH("/read-all", notificationController.MarkAllAsRead)
	notificationRoutes.PATCH("/:id/read", notificationController.MarkAsRead)

	return router, testDB
}

func bearer(t *testing.T, userID uint, role model.UserRole) string {
	t.Helper()
	pair, err := util.GenerateTokenPair(userID, fmt.Sprintf("user%d@lgu.gov.ph", userID), string(role), testJWTSecret, time.Hour, 24*time.Hour)
	require.NoError(t, err)
	return "Bearer " + pair.AccessToken
}

func doJSON(t *testing.T, router *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func submitPermit(t *testing.T, router *gin.Engine, applicant string) uint {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/permits", applicant, map[string]interface{}{
		"business_name":    "Kape ni Juan",
		"business_type_id": 2,
		"address":          "12 Rizal St., Barangay Poblacion",
		"owner_name":       "Juan Reyes",
		"employee_count":   3,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	permit := decode(t, w)["permit"].(map[string]interface{})
	return uint(permit["id"].(float64))
}

func TestPermitController_SubmitApplication(t *testing.T) {
	router, _ := setupPermitControllerTest(t)
	applicant := bearer(t, 42, model.RoleApplicant)

	w := doJSON(t, router, http.MethodPost, "/permits", applicant, map[string]interface{}{
		"business_name":    "Kape ni Juan",
		"business_type_id": 2,
		"address":          "12 Rizal St., Barangay Poblacion",
		"owner_name":       "Juan Reyes",
		"fees":             map[string]interface{}{"permit_fee": 500, "sanitary_fee": "500", "garbage_fee": 300},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	permit := decode(t, w)["permit"].(map[string]interface{})
	assert.Equal(t, "pending", permit["status"])
	total, err := decimal.NewFromString(permit["total_fee"].(string))
	require.NoError(t, err)
	assert.Equal(t, "1300.00", total.StringFixed(2))
	assert.Equal(t, float64(1), permit["version"])
	assert.Equal(t, float64(42), permit["submitted_by"])
}

func TestPermitController_SubmitApplication_Invalid(t *testing.T) {
	router, _ := setupPermitControllerTest(t)
	applicant := bearer(t, 42, model.RoleApplicant)

	w := doJSON(t, router, http.MethodPost, "/permits", applicant, map[string]interface{}{
		"business_name": "Kape ni Juan",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPost, "/permits", applicant, map[string]interface{}{
		"business_name":    "Kape ni Juan",
		"business_type_id": 2,
		"address":          "12 Rizal St.",
		"owner_name":       "Juan Reyes",
		"fees":             map[string]interface{}{"permit_fee": "12.345"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, apperrors.FeeInvalid, decode(t, w)["error"])

	w = doJSON(t, router, http.MethodPost, "/permits", "", map[string]interface{}{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPermitController_Transition(t *testing.T) {
	router, _ := setupPermitControllerTest(t)
	applicant := bearer(t, 42, model.RoleApplicant)
	officer := bearer(t, 7, model.RoleOfficer)
	staff := bearer(t, 8, model.RoleStaff)

	id := submitPermit(t, router, applicant)
	path := fmt.Sprintf("/permits/%d/transitions", id)

	t.Run("expected_version is required", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, path, officer, map[string]interface{}{"event": "approve"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown event", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, path, officer, map[string]interface{}{"event": "archive", "expected_version": 1})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("staff may not approve", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, path, staff, map[string]interface{}{"event": "approve", "expected_version": 1})
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, apperrors.AuthzAccessDenied, decode(t, w)["error"])
	})

	t.Run("approve", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, path, officer, map[string]interface{}{
			"event":            "approve",
			"expected_version": 1,
			"fees":             map[string]interface{}{"permit_fee": 500, "sanitary_fee": 500, "garbage_fee": 300},
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		permit := decode(t, w)["permit"].(map[string]interface{})
		assert.Equal(t, "approved", permit["status"])
		assert.Equal(t, float64(2), permit["version"])
		assert.NotEmpty(t, permit["permit_number"])
	})

	t.Run("stale version", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, path, officer, map[string]interface{}{
			"event":            "reject",
			"reason":           "Zoning violation",
			"expected_version": 1,
		})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, apperrors.PermitConcurrentModification, decode(t, w)["error"])
	})

	t.Run("illegal transition", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, path, officer, map[string]interface{}{
			"event":            "approve",
			"expected_version": 2,
		})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, apperrors.PermitInvalidTransition, decode(t, w)["error"])
	})

	t.Run("record payment", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, path, staff, map[string]interface{}{
			"event":            "record_payment",
			"amount":           "1300.00",
			"expected_version": 2,
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		permit := decode(t, w)["permit"].(map[string]interface{})
		assert.Equal(t, "paid", permit["payment_status"])
	})

	t.Run("history", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, fmt.Sprintf("/permits/%d/history", id), applicant, nil)
		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, float64(3), body["count"])
		history := body["history"].([]interface{})
		assert.Equal(t, "payment_recorded", history[0].(map[string]interface{})["action"])
	})

	t.Run("unknown permit", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/permits/9999/transitions", officer, map[string]interface{}{
			"event":            "approve",
			"expected_version": 1,
		})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestPermitController_Renew(t *testing.T) {
	router, _ := setupPermitControllerTest(t)
	applicant := bearer(t, 42, model.RoleApplicant)
	officer := bearer(t, 7, model.RoleOfficer)
	staff := bearer(t, 8, model.RoleStaff)

	id := submitPermit(t, router, applicant)
	w := doJSON(t, router, http.MethodPost, fmt.Sprintf("/permits/%d/transitions", id), officer, map[string]interface{}{
		"event": "approve", "expected_version": 1,
	})
	require.Equal(t, http.StatusOK, w.Code)
	approved := decode(t, w)["permit"].(map[string]interface{})

	path := fmt.Sprintf("/permits/%d/renew", id)

	w = doJSON(t, router, http.MethodPost, path, applicant, map[string]interface{}{"expected_version": 2})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, router, http.MethodPost, path, staff, map[string]interface{}{"validity_years": 0, "expected_version": 2})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPost, path, staff, map[string]interface{}{"expected_version": 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	renewed := decode(t, w)["permit"].(map[string]interface{})
	assert.Equal(t, float64(1), renewed["renewal_count"])
	assert.Equal(t, true, renewed["is_renewal"])
	assert.Equal(t, approved["permit_number"], renewed["permit_number"])
	assert.NotEqual(t, approved["expiry_date"], renewed["expiry_date"])
}

func TestPermitController_ListPermits(t *testing.T) {
	router, _ := setupPermitControllerTest(t)
	applicant := bearer(t, 42, model.RoleApplicant)
	other := bearer(t, 43, model.RoleApplicant)
	staff := bearer(t, 8, model.RoleStaff)

	for i := 0; i < 3; i++ {
		submitPermit(t, router, applicant)
	}
	submitPermit(t, router, other)

	w := doJSON(t, router, http.MethodGet, "/permits?status=pending&sort=business_name&order=asc", staff, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, float64(4), body["total_count"])
	assert.Equal(t, float64(15), body["page_size"])
	assert.Len(t, body["rows"], 4)

	w = doJSON(t, router, http.MethodGet, "/permits", other, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["total_count"])

	w = doJSON(t, router, http.MethodGet, "/permits?sort=owner_email", staff, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperrors.ValidationInvalidSort, decode(t, w)["error"])

	w = doJSON(t, router, http.MethodGet, "/permits?issued_from=03/10/2026", staff, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodGet, "/permits?page=0", staff, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPermitController_GetPermit(t *testing.T) {
	router, _ := setupPermitControllerTest(t)
	applicant := bearer(t, 42, model.RoleApplicant)
	other := bearer(t, 43, model.RoleApplicant)

	id := submitPermit(t, router, applicant)

	w := doJSON(t, router, http.MethodGet, fmt.Sprintf("/permits/%d", id), applicant, nil)
	require.Equal(t, http.StatusOK, w.Code)
	permit := decode(t, w)["permit"].(map[string]interface{})
	assert.Equal(t, "pending", permit["display_status"])
	assert.Equal(t, []interface{}{"cancel"}, permit["allowed_events"])

	w = doJSON(t, router, http.MethodGet, fmt.Sprintf("/permits/%d", id), other, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, router, http.MethodGet, "/permits/abc", applicant, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPermitController_StaffEndpoints(t *testing.T) {
	router, _ := setupPermitControllerTest(t)
	applicant := bearer(t, 42, model.RoleApplicant)
	staff := bearer(t, 8, model.RoleStaff)
	submitPermit(t, router, applicant)

	w := doJSON(t, router, http.MethodGet, "/permits/stats", applicant, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, router, http.MethodGet, "/permits/stats", staff, nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode(t, w)["stats"].(map[string]interface{})
	assert.Equal(t, float64(1), stats["pending"])

	w = doJSON(t, router, http.MethodGet, "/permits/renewals", staff, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decode(t, w)["total_count"])

	w = doJSON(t, router, http.MethodGet, "/permits/export", staff, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "permit-registry-")
	assert.NotEmpty(t, w.Body.Bytes())
}

func TestBusinessTypeController_List(t *testing.T) {
	router, _ := setupPermitControllerTest(t)

	w := doJSON(t, router, http.MethodGet, "/business-types", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(len(db.DefaultBusinessTypes)), body["count"])
}
