package errors

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lgu-bplo/bizpermit-backend/internal/app/repository"
	"github.com/lgu-bplo/bizpermit-backend/internal/app/service"
	"gorm.io/gorm"
)

// ErrorInfo is a classified error.
type ErrorInfo struct {
	Status  int
	Code    string
	Message string
}

// serviceErrors maps lifecycle sentinels to responses. Order matters: the
// first match wins, so the more specific sentinels come first.
var serviceErrors = []struct {
	target error
	status int
	code   string
}{
	{repository.ErrInvalidSortKey, http.StatusBadRequest, ValidationInvalidSort},
	{service.ErrBusinessTypeNotFound, http.StatusBadRequest, BusinessTypeNotFound},
	{service.ErrValidation, http.StatusBadRequest, ValidationInvalidInput},
	{service.ErrInvalidFee, http.StatusUnprocessableEntity, FeeInvalid},
	{service.ErrInvalidTransition, http.StatusConflict, PermitInvalidTransition},
	{service.ErrConcurrentModification, http.StatusConflict, PermitConcurrentModification},
	{service.ErrPermitNotFound, http.StatusNotFound, PermitNotFound},
	{service.ErrNotificationNotFound, http.StatusNotFound, NotificationNotFound},
	{service.ErrForbidden, http.StatusForbidden, AuthzAccessDenied},
}

// ParseError classifies err into a status, code and message safe to show to
// the caller. Service errors keep their message; storage errors are
// summarized so driver details never leak.
func ParseError(err error, context string) ErrorInfo {
	if err == nil {
		return ErrorInfo{
			Status:  http.StatusInternalServerError,
			Code:    InternalServerError,
			Message: "Something went wrong",
		}
	}

	for _, se := range serviceErrors {
		if errors.Is(err, se.target) {
			return ErrorInfo{Status: se.status, Code: se.code, Message: err.Error()}
		}
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrorInfo{
			Status:  http.StatusNotFound,
			Code:    ResourceNotFound,
			Message: getNotFoundMessage(context),
		}
	}

	errLower := strings.ToLower(err.Error())

	if strings.Contains(errLower, "duplicate key") || strings.Contains(errLower, "unique constraint") {
		if strings.Contains(errLower, "permit_number") {
			return ErrorInfo{Status: http.StatusConflict, Code: PermitNumberExists, Message: "Permit number is already in use"}
		}
		return ErrorInfo{Status: http.StatusConflict, Code: ResourceAlreadyExists, Message: "The record already exists"}
	}

	if strings.Contains(errLower, "foreign key constraint") {
		if strings.Contains(errLower, "business_type") {
			return ErrorInfo{Status: http.StatusBadRequest, Code: BusinessTypeNotFound, Message: "Unknown business type"}
		}
		return ErrorInfo{Status: http.StatusBadRequest, Code: ResourceNotFound, Message: "A referenced record does not exist"}
	}

	if strings.Contains(errLower, "check constraint") {
		if strings.Contains(errLower, "chk_permits_amounts") {
			return ErrorInfo{Status: http.StatusUnprocessableEntity, Code: FeeInvalid, Message: "Fees and payments must not be negative"}
		}
		return ErrorInfo{Status: http.StatusBadRequest, Code: ValidationInvalidInput, Message: "Invalid input"}
	}

	if errors.Is(err, gorm.ErrInvalidTransaction) || strings.Contains(errLower, "deadlock") {
		return ErrorInfo{Status: http.StatusConflict, Code: PermitConcurrentModification, Message: "The permit was modified concurrently, reload and retry"}
	}

	if strings.Contains(errLower, "connection refused") ||
		strings.Contains(errLower, "no such host") ||
		strings.Contains(errLower, "timeout") {
		return ErrorInfo{
			Status:  http.StatusServiceUnavailable,
			Code:    InternalExternalAPI,
			Message: "A backing service is unavailable. Please try again later",
		}
	}

	return ErrorInfo{
		Status:  http.StatusInternalServerError,
		Code:    InternalServerError,
		Message: getDefaultErrorMessage(context),
	}
}

func getNotFoundMessage(context string) string {
	contextLower := strings.ToLower(context)

	switch {
	case strings.Contains(contextLower, "permit"):
		return "Permit not found"
	case strings.Contains(contextLower, "business type"):
		return "Business type not found"
	case strings.Contains(contextLower, "notification"):
		return "Notification not found"
	}
	return "The requested record was not found"
}

func getDefaultErrorMessage(context string) string {
	contextLower := strings.ToLower(context)

	switch {
	case strings.Contains(contextLower, "submit"), strings.Contains(contextLower, "create"):
		return "Failed to save. Please try again later"
	case strings.Contains(contextLower, "transition"), strings.Contains(contextLower, "renew"):
		return "Failed to update the permit. Please try again later"
	case strings.Contains(contextLower, "export"):
		return "Failed to generate the export. Please try again later"
	}
	return "Something went wrong. Please try again later"
}

// RespondServiceError classifies err and writes the response.
func RespondServiceError(c *gin.Context, err error, context string) {
	info := ParseError(err, context)
	RespondWithError(c, info.Status, info.Code, info.Message)
}
