package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the body of every error response. Clients branch on
// Error; Message is for people.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func RespondWithError(c *gin.Context, statusCode int, errorCode string, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}

// Unauthorized answers a request without a usable bearer token.
func Unauthorized(c *gin.Context, message string) {
	if message == "" {
		message = "Authentication required"
	}
	RespondWithError(c, http.StatusUnauthorized, AuthUnauthorized, message)
}

// Forbidden answers a caller whose role may not reach the route at all.
// Per-permit decisions go through RespondServiceError instead.
func Forbidden(c *gin.Context, message string) {
	if message == "" {
		message = "Your role cannot access this resource"
	}
	RespondWithError(c, http.StatusForbidden, AuthzForbidden, message)
}

func BadRequest(c *gin.Context, errorCode string, message string) {
	RespondWithError(c, http.StatusBadRequest, errorCode, message)
}
