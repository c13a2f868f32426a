package controller

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lgu-bplo/bizpermit-backend/internal/app/service"
	apperrors "github.com/lgu-bplo/bizpermit-backend/internal/errors"
	"github.com/lgu-bplo/bizpermit-backend/internal/middleware"
)

type NotificationController struct {
	service service.NotificationService
}

func NewNotificationController(service service.NotificationService) *NotificationController {
	return &NotificationController{
		service: service,
	}
}

// GetNotifications handles GET /api/v1/notifications
func (ctrl *NotificationController) GetNotifications(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		apperrors.Unauthorized(c, "")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	var isRead *bool
	switch c.Query("is_read") {
	case "true":
		t := true
		isRead = &t
	case "false":
		f := false
		isRead = &f
	}

	notifications, total, unreadCount, err := ctrl.service.GetNotifications(userID, isRead, page, pageSize)
	if err != nil {
		apperrors.RespondServiceError(c, err, "list notifications")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":         notifications,
		"total":        total,
		"page":         page,
		"page_size":    pageSize,
		"unread_count": unreadCount,
	})
}

// MarkAsRead handles PATCH /api/v1/notifications/:id/read
func (ctrl *NotificationController) MarkAsRead(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		apperrors.Unauthorized(c, "")
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	if err := ctrl.service.MarkAsRead(id, userID); err != nil {
		apperrors.RespondServiceError(c, err, "notification")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read"})
}

// MarkAllAsRead handles PATCH /api/v1/notifications/read-all
func (ctrl *NotificationController) MarkAllAsRead(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		apperrors.Unauthorized(c, "")
		return
	}

	if err := ctrl.service.MarkAllAsRead(userID); err != nil {
		apperrors.RespondServiceError(c, err, "notification")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "All notifications marked as read"})
}
