package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/lgu-bplo/bizpermit-backend/internal/app/model"
	"github.com/lgu-bplo/bizpermit-backend/internal/app/repository"
	"github.com/lgu-bplo/bizpermit-backend/internal/websocket"
	"github.com/lgu-bplo/bizpermit-backend/pkg/logger"
	"github.com/lgu-bplo/bizpermit-backend/pkg/redis"
	"gorm.io/gorm"
)

// NotificationMessage is what the lifecycle hands to the dispatcher.
type NotificationMessage struct {
	Type     model.NotificationType
	Title    string
	Content  string
	Link     string
	PermitID *uint
}

// Notifier delivers a message to a user. Lifecycle code only calls it after
// a commit and ignores its error beyond logging.
type Notifier interface {
	Notify(ctx context.Context, userID uint, msg NotificationMessage) error
}

type NotificationService interface {
	Notifier
	GetNotifications(userID uint, isRead *bool, page, pageSize int) ([]model.Notification, int64, int64, error)
	MarkAsRead(notificationID, userID uint) error
	MarkAllAsRead(userID uint) error
}

type pushSender interface {
	SendToUser(userID uint, message interface{}) error
	SendToRoles(roles []model.UserRole, message interface{}) error
}

type eventPublisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

type notificationService struct {
	repo      repository.NotificationRepository
	push      pushSender
	publisher eventPublisher
}

// NotificationEvent is published on the permit events channel for other
// services.
type NotificationEvent struct {
	Type       string                 `json:"type"`
	UserID     uint                   `json:"user_id"`
	PermitID   *uint                  `json:"permit_id,omitempty"`
	Kind       model.NotificationType `json:"kind"`
	Title      string                 `json:"title"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// NewNotificationService builds the dispatcher. hub and publisher may be nil
// when websocket push or Redis are not configured.
func NewNotificationService(repo repository.NotificationRepository, hub *websocket.Hub, publisher *redis.Publisher) NotificationService {
	s := &notificationService{repo: repo}
	if hub != nil {
		s.push = hub
	}
	if publisher != nil {
		s.publisher = publisher
	}
	return s
}

// Notify stores the inbox entry first; push and publish are best effort
// once the entry exists.
func (s *notificationService) Notify(ctx context.Context, userID uint, msg NotificationMessage) error {
	notification := &model.Notification{
		UserID:          userID,
		Type:            msg.Type,
		Title:           msg.Title,
		Content:         msg.Content,
		Link:            msg.Link,
		RelatedPermitID: msg.PermitID,
	}
	if err := s.repo.CreateNotification(notification); err != nil {
		logger.Error("Failed to create notification", err, map[string]interface{}{
			"user_id": userID,
			"type":    msg.Type,
		})
		return err
	}

	if s.push != nil {
		wsMessage := map[string]interface{}{
			"type":         "notification",
			"notification": notification,
		}
		if err := s.push.SendToUser(userID, wsMessage); err != nil {
			logger.Warn("Failed to push notification", map[string]interface{}{
				"user_id": userID,
				"error":   err.Error(),
			})
		}
		if msg.PermitID != nil && msg.Type == model.NotificationTypePermitStatus {
			update := map[string]interface{}{
				"type":      "permit_updated",
				"permit_id": *msg.PermitID,
			}
			if err := s.push.SendToRoles(staffRoles, update); err != nil {
				logger.Warn("Failed to push permit update to staff", map[string]interface{}{
					"permit_id": *msg.PermitID,
				})
			}
		}
	}

	if s.publisher != nil {
		payload, err := json.Marshal(NotificationEvent{
			Type:       "notification",
			UserID:     userID,
			PermitID:   msg.PermitID,
			Kind:       msg.Type,
			Title:      msg.Title,
			OccurredAt: notification.CreatedAt,
		})
		if err == nil {
			err = s.publisher.Publish(ctx, redis.PermitEventsChannel, payload)
		}
		if err != nil {
			logger.Warn("Failed to publish permit event", map[string]interface{}{
				"user_id": userID,
				"error":   err.Error(),
			})
		}
	}

	logger.Debug("Notification dispatched", map[string]interface{}{
		"notification_id": notification.ID,
		"user_id":         userID,
		"type":            msg.Type,
	})
	return nil
}

// GetNotifications returns a page of the user's inbox plus the total and
// unread counts.
func (s *notificationService) GetNotifications(userID uint, isRead *bool, page, pageSize int) ([]model.Notification, int64, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	notifications, total, err := s.repo.GetNotifications(userID, isRead, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, 0, err
	}

	unreadCount, err := s.repo.GetUnreadCount(userID)
	if err != nil {
		return nil, 0, 0, err
	}
	return notifications, total, unreadCount, nil
}

func (s *notificationService) MarkAsRead(notificationID, userID uint) error {
	if err := s.repo.MarkAsRead(notificationID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotificationNotFound
		}
		return err
	}
	return nil
}

func (s *notificationService) MarkAllAsRead(userID uint) error {
	return s.repo.MarkAllAsRead(userID)
}
