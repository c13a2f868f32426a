package repository

import (
	"github.com/lgu-bplo/bizpermit-backend/internal/app/model"
	"gorm.io/gorm"
)

type NotificationRepository interface {
	CreateNotification(notification *model.Notification) error
	GetNotificationByID(id uint) (*model.Notification, error)
	GetNotifications(userID uint, isRead *bool, limit, offset int) ([]model.Notification, int64, error)
	GetUnreadCount(userID uint) (int64, error)
	MarkAsRead(id, userID uint) error
	MarkAllAsRead(userID uint) error
	ExistsForPermit(userID, permitID uint, notifType model.NotificationType, title string) (bool, error)
}

type notificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) CreateNotification(notification *model.Notification) error {
	return r.db.Create(notification).Error
}

func (r *notificationRepository) GetNotificationByID(id uint) (*model.Notification, error) {
	var notification model.Notification
	if err := r.db.First(&notification, id).Error; err != nil {
		return nil, err
	}
	return &notification, nil
}

func (r *notificationRepository) GetNotifications(userID uint, isRead *bool, limit, offset int) ([]model.Notification, int64, error) {
	var notifications []model.Notification
	var total int64

	query := r.db.Model(&model.Notification{}).Where("user_id = ?", userID)
	if isRead != nil {
		query = query.Where("is_read = ?", *isRead)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	if err := query.Find(&notifications).Error; err != nil {
		return nil, 0, err
	}
	return notifications, total, nil
}

func (r *notificationRepository) GetUnreadCount(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&model.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}

// MarkAsRead only touches the row if it belongs to userID.
func (r *notificationRepository) MarkAsRead(id, userID uint) error {
	result := r.db.Model(&model.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_read", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *notificationRepository) MarkAllAsRead(userID uint) error {
	return r.db.Model(&model.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true).Error
}

// ExistsForPermit is used by the reminder job to avoid sending the same
// reminder twice.
func (r *notificationRepository) ExistsForPermit(userID, permitID uint, notifType model.NotificationType, title string) (bool, error) {
	var count int64
	err := r.db.Model(&model.Notification{}).
		Where("user_id = ? AND related_permit_id = ? AND type = ? AND title = ?", userID, permitID, notifType, title).
		Count(&count).Error
	return count > 0, err
}
