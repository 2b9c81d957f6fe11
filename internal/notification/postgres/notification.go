package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/frahmantamala/dental-credit/internal/core/database"
	datamodel "github.com/frahmantamala/dental-credit/internal/core/datamodel/notification"
	"github.com/frahmantamala/dental-credit/internal/notification"
)

type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

var _ notification.RepositoryAPI = (*NotificationRepository)(nil)

func (r *NotificationRepository) CreateBatch(ctx context.Context, rows []*datamodel.Notification) error {
	if len(rows) == 0 {
		return nil
	}
	return database.Conn(ctx, r.db).Create(&rows).Error
}

func (r *NotificationRepository) ListByUser(ctx context.Context, userID int64, unreadOnly bool) ([]*datamodel.Notification, error) {
	var rows []*datamodel.Notification
	q := database.Conn(ctx, r.db).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("read = ?", false)
	}
	err := q.Order("created_at DESC").Order("id DESC").Find(&rows).Error
	return rows, err
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := database.Conn(ctx, r.db).Model(&datamodel.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Count(&count).Error
	return count, err
}

func (r *NotificationRepository) GetByID(ctx context.Context, id int64) (*datamodel.Notification, error) {
	var n datamodel.Notification
	err := database.Conn(ctx, r.db).First(&n, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notification.ErrNotificationNotFound
		}
		return nil, err
	}
	return &n, nil
}

func (r *NotificationRepository) MarkRead(ctx context.Context, id int64) error {
	return database.Conn(ctx, r.db).Model(&datamodel.Notification{}).
		Where("id = ?", id).
		Update("read", true).Error
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	res := database.Conn(ctx, r.db).Model(&datamodel.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Update("read", true)
	return res.RowsAffected, res.Error
}

func (r *NotificationRepository) Delete(ctx context.Context, id int64) error {
	return database.Conn(ctx, r.db).Delete(&datamodel.Notification{}, id).Error
}
