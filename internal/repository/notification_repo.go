package repository

import (
	"context"

	"github.com/timmy/gigescrow/internal/domain"
	"gorm.io/gorm"
)

// NotificationRepository persists per-user notifications.
type NotificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a notification.
func (r *NotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

// List retrieves a user's notifications, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - addr: recipient wallet address.
//   - unreadOnly: restrict to unread notifications.
//   - limit: maximum number of records to return.
// Returns:
//   - []domain.Notification: matching notifications.
//   - error: non-nil if the query fails.
func (r *NotificationRepository) List(ctx context.Context, addr string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	query := r.db.WithContext(ctx).Where("user_address = ?", domain.NormalizeAddress(addr))
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}
	var out []domain.Notification
	if err := query.Order("created_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Count returns unread and total notification counts for a user.
func (r *NotificationRepository) Count(ctx context.Context, addr string) (*domain.NotificationCount, error) {
	norm := domain.NormalizeAddress(addr)
	out := &domain.NotificationCount{}
	base := r.db.WithContext(ctx).Model(&domain.Notification{}).Where("user_address = ?", norm)
	if err := base.Session(&gorm.Session{}).Count(&out.TotalCount).Error; err != nil {
		return nil, err
	}
	if err := base.Session(&gorm.Session{}).Where("is_read = ?", false).Count(&out.UnreadCount).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// MarkRead marks one notification read. Only the recipient may do so.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, addr string) error {
	res := r.db.WithContext(ctx).Model(&domain.Notification{}).
		Where("id = ? AND user_address = ?", id, domain.NormalizeAddress(addr)).
		Update("is_read", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFound(gorm.ErrRecordNotFound, "notification "+id)
	}
	return nil
}

// MarkAllRead marks every unread notification of addr read.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, addr string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&domain.Notification{}).
		Where("user_address = ? AND is_read = ?", domain.NormalizeAddress(addr), false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}
