package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/timmy/gigescrow/internal/domain"
	"github.com/timmy/gigescrow/internal/logger"
	"github.com/timmy/gigescrow/internal/repository"
)

const maxNotificationLimit = 100

// NotificationService records and serves per-user notifications.
type NotificationService struct {
	store  *repository.Store
	logger *logger.Logger
}

// NewNotificationService creates a new notification service
func NewNotificationService(store *repository.Store, log *logger.Logger) *NotificationService {
	return &NotificationService{store: store, logger: log}
}

func (s *NotificationService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// Notify records a notification. It runs after the triggering write has
// committed, so a failure is logged and never returned.
func (s *NotificationService) Notify(ctx context.Context, n domain.Notification) {
	if n.UserAddress == "" {
		return
	}
	n.ID = uuid.New().String()
	n.UserAddress = domain.NormalizeAddress(n.UserAddress)
	if err := s.store.Notifications.Create(ctx, &n); err != nil {
		s.log(ctx).WithFields(logger.Fields{
			"recipient": n.UserAddress,
			"type":      string(n.Type),
		}).WithError(err).Error("Failed to record notification")
	}
}

// List returns a user's notifications, newest first. limit is clamped to 1..100.
func (s *NotificationService) List(ctx context.Context, addr string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	if limit <= 0 || limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}
	return s.store.Notifications.List(ctx, addr, unreadOnly, limit)
}

// Count returns the unread and total counters for a user.
func (s *NotificationService) Count(ctx context.Context, addr string) (*domain.NotificationCount, error) {
	return s.store.Notifications.Count(ctx, addr)
}

// MarkRead marks one of addr's notifications read.
func (s *NotificationService) MarkRead(ctx context.Context, id, addr string) error {
	return s.store.Notifications.MarkRead(ctx, id, addr)
}

// MarkAllRead marks every unread notification of addr read and returns how many changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, addr string) (int64, error) {
	return s.store.Notifications.MarkAllRead(ctx, addr)
}
