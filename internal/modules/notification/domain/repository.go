package domain

import (
	"context"

	"github.com/google/uuid"
)

type NotificationRepository interface {
	Create(ctx context.Context, notification *Notification) error
	ListByUser(ctx context.Context, userID uuid.UUID, filter ListFilter) ([]Notification, error)
	MarkAsRead(ctx context.Context, notificationID string, userID uuid.UUID) error
	MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int64, error)
	Delete(ctx context.Context, notificationID string, userID uuid.UUID) error
	UnreadCount(ctx context.Context, userID uuid.UUID) (int, error)
}

// ListFilter pages the backend listing. An empty Status returns every notification.
type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}
