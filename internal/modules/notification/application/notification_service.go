package application

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/modules/notification/domain"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/shared/logger"
	"github.com/google/uuid"
)

// Pusher delivers a stored notification to live subscribers.
type Pusher interface {
	Push(ctx context.Context, n domain.Notification, broadcast bool) error
}

type CreateInput struct {
	RecipientID uuid.UUID
	Title       string
	Message     string
	Type        domain.NotificationType
	Priority    domain.Priority
	SourceID    string
	SourceType  string
	ActionLink  string
	// Broadcast pushes on the broadcast topic instead of the recipient's queue.
	Broadcast bool
}

type NotificationService struct {
	repo    domain.NotificationRepository
	pushers []Pusher
	logger  *slog.Logger
	now     func() time.Time
}

func NewNotificationService(repo domain.NotificationRepository, l *slog.Logger, pushers ...Pusher) *NotificationService {
	return &NotificationService{
		repo:    repo,
		pushers: pushers,
		logger:  logger.OrDefault(l).With(logger.Component("notification_service")),
		now:     func() time.Time { return time.Now().UTC().Truncate(domain.TimestampPrecision) },
	}
}

// Create stores the notification, then pushes it. Push failures are logged;
// clients still get the record from their next snapshot.
func (s *NotificationService) Create(ctx context.Context, in CreateInput) (*domain.Notification, error) {
	if in.RecipientID == uuid.Nil {
		return nil, &domain.ValidationError{Field: "recipientId", Err: domain.ErrMissingRecipient}
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, &domain.ValidationError{Field: "title", Err: domain.ErrMissingTitle}
	}

	n := &domain.Notification{
		ID:          uuid.NewString(),
		RecipientID: in.RecipientID,
		Title:       in.Title,
		Message:     in.Message,
		Type:        normalizeType(in.Type),
		Priority:    normalizePriority(in.Priority),
		Status:      domain.StatusUnread,
		CreatedAt:   s.now(),
		SourceID:    in.SourceID,
		SourceType:  in.SourceType,
		ActionLink:  in.ActionLink,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, err
	}

	for _, p := range s.pushers {
		if err := p.Push(ctx, *n, in.Broadcast); err != nil {
			s.logger.Warn("push failed", logger.NotificationID(n.ID), logger.Error(err))
		}
	}
	return n, nil
}

func (s *NotificationService) List(ctx context.Context, userID uuid.UUID, filter domain.ListFilter) ([]domain.Notification, error) {
	return s.repo.ListByUser(ctx, userID, filter)
}

func (s *NotificationService) MarkAsRead(ctx context.Context, notificationID string, userID uuid.UUID) error {
	return s.repo.MarkAsRead(ctx, notificationID, userID)
}

func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.MarkAllAsRead(ctx, userID)
}

func (s *NotificationService) Delete(ctx context.Context, notificationID string, userID uuid.UUID) error {
	return s.repo.Delete(ctx, notificationID, userID)
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.UnreadCount(ctx, userID)
}

func normalizeType(t domain.NotificationType) domain.NotificationType {
	if t == "" {
		return domain.NotificationTypeInfo
	}
	return domain.NotificationType(strings.ToUpper(string(t)))
}

func normalizePriority(p domain.Priority) domain.Priority {
	switch up := domain.Priority(strings.ToUpper(string(p))); up {
	case domain.PriorityLow, domain.PriorityHigh, domain.PriorityUrgent:
		return up
	default:
		return domain.PriorityNormal
	}
}
