package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/modules/notification/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const notificationColumns = `id, recipient_id, title, message, type, priority, status, created_at, source_id, source_type, action_link`

type PgNotificationRepository struct {
	db *sqlx.DB
}

func NewPgNotificationRepository(db *sqlx.DB) *PgNotificationRepository {
	return &PgNotificationRepository{db: db}
}

func (r *PgNotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC().Truncate(domain.TimestampPrecision)
	}
	if n.Status == "" {
		n.Status = domain.StatusUnread
	}
	if n.Priority == "" {
		n.Priority = domain.PriorityNormal
	}

	query := `
		INSERT INTO notifications (` + notificationColumns + `)
		VALUES (:id, :recipient_id, :title, :message, :type, :priority, :status, :created_at, :source_id, :source_type, :action_link)
	`
	if _, err := r.db.NamedExecContext(ctx, query, n); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *PgNotificationRepository) ListByUser(ctx context.Context, userID uuid.UUID, filter domain.ListFilter) ([]domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE recipient_id = $1`
	args := []any{userID}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	notifications := []domain.Notification{}
	if err := r.db.SelectContext(ctx, &notifications, query, args...); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notifications, nil
}

// MarkAsRead is idempotent for rows already READ; it only fails when the row
// does not exist for this user.
func (r *PgNotificationRepository) MarkAsRead(ctx context.Context, notificationID string, userID uuid.UUID) error {
	query := `
		UPDATE notifications
		SET status = 'READ'
		WHERE id = $1 AND recipient_id = $2
	`
	res, err := r.db.ExecContext(ctx, query, notificationID, userID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return requireRow(res.RowsAffected())
}

func (r *PgNotificationRepository) MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	query := `
		UPDATE notifications
		SET status = 'READ'
		WHERE recipient_id = $1 AND status = 'UNREAD'
	`
	res, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return res.RowsAffected()
}

func (r *PgNotificationRepository) Delete(ctx context.Context, notificationID string, userID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = $1 AND recipient_id = $2`, notificationID, userID)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	return requireRow(res.RowsAffected())
}

func (r *PgNotificationRepository) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*) FROM notifications
		WHERE recipient_id = $1 AND status = 'UNREAD'
	`
	var count int
	err := r.db.GetContext(ctx, &count, query, userID)
	return count, err
}

func requireRow(n int64, err error) error {
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotificationNotFound
	}
	return nil
}
