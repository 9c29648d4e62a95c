package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/modules/notification/domain"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/modules/notification/infrastructure/persistence/postgres"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return sqlx.NewDb(db, "postgres"), mock, func() { db.Close() }
}

var columns = []string{"id", "recipient_id", "title", "message", "type", "priority", "status", "created_at", "source_id", "source_type", "action_link"}

func TestPgNotificationRepository_CRUDLikeOperations(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := postgres.NewPgNotificationRepository(db)
	ctx := context.Background()
	userID := uuid.New()
	notificationID := uuid.NewString()
	createdAt := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	n := &domain.Notification{
		ID:          notificationID,
		RecipientID: userID,
		Title:       "Title",
		Message:     "Message",
		Type:        domain.NotificationTypeTaskAssigned,
		Priority:    domain.PriorityHigh,
		Status:      domain.StatusUnread,
		CreatedAt:   createdAt,
		SourceID:    "42",
		SourceType:  "TASK",
	}

	mock.ExpectExec(`INSERT INTO notifications`).
		WithArgs(notificationID, userID, "Title", "Message", domain.NotificationTypeTaskAssigned,
			domain.PriorityHigh, domain.StatusUnread, createdAt, "42", "TASK", "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Create(ctx, n))

	rows := sqlmock.NewRows(columns).
		AddRow(notificationID, userID, "Title", "Message", "TASK_ASSIGNED", "HIGH", "UNREAD", createdAt, "42", "TASK", "")
	mock.ExpectQuery(`SELECT .+ FROM notifications WHERE recipient_id = \$1 ORDER BY created_at DESC, id LIMIT \$2 OFFSET \$3`).
		WithArgs(userID, 10, 5).
		WillReturnRows(rows)
	items, err := repo.ListByUser(ctx, userID, domain.ListFilter{Limit: 10, Offset: 5})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, userID, items[0].RecipientID)
	assert.Equal(t, domain.StatusUnread, items[0].Status)

	mock.ExpectExec(`UPDATE notifications`).
		WithArgs(notificationID, userID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkAsRead(ctx, notificationID, userID))

	mock.ExpectExec(`UPDATE notifications`).
		WithArgs(userID).
		WillReturnResult(sqlmock.NewResult(0, 2))
	changed, err := repo.MarkAllAsRead(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), changed)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM notifications`).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	count, err := repo.UnreadCount(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	mock.ExpectExec(`DELETE FROM notifications`).
		WithArgs(notificationID, userID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Delete(ctx, notificationID, userID))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgNotificationRepository_Create_FillsDefaults(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := postgres.NewPgNotificationRepository(db)
	n := &domain.Notification{ID: uuid.NewString(), RecipientID: uuid.New(), Title: "T", Message: "M", Type: domain.NotificationTypeInfo}

	mock.ExpectExec(`INSERT INTO notifications`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Create(context.Background(), n))
	assert.False(t, n.CreatedAt.IsZero())
	assert.True(t, n.CreatedAt.Equal(n.CreatedAt.Truncate(time.Microsecond)))
	assert.Equal(t, domain.StatusUnread, n.Status)
	assert.Equal(t, domain.PriorityNormal, n.Priority)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgNotificationRepository_ListByUser_StatusFilter(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := postgres.NewPgNotificationRepository(db)
	userID := uuid.New()

	mock.ExpectQuery(`WHERE recipient_id = \$1 AND status = \$2 ORDER BY created_at DESC, id LIMIT \$3 OFFSET \$4`).
		WithArgs(userID, domain.StatusUnread, 50, 0).
		WillReturnRows(sqlmock.NewRows(columns))

	items, err := repo.ListByUser(context.Background(), userID, domain.ListFilter{Status: domain.StatusUnread, Limit: 50})
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgNotificationRepository_ListByUser_Error(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := postgres.NewPgNotificationRepository(db)
	userID := uuid.New()

	mock.ExpectQuery(`SELECT .+ FROM notifications`).
		WithArgs(userID, 10, 0).
		WillReturnError(errors.New("query fail"))

	items, err := repo.ListByUser(context.Background(), userID, domain.ListFilter{Limit: 10})
	require.Error(t, err)
	assert.Nil(t, items)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgNotificationRepository_MarkAsRead_ErrorBranches(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := postgres.NewPgNotificationRepository(db)
	ctx := context.Background()
	notificationID := uuid.NewString()
	userID := uuid.New()

	t.Run("exec error", func(t *testing.T) {
		mock.ExpectExec(`UPDATE notifications`).
			WithArgs(notificationID, userID).
			WillReturnError(errors.New("exec fail"))
		err := repo.MarkAsRead(ctx, notificationID, userID)
		require.EqualError(t, err, "mark notification read: exec fail")
	})

	t.Run("rows affected error", func(t *testing.T) {
		mock.ExpectExec(`UPDATE notifications`).
			WithArgs(notificationID, userID).
			WillReturnResult(sqlmock.NewErrorResult(errors.New("rows fail")))
		err := repo.MarkAsRead(ctx, notificationID, userID)
		require.EqualError(t, err, "rows fail")
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectExec(`UPDATE notifications`).
			WithArgs(notificationID, userID).
			WillReturnResult(sqlmock.NewResult(0, 0))
		err := repo.MarkAsRead(ctx, notificationID, userID)
		require.ErrorIs(t, err, domain.ErrNotificationNotFound)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgNotificationRepository_Delete_NotFound(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := postgres.NewPgNotificationRepository(db)
	mock.ExpectExec(`DELETE FROM notifications`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "missing", uuid.New())
	require.ErrorIs(t, err, domain.ErrNotificationNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgNotificationRepository_UnreadCount_Error(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := postgres.NewPgNotificationRepository(db)
	userID := uuid.New()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM notifications`).
		WithArgs(userID).
		WillReturnError(errors.New("count fail"))

	count, err := repo.UnreadCount(context.Background(), userID)
	require.EqualError(t, err, "count fail")
	assert.Equal(t, 0, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgNotificationRepository_MarkAllAsRead_Error(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := postgres.NewPgNotificationRepository(db)
	userID := uuid.New()

	mock.ExpectExec(`UPDATE notifications`).
		WithArgs(userID).
		WillReturnError(errors.New("exec fail"))

	_, err := repo.MarkAllAsRead(context.Background(), userID)
	require.EqualError(t, err, "mark all notifications read: exec fail")
	require.NoError(t, mock.ExpectationsWereMet())
}
