package domain

import (
	"time"

	"github.com/google/uuid"
)

// TimestampPrecision is the resolution Postgres TIMESTAMPTZ keeps. CreatedAt is
// stamped at this precision so a pushed record and its stored copy compare equal.
const TimestampPrecision = time.Microsecond

type NotificationType string

const (
	NotificationTypeMention          NotificationType = "MENTION"
	NotificationTypeDeadline         NotificationType = "DEADLINE"
	NotificationTypeTaskAssigned     NotificationType = "TASK_ASSIGNED"
	NotificationTypeAlert            NotificationType = "ALERT"
	NotificationTypeInfo             NotificationType = "INFO"
	NotificationTypeTaskCompleted    NotificationType = "TASK_COMPLETED"
	NotificationTypeDeadlineReminder NotificationType = "DEADLINE_REMINDER"
	NotificationTypeProcessStarted   NotificationType = "PROCESS_STARTED"
	NotificationTypeProcessCompleted NotificationType = "PROCESS_COMPLETED"
	NotificationTypeSystemAlert      NotificationType = "SYSTEM_ALERT"
	NotificationTypeCommentAdded     NotificationType = "COMMENT_ADDED"
	NotificationTypeDocumentUploaded NotificationType = "DOCUMENT_UPLOADED"
)

// Priority only breaks ordering ties; it never affects delivery.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// Rank orders priorities LOW < NORMAL < HIGH < URGENT. Unknown values rank as NORMAL.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityHigh:
		return 2
	case PriorityUrgent:
		return 3
	default:
		return 1
	}
}

type Status string

const (
	StatusUnread Status = "UNREAD"
	StatusRead   Status = "READ"
)

func (s Status) Valid() bool {
	return s == StatusUnread || s == StatusRead
}

// Notification is one event delivered to a user. The same shape is stored by the
// backend, pushed over the transports and held by the client inbox.
type Notification struct {
	ID          string           `json:"id" db:"id"`
	RecipientID uuid.UUID        `json:"-" db:"recipient_id"`
	Title       string           `json:"title" db:"title"`
	Message     string           `json:"message" db:"message"`
	Type        NotificationType `json:"type" db:"type"`
	Priority    Priority         `json:"priority" db:"priority"`
	Status      Status           `json:"status" db:"status"`
	CreatedAt   time.Time        `json:"createdAt" db:"created_at"`
	SourceID    string           `json:"sourceId,omitempty" db:"source_id"`
	SourceType  string           `json:"sourceType,omitempty" db:"source_type"`
	ActionLink  string           `json:"actionLink,omitempty" db:"action_link"`
}

func (n *Notification) IsUnread() bool {
	return n.Status == StatusUnread
}

// Validate reports a *ValidationError for records the inbox must reject.
func (n *Notification) Validate() error {
	if n.ID == "" {
		return &ValidationError{Field: "id", Err: ErrMissingID}
	}
	if !n.Status.Valid() {
		return &ValidationError{ID: n.ID, Field: "status", Err: ErrInvalidStatus}
	}
	return nil
}

// Less is the inbox ordering: newest first, then higher priority first.
// Equal records keep insertion order, which callers track separately.
func Less(a, b *Notification) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.Priority.Rank() > b.Priority.Rank()
}
