package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/gateway/middleware"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/modules/notification/application"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/modules/notification/domain"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/modules/notification/infrastructure/websocket"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/shared/logger"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/shared/utils"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/pkg/pushproto"
	"github.com/google/uuid"
)

const (
	defaultLimit = 20
	maxLimit     = pushproto.MaxPageLimit
)

type NotificationHandler struct {
	service *application.NotificationService
	hub     *websocket.Hub
	logger  *slog.Logger
}

func NewNotificationHandler(service *application.NotificationService, hub *websocket.Hub, l *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		service: service,
		hub:     hub,
		logger:  logger.OrDefault(l).With(logger.Component("notification_http")),
	}
}

type createRequest struct {
	RecipientID string `json:"recipientId"`
	Title       string `json:"title"`
	Message     string `json:"message"`
	Type        string `json:"type"`
	Priority    string `json:"priority"`
	SourceID    string `json:"sourceId"`
	SourceType  string `json:"sourceType"`
	ActionLink  string `json:"actionLink"`
	Broadcast   bool   `json:"broadcast"`
}

func currentUser(r *http.Request) (uuid.UUID, bool) {
	userID, ok := r.Context().Value(middleware.ContextKeyUserId).(uuid.UUID)
	return userID, ok && userID != uuid.Nil
}

// Subscribe upgrades to the push WebSocket for the authenticated user.
func (h *NotificationHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	websocket.ServeWs(h.hub, w, r, userID)
}

func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	filter := domain.ListFilter{Limit: defaultLimit}
	q := r.URL.Query()
	if l := q.Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 {
			filter.Limit = min(v, maxLimit)
		}
	}
	if o := q.Get("offset"); o != "" {
		if v, err := strconv.Atoi(o); err == nil && v >= 0 {
			filter.Offset = v
		}
	}
	if s := q.Get("status"); s != "" {
		filter.Status = domain.Status(s)
		if !filter.Status.Valid() {
			utils.WriteError(w, http.StatusBadRequest, "invalid status filter", nil)
			return
		}
	}

	notifications, err := h.service.List(r.Context(), userID, filter)
	if err != nil {
		h.logger.Error("list notifications failed", logger.UserID(userID), logger.Error(err))
		utils.WriteError(w, http.StatusInternalServerError, "failed to fetch notifications", nil)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]any{"data": notifications})
}

func (h *NotificationHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	recipient := userID
	if req.RecipientID != "" {
		parsed, err := uuid.Parse(req.RecipientID)
		if err != nil {
			utils.WriteError(w, http.StatusBadRequest, "invalid recipientId", err)
			return
		}
		recipient = parsed
	}

	n, err := h.service.Create(r.Context(), application.CreateInput{
		RecipientID: recipient,
		Title:       req.Title,
		Message:     req.Message,
		Type:        domain.NotificationType(req.Type),
		Priority:    domain.Priority(req.Priority),
		SourceID:    req.SourceID,
		SourceType:  req.SourceType,
		ActionLink:  req.ActionLink,
		Broadcast:   req.Broadcast,
	})
	if err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			utils.WriteError(w, http.StatusBadRequest, "invalid notification", err)
			return
		}
		h.logger.Error("create notification failed", logger.UserID(userID), logger.Error(err))
		utils.WriteError(w, http.StatusInternalServerError, "failed to create notification", nil)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, n)
}

func (h *NotificationHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	notificationID := r.PathValue("id")
	if notificationID == "" {
		utils.WriteError(w, http.StatusBadRequest, "invalid notification id", nil)
		return
	}

	userID, ok := currentUser(r)
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	if err := h.service.MarkAsRead(r.Context(), notificationID, userID); err != nil {
		h.writeMutationError(w, "mark notification read", notificationID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) MarkAllAsRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	if _, err := h.service.MarkAllAsRead(r.Context(), userID); err != nil {
		h.logger.Error("mark all read failed", logger.UserID(userID), logger.Error(err))
		utils.WriteError(w, http.StatusInternalServerError, "failed to mark all notifications as read", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	notificationID := r.PathValue("id")
	if notificationID == "" {
		utils.WriteError(w, http.StatusBadRequest, "invalid notification id", nil)
		return
	}

	userID, ok := currentUser(r)
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	if err := h.service.Delete(r.Context(), notificationID, userID); err != nil {
		h.writeMutationError(w, "delete notification", notificationID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	count, err := h.service.UnreadCount(r.Context(), userID)
	if err != nil {
		h.logger.Error("unread count failed", logger.UserID(userID), logger.Error(err))
		utils.WriteError(w, http.StatusInternalServerError, "failed to get unread count", nil)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (h *NotificationHandler) writeMutationError(w http.ResponseWriter, op, id string, err error) {
	if errors.Is(err, domain.ErrNotificationNotFound) {
		utils.WriteError(w, http.StatusNotFound, "notification not found", nil)
		return
	}
	h.logger.Error(op+" failed", logger.NotificationID(id), logger.Error(err))
	utils.WriteError(w, http.StatusInternalServerError, "failed to "+op, nil)
}
