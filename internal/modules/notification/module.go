package notification

import (
	"log/slog"

	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/modules/notification/application"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/modules/notification/infrastructure/persistence/postgres"
	notificationredis "github.com/FranckJudes/projet-M2-soutenance-sub002/internal/modules/notification/infrastructure/redis"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/modules/notification/infrastructure/websocket"
	notification_http "github.com/FranckJudes/projet-M2-soutenance-sub002/internal/modules/notification/interfaces/http"
	"github.com/jmoiron/sqlx"
)

type Module struct {
	service *application.NotificationService
	handler *notification_http.NotificationHandler
	hub     *websocket.Hub
}

// NewModule wires the notification backend. publisher may be nil, in which case
// notifications are only pushed over the in-process WebSocket hub.
func NewModule(db *sqlx.DB, publisher notificationredis.Publisher, channelPrefix string, logger *slog.Logger, hubOpts ...websocket.HubOption) *Module {
	repo := postgres.NewPgNotificationRepository(db)
	hub := websocket.NewHub(logger, hubOpts...)
	go hub.Run()

	pushers := []application.Pusher{hub}
	if publisher != nil {
		pushers = append(pushers, notificationredis.NewNotificationPublisher(publisher, channelPrefix))
	}

	service := application.NewNotificationService(repo, logger, pushers...)
	handler := notification_http.NewNotificationHandler(service, hub, logger)

	return &Module{
		service: service,
		handler: handler,
		hub:     hub,
	}
}

func (m *Module) HTTPHandler() *notification_http.NotificationHandler {
	return m.handler
}

func (m *Module) Service() *application.NotificationService {
	return m.service
}

func (m *Module) Shutdown() {
	m.hub.Stop()
}
