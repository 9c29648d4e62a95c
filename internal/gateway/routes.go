package gateway

import (
	"net/http"

	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/gateway/middleware"
	notification_http "github.com/FranckJudes/projet-M2-soutenance-sub002/internal/modules/notification/interfaces/http"
)

// RouterConfig holds the handlers and middleware needed for routing.
type RouterConfig struct {
	AuthMiddleware      *middleware.AuthMiddleWare
	NotificationHandler *notification_http.NotificationHandler
	// Optional. When nil /metrics is not mounted and requests are not measured.
	Metrics        *middleware.HTTPMetrics
	MetricsHandler http.Handler
	AllowedOrigins []string
}

// SetupRoutes creates and configures all application routes.
func SetupRoutes(config RouterConfig) http.Handler {
	router := NewRouter()
	if config.Metrics != nil {
		router.Use(config.Metrics.Middleware)
	}
	if len(config.AllowedOrigins) > 0 {
		router.Use(middleware.CORS(config.AllowedOrigins))
	}

	router.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	if config.MetricsHandler != nil {
		router.Handle("GET /metrics", config.MetricsHandler)
	}

	auth := config.AuthMiddleware.RequireAuth
	h := config.NotificationHandler

	router.Handle("GET /notifications", auth(http.HandlerFunc(h.ListNotifications)))
	router.Handle("POST /notifications", auth(http.HandlerFunc(h.Create)))
	router.Handle("GET /notifications/unread-count", auth(http.HandlerFunc(h.UnreadCount)))
	router.Handle("PUT /notifications/read-all", auth(http.HandlerFunc(h.MarkAllAsRead)))
	router.Handle("PUT /notifications/{id}/read", auth(http.HandlerFunc(h.MarkAsRead)))
	router.Handle("DELETE /notifications/{id}", auth(http.HandlerFunc(h.Delete)))
	router.Handle("GET /ws", auth(http.HandlerFunc(h.Subscribe)))

	return router.Handler()
}
