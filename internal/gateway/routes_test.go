package gateway

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/gateway/middleware"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/modules/notification"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/shared/logger"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/shared/utils"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func newTestRoutes(t *testing.T) (http.Handler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	module := notification.NewModule(sqlx.NewDb(db, "postgres"), nil, "notifications", logger.Discard())
	t.Cleanup(module.Shutdown)

	reg := prometheus.NewRegistry()
	handler := SetupRoutes(RouterConfig{
		AuthMiddleware:      middleware.NewAuthMiddleware(testSecret),
		NotificationHandler: module.HTTPHandler(),
		Metrics:             middleware.NewHTTPMetrics(reg),
		MetricsHandler:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		AllowedOrigins:      []string{"http://localhost:4200"},
	})
	return handler, mock
}

func authorized(t *testing.T, req *http.Request, userID uuid.UUID) *http.Request {
	t.Helper()
	token, err := utils.GenerateToken(testSecret, time.Hour, userID, "user")
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestSetupRoutes_HealthCheck(t *testing.T) {
	handler, _ := newTestRoutes(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestSetupRoutes_RequiresAuth(t *testing.T) {
	handler, _ := newTestRoutes(t)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/notifications"},
		{http.MethodPost, "/notifications"},
		{http.MethodGet, "/notifications/unread-count"},
		{http.MethodPut, "/notifications/read-all"},
		{http.MethodPut, "/notifications/abc/read"},
		{http.MethodDelete, "/notifications/abc"},
		{http.MethodGet, "/ws"},
	} {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(route.method, route.path, nil))
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestSetupRoutes_UnreadCountAndMetrics(t *testing.T) {
	handler, mock := newTestRoutes(t)
	userID := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM notifications")).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authorized(t, httptest.NewRequest(http.MethodGet, "/notifications/unread-count", nil), userID))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":3}`, rec.Body.String())
	require.NoError(t, mock.ExpectationsWereMet())

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `route="GET /notifications/unread-count"`)
}

func TestSetupRoutes_MarkReadNotFound(t *testing.T) {
	handler, mock := newTestRoutes(t)
	userID := uuid.New()

	mock.ExpectExec("UPDATE notifications").
		WithArgs("missing", userID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authorized(t, httptest.NewRequest(http.MethodPut, "/notifications/missing/read", nil), userID))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetupRoutes_CORSPreflight(t *testing.T) {
	handler, _ := newTestRoutes(t)

	req := httptest.NewRequest(http.MethodOptions, "/notifications", nil)
	req.Header.Set("Origin", "http://localhost:4200")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:4200", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSetupRoutes_WithoutMetrics(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	module := notification.NewModule(sqlx.NewDb(db, "postgres"), nil, "notifications", logger.Discard())
	defer module.Shutdown()

	handler := SetupRoutes(RouterConfig{
		AuthMiddleware:      middleware.NewAuthMiddleware(testSecret),
		NotificationHandler: module.HTTPHandler(),
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
