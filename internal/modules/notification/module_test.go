package notification_test

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/modules/notification"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/shared/logger"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewModule(t *testing.T) {
	sqlDB, _, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db := sqlx.NewDb(sqlDB, "postgres")
	m := notification.NewModule(db, nil, "notifications", logger.Discard())
	defer m.Shutdown()
	require.NotNil(t, m)
	assert.NotNil(t, m.HTTPHandler())
	assert.NotNil(t, m.Service())
}

func TestNewModule_WithRedisPublisher(t *testing.T) {
	sqlDB, _, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	m := notification.NewModule(sqlx.NewDb(sqlDB, "postgres"), client, "notifications", logger.Discard())
	m.Shutdown()
	m.Shutdown()
	assert.NotNil(t, m.Service())
}
