package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRedis_InvalidConfig(t *testing.T) {
	cfg := RedisConfig{
		Host: "127.0.0.1",
		Port: "1",
	}

	client, err := NewRedis(context.Background(), cfg)

	assert.ErrorContains(t, err, "failed to connect to redis")
	assert.Nil(t, client)
}

func TestRedisConfig_Addr(t *testing.T) {
	assert.Equal(t, "redis.example.com:6380", RedisConfig{Host: "redis.example.com", Port: "6380"}.Addr())
	assert.Equal(t, "[::1]:6379", RedisConfig{Host: "::1", Port: "6379"}.Addr())
}
