package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/shared/infrastructure/database"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/pkg/pushproto"
	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// Config holds all configuration for both binaries.
type Config struct {
	Server   ServerConfig
	Database database.PostgresConfig `envPrefix:"DB_"`
	Redis    database.RedisConfig    `envPrefix:"REDIS_"`
	JWT      JWTConfig               `envPrefix:"JWT_"`
	Log      LogConfig               `envPrefix:"LOG_"`
	Inbox    InboxConfig             `envPrefix:"INBOX_"`
}

type ServerConfig struct {
	Port           string   `env:"PORT" envDefault:"8080"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:4200"`
	// PingInterval paces WebSocket pings; clients expect one every few seconds.
	PingInterval time.Duration `env:"WS_PING_INTERVAL" envDefault:"4s"`
}

type JWTConfig struct {
	Secret string        `env:"SECRET"`
	Expiry time.Duration `env:"EXPIRATION" envDefault:"24h"`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

const (
	TransportWebSocket = "websocket"
	TransportRedis     = "redis"
)

// InboxConfig drives the headless client.
type InboxConfig struct {
	BaseURL   string    `env:"BASE_URL" envDefault:"http://localhost:8080"`
	WSURL     string    `env:"WS_URL" envDefault:"ws://localhost:8080/ws"`
	Transport string    `env:"TRANSPORT" envDefault:"websocket"`
	Token     string    `env:"TOKEN"`
	UserID    uuid.UUID `env:"USER_ID"`
	Topics    []string  `env:"TOPICS" envSeparator:"," envDefault:"/user/queue/notifications,/topic/notifications"`

	ReconnectInitial    time.Duration `env:"RECONNECT_INITIAL" envDefault:"1s"`
	ReconnectMax        time.Duration `env:"RECONNECT_MAX" envDefault:"30s"`
	ReconnectMultiplier float64       `env:"RECONNECT_MULTIPLIER" envDefault:"2"`
	HeartbeatOutgoing   time.Duration `env:"HEARTBEAT_OUTGOING" envDefault:"4s"`
	HeartbeatIncoming   time.Duration `env:"HEARTBEAT_INCOMING" envDefault:"4s"`
	HeartbeatTolerance  int           `env:"HEARTBEAT_TOLERANCE" envDefault:"2"`

	PageSize        int           `env:"PAGE_SIZE" envDefault:"50"`
	MaxPages        int           `env:"MAX_PAGES" envDefault:"100"`
	RefreshInterval time.Duration `env:"REFRESH_INTERVAL" envDefault:"1m"`
	AckRetries      uint64        `env:"ACK_RETRIES" envDefault:"0"`
	AckTimeout      time.Duration `env:"ACK_TIMEOUT" envDefault:"10s"`

	// Empty disables the client's /metrics listener.
	MetricsPort string `env:"METRICS_PORT"`
}

// Load reads an optional .env file, then parses the process environment.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	return Parse(nil)
}

// Parse reads configuration from environ, or from the process environment when
// environ is nil.
func Parse(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func (c JWTConfig) Validate() error {
	if c.Secret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.Expiry <= 0 {
		return errors.New("JWT_EXPIRATION must be positive")
	}
	return nil
}

func (c InboxConfig) Validate() error {
	switch c.Transport {
	case TransportWebSocket, TransportRedis:
	default:
		return fmt.Errorf("INBOX_TRANSPORT %q: want %s or %s", c.Transport, TransportWebSocket, TransportRedis)
	}
	if c.Transport == TransportRedis && c.UserID == uuid.Nil {
		return errors.New("INBOX_USER_ID is required for the redis transport")
	}
	if c.BaseURL == "" {
		return errors.New("INBOX_BASE_URL is required")
	}
	for _, topic := range c.Topics {
		if !pushproto.ValidTopic(topic) {
			return fmt.Errorf("INBOX_TOPICS: unknown topic %q", topic)
		}
	}
	if c.PageSize <= 0 || c.PageSize > pushproto.MaxPageLimit {
		return fmt.Errorf("INBOX_PAGE_SIZE must be between 1 and %d", pushproto.MaxPageLimit)
	}
	if c.ReconnectInitial <= 0 || c.ReconnectMax < c.ReconnectInitial || c.ReconnectMultiplier < 1 {
		return errors.New("INBOX_RECONNECT_* must describe a non-shrinking positive backoff")
	}
	return nil
}
