package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/gateway"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/gateway/middleware"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/modules/notification"
	notificationredis "github.com/FranckJudes/projet-M2-soutenance-sub002/internal/modules/notification/infrastructure/redis"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/modules/notification/infrastructure/websocket"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/shared/infrastructure/config"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/shared/infrastructure/database"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/shared/logger"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/migrations"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/pkg/migration"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := newLogger(cfg.Log, "notification-server")
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", logger.Error(err))
		os.Exit(1)
	}
}

func newLogger(cfg config.LogConfig, service string) *slog.Logger {
	return logger.New(
		logger.WithLevelName(cfg.Level),
		logger.WithFormat(logger.Format(cfg.Format)),
		logger.WithAttr(slog.String("service", service)),
	)
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	if err := cfg.JWT.Validate(); err != nil {
		return err
	}

	db, err := database.NewPostgresDB(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	log.Info("database connected", slog.String("host", cfg.Database.Host))

	if err := migration.AutoMigrate(migration.Config{
		Source:      migrations.FS,
		DatabaseURL: cfg.Database.DSN(),
		Logger:      log,
	}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	var publisher notificationredis.Publisher
	if cfg.Redis.Enabled {
		client, err := database.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer client.Close()
		publisher = client
		log.Info("redis connected", slog.String("addr", cfg.Redis.Addr()))
	}

	module := notification.NewModule(db, publisher, cfg.Redis.ChannelPrefix, log,
		websocket.WithPingInterval(cfg.Server.PingInterval))
	defer module.Shutdown()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	handler := gateway.SetupRoutes(gateway.RouterConfig{
		AuthMiddleware:      middleware.NewAuthMiddleware(cfg.JWT.Secret),
		NotificationHandler: module.HTTPHandler(),
		Metrics:             middleware.NewHTTPMetrics(reg),
		MetricsHandler:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		AllowedOrigins:      cfg.Server.AllowedOrigins,
	})

	return gateway.NewServer(cfg.Server.Port, handler, log).Start(ctx)
}
