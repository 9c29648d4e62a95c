// Command inbox runs a headless notification inbox for one user: it bootstraps
// from the REST snapshot, keeps a push session open and logs every change.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/gateway"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/modules/inbox"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/modules/inbox/application"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/modules/inbox/infrastructure/restclient"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/modules/inbox/infrastructure/transport"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/shared/infrastructure/config"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/shared/infrastructure/database"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/shared/logger"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/shared/utils"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.New(
		logger.WithLevelName(cfg.Log.Level),
		logger.WithFormat(logger.Format(cfg.Log.Format)),
		logger.WithAttr(slog.String("service", "inbox")),
	)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("inbox exited", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	if err := cfg.Inbox.Validate(); err != nil {
		return err
	}

	token, err := resolveToken(cfg)
	if err != nil {
		return err
	}

	dialer, closeDialer, err := buildDialer(ctx, cfg, token, log)
	if err != nil {
		return err
	}
	defer closeDialer()

	backend := restclient.New(cfg.Inbox.BaseURL,
		restclient.WithToken(token),
		restclient.WithHTTPClient(&http.Client{Timeout: cfg.Inbox.AckTimeout}),
	)

	reg := prometheus.NewRegistry()
	module := inbox.NewModule(dialer, backend, moduleConfig(cfg.Inbox), reg, log)
	defer module.Shutdown()

	sub := module.Store().Subscribe(64)
	defer sub.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return module.Run(ctx) })
	g.Go(func() error {
		watch(ctx, module.Store(), sub, log)
		return nil
	})
	if cfg.Inbox.MetricsPort != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		g.Go(func() error {
			return gateway.NewServer(cfg.Inbox.MetricsPort, mux, log).Start(ctx)
		})
	}
	return g.Wait()
}

func moduleConfig(c config.InboxConfig) inbox.Config {
	return inbox.Config{
		Snapshot: application.SnapshotConfig{
			PageSize:        c.PageSize,
			MaxPages:        c.MaxPages,
			RefreshInterval: c.RefreshInterval,
		},
		Reconciler: application.ReconcilerConfig{
			AckRetries: c.AckRetries,
		},
		Transport: transport.Config{
			InitialDelay:       c.ReconnectInitial,
			MaxDelay:           c.ReconnectMax,
			Multiplier:         c.ReconnectMultiplier,
			HeartbeatOutgoing:  c.HeartbeatOutgoing,
			HeartbeatIncoming:  c.HeartbeatIncoming,
			HeartbeatTolerance: c.HeartbeatTolerance,
			Topics:             c.Topics,
		},
	}
}

// resolveToken prefers INBOX_TOKEN and otherwise mints one for INBOX_USER_ID
// with the shared JWT secret.
func resolveToken(cfg config.Config) (string, error) {
	if cfg.Inbox.Token != "" {
		return cfg.Inbox.Token, nil
	}
	if cfg.JWT.Secret == "" || cfg.Inbox.UserID == uuid.Nil {
		return "", errors.New("set INBOX_TOKEN, or JWT_SECRET with INBOX_USER_ID")
	}
	return utils.GenerateToken(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.Inbox.UserID, "user")
}

func buildDialer(ctx context.Context, cfg config.Config, token string, log *slog.Logger) (transport.Dialer, func(), error) {
	switch cfg.Inbox.Transport {
	case config.TransportRedis:
		client, err := database.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return &transport.RedisDialer{
			Client: client,
			Prefix: cfg.Redis.ChannelPrefix,
			UserID: cfg.Inbox.UserID.String(),
		}, func() { client.Close() }, nil
	default:
		return &transport.WebSocketDialer{
			URL:    cfg.Inbox.WSURL,
			Token:  token,
			Logger: log,
		}, func() {}, nil
	}
}

func watch(ctx context.Context, store *application.Store, sub *application.Subscription, log *slog.Logger) {
	var last uint64
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-sub.C:
			if !ok {
				return
			}
			if last != 0 && c.Version != last+1 {
				log.Warn("inbox changes dropped", slog.Uint64("missed", c.Version-last-1))
			}
			last = c.Version

			attrs := []any{
				slog.String("kind", string(c.Kind)),
				slog.Int("unread", c.UnreadCount),
				slog.Uint64("version", c.Version),
			}
			if n, ok := store.Get(c.ID); ok {
				attrs = append(attrs, logger.NotificationID(n.ID), slog.String("title", n.Title), slog.String("status", string(n.Status)))
			} else if c.ID != "" {
				attrs = append(attrs, logger.NotificationID(c.ID))
			}
			log.Info("inbox changed", attrs...)
		}
	}
}
