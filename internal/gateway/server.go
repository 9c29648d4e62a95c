package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/shared/logger"
)

const shutdownGrace = 20 * time.Second

type Server struct {
	httpServer *http.Server
	port       string
	logger     *slog.Logger
}

func NewServer(port string, handler http.Handler, l *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:        ":" + port,
			Handler:     handler,
			ReadTimeout: 15 * time.Second,
			// WebSocket connections outlive any write deadline set here; the
			// push client manages its own per-frame deadlines.
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		port:   port,
		logger: logger.OrDefault(l).With(logger.Component("http_server")),
	}
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", slog.String("addr", ln.Addr().String()))
		serverErrors <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case <-ctx.Done():
		s.logger.Info("server shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.httpServer.Close()
			return fmt.Errorf("could not gracefully shutdown server: %w", err)
		}

		s.logger.Info("server stopped gracefully")
	}

	return nil
}
