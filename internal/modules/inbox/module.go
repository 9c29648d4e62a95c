package inbox

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/modules/inbox/application"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/modules/inbox/infrastructure/metrics"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/modules/inbox/infrastructure/transport"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/shared/logger"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// Backend is the REST side of the notification server.
type Backend interface {
	application.Fetcher
	application.Acknowledger
}

type Config struct {
	Snapshot   application.SnapshotConfig
	Reconciler application.ReconcilerConfig
	Transport  transport.Config
}

// Module owns one user's inbox: the store plus the three sources that mutate it.
type Module struct {
	store      *application.Store
	loader     *application.SnapshotLoader
	reconciler *application.Reconciler
	connector  *transport.Connector
	logger     *slog.Logger

	connected atomic.Bool
	resync    chan struct{}
}

// NewModule wires the inbox. reg may be nil, in which case nothing is measured.
func NewModule(dialer transport.Dialer, backend Backend, cfg Config, reg prometheus.Registerer, l *slog.Logger) *Module {
	l = logger.OrDefault(l)

	var m *metrics.Metrics
	if reg != nil {
		m = metrics.New(reg)
	}

	store := application.NewStore(application.WithStoreLogger(l), application.WithStoreMetrics(m))
	mod := &Module{
		store: store,
		loader: application.NewSnapshotLoader(store, backend, cfg.Snapshot,
			application.WithSnapshotLogger(l), application.WithSnapshotMetrics(m)),
		reconciler: application.NewReconciler(store, backend, cfg.Reconciler,
			application.WithReconcilerLogger(l), application.WithReconcilerMetrics(m)),
		connector: transport.NewConnector(dialer, store, cfg.Transport,
			transport.WithLogger(l), transport.WithMetrics(m)),
		logger: l.With(logger.Component("inbox")),
		resync: make(chan struct{}, 1),
	}
	mod.connector.OnStateChange(mod.onStateChange)
	return mod
}

// onStateChange queues a snapshot after every reconnect so pushes missed while
// offline are recovered.
func (m *Module) onStateChange(_, to transport.State) {
	if to != transport.StateConnected {
		return
	}
	if !m.connected.Swap(true) {
		return
	}
	select {
	case m.resync <- struct{}{}:
	default:
	}
}

func (m *Module) Store() *application.Store {
	return m.store
}

func (m *Module) Reconciler() *application.Reconciler {
	return m.reconciler
}

func (m *Module) Loader() *application.SnapshotLoader {
	return m.loader
}

func (m *Module) Connector() *transport.Connector {
	return m.connector
}

// Run bootstraps from a snapshot, keeps the push session alive and refreshes
// periodically until ctx is done. Snapshot failures are logged, never fatal.
func (m *Module) Run(ctx context.Context) error {
	if err := m.connector.Start(ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m.load(ctx, "bootstrap")
		return nil
	})
	g.Go(func() error {
		return m.loader.Run(ctx)
	})
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-m.resync:
				m.load(ctx, "reconnect")
			}
		}
	})
	g.Go(func() error {
		<-ctx.Done()
		m.connector.Stop()
		return nil
	})
	return g.Wait()
}

func (m *Module) load(ctx context.Context, reason string) {
	res, err := m.loader.Load(ctx)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Warn("snapshot failed", slog.String("reason", reason), logger.Error(err))
		}
		return
	}
	m.logger.Info("snapshot applied",
		slog.String("reason", reason),
		slog.Int("fetched", res.Fetched),
		slog.Int("rejected", res.Rejected),
		slog.Int("unread", res.UnreadCount))
}

// Shutdown stops the connector and closes the store and its subscriptions.
func (m *Module) Shutdown() {
	m.connector.Stop()
	m.store.Close()
}
