package application

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/modules/inbox/infrastructure/metrics"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/modules/notification/domain"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/shared/logger"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/pkg/pushproto"
	"golang.org/x/sync/singleflight"
)

// Fetcher returns one page of raw notification entities in server order.
type Fetcher interface {
	Fetch(ctx context.Context, limit, offset int) ([]json.RawMessage, error)
}

type SnapshotConfig struct {
	// PageSize is capped at pushproto.MaxPageLimit so a full page from the
	// server is never mistaken for the last one.
	PageSize        int
	MaxPages        int
	RefreshInterval time.Duration
}

func DefaultSnapshotConfig() SnapshotConfig {
	return SnapshotConfig{PageSize: 50, MaxPages: 100, RefreshInterval: time.Minute}
}

type LoadResult struct {
	Pages       int
	Fetched     int
	Applied     int
	Rejected    int
	UnreadCount int
}

type SnapshotOption func(*SnapshotLoader)

func WithSnapshotLogger(l *slog.Logger) SnapshotOption {
	return func(s *SnapshotLoader) { s.logger = l }
}

func WithSnapshotMetrics(m *metrics.Metrics) SnapshotOption {
	return func(s *SnapshotLoader) { s.metrics = m }
}

// SnapshotLoader bulk-loads the server's notification set into the store.
type SnapshotLoader struct {
	store   *Store
	fetcher Fetcher
	cfg     SnapshotConfig
	group   singleflight.Group
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewSnapshotLoader(store *Store, fetcher Fetcher, cfg SnapshotConfig, opts ...SnapshotOption) *SnapshotLoader {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultSnapshotConfig().PageSize
	}
	cfg.PageSize = min(cfg.PageSize, pushproto.MaxPageLimit)
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultSnapshotConfig().MaxPages
	}
	l := &SnapshotLoader{store: store, fetcher: fetcher, cfg: cfg}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = logger.OrDefault(l.logger).With(logger.Component("snapshot"))
	return l
}

// Load fetches every page and upserts each entity in server order. Concurrent
// callers share one fetch. On error the pages already applied stay applied.
func (l *SnapshotLoader) Load(ctx context.Context) (LoadResult, error) {
	v, err, _ := l.group.Do("load", func() (any, error) {
		return l.load(ctx)
	})
	res, _ := v.(LoadResult)
	return res, err
}

func (l *SnapshotLoader) load(ctx context.Context) (LoadResult, error) {
	var res LoadResult
	start := time.Now()
	seen := make(map[string]struct{})
	seenMalformed := make(map[string]struct{})

	for offset := 0; res.Pages < l.cfg.MaxPages; {
		page, err := l.fetcher.Fetch(ctx, l.cfg.PageSize, offset)
		if err != nil {
			if res.Pages > 0 {
				res.UnreadCount = l.store.Recount()
			}
			l.metrics.SnapshotLoad("error")
			return res, &domain.SnapshotError{Offset: offset, Err: err}
		}
		res.Pages++
		res.Fetched += len(page)

		fresh := 0
		for _, raw := range page {
			n, err := domain.DecodeNotification(raw)
			if err != nil {
				res.Rejected++
				l.logger.Warn("skipping malformed snapshot entry", logger.Error(err))
				if _, dup := seenMalformed[string(raw)]; !dup {
					seenMalformed[string(raw)] = struct{}{}
					fresh++
				}
				continue
			}
			if _, dup := seen[n.ID]; !dup {
				seen[n.ID] = struct{}{}
				fresh++
			}
			changed, err := l.store.Upsert(n)
			if err != nil {
				res.Rejected++
				continue
			}
			if changed {
				res.Applied++
			}
		}

		// A short page ends the set. An oversized page or one with no entry
		// not seen before, valid or not, means the server ignores paging and
		// already sent everything.
		if len(page) != l.cfg.PageSize || fresh == 0 {
			break
		}
		offset += len(page)
	}

	res.UnreadCount = l.store.Recount()
	l.metrics.SnapshotLoad("ok")
	l.logger.Debug("snapshot loaded",
		slog.Int("pages", res.Pages),
		slog.Int("fetched", res.Fetched),
		slog.Int("applied", res.Applied),
		slog.Int("rejected", res.Rejected),
		logger.Duration(time.Since(start)),
	)
	return res, nil
}

// Run reloads every RefreshInterval until ctx is done. A zero interval disables
// refreshing and Run just waits.
func (l *SnapshotLoader) Run(ctx context.Context) error {
	if l.cfg.RefreshInterval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(l.cfg.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := l.Load(ctx); err != nil && ctx.Err() == nil {
				l.logger.Warn("snapshot refresh failed", logger.Error(err))
			}
		}
	}
}
