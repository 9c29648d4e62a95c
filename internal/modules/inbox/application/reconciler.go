package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/modules/inbox/infrastructure/metrics"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/modules/notification/domain"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/shared/logger"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/singleflight"
)

// Acknowledger confirms read-state changes with the backend.
type Acknowledger interface {
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
	Delete(ctx context.Context, id string) error
}

type ReconcilerConfig struct {
	// AckRetries is how many times a failed confirmation is repeated. Zero
	// reports the first failure.
	AckRetries uint64
	RetryBase  time.Duration
}

type ReconcilerOption func(*Reconciler)

func WithReconcilerLogger(l *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) { r.logger = l }
}

func WithReconcilerMetrics(m *metrics.Metrics) ReconcilerOption {
	return func(r *Reconciler) { r.metrics = m }
}

// Reconciler applies user actions to the store first and confirms them with the
// backend afterwards. Local state is never rolled back.
type Reconciler struct {
	store   *Store
	backend Acknowledger
	cfg     ReconcilerConfig
	group   singleflight.Group
	logger  *slog.Logger
	metrics *metrics.Metrics

	// gens counts local transitions per confirmation key. A confirmation
	// covers a transition only if it started at or after that transition.
	mu   sync.Mutex
	gens map[string]uint64
}

func NewReconciler(store *Store, backend Acknowledger, cfg ReconcilerConfig, opts ...ReconcilerOption) *Reconciler {
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	r := &Reconciler{store: store, backend: backend, cfg: cfg, gens: make(map[string]uint64)}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logger.OrDefault(r.logger).With(logger.Component("reconciler"))
	return r
}

// MarkRead is idempotent: only the call that flips the entity to READ talks to
// the backend.
func (r *Reconciler) MarkRead(ctx context.Context, id string) error {
	if !r.store.MarkRead(id) {
		return nil
	}
	return r.confirm(ctx, "mark_read", id, r.bump("mark_read", id), func(ctx context.Context) error {
		return r.backend.MarkRead(ctx, id)
	})
}

// MarkAllRead sends one aggregate confirmation when anything changed locally.
// A call made while an earlier confirmation is in flight gets one of its own
// once that one returns.
func (r *Reconciler) MarkAllRead(ctx context.Context) error {
	if len(r.store.MarkAllRead()) == 0 {
		return nil
	}
	return r.confirm(ctx, "mark_all_read", "", r.bump("mark_all_read", ""), r.backend.MarkAllRead)
}

// Delete removes the entity locally. If the backend refuses, the entity stays
// gone but may come back with the next snapshot.
func (r *Reconciler) Delete(ctx context.Context, id string) error {
	if _, ok := r.store.Remove(id); !ok {
		return nil
	}
	err := r.confirm(ctx, "delete", id, r.bump("delete", id), func(ctx context.Context) error {
		return r.backend.Delete(ctx, id)
	})
	if err != nil {
		r.store.Forget(id)
	}
	return err
}

func (r *Reconciler) bump(op, id string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gens[op+":"+id]++
	return r.gens[op+":"+id]
}

func (r *Reconciler) generation(key string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gens[key]
}

// confirm runs call once for every burst of callers. A caller whose transition
// gen is newer than what the shared call observed when it started joins the
// next call instead.
func (r *Reconciler) confirm(ctx context.Context, op, id string, gen uint64, call func(context.Context) error) error {
	key := op + ":" + id
	var err error
	for {
		var v any
		v, err, _ = r.group.Do(key, func() (any, error) {
			started := r.generation(key)
			return started, r.withRetry(ctx, call)
		})
		if err != nil || v.(uint64) >= gen {
			break
		}
	}
	if err != nil {
		r.metrics.Acknowledgement(op, "error")
		r.logger.Warn("backend acknowledgement failed",
			slog.String("op", op), logger.NotificationID(id), logger.Error(err))
		return &domain.ReconciliationError{Op: op, ID: id, Err: err}
	}
	r.metrics.Acknowledgement(op, "ok")
	return nil
}

type temporary interface {
	Temporary() bool
}

func (r *Reconciler) withRetry(ctx context.Context, call func(context.Context) error) error {
	if r.cfg.AckRetries == 0 {
		return call(ctx)
	}
	backoff := retry.WithMaxRetries(r.cfg.AckRetries, retry.NewExponential(r.cfg.RetryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := call(ctx)
		if err == nil || ctx.Err() != nil {
			return err
		}
		var t temporary
		if errors.As(err, &t) && !t.Temporary() {
			return err
		}
		return retry.RetryableError(err)
	})
}
