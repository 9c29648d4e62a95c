package transport

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/modules/inbox/infrastructure/metrics"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/modules/notification/domain"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/shared/logger"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/pkg/pushproto"
)

var ErrHeartbeatTimeout = errors.New("no heartbeat from server")

type Config struct {
	InitialDelay       time.Duration
	MaxDelay           time.Duration
	Multiplier         float64
	HeartbeatOutgoing  time.Duration
	HeartbeatIncoming  time.Duration
	HeartbeatTolerance int
	Topics             []string
}

func DefaultConfig() Config {
	return Config{
		InitialDelay:       time.Second,
		MaxDelay:           30 * time.Second,
		Multiplier:         2,
		HeartbeatOutgoing:  pushproto.HeartbeatInterval,
		HeartbeatIncoming:  pushproto.HeartbeatInterval,
		HeartbeatTolerance: 2,
		Topics:             []string{pushproto.TopicUser, pushproto.TopicBroadcast},
	}
}

type Option func(*Connector)

// WithAfter replaces time.After for reconnect waits.
func WithAfter(after func(time.Duration) <-chan time.Time) Option {
	return func(c *Connector) { c.after = after }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Connector) { c.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Connector) { c.metrics = m }
}

// Connector keeps one push session alive, re-dialing with backoff, and feeds every
// pushed notification into the sink.
type Connector struct {
	dialer  Dialer
	sink    Sink
	cfg     Config
	after   func(time.Duration) <-chan time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu        sync.Mutex
	state     State
	listeners []func(from, to State)
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewConnector(dialer Dialer, sink Sink, cfg Config, opts ...Option) *Connector {
	def := DefaultConfig()
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = def.Multiplier
	}
	if cfg.HeartbeatTolerance <= 0 {
		cfg.HeartbeatTolerance = def.HeartbeatTolerance
	}
	if len(cfg.Topics) == 0 {
		cfg.Topics = def.Topics
	}

	c := &Connector{
		dialer: dialer,
		sink:   sink,
		cfg:    cfg,
		after:  time.After,
		state:  StateDisconnected,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logger.OrDefault(c.logger).With(logger.Component("transport"))
	return c
}

func (c *Connector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnStateChange registers fn for every transition. Listeners run on the
// connector goroutine and must not block.
func (c *Connector) OnStateChange(fn func(from, to State)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Start launches the connection loop. Calling it again while running is a no-op.
func (c *Connector) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return domain.ErrConnectorClosed
	}
	if c.done != nil {
		c.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go c.run(runCtx, done)
	return nil
}

// Stop tears the session down and waits for the loop to exit. No sink call
// happens after Stop returns.
func (c *Connector) Stop() {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	c.setState(StateClosed)
}

func (c *Connector) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	bo := Backoff{Initial: c.cfg.InitialDelay, Max: c.cfg.MaxDelay, Multiplier: c.cfg.Multiplier}
	for {
		if ctx.Err() != nil {
			return
		}
		c.setState(StateConnecting)

		sess, err := c.dialer.Dial(ctx)
		if err != nil {
			err = &domain.TransportError{Op: "dial", Err: err}
		} else {
			err = c.serve(ctx, sess, &bo)
			sess.Close()
		}
		if ctx.Err() != nil {
			return
		}

		delay := bo.Next()
		c.logger.Warn("push connection lost", logger.Error(err), logger.Duration(delay))
		c.setState(StateReconnecting)
		c.metrics.Reconnect()

		select {
		case <-ctx.Done():
			return
		case <-c.after(delay):
		}
	}
}

func (c *Connector) serve(ctx context.Context, sess Session, bo *Backoff) error {
	for _, topic := range c.cfg.Topics {
		if err := sess.Subscribe(ctx, topic); err != nil {
			return &domain.TransportError{Op: "subscribe", Err: err}
		}
	}
	c.setState(StateConnected)
	bo.Reset()

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 2)
	msgs := make(chan Message)

	go func() {
		for {
			m, err := sess.Receive(sctx)
			if err != nil {
				errc <- &domain.TransportError{Op: "receive", Err: err}
				return
			}
			select {
			case msgs <- m:
			case <-sctx.Done():
				return
			}
		}
	}()

	if c.cfg.HeartbeatOutgoing > 0 {
		go func() {
			ticker := time.NewTicker(c.cfg.HeartbeatOutgoing)
			defer ticker.Stop()
			for {
				select {
				case <-sctx.Done():
					return
				case <-ticker.C:
					if err := sess.Ping(sctx); err != nil {
						errc <- &domain.TransportError{Op: "ping", Err: err}
						return
					}
				}
			}
		}()
	}

	var (
		watchdog *time.Timer
		expired  <-chan time.Time
		limit    = c.cfg.HeartbeatIncoming * time.Duration(c.cfg.HeartbeatTolerance)
	)
	if limit > 0 {
		watchdog = time.NewTimer(limit)
		defer watchdog.Stop()
		expired = watchdog.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errc:
			return err
		case <-expired:
			return &domain.TransportError{Op: "heartbeat", Err: ErrHeartbeatTimeout}
		case m := <-msgs:
			if watchdog != nil {
				watchdog.Reset(limit)
			}
			if !m.Heartbeat {
				c.deliver(m)
			}
		}
	}
}

func (c *Connector) deliver(m Message) {
	n, err := domain.DecodeNotification(m.Payload)
	if err != nil {
		c.logger.Warn("dropping malformed push payload", logger.Topic(m.Topic), logger.Error(err))
		c.metrics.Message(m.Topic, "malformed")
		return
	}

	changed, err := c.sink.Upsert(n)
	switch {
	case err != nil:
		c.logger.Warn("push notification rejected", logger.NotificationID(n.ID), logger.Error(err))
		c.metrics.Message(m.Topic, "rejected")
	case changed:
		c.metrics.Message(m.Topic, "applied")
	default:
		c.metrics.Message(m.Topic, "duplicate")
	}
}

func (c *Connector) setState(to State) {
	c.mu.Lock()
	from := c.state
	if from == StateClosed || from == to {
		c.mu.Unlock()
		return
	}
	c.state = to
	listeners := append([]func(from, to State){}, c.listeners...)
	c.mu.Unlock()

	c.logger.Debug("transport state changed", logger.State(to.String()))
	c.metrics.SetTransportState(int(to))
	for _, fn := range listeners {
		fn(from, to)
	}
}
