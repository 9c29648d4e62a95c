package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/FranckJudes/projet-M2-soutenance-sub002/pkg/pushproto"
	"github.com/redis/go-redis/v9"
)

// RedisDialer subscribes to the backend's pub/sub fan-out directly. Useful for
// trusted in-cluster consumers that skip the WebSocket gateway.
type RedisDialer struct {
	Client *redis.Client
	Prefix string
	UserID string
}

func (d *RedisDialer) Dial(ctx context.Context) (Session, error) {
	if err := d.Client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &redisSession{
		pubsub: d.Client.Subscribe(ctx),
		prefix: d.Prefix,
		userID: d.UserID,
		topics: make(map[string]string),
	}, nil
}

type redisSession struct {
	pubsub *redis.PubSub
	prefix string
	userID string

	mu     sync.RWMutex
	topics map[string]string // channel -> topic
}

func (s *redisSession) Subscribe(ctx context.Context, topic string) error {
	channel, err := pushproto.RedisChannel(s.prefix, s.userID, topic)
	if err != nil {
		return err
	}
	if err := s.pubsub.Subscribe(ctx, channel); err != nil {
		return err
	}
	s.mu.Lock()
	s.topics[channel] = topic
	s.mu.Unlock()
	return nil
}

func (s *redisSession) Receive(ctx context.Context) (Message, error) {
	msg, err := s.pubsub.Receive(ctx)
	if err != nil {
		return Message{}, err
	}
	switch m := msg.(type) {
	case *redis.Message:
		s.mu.RLock()
		topic, ok := s.topics[m.Channel]
		s.mu.RUnlock()
		if !ok {
			topic = m.Channel
		}
		return Message{Topic: topic, Payload: []byte(m.Payload)}, nil
	default:
		// *redis.Subscription and *redis.Pong both prove the link is alive.
		return Message{Heartbeat: true}, nil
	}
}

func (s *redisSession) Ping(ctx context.Context) error {
	return s.pubsub.Ping(ctx)
}

func (s *redisSession) Close() error {
	return s.pubsub.Close()
}
