package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/modules/notification/domain"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/pkg/pushproto"
	goredis "github.com/redis/go-redis/v9"
)

// Publisher is the subset of the go-redis client the publisher uses.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *goredis.IntCmd
}

// NotificationPublisher fans created notifications out over Redis pub/sub so
// other backend replicas and in-cluster consumers see them.
type NotificationPublisher struct {
	client Publisher
	prefix string
}

func NewNotificationPublisher(client Publisher, prefix string) *NotificationPublisher {
	return &NotificationPublisher{client: client, prefix: prefix}
}

func (p *NotificationPublisher) Push(ctx context.Context, n domain.Notification, broadcast bool) error {
	topic := pushproto.TopicUser
	if broadcast {
		topic = pushproto.TopicBroadcast
	}
	channel, err := pushproto.RedisChannel(p.prefix, n.RecipientID.String(), topic)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}
