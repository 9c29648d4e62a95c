package websocket

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/modules/notification/domain"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/shared/logger"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/pkg/pushproto"
	"github.com/google/uuid"
)

type UnicastMessage struct {
	UserID  uuid.UUID
	Message []byte
}

// Hub maintains the set of active clients and fans pushed notifications out to
// the ones subscribed to the matching topic.
type Hub struct {
	clients map[*Client]bool

	// Encoded envelopes for the broadcast topic.
	broadcast chan []byte

	// Encoded envelopes for one user's queue.
	unicast chan UnicastMessage

	register   chan *Client
	unregister chan *Client

	// pingInterval paces server pings on every connection.
	pingInterval time.Duration

	stop     chan struct{}
	stopOnce sync.Once
	logger   *slog.Logger
}

// missedPings is how many ping intervals a connection may stay silent before
// its read deadline expires.
const missedPings = 3

type HubOption func(*Hub)

// WithPingInterval sets how often clients are pinged. Non-positive values keep
// pushproto.HeartbeatInterval.
func WithPingInterval(d time.Duration) HubOption {
	return func(h *Hub) {
		if d > 0 {
			h.pingInterval = d
		}
	}
}

func NewHub(l *slog.Logger, opts ...HubOption) *Hub {
	h := &Hub{
		broadcast:  make(chan []byte),
		unicast:    make(chan UnicastMessage),
		register:   make(chan *Client),
		unregister: make(chan *Client),

		pingInterval: pushproto.HeartbeatInterval,

		clients: make(map[*Client]bool),
		stop:    make(chan struct{}),
		logger:  logger.OrDefault(l).With(logger.Component("ws_hub")),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) pongWait() time.Duration {
	return missedPings * h.pingInterval
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.logger.Debug("client registered", logger.UserID(client.userID), slog.Int("clients", len(h.clients)))
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				h.logger.Debug("client unregistered", logger.UserID(client.userID))
			}
		case message := <-h.broadcast:
			for client := range h.clients {
				if client.subscribed(pushproto.TopicBroadcast) {
					h.deliver(client, message)
				}
			}
		case msg := <-h.unicast:
			for client := range h.clients {
				if client.userID == msg.UserID && client.subscribed(pushproto.TopicUser) {
					h.deliver(client, msg.Message)
				}
			}
		case <-h.stop:
			h.logger.Info("stopping hub", slog.Int("clients", len(h.clients)))
			for client := range h.clients {
				h.drop(client)
			}
			return
		}
	}
}

// deliver drops clients whose send buffer is full rather than stalling the hub.
func (h *Hub) deliver(client *Client, message []byte) {
	select {
	case client.send <- message:
	default:
		h.logger.Warn("dropping slow client", logger.UserID(client.userID))
		h.drop(client)
	}
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)
}

// BroadcastMessage queues an encoded envelope for every broadcast subscriber.
// It returns without sending once the hub is stopped.
func (h *Hub) BroadcastMessage(message []byte) {
	select {
	case h.broadcast <- message:
	case <-h.stop:
	}
}

// SendToUser queues an encoded envelope for the user-queue subscribers of
// userID. It returns without sending once the hub is stopped.
func (h *Hub) SendToUser(userID uuid.UUID, message []byte) {
	select {
	case h.unicast <- UnicastMessage{UserID: userID, Message: message}:
	case <-h.stop:
	}
}

// Push wraps n in a message envelope and routes it to its recipient, or to every
// broadcast subscriber.
func (h *Hub) Push(_ context.Context, n domain.Notification, broadcast bool) error {
	topic := pushproto.TopicUser
	if broadcast {
		topic = pushproto.TopicBroadcast
	}
	env, err := pushproto.NewMessage(topic, n)
	if err != nil {
		return err
	}
	data, err := pushproto.Encode(env)
	if err != nil {
		return err
	}

	if broadcast {
		h.BroadcastMessage(data)
	} else {
		h.SendToUser(n.RecipientID, data)
	}
	return nil
}

// Stop closes every client and makes pending and future sends return.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
	})
}
