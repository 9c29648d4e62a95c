package websocket

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/shared/logger"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/pkg/pushproto"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client is one WebSocket connection owned by an authenticated user.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID uuid.UUID

	// control carries replies to the client's own frames. Only the hub closes send.
	control chan []byte

	mu     sync.RWMutex
	topics map[string]bool
}

func newClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		userID:  userID,
		control: make(chan []byte, 16),
		topics:  make(map[string]bool),
	}
}

func (c *Client) subscribed(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topics[topic]
}

func (c *Client) setTopic(topic string, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if topic == "" && !on {
		clear(c.topics)
		return
	}
	if on {
		c.topics[topic] = true
	} else {
		delete(c.topics, topic)
	}
}

// reply queues a control envelope for this client only. It never blocks the reader.
func (c *Client) reply(env pushproto.Envelope) {
	data, err := pushproto.Encode(env)
	if err != nil {
		return
	}
	select {
	case c.control <- data:
	default:
	}
}

// readPump handles subscribe/unsubscribe frames and keeps the read deadline
// alive on pongs and client pings.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stop:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	pongWait := c.hub.pongWait()
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	c.conn.SetPingHandler(func(appData string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		err := c.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("client read failed", logger.UserID(c.userID), logger.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		env, err := pushproto.Decode(data)
		if err != nil {
			c.reply(pushproto.Envelope{Type: pushproto.TypeError, Error: err.Error()})
			continue
		}

		switch env.Type {
		case pushproto.TypeSubscribe:
			if !pushproto.ValidTopic(env.Topic) {
				c.reply(pushproto.Envelope{Type: pushproto.TypeError, Topic: env.Topic, Error: "unknown topic"})
				continue
			}
			c.setTopic(env.Topic, true)
			c.reply(pushproto.Envelope{Type: pushproto.TypeSubscribed, Topic: env.Topic})
		case pushproto.TypeUnsubscribe:
			c.setTopic(env.Topic, false)
		default:
			c.reply(pushproto.Envelope{Type: pushproto.TypeError, Error: "unsupported frame " + string(env.Type)})
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case message := <-c.control:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs upgrades the request and registers the connection for userID.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Warn("websocket upgrade failed", logger.Error(err), slog.String("remote", r.RemoteAddr))
		return
	}

	client := newClient(hub, conn, userID)
	select {
	case hub.register <- client:
	case <-hub.stop:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
